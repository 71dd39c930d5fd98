package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gift-exchange-escrow/config"
	httpHandler "gift-exchange-escrow/internal/adapter/http/handler"
	"gift-exchange-escrow/internal/adapter/http/middleware"
	memStorage "gift-exchange-escrow/internal/adapter/storage/memory"
	pgStorage "gift-exchange-escrow/internal/adapter/storage/postgres"
	redisStorage "gift-exchange-escrow/internal/adapter/storage/redis"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/internal/service"
	"gift-exchange-escrow/pkg/logger"

	"github.com/rs/zerolog"
)

// repositories is the persistence surface selected by storage.driver.
type repositories struct {
	exchanges    ports.ExchangeRepository
	participants ports.ParticipantRepository
	stats        ports.StatsRepository
	events       ports.EventRepository
	idempotency  ports.IdempotencyRepository
	ledger       ports.LedgerRepository
	audit        ports.AuditRepository
	transactor   ports.DBTransactor
	health       ports.HealthChecker
	close        func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		store := memStorage.NewStore()
		log.Warn().Msg("Using in-memory storage; state is lost on restart")
		return &repositories{
			exchanges:    store.Exchanges(),
			participants: store.Participants(),
			stats:        store.Stats(),
			events:       store.Events(),
			idempotency:  store.Idempotency(),
			ledger:       store.Ledger(),
			audit:        store.Audit(),
			transactor:   store,
			health:       memStorage.NewHealthCheck(),
			close:        func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")

	return &repositories{
		exchanges:    pgStorage.NewExchangeRepo(pool),
		participants: pgStorage.NewParticipantRepo(pool),
		stats:        pgStorage.NewStatsRepo(pool),
		events:       pgStorage.NewEventRepo(pool),
		idempotency:  pgStorage.NewIdempotencyRepo(pool),
		ledger:       pgStorage.NewLedgerRepo(pool),
		audit:        pgStorage.NewAuditRepo(pool),
		transactor:   pgStorage.NewTransactor(pool, cfg.Database.LockTimeout),
		health:       pgStorage.NewHealthCheck(pool),
		close:        pool.Close,
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("GXE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	admin, _ := cfg.Escrow.Admin()

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("admin", admin.Hex()).
		Msg("Starting Gift Exchange Escrow")

	ctx := context.Background()

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)
	publisher := redisStorage.NewEventPublisher(rdb, cfg.Escrow.EventChannel)

	// Initialize core services
	sigSvc := service.NewSecp256k1SignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	proofs := service.NewMerkleProofVerifier()

	// Initialize business services
	ledgerSvc := service.NewLedgerService(repos.ledger, repos.transactor, log)
	exchangeSvc := service.NewExchangeService(
		repos.exchanges,
		repos.participants,
		repos.stats,
		repos.events,
		repos.idempotency,
		idempotencyCache,
		ledgerSvc,
		proofs,
		publisher,
		repos.transactor,
		log,
	)
	settlementSvc := service.NewSettlementService(
		repos.exchanges,
		repos.participants,
		repos.stats,
		repos.events,
		ledgerSvc,
		publisher,
		repos.transactor,
		log,
	)
	adminSvc := service.NewAdminService(admin, repos.exchanges, ledgerSvc, repos.transactor, log)
	querySvc := service.NewQueryService(repos.exchanges, repos.participants, repos.events, repos.stats, ledgerSvc)
	authSvc := service.NewAuthService(sigSvc, tokenSvc, cfg.Escrow.MaxTimestampDrift)
	auditSvc := service.NewAuditService(repos.audit, log)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:       authSvc,
		ExchangeSvc:   exchangeSvc,
		SettlementSvc: settlementSvc,
		LedgerSvc:     ledgerSvc,
		AdminSvc:      adminSvc,
		QuerySvc:      querySvc,
		SigSvc:        sigSvc,
		NonceStore:    nonceStore,
		TokenSvc:      tokenSvc,
		Signature: middleware.SignatureConfig{
			MaxDrift: cfg.Escrow.MaxTimestampDrift,
			NonceTTL: cfg.Escrow.NonceTTL,
		},
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{repos.health, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
