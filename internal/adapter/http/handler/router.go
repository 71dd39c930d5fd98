package handler

import (
	"gift-exchange-escrow/internal/adapter/http/middleware"
	redisStore "gift-exchange-escrow/internal/adapter/storage/redis"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	ExchangeSvc    ports.ExchangeService
	SettlementSvc  ports.SettlementService
	LedgerSvc      ports.LedgerService
	AdminSvc       ports.AdminService
	QuerySvc       ports.QueryService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	Signature      middleware.SignatureConfig
	MaxBodyBytes   int64                      // 0 = 1 MB
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, apperror.ErrUnknownOperation())
	})

	// Health check (deep: verifies storage and Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	sigCfg := deps.Signature
	if sigCfg.MaxDrift == 0 || sigCfg.NonceTTL == 0 {
		sigCfg = middleware.DefaultSignatureConfig()
	}

	authHandler := NewAuthHandler(deps.AuthSvc)
	exchangeHandler := NewExchangeHandler(deps.ExchangeSvc)
	settlementHandler := NewSettlementHandler(deps.SettlementSvc, deps.LedgerSvc)
	adminHandler := NewAdminHandler(deps.AdminSvc)
	queryHandler := NewQueryHandler(deps.QuerySvc)

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	v1.POST("/auth/login", rl("auth_login"), authHandler.Login)

	reads := v1.Group("", rl("reads"))
	{
		reads.GET("/exchanges/:id", queryHandler.GetExchange)
		reads.GET("/exchanges/:id/participants", queryHandler.ListParticipants)
		reads.GET("/exchanges/:id/participants/:address", queryHandler.GetParticipant)
		reads.GET("/exchanges/:id/events", queryHandler.ListEvents)
		reads.GET("/identities/:address/exchanges", queryHandler.IdentityHistory)
		reads.GET("/stats", queryHandler.Stats)
	}

	// --- Signed routes (state-changing) ---
	signed := v1.Group("", middleware.SignatureAuth(deps.SigSvc, deps.NonceStore, sigCfg, deps.Logger))
	{
		signed.POST("/exchanges", rl("exchanges"), exchangeHandler.Create)
		signed.POST("/exchanges/:id/register", rl("exchanges"), exchangeHandler.Register)
		signed.POST("/exchanges/:id/reveal", rl("exchanges"), exchangeHandler.Reveal)
		signed.POST("/exchanges/:id/gifts", rl("exchanges"), exchangeHandler.SubmitGift)
		signed.POST("/exchanges/:id/claim", rl("claims"), settlementHandler.Claim)
		signed.POST("/claims/batch", rl("claims"), settlementHandler.BatchClaim)
		signed.POST("/vault/receive", rl("vault"), settlementHandler.Receive)
	}

	admin := signed.Group("/admin", middleware.AdminOnly(deps.AdminSvc), rl("admin"))
	{
		admin.POST("/fees/withdraw", adminHandler.WithdrawFees)
		admin.POST("/exchanges/:id/pause", adminHandler.Pause)
		admin.POST("/accounts/credit", adminHandler.CreditAccount)
	}

	// --- JWT-authenticated routes (session views) ---
	me := v1.Group("/me", middleware.JWTAuth(deps.TokenSvc, deps.Logger), rl("reads"))
	{
		me.GET("/exchanges", queryHandler.MyExchanges)
		me.GET("/account", queryHandler.MyAccount)
	}

	return r
}
