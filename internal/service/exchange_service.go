package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour
	// maxDuration bounds caller-supplied durations so deadline arithmetic
	// cannot overflow.
	maxDuration = int64(100 * 365 * 24 * 60 * 60)
)

// ExchangeServiceImpl implements ports.ExchangeService.
// Every operation runs in one transaction holding the exchange row lock.
type ExchangeServiceImpl struct {
	clock
	exchangeRepo    ports.ExchangeRepository
	participantRepo ports.ParticipantRepository
	statsRepo       ports.StatsRepository
	eventRepo       ports.EventRepository
	idempRepo       ports.IdempotencyRepository
	idempCache      ports.IdempotencyCache
	ledger          ports.LedgerService
	proofs          ports.ProofVerifier
	publisher       ports.EventPublisher
	transactor      ports.DBTransactor
	metrics         *metrics.EscrowMetrics
	log             zerolog.Logger
}

// NewExchangeService creates a new ExchangeServiceImpl. publisher may be nil.
func NewExchangeService(
	exchangeRepo ports.ExchangeRepository,
	participantRepo ports.ParticipantRepository,
	statsRepo ports.StatsRepository,
	eventRepo ports.EventRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	ledger ports.LedgerService,
	proofs ports.ProofVerifier,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *ExchangeServiceImpl {
	return &ExchangeServiceImpl{
		clock:           systemClock(),
		exchangeRepo:    exchangeRepo,
		participantRepo: participantRepo,
		statsRepo:       statsRepo,
		eventRepo:       eventRepo,
		idempRepo:       idempRepo,
		idempCache:      idempCache,
		ledger:          ledger,
		proofs:          proofs,
		publisher:       publisher,
		transactor:      transactor,
		metrics:         metrics.Escrow(),
		log:             log,
	}
}

// SetMetrics overrides the metrics sink. A nil value disables reporting.
func (s *ExchangeServiceImpl) SetMetrics(m *metrics.EscrowMetrics) {
	s.metrics = m
}

// CreateExchange opens a new exchange with the caller as organizer and first participant.
func (s *ExchangeServiceImpl) CreateExchange(ctx context.Context, req ports.CreateExchangeRequest) (*domain.Exchange, error) {
	switch {
	case req.DepositAmount <= 0:
		return nil, apperror.Validation("deposit_amount must be positive")
	case req.DepositAmount > domain.MaxDepositAmount:
		return nil, apperror.Validation("deposit_amount exceeds the maximum deposit")
	case req.RegistrationDuration < 0 || req.RegistrationDuration > maxDuration:
		return nil, apperror.Validation("registration_duration out of range")
	case req.ExchangeDuration <= 0 || req.ExchangeDuration > maxDuration:
		return nil, apperror.Validation("exchange_duration out of range")
	}
	if req.AttachedValue < req.DepositAmount {
		return nil, apperror.ErrInsufficientDeposit()
	}

	var idempKey string
	if req.ReferenceID != "" {
		idempKey = domain.BuildIdempotencyKey(req.Caller, req.ReferenceID)

		// Layer 1: Redis
		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return s.unmarshalCachedExchange(cached)
		}

		// Layer 2: DB
		idempLog, err := s.idempRepo.Get(ctx, idempKey)
		if err != nil {
			return nil, storageError("db idempotency check", err)
		}
		if idempLog != nil {
			return s.unmarshalCachedExchange(idempLog.ResponseJSON)
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := s.now().UTC()
	ex := domain.NewExchange(req.Caller, req.DepositAmount, req.RegistrationDuration, req.ExchangeDuration, now.Unix())
	ex.ParticipantCount = 1
	ex.TotalDeposits = req.AttachedValue

	if err := s.exchangeRepo.Create(ctx, dbTx, ex); err != nil {
		return nil, storageError("create exchange", err)
	}

	organizer := &domain.Participant{
		ExchangeID:   ex.ID,
		Address:      req.Caller,
		JoinIndex:    0,
		Deposit:      req.AttachedValue,
		Registered:   true,
		RegisteredAt: now,
	}
	if err := s.participantRepo.Create(ctx, dbTx, organizer); err != nil {
		return nil, storageError("create participant", err)
	}
	if err := s.participantRepo.AppendHistory(ctx, dbTx, req.Caller, ex.ID); err != nil {
		return nil, storageError("append history", err)
	}
	if err := s.statsRepo.Increment(ctx, dbTx, domain.ProtocolStats{TotalExchanges: 1, TotalParticipants: 1}); err != nil {
		return nil, storageError("increment stats", err)
	}
	if err := s.ledger.Collect(ctx, dbTx, req.Caller, req.AttachedValue, ex.ID); err != nil {
		return nil, passThrough("collect deposit", err)
	}

	ev := domain.NewEvent(ex.ID, domain.EventExchangeCreated, req.Caller, req.AttachedValue, now).
		With("gift_amount", strconv.FormatInt(ex.GiftAmount, 10)).
		With("registration_deadline", strconv.FormatInt(ex.RegistrationDeadline, 10)).
		With("reveal_deadline", strconv.FormatInt(ex.RevealDeadline, 10)).
		With("claim_deadline", strconv.FormatInt(ex.ClaimDeadline, 10))
	if err := s.eventRepo.Create(ctx, dbTx, ev); err != nil {
		return nil, storageError("record event", err)
	}

	ex.Participants = []common.Address{req.Caller}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(ex)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		entry := &domain.IdempotencyLog{
			Key:          idempKey,
			ExchangeID:   ex.ID,
			ResponseJSON: respJSON,
			CreatedAt:    now,
		}
		if err := s.idempRepo.Create(ctx, dbTx, entry); err != nil {
			return nil, storageError("save idempotency log", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}
	publishEvents(ctx, s.publisher, s.log, []*domain.ExchangeEvent{ev})
	s.metrics.ObserveExchangeCreated()
	s.metrics.ObserveTransition(domain.StateRegistration.String())

	s.log.Info().
		Int64("exchange_id", ex.ID).
		Str("organizer", req.Caller.Hex()).
		Int64("gift_amount", ex.GiftAmount).
		Int64("attached", req.AttachedValue).
		Int64("registration_deadline", ex.RegistrationDeadline).
		Int64("claim_deadline", ex.ClaimDeadline).
		Msg("exchange created")

	return ex, nil
}

// Register adds the caller to an exchange that is still taking registrations.
func (s *ExchangeServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.Participant, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ex, err := s.exchangeRepo.GetByIDForUpdate(ctx, dbTx, req.ExchangeID)
	if err != nil {
		return nil, storageError("lock exchange", err)
	}
	if ex == nil {
		return nil, apperror.ErrExchangeNotFound()
	}
	if ex.State != domain.StateRegistration {
		return nil, apperror.ErrInvalidExchangeState()
	}
	now := s.now().UTC()
	if now.Unix() > ex.RegistrationDeadline {
		return nil, apperror.ErrDeadlinePassed()
	}

	existing, err := s.participantRepo.GetForUpdate(ctx, dbTx, ex.ID, req.Caller)
	if err != nil {
		return nil, storageError("lock participant", err)
	}
	if existing != nil && existing.Registered {
		return nil, apperror.ErrAlreadyRegistered()
	}
	if req.AttachedValue < ex.GiftAmount {
		return nil, apperror.ErrInsufficientDeposit()
	}
	if ex.IsFull() {
		return nil, apperror.ErrRegistrationClosed()
	}

	p := &domain.Participant{
		ExchangeID:   ex.ID,
		Address:      req.Caller,
		JoinIndex:    ex.ParticipantCount,
		Deposit:      req.AttachedValue,
		Registered:   true,
		RegisteredAt: now,
	}
	if err := s.participantRepo.Create(ctx, dbTx, p); err != nil {
		return nil, storageError("create participant", err)
	}

	total, err := domain.AddAmounts(ex.TotalDeposits, req.AttachedValue)
	if err != nil {
		return nil, apperror.ErrAmountOverflow(err)
	}
	ex.ParticipantCount++
	ex.TotalDeposits = total
	if err := s.exchangeRepo.Update(ctx, dbTx, ex); err != nil {
		return nil, storageError("update exchange", err)
	}
	if err := s.participantRepo.AppendHistory(ctx, dbTx, req.Caller, ex.ID); err != nil {
		return nil, storageError("append history", err)
	}
	if err := s.statsRepo.Increment(ctx, dbTx, domain.ProtocolStats{TotalParticipants: 1}); err != nil {
		return nil, storageError("increment stats", err)
	}
	if err := s.ledger.Collect(ctx, dbTx, req.Caller, req.AttachedValue, ex.ID); err != nil {
		return nil, passThrough("collect deposit", err)
	}

	ev := domain.NewEvent(ex.ID, domain.EventRegistered, req.Caller, req.AttachedValue, now).
		With("participant_count", strconv.Itoa(ex.ParticipantCount))
	if err := s.eventRepo.Create(ctx, dbTx, ev); err != nil {
		return nil, storageError("record event", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	publishEvents(ctx, s.publisher, s.log, []*domain.ExchangeEvent{ev})
	s.metrics.ObserveRegistration()

	s.log.Info().
		Int64("exchange_id", ex.ID).
		Str("participant", req.Caller.Hex()).
		Int64("attached", req.AttachedValue).
		Int("participant_count", ex.ParticipantCount).
		Msg("participant registered")

	return p, nil
}

// RevealAssignments publishes the assignment root and opens gift submission.
// Before the registration deadline only the organizer may reveal.
func (s *ExchangeServiceImpl) RevealAssignments(ctx context.Context, req ports.RevealRequest) (*domain.Exchange, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ex, err := s.exchangeRepo.GetByIDForUpdate(ctx, dbTx, req.ExchangeID)
	if err != nil {
		return nil, storageError("lock exchange", err)
	}
	if ex == nil {
		return nil, apperror.ErrExchangeNotFound()
	}
	if ex.State != domain.StateRegistration {
		return nil, apperror.ErrInvalidExchangeState()
	}
	now := s.now().UTC()
	if now.Unix() <= ex.RegistrationDeadline && req.Caller != ex.Organizer {
		return nil, apperror.ErrNotOrganizer()
	}
	if ex.ParticipantCount < domain.MinParticipants {
		return nil, apperror.ErrInvalidExchangeState()
	}

	ex.AssignmentRoot = req.Root
	ex.State = domain.StateActive
	if err := s.exchangeRepo.Update(ctx, dbTx, ex); err != nil {
		return nil, storageError("update exchange", err)
	}

	ev := domain.NewEvent(ex.ID, domain.EventRevealed, req.Caller, 0, now).
		With("root", req.Root.Hex())
	if err := s.eventRepo.Create(ctx, dbTx, ev); err != nil {
		return nil, storageError("record event", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	publishEvents(ctx, s.publisher, s.log, []*domain.ExchangeEvent{ev})
	s.metrics.ObserveTransition(ex.State.String())

	s.log.Info().
		Int64("exchange_id", ex.ID).
		Str("caller", req.Caller.Hex()).
		Str("root", req.Root.Hex()).
		Msg("assignments revealed")

	return ex, nil
}

// SubmitGift records the caller's gift once their assignment proof checks
// out. The last submission moves the exchange to Claiming.
func (s *ExchangeServiceImpl) SubmitGift(ctx context.Context, req ports.SubmitGiftRequest) (*domain.Participant, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ex, err := s.exchangeRepo.GetByIDForUpdate(ctx, dbTx, req.ExchangeID)
	if err != nil {
		return nil, storageError("lock exchange", err)
	}
	if ex == nil {
		return nil, apperror.ErrExchangeNotFound()
	}
	if ex.State != domain.StateActive {
		return nil, apperror.ErrInvalidExchangeState()
	}

	p, err := s.participantRepo.GetForUpdate(ctx, dbTx, ex.ID, req.Caller)
	if err != nil {
		return nil, storageError("lock participant", err)
	}
	if p == nil || !p.Registered {
		return nil, apperror.ErrNotParticipant()
	}
	now := s.now().UTC()
	if now.Unix() > ex.ClaimDeadline {
		return nil, apperror.ErrDeadlinePassed()
	}
	if p.GiftSubmitted {
		return nil, apperror.ErrGiftAlreadySubmitted()
	}
	if !s.proofs.VerifyAssignment(ex.AssignmentRoot, req.Caller, req.Recipient, req.Nonce, req.Proof) {
		return nil, apperror.ErrInvalidGiftProof()
	}

	p.GiftSubmitted = true
	p.GiftHash = req.ContentHash
	if err := s.participantRepo.Update(ctx, dbTx, p); err != nil {
		return nil, storageError("update participant", err)
	}

	ex.SuccessfulGifts++
	events := []*domain.ExchangeEvent{
		domain.NewEvent(ex.ID, domain.EventGiftSubmitted, req.Caller, 0, now).
			With("content_hash", req.ContentHash.Hex()).
			With("successful_gifts", strconv.Itoa(ex.SuccessfulGifts)),
	}
	if ex.AllGiftsSubmitted() {
		ex.State = domain.StateClaiming
		events = append(events, domain.NewEvent(ex.ID, domain.EventClaiming, req.Caller, 0, now))
	}
	if err := s.exchangeRepo.Update(ctx, dbTx, ex); err != nil {
		return nil, storageError("update exchange", err)
	}
	if err := s.statsRepo.Increment(ctx, dbTx, domain.ProtocolStats{TotalGifts: 1}); err != nil {
		return nil, storageError("increment stats", err)
	}
	for _, ev := range events {
		if err := s.eventRepo.Create(ctx, dbTx, ev); err != nil {
			return nil, storageError("record event", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	publishEvents(ctx, s.publisher, s.log, events)
	s.metrics.ObserveGift()
	if ex.State == domain.StateClaiming {
		s.metrics.ObserveTransition(ex.State.String())
	}

	s.log.Info().
		Int64("exchange_id", ex.ID).
		Str("participant", req.Caller.Hex()).
		Int("successful_gifts", ex.SuccessfulGifts).
		Str("state", ex.State.String()).
		Msg("gift submitted")

	return p, nil
}

func (s *ExchangeServiceImpl) unmarshalCachedExchange(data []byte) (*domain.Exchange, error) {
	ex := &domain.Exchange{}
	if err := json.Unmarshal(data, ex); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached exchange: %w", err))
	}
	return ex, nil
}
