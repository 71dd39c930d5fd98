package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Claim modes reported to metrics.
const (
	claimModeSingle = "single"
	claimModeBatch  = "batch"
)

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	clock
	exchangeRepo    ports.ExchangeRepository
	participantRepo ports.ParticipantRepository
	statsRepo       ports.StatsRepository
	eventRepo       ports.EventRepository
	ledger          ports.LedgerService
	publisher       ports.EventPublisher
	transactor      ports.DBTransactor
	metrics         *metrics.EscrowMetrics
	log             zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl. publisher may be nil.
func NewSettlementService(
	exchangeRepo ports.ExchangeRepository,
	participantRepo ports.ParticipantRepository,
	statsRepo ports.StatsRepository,
	eventRepo ports.EventRepository,
	ledger ports.LedgerService,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		clock:           systemClock(),
		exchangeRepo:    exchangeRepo,
		participantRepo: participantRepo,
		statsRepo:       statsRepo,
		eventRepo:       eventRepo,
		ledger:          ledger,
		publisher:       publisher,
		transactor:      transactor,
		metrics:         metrics.Escrow(),
		log:             log,
	}
}

// SetMetrics overrides the metrics sink. A nil value disables reporting.
func (s *SettlementServiceImpl) SetMetrics(m *metrics.EscrowMetrics) {
	s.metrics = m
}

// Claim pays the caller's reward for one exchange.
func (s *SettlementServiceImpl) Claim(ctx context.Context, caller common.Address, exchangeID int64) (*ports.ClaimResult, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ex, err := s.exchangeRepo.GetByIDForUpdate(ctx, dbTx, exchangeID)
	if err != nil {
		return nil, storageError("lock exchange", err)
	}
	if ex == nil {
		return nil, apperror.ErrExchangeNotFound()
	}

	now := s.now().UTC()
	item, ev, err := s.settle(ctx, dbTx, ex, caller, now.Unix())
	if err != nil {
		return nil, err
	}

	if err := s.statsRepo.Increment(ctx, dbTx, domain.ProtocolStats{TotalValueTransferred: item.Reward.Final}); err != nil {
		return nil, storageError("increment stats", err)
	}
	if err := s.ledger.Payout(ctx, dbTx, caller, item.Reward.Final, &exchangeID); err != nil {
		return nil, passThrough("payout", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	publishEvents(ctx, s.publisher, s.log, []*domain.ExchangeEvent{ev})
	s.metrics.ObserveClaim(claimModeSingle, 1, item.Reward.Final)

	s.log.Info().
		Int64("exchange_id", exchangeID).
		Str("caller", caller.Hex()).
		Int64("bonus", item.Reward.Bonus).
		Int64("fee", item.Reward.Fee).
		Int64("amount", item.Reward.Final).
		Msg("reward claimed")

	return &ports.ClaimResult{
		Caller: caller,
		Total:  item.Reward.Final,
		Items:  []ports.ClaimItem{item},
	}, nil
}

// BatchClaim settles several exchanges with a single payout. Any failing
// entry aborts the whole batch.
func (s *SettlementServiceImpl) BatchClaim(ctx context.Context, caller common.Address, exchangeIDs []int64) (*ports.ClaimResult, error) {
	if len(exchangeIDs) == 0 {
		return nil, apperror.ErrEmptyBatch()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock in ascending id order so concurrent batches cannot deadlock.
	lockOrder := slices.Clone(exchangeIDs)
	slices.Sort(lockOrder)
	lockOrder = slices.Compact(lockOrder)

	locked := make(map[int64]*domain.Exchange, len(lockOrder))
	for _, id := range lockOrder {
		ex, err := s.exchangeRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, storageError("lock exchange", err)
		}
		if ex == nil {
			return nil, apperror.ErrExchangeNotFound()
		}
		locked[id] = ex
	}

	now := s.now().UTC().Unix()
	result := &ports.ClaimResult{Caller: caller, Items: make([]ports.ClaimItem, 0, len(exchangeIDs))}
	events := make([]*domain.ExchangeEvent, 0, len(exchangeIDs))
	for _, id := range exchangeIDs {
		item, ev, err := s.settle(ctx, dbTx, locked[id], caller, now)
		if err != nil {
			return nil, err
		}
		total, err := domain.AddAmounts(result.Total, item.Reward.Final)
		if err != nil {
			return nil, apperror.ErrAmountOverflow(err)
		}
		result.Total = total
		result.Items = append(result.Items, item)
		events = append(events, ev)
	}

	if result.Total == 0 {
		return nil, apperror.ErrZeroPayout()
	}
	if err := s.statsRepo.Increment(ctx, dbTx, domain.ProtocolStats{TotalValueTransferred: result.Total}); err != nil {
		return nil, storageError("increment stats", err)
	}
	if err := s.ledger.Payout(ctx, dbTx, caller, result.Total, nil); err != nil {
		return nil, passThrough("payout", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	publishEvents(ctx, s.publisher, s.log, events)
	s.metrics.ObserveClaim(claimModeBatch, len(result.Items), result.Total)

	s.log.Info().
		Str("caller", caller.Hex()).
		Ints64("exchange_ids", exchangeIDs).
		Int64("amount", result.Total).
		Msg("batch claimed")

	return result, nil
}

// settle checks eligibility for one exchange, marks the participant claimed
// and records the claim event. The participant row is re-read every time so a
// repeated id in a batch sees the earlier claim.
func (s *SettlementServiceImpl) settle(ctx context.Context, tx pgx.Tx, ex *domain.Exchange, caller common.Address, now int64) (ports.ClaimItem, *domain.ExchangeEvent, error) {
	p, err := s.participantRepo.GetForUpdate(ctx, tx, ex.ID, caller)
	if err != nil {
		return ports.ClaimItem{}, nil, storageError("lock participant", err)
	}
	if p == nil || !p.Registered {
		return ports.ClaimItem{}, nil, apperror.ErrNotParticipant()
	}
	if !p.CanClaim(ex, now) {
		return ports.ClaimItem{}, nil, apperror.ErrClaimNotAllowed()
	}

	reward, err := domain.RewardFor(ex, now)
	if err != nil {
		return ports.ClaimItem{}, nil, apperror.ErrAmountOverflow(fmt.Errorf("exchange %d: %w", ex.ID, err))
	}

	p.Claimed = true
	if err := s.participantRepo.Update(ctx, tx, p); err != nil {
		return ports.ClaimItem{}, nil, storageError("update participant", err)
	}

	ev := domain.NewEvent(ex.ID, domain.EventClaimed, caller, reward.Final, s.now().UTC()).
		With("bonus", strconv.FormatInt(reward.Bonus, 10)).
		With("fee", strconv.FormatInt(reward.Fee, 10))
	if err := s.eventRepo.Create(ctx, tx, ev); err != nil {
		return ports.ClaimItem{}, nil, storageError("record event", err)
	}

	return ports.ClaimItem{ExchangeID: ex.ID, Reward: reward}, ev, nil
}
