package service

import (
	"context"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
)

// queryService implements ports.QueryService.
type queryService struct {
	exchangeRepo    ports.ExchangeRepository
	participantRepo ports.ParticipantRepository
	eventRepo       ports.EventRepository
	statsRepo       ports.StatsRepository
	ledger          ports.LedgerService
	metrics         *metrics.EscrowMetrics
}

// NewQueryService creates a new read-only query service.
func NewQueryService(
	exchangeRepo ports.ExchangeRepository,
	participantRepo ports.ParticipantRepository,
	eventRepo ports.EventRepository,
	statsRepo ports.StatsRepository,
	ledger ports.LedgerService,
) ports.QueryService {
	return &queryService{
		exchangeRepo:    exchangeRepo,
		participantRepo: participantRepo,
		eventRepo:       eventRepo,
		statsRepo:       statsRepo,
		ledger:          ledger,
		metrics:         metrics.Escrow(),
	}
}

// GetExchange returns the exchange with its participant list in join order.
func (s *queryService) GetExchange(ctx context.Context, id int64) (*domain.Exchange, error) {
	ex, err := s.requireExchange(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.ListByExchange(ctx, id)
	if err != nil {
		return nil, storageError("list participants", err)
	}
	ex.Participants = make([]common.Address, 0, len(participants))
	for _, p := range participants {
		ex.Participants = append(ex.Participants, p.Address)
	}
	return ex, nil
}

func (s *queryService) ListParticipants(ctx context.Context, id int64) ([]domain.Participant, error) {
	if _, err := s.requireExchange(ctx, id); err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.ListByExchange(ctx, id)
	if err != nil {
		return nil, storageError("list participants", err)
	}
	if participants == nil {
		participants = []domain.Participant{}
	}
	return participants, nil
}

// GetParticipant returns an all-false record for identities that never joined.
func (s *queryService) GetParticipant(ctx context.Context, id int64, addr common.Address) (*domain.Participant, error) {
	if _, err := s.requireExchange(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.participantRepo.Get(ctx, id, addr)
	if err != nil {
		return nil, storageError("get participant", err)
	}
	if p == nil {
		return &domain.Participant{ExchangeID: id, Address: addr}, nil
	}
	return p, nil
}

func (s *queryService) ListEvents(ctx context.Context, id int64) ([]domain.ExchangeEvent, error) {
	if _, err := s.requireExchange(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListByExchange(ctx, id)
	if err != nil {
		return nil, storageError("list events", err)
	}
	return events, nil
}

// ExchangesFor returns every exchange addr joined, in join order.
func (s *queryService) ExchangesFor(ctx context.Context, addr common.Address) ([]int64, error) {
	ids, err := s.participantRepo.ListExchangesByIdentity(ctx, addr)
	if err != nil {
		return nil, storageError("list history", err)
	}
	return ids, nil
}

func (s *queryService) Stats(ctx context.Context) (*ports.StatsView, error) {
	stats, err := s.statsRepo.Get(ctx)
	if err != nil {
		return nil, storageError("get stats", err)
	}
	vault, err := s.ledger.VaultBalance(ctx)
	if err != nil {
		return nil, passThrough("vault balance", err)
	}
	s.metrics.SetVaultBalance(vault)
	return &ports.StatsView{ProtocolStats: *stats, VaultBalance: vault}, nil
}

func (s *queryService) Account(ctx context.Context, addr common.Address) (*domain.Account, error) {
	balance, err := s.ledger.AccountBalance(ctx, addr)
	if err != nil {
		return nil, passThrough("account balance", err)
	}
	return &domain.Account{Address: addr, Balance: balance}, nil
}

func (s *queryService) requireExchange(ctx context.Context, id int64) (*domain.Exchange, error) {
	ex, err := s.exchangeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("get exchange", err)
	}
	if ex == nil {
		return nil, apperror.ErrExchangeNotFound()
	}
	return ex, nil
}
