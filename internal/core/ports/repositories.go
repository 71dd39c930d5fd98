package ports

//go:generate mockgen -destination=mocks/mock_repositories.go -package=mocks gift-exchange-escrow/internal/core/ports ExchangeRepository,ParticipantRepository,StatsRepository,LedgerRepository,EventRepository,IdempotencyRepository,AuditRepository,DBTransactor

import (
	"context"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// ExchangeRepository persists exchange rows.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type ExchangeRepository interface {
	// Create assigns the next id to ex.
	Create(ctx context.Context, tx pgx.Tx, ex *domain.Exchange) error
	GetByID(ctx context.Context, id int64) (*domain.Exchange, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Exchange, error)
	Update(ctx context.Context, tx pgx.Tx, ex *domain.Exchange) error
}

// ParticipantRepository persists membership records and the identity history index.
type ParticipantRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *domain.Participant) error
	Get(ctx context.Context, exchangeID int64, addr common.Address) (*domain.Participant, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, exchangeID int64, addr common.Address) (*domain.Participant, error)
	Update(ctx context.Context, tx pgx.Tx, p *domain.Participant) error
	// ListByExchange returns participants in join order.
	ListByExchange(ctx context.Context, exchangeID int64) ([]domain.Participant, error)
	AppendHistory(ctx context.Context, tx pgx.Tx, addr common.Address, exchangeID int64) error
	// ListExchangesByIdentity returns exchange ids in the order they were joined.
	ListExchangesByIdentity(ctx context.Context, addr common.Address) ([]int64, error)
}

// StatsRepository persists the protocol statistics singleton.
type StatsRepository interface {
	Get(ctx context.Context) (*domain.ProtocolStats, error)
	Increment(ctx context.Context, tx pgx.Tx, delta domain.ProtocolStats) error
}

// LedgerRepository persists custodial balances, the vault and transfer records.
// Debit methods return false without writing when the balance cannot cover amount.
type LedgerRepository interface {
	DebitAccount(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) (bool, error)
	CreditAccount(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) error
	DebitVault(ctx context.Context, tx pgx.Tx, amount int64) (bool, error)
	CreditVault(ctx context.Context, tx pgx.Tx, amount int64) error
	GetAccountBalance(ctx context.Context, addr common.Address) (int64, error)
	GetVaultBalance(ctx context.Context) (int64, error)
	GetVaultBalanceForUpdate(ctx context.Context, tx pgx.Tx) (int64, error)
	RecordTransfer(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error
}

// EventRepository persists exchange event records.
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, ev *domain.ExchangeEvent) error
	ListByExchange(ctx context.Context, exchangeID int64) ([]domain.ExchangeEvent, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
