package service

import (
	"context"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// AdminServiceImpl implements ports.AdminService for the single configured administrator.
type AdminServiceImpl struct {
	admin        common.Address
	exchangeRepo ports.ExchangeRepository
	ledger       ports.LedgerService
	transactor   ports.DBTransactor
	metrics      *metrics.EscrowMetrics
	log          zerolog.Logger
}

// NewAdminService creates a new AdminServiceImpl.
func NewAdminService(
	admin common.Address,
	exchangeRepo ports.ExchangeRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *AdminServiceImpl {
	return &AdminServiceImpl{
		admin:        admin,
		exchangeRepo: exchangeRepo,
		ledger:       ledger,
		transactor:   transactor,
		metrics:      metrics.Escrow(),
		log:          log,
	}
}

// SetMetrics overrides the metrics sink. A nil value disables reporting.
func (s *AdminServiceImpl) SetMetrics(m *metrics.EscrowMetrics) {
	s.metrics = m
}

// IsAdmin reports whether addr is the configured administrator.
func (s *AdminServiceImpl) IsAdmin(addr common.Address) bool {
	return addr == s.admin
}

// WithdrawPlatformFees pays the whole vault balance to the administrator.
// The vault also backs unsettled exchanges; no per-exchange reserve is kept.
func (s *AdminServiceImpl) WithdrawPlatformFees(ctx context.Context, caller common.Address) (int64, error) {
	if !s.IsAdmin(caller) {
		return 0, apperror.ErrNotAdmin()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	amount, err := s.ledger.WithdrawAll(ctx, dbTx, caller)
	if err != nil {
		return 0, passThrough("withdraw vault", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, storageError("commit tx", err)
	}

	s.metrics.SetVaultBalance(0)
	s.log.Info().
		Str("admin", caller.Hex()).
		Int64("amount", amount).
		Msg("platform fees withdrawn")

	return amount, nil
}

// EmergencyPause forces an exchange into Finalized from any state. Deposits
// stay in the vault.
func (s *AdminServiceImpl) EmergencyPause(ctx context.Context, caller common.Address, exchangeID int64) (*domain.Exchange, error) {
	if !s.IsAdmin(caller) {
		return nil, apperror.ErrNotAdmin()
	}

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

	previous := ex.State
	ex.State = domain.StateFinalized
	if err := s.exchangeRepo.Update(ctx, dbTx, ex); err != nil {
		return nil, storageError("update exchange", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit tx", err)
	}

	s.metrics.ObserveTransition(ex.State.String())
	s.log.Warn().
		Int64("exchange_id", ex.ID).
		Str("admin", caller.Hex()).
		Str("previous_state", previous.String()).
		Msg("exchange paused")

	return ex, nil
}

// CreditAccount books value that arrived through the external funding rail
// and returns the account's new balance.
func (s *AdminServiceImpl) CreditAccount(ctx context.Context, caller, account common.Address, amount int64) (int64, error) {
	if !s.IsAdmin(caller) {
		return 0, apperror.ErrNotAdmin()
	}
	if amount <= 0 {
		return 0, apperror.Validation("amount must be positive")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.ledger.Deposit(ctx, dbTx, account, amount); err != nil {
		return 0, passThrough("deposit", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, storageError("commit tx", err)
	}

	balance, err := s.ledger.AccountBalance(ctx, account)
	if err != nil {
		return 0, passThrough("read balance", err)
	}

	s.log.Info().
		Str("admin", caller.Hex()).
		Str("account", account.Hex()).
		Int64("amount", amount).
		Int64("balance", balance).
		Msg("account credited")

	return balance, nil
}
