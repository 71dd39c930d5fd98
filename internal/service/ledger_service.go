package service

import (
	"context"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService on top of the custodial
// account table and the single vault balance.
type LedgerServiceImpl struct {
	clock
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	metrics    *metrics.EscrowMetrics
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(ledgerRepo ports.LedgerRepository, transactor ports.DBTransactor, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		clock:      systemClock(),
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		metrics:    metrics.Escrow(),
		log:        log,
	}
}

// SetMetrics overrides the metrics sink. A nil value disables reporting.
func (s *LedgerServiceImpl) SetMetrics(m *metrics.EscrowMetrics) {
	s.metrics = m
}

// Collect moves attached value from an account into the vault.
func (s *LedgerServiceImpl) Collect(ctx context.Context, tx pgx.Tx, from common.Address, amount int64, exchangeID int64) error {
	if amount < 0 {
		return apperror.Validation("amount must not be negative")
	}
	if amount == 0 {
		return nil
	}
	return s.intoVault(ctx, tx, domain.TransferEscrowIn, from, amount, &exchangeID)
}

// Payout moves value from the vault to an account. A vault that cannot cover
// amount fails the transfer and, with it, the caller's transaction.
func (s *LedgerServiceImpl) Payout(ctx context.Context, tx pgx.Tx, to common.Address, amount int64, exchangeID *int64) error {
	if amount <= 0 {
		return apperror.Validation("payout must be positive")
	}
	ok, err := s.ledgerRepo.DebitVault(ctx, tx, amount)
	if err != nil {
		return storageError("debit vault", err)
	}
	if !ok {
		return apperror.ErrTransferFailed(fmt.Errorf("vault cannot cover payout of %d", amount))
	}
	if err := s.ledgerRepo.CreditAccount(ctx, tx, to, amount); err != nil {
		return apperror.ErrTransferFailed(fmt.Errorf("credit %s: %w", to.Hex(), err))
	}
	return s.record(ctx, tx, domain.TransferPayout, to, amount, exchangeID)
}

// WithdrawAll empties the vault into an account and returns the amount moved.
func (s *LedgerServiceImpl) WithdrawAll(ctx context.Context, tx pgx.Tx, to common.Address) (int64, error) {
	balance, err := s.ledgerRepo.GetVaultBalanceForUpdate(ctx, tx)
	if err != nil {
		return 0, storageError("lock vault", err)
	}
	if balance == 0 {
		return 0, apperror.ErrNoFeesToWithdraw()
	}
	ok, err := s.ledgerRepo.DebitVault(ctx, tx, balance)
	if err != nil {
		return 0, storageError("debit vault", err)
	}
	if !ok {
		return 0, apperror.ErrTransferFailed(fmt.Errorf("vault balance changed during withdrawal"))
	}
	if err := s.ledgerRepo.CreditAccount(ctx, tx, to, balance); err != nil {
		return 0, apperror.ErrTransferFailed(fmt.Errorf("credit %s: %w", to.Hex(), err))
	}
	if err := s.record(ctx, tx, domain.TransferFeeWithdrawal, to, balance, nil); err != nil {
		return 0, err
	}
	return balance, nil
}

// Deposit credits an account with value arriving from the funding rail.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, tx pgx.Tx, to common.Address, amount int64) error {
	if amount <= 0 {
		return apperror.Validation("deposit must be positive")
	}
	if err := s.ledgerRepo.CreditAccount(ctx, tx, to, amount); err != nil {
		return storageError("credit account", err)
	}
	return s.record(ctx, tx, domain.TransferDeposit, to, amount, nil)
}

// Receive accepts value sent to the vault outside any operation. It is kept
// and never attributed to an exchange.
func (s *LedgerServiceImpl) Receive(ctx context.Context, from common.Address, amount int64) error {
	if amount <= 0 {
		return apperror.Validation("amount must be positive")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return storageError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.intoVault(ctx, dbTx, domain.TransferUnsolicited, from, amount, nil); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return storageError("commit tx", err)
	}

	s.refreshVaultGauge(ctx)
	s.log.Info().
		Str("from", from.Hex()).
		Int64("amount", amount).
		Msg("unsolicited value received")
	return nil
}

// AccountBalance returns the custodial balance of addr.
func (s *LedgerServiceImpl) AccountBalance(ctx context.Context, addr common.Address) (int64, error) {
	balance, err := s.ledgerRepo.GetAccountBalance(ctx, addr)
	if err != nil {
		return 0, storageError("get account balance", err)
	}
	return balance, nil
}

// VaultBalance returns the pooled vault balance.
func (s *LedgerServiceImpl) VaultBalance(ctx context.Context) (int64, error) {
	balance, err := s.ledgerRepo.GetVaultBalance(ctx)
	if err != nil {
		return 0, storageError("get vault balance", err)
	}
	return balance, nil
}

func (s *LedgerServiceImpl) intoVault(ctx context.Context, tx pgx.Tx, kind domain.TransferKind, from common.Address, amount int64, exchangeID *int64) error {
	ok, err := s.ledgerRepo.DebitAccount(ctx, tx, from, amount)
	if err != nil {
		return storageError("debit account", err)
	}
	if !ok {
		return apperror.ErrInsufficientBalance()
	}
	if err := s.ledgerRepo.CreditVault(ctx, tx, amount); err != nil {
		return storageError("credit vault", err)
	}
	return s.record(ctx, tx, kind, from, amount, exchangeID)
}

func (s *LedgerServiceImpl) record(ctx context.Context, tx pgx.Tx, kind domain.TransferKind, account common.Address, amount int64, exchangeID *int64) error {
	t := domain.NewTransfer(kind, account, amount, exchangeID, s.now().UTC())
	if err := s.ledgerRepo.RecordTransfer(ctx, tx, t); err != nil {
		return storageError("record transfer", err)
	}
	return nil
}

func (s *LedgerServiceImpl) refreshVaultGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	balance, err := s.ledgerRepo.GetVaultBalance(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read vault balance for metrics")
		return
	}
	s.metrics.SetVaultBalance(balance)
}
