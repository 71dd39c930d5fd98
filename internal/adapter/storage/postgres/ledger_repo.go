package postgres

import (
	"context"
	"errors"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
// Debits are conditional updates so a balance can never go negative.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// DebitAccount subtracts amount when the account can cover it.
func (r *LedgerRepo) DebitAccount(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) (bool, error) {
	query := `UPDATE accounts SET balance = balance - $1, updated_at = NOW()
		WHERE address = $2 AND balance >= $1`

	tag, err := tx.Exec(ctx, query, amount, addr.Hex())
	if err != nil {
		return false, fmt.Errorf("debit account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreditAccount adds amount, creating the account on first credit.
func (r *LedgerRepo) CreditAccount(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) error {
	query := `INSERT INTO accounts (address, balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, addr.Hex(), amount); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	return nil
}

// DebitVault subtracts amount when the vault can cover it.
func (r *LedgerRepo) DebitVault(ctx context.Context, tx pgx.Tx, amount int64) (bool, error) {
	query := `UPDATE vault SET balance = balance - $1 WHERE id = 1 AND balance >= $1`

	tag, err := tx.Exec(ctx, query, amount)
	if err != nil {
		return false, fmt.Errorf("debit vault: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreditVault adds amount to the vault.
func (r *LedgerRepo) CreditVault(ctx context.Context, tx pgx.Tx, amount int64) error {
	query := `UPDATE vault SET balance = balance + $1 WHERE id = 1`

	if _, err := tx.Exec(ctx, query, amount); err != nil {
		return fmt.Errorf("credit vault: %w", err)
	}
	return nil
}

// GetAccountBalance returns 0 for unknown accounts.
func (r *LedgerRepo) GetAccountBalance(ctx context.Context, addr common.Address) (int64, error) {
	query := `SELECT balance FROM accounts WHERE address = $1`

	var balance int64
	err := r.pool.QueryRow(ctx, query, addr.Hex()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get account balance: %w", err)
	}
	return balance, nil
}

// GetVaultBalance reads the vault without locking.
func (r *LedgerRepo) GetVaultBalance(ctx context.Context) (int64, error) {
	var balance int64
	if err := r.pool.QueryRow(ctx, `SELECT balance FROM vault WHERE id = 1`).Scan(&balance); err != nil {
		return 0, fmt.Errorf("get vault balance: %w", err)
	}
	return balance, nil
}

// GetVaultBalanceForUpdate locks the vault row.
// This MUST be called within a transaction.
func (r *LedgerRepo) GetVaultBalanceForUpdate(ctx context.Context, tx pgx.Tx) (int64, error) {
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM vault WHERE id = 1 FOR UPDATE`).Scan(&balance); err != nil {
		return 0, fmt.Errorf("get vault balance for update: %w", err)
	}
	return balance, nil
}

// RecordTransfer appends an immutable transfer record.
func (r *LedgerRepo) RecordTransfer(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error {
	query := `INSERT INTO transfers (id, kind, account, amount, exchange_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, t.ID, string(t.Kind), t.Account.Hex(), t.Amount, t.ExchangeID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}
