package memory

import (
	"context"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	s *Store
}

// Ledger returns the ledger repository backed by s.
func (s *Store) Ledger() *LedgerRepo {
	return &LedgerRepo{s: s}
}

func (r *LedgerRepo) DebitAccount(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) (bool, error) {
	st, err := txState(r.s, tx)
	if err != nil {
		return false, err
	}
	acct, ok := st.accounts[addr]
	if !ok || acct.Balance < amount {
		return false, nil
	}
	acct.Balance -= amount
	st.accounts[addr] = acct
	return true, nil
}

func (r *LedgerRepo) CreditAccount(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	acct := st.accounts[addr]
	balance, err := domain.AddAmounts(acct.Balance, amount)
	if err != nil {
		return fmt.Errorf("credit account %s: %w", addr.Hex(), err)
	}
	acct.Address = addr
	acct.Balance = balance
	st.accounts[addr] = acct
	return nil
}

func (r *LedgerRepo) DebitVault(ctx context.Context, tx pgx.Tx, amount int64) (bool, error) {
	st, err := txState(r.s, tx)
	if err != nil {
		return false, err
	}
	if st.vault < amount {
		return false, nil
	}
	st.vault -= amount
	return true, nil
}

func (r *LedgerRepo) CreditVault(ctx context.Context, tx pgx.Tx, amount int64) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	balance, err := domain.AddAmounts(st.vault, amount)
	if err != nil {
		return fmt.Errorf("credit vault: %w", err)
	}
	st.vault = balance
	return nil
}

// GetAccountBalance returns 0 for unknown accounts.
func (r *LedgerRepo) GetAccountBalance(ctx context.Context, addr common.Address) (int64, error) {
	var balance int64
	r.s.read(func(st *state) { balance = st.accounts[addr].Balance })
	return balance, nil
}

func (r *LedgerRepo) GetVaultBalance(ctx context.Context) (int64, error) {
	var balance int64
	r.s.read(func(st *state) { balance = st.vault })
	return balance, nil
}

func (r *LedgerRepo) GetVaultBalanceForUpdate(ctx context.Context, tx pgx.Tx) (int64, error) {
	st, err := txState(r.s, tx)
	if err != nil {
		return 0, err
	}
	return st.vault, nil
}

func (r *LedgerRepo) RecordTransfer(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	st.transfers = append(st.transfers, *t)
	return nil
}

// Transfers returns every committed transfer for addr, oldest first.
func (r *LedgerRepo) Transfers(addr common.Address) []domain.Transfer {
	var out []domain.Transfer
	r.s.read(func(st *state) {
		for _, t := range st.transfers {
			if t.Account == addr {
				out = append(out, t)
			}
		}
	})
	return out
}
