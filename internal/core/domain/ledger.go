package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TransferKind classifies a value movement.
type TransferKind string

const (
	TransferDeposit       TransferKind = "DEPOSIT"        // external rail -> account
	TransferEscrowIn      TransferKind = "ESCROW_IN"      // account -> vault, attached to an operation
	TransferPayout        TransferKind = "PAYOUT"         // vault -> account, claim settlement
	TransferFeeWithdrawal TransferKind = "FEE_WITHDRAWAL" // vault -> admin account
	TransferUnsolicited   TransferKind = "UNSOLICITED"    // account -> vault, no operation
)

// IntoVault reports whether the kind moves value from an account into the vault.
func (k TransferKind) IntoVault() bool {
	return k == TransferEscrowIn || k == TransferUnsolicited
}

// Account is a custodial balance held for one identity.
type Account struct {
	Address common.Address `json:"address"`
	Balance int64          `json:"balance"`
}

// Transfer is an immutable ledger entry. Account is the non-vault side.
type Transfer struct {
	ID         uuid.UUID      `json:"id"`
	Kind       TransferKind   `json:"kind"`
	Account    common.Address `json:"account"`
	Amount     int64          `json:"amount"`
	ExchangeID *int64         `json:"exchange_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewTransfer stamps a transfer with a fresh id.
func NewTransfer(kind TransferKind, account common.Address, amount int64, exchangeID *int64, now time.Time) *Transfer {
	return &Transfer{
		ID:         uuid.New(),
		Kind:       kind,
		Account:    account,
		Amount:     amount,
		ExchangeID: exchangeID,
		CreatedAt:  now,
	}
}
