package dto

import (
	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
)

// LoginRequest carries a signed login challenge.
type LoginRequest struct {
	Address   string `json:"address" binding:"required,eth_addr"`
	Timestamp int64  `json:"timestamp" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateExchangeRequest is the request body for opening an exchange.
// Value is the amount attached by the organizer; durations are seconds.
// The deposit bound is domain.MaxDepositAmount.
type CreateExchangeRequest struct {
	DepositAmount        int64  `json:"deposit_amount" binding:"required,gt=0,lte=8384883669867978000"`
	RegistrationDuration int64  `json:"registration_duration" binding:"gte=0"`
	ExchangeDuration     int64  `json:"exchange_duration" binding:"required,gt=0"`
	Value                int64  `json:"value" binding:"gte=0"`
	ReferenceID          string `json:"reference_id,omitempty" binding:"omitempty,max=100,safe_id"`
}

// RegisterRequest is the request body for joining an exchange.
type RegisterRequest struct {
	Value int64 `json:"value" binding:"gte=0"`
}

// RevealRequest publishes the assignment root.
type RevealRequest struct {
	Root string `json:"root" binding:"required,hash32"`
}

// SubmitGiftRequest carries the gift hash and the giver's assignment leaf proof.
type SubmitGiftRequest struct {
	ContentHash string   `json:"content_hash" binding:"required,hash32"`
	Recipient   string   `json:"recipient" binding:"required,eth_addr"`
	Nonce       string   `json:"nonce" binding:"required,uint256"`
	Proof       []string `json:"proof" binding:"max=64,dive,hash32"`
}

// BatchClaimRequest lists the exchanges to settle in one payout.
type BatchClaimRequest struct {
	ExchangeIDs []int64 `json:"exchange_ids" binding:"max=100,dive,gt=0"`
}

// ReceiveRequest moves unsolicited value into the vault.
type ReceiveRequest struct {
	Value int64 `json:"value" binding:"required,gt=0"`
}

// CreditAccountRequest books an inbound deposit to a custodial account.
type CreditAccountRequest struct {
	Address string `json:"address" binding:"required,eth_addr"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
}

// ExchangeResponse is the public view of an exchange.
type ExchangeResponse struct {
	ID                   int64            `json:"id"`
	Organizer            common.Address   `json:"organizer"`
	GiftAmount           int64            `json:"gift_amount"`
	RegistrationDeadline int64            `json:"registration_deadline"`
	RevealDeadline       int64            `json:"reveal_deadline"`
	ClaimDeadline        int64            `json:"claim_deadline"`
	State                string           `json:"state"`
	ParticipantCount     int              `json:"participant_count"`
	TotalDeposits        int64            `json:"total_deposits"`
	AssignmentRoot       common.Hash      `json:"assignment_root"`
	SuccessfulGifts      int              `json:"successful_gifts"`
	Participants         []common.Address `json:"participants"`
}

// ToExchangeResponse converts domain.Exchange to its response body.
func ToExchangeResponse(ex *domain.Exchange) ExchangeResponse {
	participants := ex.Participants
	if participants == nil {
		participants = []common.Address{}
	}
	return ExchangeResponse{
		ID:                   ex.ID,
		Organizer:            ex.Organizer,
		GiftAmount:           ex.GiftAmount,
		RegistrationDeadline: ex.RegistrationDeadline,
		RevealDeadline:       ex.RevealDeadline,
		ClaimDeadline:        ex.ClaimDeadline,
		State:                ex.State.String(),
		ParticipantCount:     ex.ParticipantCount,
		TotalDeposits:        ex.TotalDeposits,
		AssignmentRoot:       ex.AssignmentRoot,
		SuccessfulGifts:      ex.SuccessfulGifts,
		Participants:         participants,
	}
}

// AmountResponse reports a single value movement.
type AmountResponse struct {
	Amount int64 `json:"amount"`
}

// BalanceResponse reports a custodial balance.
type BalanceResponse struct {
	Address common.Address `json:"address"`
	Balance int64          `json:"balance"`
}

// HistoryResponse lists the exchanges an identity joined, in join order.
type HistoryResponse struct {
	Address     common.Address `json:"address"`
	ExchangeIDs []int64        `json:"exchange_ids"`
}
