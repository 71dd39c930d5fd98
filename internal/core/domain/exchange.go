package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol constants.
const (
	MinParticipants   = 3
	MaxParticipants   = 100
	RevealGracePeriod = int64(24 * 60 * 60) // seconds
	BonusPercentage   = 10
	ProtocolFeeBps    = 250
	BpsDenominator    = 10000
)

// ExchangeState is the lifecycle stage of an exchange.
type ExchangeState uint8

const (
	StateRegistration ExchangeState = iota
	// StateAssignment is declared for wire compatibility; no transition enters it.
	StateAssignment
	StateActive
	StateClaiming
	StateFinalized
)

var stateNames = map[ExchangeState]string{
	StateRegistration: "REGISTRATION",
	StateAssignment:   "ASSIGNMENT",
	StateActive:       "ACTIVE",
	StateClaiming:     "CLAIMING",
	StateFinalized:    "FINALIZED",
}

func (s ExchangeState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Exchange is one gift-exchange instance. Deadlines are Unix seconds.
type Exchange struct {
	ID                   int64            `json:"id"`
	Organizer            common.Address   `json:"organizer"`
	GiftAmount           int64            `json:"gift_amount"`
	RegistrationDeadline int64            `json:"registration_deadline"`
	RevealDeadline       int64            `json:"reveal_deadline"`
	ClaimDeadline        int64            `json:"claim_deadline"`
	State                ExchangeState    `json:"state"`
	ParticipantCount     int              `json:"participant_count"`
	TotalDeposits        int64            `json:"total_deposits"`
	AssignmentRoot       common.Hash      `json:"assignment_root"`
	SuccessfulGifts      int              `json:"successful_gifts"`
	Participants         []common.Address `json:"participants,omitempty"` // join order; filled on read
	CreatedAt            time.Time        `json:"created_at"`
}

// NewExchange builds an exchange in the Registration state. The id is
// assigned by the repository.
func NewExchange(organizer common.Address, giftAmount, registrationDuration, exchangeDuration, now int64) *Exchange {
	registration := now + registrationDuration
	reveal := registration + RevealGracePeriod
	return &Exchange{
		Organizer:            organizer,
		GiftAmount:           giftAmount,
		RegistrationDeadline: registration,
		RevealDeadline:       reveal,
		ClaimDeadline:        reveal + exchangeDuration,
		State:                StateRegistration,
		CreatedAt:            time.Unix(now, 0).UTC(),
	}
}

// IsFull reports whether the participant cap has been reached.
func (e *Exchange) IsFull() bool {
	return e.ParticipantCount >= MaxParticipants
}

// AllGiftsSubmitted reports whether every participant has submitted.
func (e *Exchange) AllGiftsSubmitted() bool {
	return e.ParticipantCount > 0 && e.SuccessfulGifts == e.ParticipantCount
}

// ClaimWindowOpen reports whether claims are accepted at now, either because
// every gift is in or because the claim deadline has passed.
func (e *Exchange) ClaimWindowOpen(now int64) bool {
	return e.State == StateClaiming || now > e.ClaimDeadline
}

// BonusMidpoint is the last instant that still earns the early bonus.
func (e *Exchange) BonusMidpoint() int64 {
	return e.RevealDeadline + (e.ClaimDeadline-e.RevealDeadline)/2
}
