package ports

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks gift-exchange-escrow/internal/core/ports SignatureService,TokenService,IdempotencyCache,NonceStore,EventPublisher,ProofVerifier,LedgerService,ExchangeService,SettlementService,AdminService,QueryService,AuthService,AuditService

import (
	"context"
	"time"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// SignatureService handles secp256k1 personal-message signatures.
type SignatureService interface {
	// BuildCanonicalString returns METHOD|PATH|TIMESTAMP|NONCE|BODY.
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
	// Recover returns the address that signed payload.
	Recover(payload string, signature string) (common.Address, error)
	Verify(payload string, signature string, expected common.Address) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(addr common.Address) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Address common.Address
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, caller string, nonce string, ttl time.Duration) (bool, error)
}

// EventPublisher fans committed exchange events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, ev *domain.ExchangeEvent) error
}

// ProofVerifier checks an assignment inclusion proof against a root.
type ProofVerifier interface {
	VerifyAssignment(root common.Hash, giver, recipient common.Address, nonce [32]byte, proof []common.Hash) bool
}

// LedgerService moves value between custodial accounts and the vault.
// Methods taking a pgx.Tx join the caller's transaction.
type LedgerService interface {
	// Collect debits attached value from an account into the vault.
	Collect(ctx context.Context, tx pgx.Tx, from common.Address, amount int64, exchangeID int64) error
	// Payout credits an account from the vault. exchangeID is nil for batch payouts.
	Payout(ctx context.Context, tx pgx.Tx, to common.Address, amount int64, exchangeID *int64) error
	// WithdrawAll moves the whole vault balance to an account.
	WithdrawAll(ctx context.Context, tx pgx.Tx, to common.Address) (int64, error)
	// Deposit records inbound value from the funding rail.
	Deposit(ctx context.Context, tx pgx.Tx, to common.Address, amount int64) error
	// Receive accepts unsolicited value into the vault in its own transaction.
	Receive(ctx context.Context, from common.Address, amount int64) error
	AccountBalance(ctx context.Context, addr common.Address) (int64, error)
	VaultBalance(ctx context.Context) (int64, error)
}

// --- Service Ports (Business Logic) ---

// ExchangeService drives the exchange state machine.
type ExchangeService interface {
	CreateExchange(ctx context.Context, req CreateExchangeRequest) (*domain.Exchange, error)
	Register(ctx context.Context, req RegisterRequest) (*domain.Participant, error)
	RevealAssignments(ctx context.Context, req RevealRequest) (*domain.Exchange, error)
	SubmitGift(ctx context.Context, req SubmitGiftRequest) (*domain.Participant, error)
}

// CreateExchangeRequest holds validated input for exchange creation.
// Durations are in seconds.
type CreateExchangeRequest struct {
	Caller               common.Address
	DepositAmount        int64
	RegistrationDuration int64
	ExchangeDuration     int64
	AttachedValue        int64
	ReferenceID          string // optional; enables idempotent retries
}

// RegisterRequest holds validated input for joining an exchange.
type RegisterRequest struct {
	Caller        common.Address
	ExchangeID    int64
	AttachedValue int64
}

// RevealRequest publishes the assignment root.
type RevealRequest struct {
	Caller     common.Address
	ExchangeID int64
	Root       common.Hash
}

// SubmitGiftRequest carries the gift hash and the caller's assignment proof.
type SubmitGiftRequest struct {
	Caller      common.Address
	ExchangeID  int64
	ContentHash common.Hash
	Recipient   common.Address
	Nonce       [32]byte
	Proof       []common.Hash
}

// SettlementService pays out rewards.
type SettlementService interface {
	Claim(ctx context.Context, caller common.Address, exchangeID int64) (*ClaimResult, error)
	BatchClaim(ctx context.Context, caller common.Address, exchangeIDs []int64) (*ClaimResult, error)
}

// ClaimResult is the outcome of a single or batch claim.
type ClaimResult struct {
	Caller common.Address `json:"caller"`
	Total  int64          `json:"total"`
	Items  []ClaimItem    `json:"items"`
}

// ClaimItem is the per-exchange part of a claim.
type ClaimItem struct {
	ExchangeID int64         `json:"exchange_id"`
	Reward     domain.Reward `json:"reward"`
}

// AdminService is the administrator-only surface.
type AdminService interface {
	IsAdmin(addr common.Address) bool
	WithdrawPlatformFees(ctx context.Context, caller common.Address) (int64, error)
	EmergencyPause(ctx context.Context, caller common.Address, exchangeID int64) (*domain.Exchange, error)
	CreditAccount(ctx context.Context, caller, account common.Address, amount int64) (int64, error)
}

// QueryService serves read-only views.
type QueryService interface {
	GetExchange(ctx context.Context, id int64) (*domain.Exchange, error)
	ListParticipants(ctx context.Context, id int64) ([]domain.Participant, error)
	GetParticipant(ctx context.Context, id int64, addr common.Address) (*domain.Participant, error)
	ListEvents(ctx context.Context, id int64) ([]domain.ExchangeEvent, error)
	ExchangesFor(ctx context.Context, addr common.Address) ([]int64, error)
	Stats(ctx context.Context) (*StatsView, error)
	Account(ctx context.Context, addr common.Address) (*domain.Account, error)
}

// StatsView is the protocol statistics plus the current vault balance.
type StatsView struct {
	domain.ProtocolStats
	VaultBalance int64 `json:"vault_balance"`
}

// AuthService issues session tokens for signed login challenges.
type AuthService interface {
	Login(ctx context.Context, addr common.Address, timestamp int64, signature string) (string, time.Time, error) // token, expiry, error
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
