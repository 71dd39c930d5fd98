package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCreateExchange AuditAction = "CREATE_EXCHANGE"
	AuditActionRegister       AuditAction = "REGISTER"
	AuditActionReveal         AuditAction = "REVEAL"
	AuditActionSubmitGift     AuditAction = "SUBMIT_GIFT"
	AuditActionClaim          AuditAction = "CLAIM"
	AuditActionBatchClaim     AuditAction = "BATCH_CLAIM"
	AuditActionReceive        AuditAction = "RECEIVE"
	AuditActionWithdrawFees   AuditAction = "WITHDRAW_FEES"
	AuditActionEmergencyPause AuditAction = "EMERGENCY_PAUSE"
	AuditActionCreditAccount  AuditAction = "CREDIT_ACCOUNT"
	AuditActionLogin          AuditAction = "LOGIN"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID       `json:"id"`
	Actor        *common.Address `json:"actor,omitempty"`
	Action       AuditAction     `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      string          `json:"details,omitempty"` // JSON string
	IPAddress    string          `json:"ip_address"`
	CreatedAt    time.Time       `json:"created_at"`
}
