package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IdempotencyLog holds the stored response of a create request so a retried
// request with the same reference returns the original exchange.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "organizer:reference_id"
	ExchangeID   int64     `json:"exchange_id"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the standard key format.
func BuildIdempotencyKey(organizer common.Address, referenceID string) string {
	return organizer.Hex() + ":" + referenceID
}
