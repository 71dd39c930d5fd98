package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Participant is an identity's membership record in one exchange.
// Each flag flips false -> true at most once; rows are never deleted.
type Participant struct {
	ExchangeID    int64          `json:"exchange_id"`
	Address       common.Address `json:"address"`
	JoinIndex     int            `json:"join_index"`
	Deposit       int64          `json:"deposit"`
	Registered    bool           `json:"registered"`
	GiftSubmitted bool           `json:"gift_submitted"`
	GiftHash      common.Hash    `json:"gift_hash"`
	Claimed       bool           `json:"claimed"`
	RegisteredAt  time.Time      `json:"registered_at"`
}

// CanClaim applies the claim eligibility rules for this participant.
func (p *Participant) CanClaim(ex *Exchange, now int64) bool {
	return p.GiftSubmitted && !p.Claimed && ex.ClaimWindowOpen(now)
}

// HistoryEntry indexes one exchange an identity joined.
type HistoryEntry struct {
	Seq        int64          `json:"seq"`
	Address    common.Address `json:"address"`
	ExchangeID int64          `json:"exchange_id"`
	CreatedAt  time.Time      `json:"created_at"`
}
