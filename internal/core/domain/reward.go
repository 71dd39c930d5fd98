package domain

import (
	"math"

	"github.com/holiman/uint256"
)

// Reward is the breakdown of a single claim payout.
type Reward struct {
	Bonus int64 `json:"bonus"`
	Gross int64 `json:"gross"`
	Fee   int64 `json:"fee"`
	Final int64 `json:"final"`
}

var (
	bonusPercent = uint256.NewInt(BonusPercentage)
	hundred      = uint256.NewInt(100)
	feeBps       = uint256.NewInt(ProtocolFeeBps)
	bpsDenom     = uint256.NewInt(BpsDenominator)
	maxInt64     = uint256.NewInt(math.MaxInt64)
)

// ComputeReward returns the payout for one claim. The bonus applies up to and
// including the midpoint of the reveal/claim window; both divisions truncate.
// Products are taken in 256-bit arithmetic, so only a gross reward beyond the
// int64 range fails.
func ComputeReward(giftAmount, revealDeadline, claimDeadline, now int64) (Reward, error) {
	if giftAmount < 0 {
		return Reward{}, ErrAmountOverflow
	}
	midpoint := revealDeadline + (claimDeadline-revealDeadline)/2

	gift := uint256.NewInt(uint64(giftAmount))
	bonus := new(uint256.Int)
	if now <= midpoint {
		bonus.Mul(gift, bonusPercent)
		bonus.Div(bonus, hundred)
	}
	gross := new(uint256.Int).Add(gift, bonus)
	if gross.Gt(maxInt64) {
		return Reward{}, ErrAmountOverflow
	}
	fee := new(uint256.Int).Mul(gross, feeBps)
	fee.Div(fee, bpsDenom)

	return Reward{
		Bonus: int64(bonus.Uint64()),
		Gross: int64(gross.Uint64()),
		Fee:   int64(fee.Uint64()),
		Final: int64(new(uint256.Int).Sub(gross, fee).Uint64()),
	}, nil
}

// RewardFor is ComputeReward over an exchange's own parameters.
func RewardFor(ex *Exchange, now int64) (Reward, error) {
	return ComputeReward(ex.GiftAmount, ex.RevealDeadline, ex.ClaimDeadline, now)
}
