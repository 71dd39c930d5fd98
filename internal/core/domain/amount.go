package domain

import (
	"errors"
	"fmt"
	"math"
)

// MaxDepositAmount is the largest per-participant deposit whose
// bonus-inclusive reward still fits a BIGINT amount column.
const MaxDepositAmount = math.MaxInt64 / (100 + BonusPercentage) * 100

// ErrAmountOverflow reports an amount or running total outside the int64 range.
var ErrAmountOverflow = errors.New("amount exceeds int64 range")

// AddAmounts returns a+b for non-negative amounts and fails instead of wrapping.
func AddAmounts(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("add amounts %d and %d: negative operand", a, b)
	}
	if a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}
