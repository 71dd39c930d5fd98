package dto

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	hash32Re     = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("eth_addr", validateEthAddress)
		_ = v.RegisterValidation("hash32", validateHash32)
		_ = v.RegisterValidation("uint256", validateUint256)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateEthAddress accepts 20-byte hex addresses with or without 0x.
func validateEthAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// validateHash32 accepts 0x-prefixed 32-byte hex.
func validateHash32(fl validator.FieldLevel) bool {
	return hash32Re.MatchString(fl.Field().String())
}

func validateUint256(fl validator.FieldLevel) bool {
	_, err := ParseUint256(fl.Field().String())
	return err == nil
}

// ParseUint256 parses a decimal or 0x-prefixed hex integer below 2^256 into
// its 32-byte big-endian form.
func ParseUint256(s string) ([32]byte, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("%q is not an unsigned integer", s)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return [32]byte{}, fmt.Errorf("%q exceeds 256 bits", s)
	}
	return v.Bytes32(), nil
}

// ParseHashes converts validated hash32 strings.
func ParseHashes(in []string) []common.Hash {
	out := make([]common.Hash, len(in))
	for i, h := range in {
		out[i] = common.HexToHash(h)
	}
	return out
}
