package service

import (
	"context"
	"fmt"
	"time"

	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
)

// AuthServiceImpl implements ports.AuthService. Identities are wallet
// addresses; a login proves key ownership by signing LoginChallenge.
type AuthServiceImpl struct {
	clock
	sigSvc   ports.SignatureService
	tokenSvc ports.TokenService
	maxDrift time.Duration
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(sigSvc ports.SignatureService, tokenSvc ports.TokenService, maxDrift time.Duration) *AuthServiceImpl {
	return &AuthServiceImpl{
		clock:    systemClock(),
		sigSvc:   sigSvc,
		tokenSvc: tokenSvc,
		maxDrift: maxDrift,
	}
}

// Login validates a signed challenge and returns a JWT token.
func (s *AuthServiceImpl) Login(ctx context.Context, addr common.Address, timestamp int64, signature string) (string, time.Time, error) {
	drift := s.unix() - timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(s.maxDrift.Seconds()) {
		return "", time.Time{}, apperror.ErrTimestampExpired()
	}

	if !s.sigSvc.Verify(LoginChallenge(addr, timestamp), signature, addr) {
		return "", time.Time{}, apperror.ErrInvalidSignature()
	}

	token, expiry, err := s.tokenSvc.Generate(addr)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}
