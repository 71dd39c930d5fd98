package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gift-exchange-escrow/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthService_Login_Success(t *testing.T) {
	key, addr := newTestKey(t)
	tokens := NewJWTTokenService(testJWTSecret, time.Hour, "test-issuer")
	svc := NewAuthService(NewSecp256k1SignatureService(), tokens, time.Minute)
	svc.SetNowFunc(func() time.Time { return testStart })

	ts := testStart.Unix() - 30
	sig, err := SignPayload(key, LoginChallenge(addr, ts))
	require.NoError(t, err)

	token, expiry, err := svc.Login(context.Background(), addr, ts, sig)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.False(t, expiry.IsZero())

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, addr, claims.Address)
}

func TestAuthService_Login_Rejections(t *testing.T) {
	key, addr := newTestKey(t)
	svc := NewAuthService(NewSecp256k1SignatureService(), NewJWTTokenService(testJWTSecret, time.Hour, "i"), time.Minute)
	svc.SetNowFunc(func() time.Time { return testStart })
	ctx := context.Background()

	stale := testStart.Unix() - 61
	sig, _ := SignPayload(key, LoginChallenge(addr, stale))
	_, _, err := svc.Login(ctx, addr, stale, sig)
	assertAppError(t, err, "SEC_003")

	future := testStart.Unix() + 61
	sig, _ = SignPayload(key, LoginChallenge(addr, future))
	_, _, err = svc.Login(ctx, addr, future, sig)
	assertAppError(t, err, "SEC_003")

	now := testStart.Unix()
	sig, _ = SignPayload(key, LoginChallenge(addr, now))
	_, _, err = svc.Login(ctx, guest1, now, sig)
	assertAppError(t, err, "SEC_002")

	_, _, err = svc.Login(ctx, addr, now, "0xdead")
	assertAppError(t, err, "SEC_002")
}

func TestAuthService_Login_TokenFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	svc := NewAuthService(sigSvc, tokenSvc, time.Minute)
	svc.SetNowFunc(func() time.Time { return testStart })

	ts := testStart.Unix()
	sigSvc.EXPECT().Verify(LoginChallenge(guest1, ts), "sig", guest1).Return(true)
	tokenSvc.EXPECT().Generate(guest1).Return("", time.Time{}, errors.New("hsm offline"))

	_, _, err := svc.Login(context.Background(), guest1, ts, "sig")
	assertAppError(t, err, "SYS_001")
}
