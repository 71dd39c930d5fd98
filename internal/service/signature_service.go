package service

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var errMalformedSignature = errors.New("signature must be 65 bytes [R || S || V]")

// Secp256k1SignatureService implements ports.SignatureService with EIP-191
// personal-message signatures, the format wallets produce for personal_sign.
type Secp256k1SignatureService struct{}

// NewSecp256k1SignatureService creates a new signature service.
func NewSecp256k1SignatureService() *Secp256k1SignatureService {
	return &Secp256k1SignatureService{}
}

// BuildCanonicalString constructs the canonical payload for signing.
// Format: METHOD|PATH|TIMESTAMP|NONCE|BODY
func (s *Secp256k1SignatureService) BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", method, path, timestamp, nonce, body)
}

// Recover returns the address whose key produced signature over payload.
// V may be 0/1 or 27/28.
func (s *Secp256k1SignatureService) Recover(payload string, signature string) (common.Address, error) {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errMalformedSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errMalformedSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(payload)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether signature over payload was produced by expected.
func (s *Secp256k1SignatureService) Verify(payload string, signature string, expected common.Address) bool {
	addr, err := s.Recover(payload, signature)
	return err == nil && addr == expected
}

// SignPayload produces a 0x-prefixed personal-message signature with V in
// 27/28 form. Clients and tests use it to build request headers.
func SignPayload(key *ecdsa.PrivateKey, payload string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(payload)), key)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// LoginChallenge is the message a wallet signs to obtain a session token.
func LoginChallenge(addr common.Address, timestamp int64) string {
	return fmt.Sprintf("login|%s|%d", addr.Hex(), timestamp)
}
