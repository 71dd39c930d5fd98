package service

import (
	"context"
	"crypto/ecdsa"
	"io"
	"testing"
	"time"

	"gift-exchange-escrow/internal/adapter/storage/memory"
	redisstore "gift-exchange-escrow/internal/adapter/storage/redis"
	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"
	"gift-exchange-escrow/pkg/merkle"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

var testStart = time.Unix(1_700_000_000, 0).UTC()

var (
	organizer = common.HexToAddress("0x1000000000000000000000000000000000000001")
	guest1    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	guest2    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	outsider  = common.HexToAddress("0x4000000000000000000000000000000000000004")
	adminAddr = common.HexToAddress("0xad00000000000000000000000000000000000000")
)

// escrowFixture wires every service over the in-memory store with a
// controllable clock.
type escrowFixture struct {
	store      *memory.Store
	now        time.Time
	ledger     *LedgerServiceImpl
	exchanges  *ExchangeServiceImpl
	settlement *SettlementServiceImpl
	admin      *AdminServiceImpl
	query      ports.QueryService
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.NewStore()
	log := newTestLogger()
	f := &escrowFixture{store: store, now: testStart}
	clockFn := func() time.Time { return f.now }

	f.ledger = NewLedgerService(store.Ledger(), store, log)
	f.ledger.SetNowFunc(clockFn)
	f.exchanges = NewExchangeService(
		store.Exchanges(), store.Participants(), store.Stats(), store.Events(),
		store.Idempotency(), redisstore.NewIdempotencyCache(client),
		f.ledger, NewMerkleProofVerifier(), nil, store, log,
	)
	f.exchanges.SetNowFunc(clockFn)
	f.settlement = NewSettlementService(
		store.Exchanges(), store.Participants(), store.Stats(), store.Events(),
		f.ledger, nil, store, log,
	)
	f.settlement.SetNowFunc(clockFn)
	f.admin = NewAdminService(adminAddr, store.Exchanges(), f.ledger, store, log)
	f.query = NewQueryService(store.Exchanges(), store.Participants(), store.Events(), store.Stats(), f.ledger)
	return f
}

func (f *escrowFixture) fund(t *testing.T, addr common.Address, amount int64) {
	t.Helper()
	_, err := f.admin.CreditAccount(context.Background(), adminAddr, addr, amount)
	require.NoError(t, err)
}

// openExchange funds the three standard members, creates an exchange with
// deposit 100, registration 1h and exchange duration 2h, and registers the guests.
func (f *escrowFixture) openExchange(t *testing.T) *domain.Exchange {
	t.Helper()
	ctx := context.Background()
	for _, addr := range []common.Address{organizer, guest1, guest2} {
		f.fund(t, addr, 1000)
	}
	ex, err := f.exchanges.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: 100, RegistrationDuration: 3600, ExchangeDuration: 7200, AttachedValue: 100,
	})
	require.NoError(t, err)
	for _, addr := range []common.Address{guest1, guest2} {
		_, err := f.exchanges.Register(ctx, ports.RegisterRequest{Caller: addr, ExchangeID: ex.ID, AttachedValue: 100})
		require.NoError(t, err)
	}
	return ex
}

// assignment is one giver's leaf and proof in a ring pairing.
type assignment struct {
	recipient common.Address
	nonce     [32]byte
	proof     []common.Hash
}

// ringAssignments pairs members[i] with members[i+1] and returns the tree
// root plus each giver's proof. salt separates trees built for different exchanges.
func ringAssignments(t *testing.T, members []common.Address, salt byte) (common.Hash, map[common.Address]assignment) {
	t.Helper()
	leaves := make([]common.Hash, len(members))
	out := make(map[common.Address]assignment, len(members))
	for i, giver := range members {
		var nonce [32]byte
		nonce[0] = salt
		nonce[31] = byte(i + 1)
		recipient := members[(i+1)%len(members)]
		leaves[i] = merkle.LeafHash(giver, recipient, nonce)
		out[giver] = assignment{recipient: recipient, nonce: nonce}
	}
	tree, err := merkle.BuildTree(leaves)
	require.NoError(t, err)
	for i, giver := range members {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		a := out[giver]
		a.proof = proof
		out[giver] = a
	}
	return tree.Root(), out
}

// revealAndSubmitAll reveals a ring pairing and submits every member's gift.
func (f *escrowFixture) revealAndSubmitAll(t *testing.T, exchangeID int64, members []common.Address, salt byte) {
	t.Helper()
	ctx := context.Background()
	root, assignments := ringAssignments(t, members, salt)
	_, err := f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: exchangeID, Root: root})
	require.NoError(t, err)
	for _, giver := range members {
		a := assignments[giver]
		_, err := f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{
			Caller: giver, ExchangeID: exchangeID, ContentHash: crypto.Keccak256Hash(giver.Bytes()),
			Recipient: a.recipient, Nonce: a.nonce, Proof: a.proof,
		})
		require.NoError(t, err)
	}
}

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}
