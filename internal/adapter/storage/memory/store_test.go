package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.DBTransactor          = (*Store)(nil)
	_ ports.ExchangeRepository    = (*ExchangeRepo)(nil)
	_ ports.ParticipantRepository = (*ParticipantRepo)(nil)
	_ ports.StatsRepository       = (*StatsRepo)(nil)
	_ ports.LedgerRepository      = (*LedgerRepo)(nil)
	_ ports.EventRepository       = (*EventRepo)(nil)
	_ ports.IdempotencyRepository = (*IdempotencyRepo)(nil)
	_ ports.AuditRepository       = (*AuditRepo)(nil)
	_ ports.HealthChecker         = (*HealthCheck)(nil)
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

func TestStore_CommitPublishesWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	ex := domain.NewExchange(alice, 100, 3600, 7200, time.Now().Unix())
	require.NoError(t, s.Exchanges().Create(ctx, tx, ex))
	assert.Equal(t, int64(1), ex.ID)

	got, err := s.Exchanges().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got, "uncommitted exchange must not be visible")

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	got, err = s.Exchanges().GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice, got.Organizer)
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ledger().CreditAccount(ctx, tx, alice, 500))
	require.NoError(t, s.Ledger().CreditVault(ctx, tx, 20))
	require.NoError(t, s.Stats().Increment(ctx, tx, domain.ProtocolStats{TotalExchanges: 1}))
	require.NoError(t, tx.Rollback(ctx))

	balance, _ := s.Ledger().GetAccountBalance(ctx, alice)
	vault, _ := s.Ledger().GetVaultBalance(ctx)
	stats, _ := s.Stats().Get(ctx)
	assert.Zero(t, balance)
	assert.Zero(t, vault)
	assert.Zero(t, stats.TotalExchanges)

	assert.ErrorIs(t, s.Ledger().CreditVault(ctx, tx, 1), ErrNotInTransaction)
}

func TestStore_IdsStayMonotonicAcrossRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	ex := domain.NewExchange(alice, 100, 0, 10, 0)
	require.NoError(t, s.Exchanges().Create(ctx, tx, ex))
	require.NoError(t, tx.Commit(ctx))

	tx, _ = s.Begin(ctx)
	require.NoError(t, s.Exchanges().Create(ctx, tx, domain.NewExchange(bob, 100, 0, 10, 0)))
	require.NoError(t, tx.Rollback(ctx))

	tx, _ = s.Begin(ctx)
	next := domain.NewExchange(bob, 100, 0, 10, 0)
	require.NoError(t, s.Exchanges().Create(ctx, tx, next))
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, int64(2), next.ID)
}

func TestStore_BeginWaitsForOpenTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Rollback(ctx))
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))
}

func TestLedgerRepo_Debits(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck

	ok, err := s.Ledger().DebitAccount(ctx, tx, alice, 1)
	require.NoError(t, err)
	assert.False(t, ok, "unknown account cannot be debited")

	require.NoError(t, s.Ledger().CreditAccount(ctx, tx, alice, 100))
	ok, _ = s.Ledger().DebitAccount(ctx, tx, alice, 101)
	assert.False(t, ok)
	ok, _ = s.Ledger().DebitAccount(ctx, tx, alice, 100)
	assert.True(t, ok)

	require.NoError(t, s.Ledger().CreditVault(ctx, tx, 50))
	ok, _ = s.Ledger().DebitVault(ctx, tx, 51)
	assert.False(t, ok)
	locked, _ := s.Ledger().GetVaultBalanceForUpdate(ctx, tx)
	assert.Equal(t, int64(50), locked)

	id := int64(1)
	require.NoError(t, s.Ledger().RecordTransfer(ctx, tx, domain.NewTransfer(domain.TransferPayout, alice, 50, &id, time.Now())))
	require.NoError(t, tx.Commit(ctx))
	require.Len(t, s.Ledger().Transfers(alice), 1)
	assert.Empty(t, s.Ledger().Transfers(bob))
}

func TestLedgerAndStats_RejectOverflow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck

	require.NoError(t, s.Ledger().CreditAccount(ctx, tx, alice, math.MaxInt64))
	err := s.Ledger().CreditAccount(ctx, tx, alice, 1)
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)

	require.NoError(t, s.Ledger().CreditVault(ctx, tx, math.MaxInt64-1))
	assert.ErrorIs(t, s.Ledger().CreditVault(ctx, tx, 2), domain.ErrAmountOverflow)
	vault, _ := s.Ledger().GetVaultBalanceForUpdate(ctx, tx)
	assert.Equal(t, int64(math.MaxInt64-1), vault)

	require.NoError(t, s.Stats().Increment(ctx, tx, domain.ProtocolStats{TotalValueTransferred: math.MaxInt64}))
	err = s.Stats().Increment(ctx, tx, domain.ProtocolStats{TotalValueTransferred: 1})
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
}

func TestParticipantRepo_OrderAndHistory(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Participants()

	tx, _ := s.Begin(ctx)
	for i, addr := range []common.Address{bob, alice} {
		require.NoError(t, repo.Create(ctx, tx, &domain.Participant{ExchangeID: 1, Address: addr, JoinIndex: i, Registered: true}))
		require.NoError(t, repo.AppendHistory(ctx, tx, addr, 1))
	}
	assert.Error(t, repo.Create(ctx, tx, &domain.Participant{ExchangeID: 1, Address: bob}))
	require.NoError(t, repo.AppendHistory(ctx, tx, alice, 4))

	p, err := repo.GetForUpdate(ctx, tx, 1, alice)
	require.NoError(t, err)
	p.GiftSubmitted = true
	p.JoinIndex = 99
	require.NoError(t, repo.Update(ctx, tx, p))
	require.NoError(t, tx.Commit(ctx))

	list, err := repo.ListByExchange(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, bob, list[0].Address)
	assert.Equal(t, alice, list[1].Address)
	assert.True(t, list[1].GiftSubmitted)
	assert.Equal(t, 1, list[1].JoinIndex, "update only touches the flags")

	ids, err := repo.ListExchangesByIdentity(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)

	none, err := repo.ListExchangesByIdentity(ctx, common.Address{})
	require.NoError(t, err)
	assert.Empty(t, none)

	missing, err := repo.Get(ctx, 2, alice)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEventAndAuditRepos(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	require.NoError(t, s.Events().Create(ctx, tx, domain.NewEvent(3, domain.EventExchangeCreated, alice, 100, time.Now())))
	require.NoError(t, s.Events().Create(ctx, tx, domain.NewEvent(3, domain.EventRegistered, bob, 100, time.Now())))
	require.NoError(t, s.Audit().Create(ctx, &domain.AuditLog{Action: domain.AuditActionRegister}))
	require.NoError(t, tx.Rollback(ctx))

	events, err := s.Events().ListByExchange(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, s.Audit().Entries(), 1, "audit entries survive rollback")

	tx, _ = s.Begin(ctx)
	require.NoError(t, s.Events().Create(ctx, tx, domain.NewEvent(3, domain.EventExchangeCreated, alice, 100, time.Now())))
	require.NoError(t, s.Idempotency().Create(ctx, tx, &domain.IdempotencyLog{Key: "k", ExchangeID: 3}))
	assert.Error(t, s.Idempotency().Create(ctx, tx, &domain.IdempotencyLog{Key: "k", ExchangeID: 3}))
	require.NoError(t, tx.Commit(ctx))

	events, _ = s.Events().ListByExchange(ctx, 3)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventExchangeCreated, events[0].Kind)

	log, err := s.Idempotency().Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, int64(3), log.ExchangeID)
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthCheck()
	assert.Equal(t, "memory", h.Name())
	assert.NoError(t, h.Ping(context.Background()))
}
