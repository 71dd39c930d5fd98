package service

import (
	"context"
	"testing"
	"time"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/internal/core/ports/mocks"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var ring = []common.Address{organizer, guest1, guest2}

// settledExchange opens an exchange, submits every gift and tops the vault up
// so all three bonus-bearing claims can be paid.
func (f *escrowFixture) settledExchange(t *testing.T, salt byte) *domain.Exchange {
	t.Helper()
	ex := f.openExchange(t)
	f.revealAndSubmitAll(t, ex.ID, ring, salt)
	require.NoError(t, f.ledger.Receive(context.Background(), outsider, 30))
	return ex
}

func TestSettlementService_Claim_WithBonus(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	f.fund(t, outsider, 100)
	ex := f.settledExchange(t, 1)

	res, err := f.settlement.Claim(ctx, guest1, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(108), res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, domain.Reward{Bonus: 10, Gross: 110, Fee: 2, Final: 108}, res.Items[0].Reward)

	balance, _ := f.ledger.AccountBalance(ctx, guest1)
	assert.Equal(t, int64(900+108), balance)
	vault, _ := f.ledger.VaultBalance(ctx)
	assert.Equal(t, int64(330-108), vault)

	p, _ := f.query.GetParticipant(ctx, ex.ID, guest1)
	assert.True(t, p.Claimed)

	_, err = f.settlement.Claim(ctx, guest1, ex.ID)
	assertAppError(t, err, "EXC_009")

	stats, _ := f.query.Stats(ctx)
	assert.Equal(t, int64(108), stats.TotalValueTransferred)

	events, _ := f.query.ListEvents(ctx, ex.ID)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventClaimed, last.Kind)
	assert.Equal(t, guest1, last.Actor)
	assert.Equal(t, int64(108), last.Amount)
	assert.Equal(t, "10", last.Attributes["bonus"])
	assert.Equal(t, "2", last.Attributes["fee"])
}

func TestSettlementService_Claim_WeiScaleDeposit(t *testing.T) {
	const deposit = int64(50_000_000_000_000_000) // 0.05 ether

	f := newEscrowFixture(t)
	ctx := context.Background()
	for _, addr := range ring {
		f.fund(t, addr, 2*deposit)
	}
	f.fund(t, outsider, deposit)

	ex, err := f.exchanges.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: deposit, RegistrationDuration: 3600, ExchangeDuration: 7200, AttachedValue: deposit,
	})
	require.NoError(t, err)
	for _, addr := range []common.Address{guest1, guest2} {
		_, err := f.exchanges.Register(ctx, ports.RegisterRequest{Caller: addr, ExchangeID: ex.ID, AttachedValue: deposit})
		require.NoError(t, err)
	}
	f.revealAndSubmitAll(t, ex.ID, ring, 3)
	require.NoError(t, f.ledger.Receive(ctx, outsider, deposit))

	vaultBefore, _ := f.ledger.VaultBalance(ctx)
	res, err := f.settlement.Claim(ctx, guest1, ex.ID)
	require.NoError(t, err)

	want := domain.Reward{
		Bonus: 5_000_000_000_000_000,
		Gross: 55_000_000_000_000_000,
		Fee:   1_375_000_000_000_000,
		Final: 53_625_000_000_000_000,
	}
	assert.Equal(t, want, res.Items[0].Reward)
	assert.Equal(t, want.Final, res.Total)

	vaultAfter, _ := f.ledger.VaultBalance(ctx)
	assert.Equal(t, vaultBefore-want.Final, vaultAfter)
	balance, _ := f.ledger.AccountBalance(ctx, guest1)
	assert.Equal(t, deposit+want.Final, balance)
}

func TestSettlementService_Claim_BonusBoundary(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		want   int64
	}{
		{"at midpoint", 0, 108},
		{"after midpoint", 1, 98},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEscrowFixture(t)
			f.fund(t, outsider, 100)
			ex := f.settledExchange(t, 1)

			f.now = time.Unix(ex.BonusMidpoint()+tt.offset, 0)
			res, err := f.settlement.Claim(context.Background(), organizer, ex.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Total)
		})
	}
}

func TestSettlementService_Claim_Eligibility(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	ex := f.openExchange(t)
	root, assignments := ringAssignments(t, ring, 1)

	_, err := f.settlement.Claim(ctx, guest1, 99)
	assertAppError(t, err, "EXC_001")

	_, err = f.settlement.Claim(ctx, outsider, ex.ID)
	assertAppError(t, err, "EXC_005")

	_, err = f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: ex.ID, Root: root})
	require.NoError(t, err)
	a := assignments[guest1]
	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{
		Caller: guest1, ExchangeID: ex.ID, Recipient: a.recipient, Nonce: a.nonce, Proof: a.proof,
	})
	require.NoError(t, err)

	// Window closed: state is Active and the claim deadline is ahead.
	_, err = f.settlement.Claim(ctx, guest1, ex.ID)
	assertAppError(t, err, "EXC_009")

	f.now = time.Unix(ex.ClaimDeadline+1, 0)

	_, err = f.settlement.Claim(ctx, guest2, ex.ID)
	assertAppError(t, err, "EXC_009")

	res, err := f.settlement.Claim(ctx, guest1, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(98), res.Total)
}

func TestSettlementService_Claim_FinalizedPastDeadline(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	ex := f.openExchange(t)
	root, assignments := ringAssignments(t, ring, 1)
	_, err := f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: ex.ID, Root: root})
	require.NoError(t, err)
	a := assignments[organizer]
	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{
		Caller: organizer, ExchangeID: ex.ID, Recipient: a.recipient, Nonce: a.nonce, Proof: a.proof,
	})
	require.NoError(t, err)

	paused, err := f.admin.EmergencyPause(ctx, adminAddr, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinalized, paused.State)

	_, err = f.settlement.Claim(ctx, organizer, ex.ID)
	assertAppError(t, err, "EXC_009")

	f.now = time.Unix(ex.ClaimDeadline+1, 0)
	res, err := f.settlement.Claim(ctx, organizer, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(98), res.Total)
}

func TestSettlementService_Claim_VaultShortfallRollsBack(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	ex := f.openExchange(t)
	f.revealAndSubmitAll(t, ex.ID, ring, 1)

	for _, addr := range []common.Address{organizer, guest1} {
		_, err := f.settlement.Claim(ctx, addr, ex.ID)
		require.NoError(t, err)
	}

	vault, _ := f.ledger.VaultBalance(ctx)
	require.Equal(t, int64(300-216), vault)

	_, err := f.settlement.Claim(ctx, guest2, ex.ID)
	assertAppError(t, err, "VLT_002")

	p, _ := f.query.GetParticipant(ctx, ex.ID, guest2)
	assert.False(t, p.Claimed, "claim flag must roll back with the failed transfer")
	balance, _ := f.ledger.AccountBalance(ctx, guest2)
	assert.Equal(t, int64(900), balance)
	vault, _ = f.ledger.VaultBalance(ctx)
	assert.Equal(t, int64(84), vault)

	require.NoError(t, f.ledger.Receive(ctx, guest2, 24))
	res, err := f.settlement.Claim(ctx, guest2, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(108), res.Total)
}

func TestSettlementService_BatchClaim_MatchesSingleClaims(t *testing.T) {
	ctx := context.Background()

	single := newEscrowFixture(t)
	single.fund(t, outsider, 100)
	a := single.settledExchange(t, 0xA)
	b := single.settledExchange(t, 0xB)
	var singles int64
	for _, id := range []int64{a.ID, b.ID} {
		res, err := single.settlement.Claim(ctx, guest1, id)
		require.NoError(t, err)
		singles += res.Total
	}

	batch := newEscrowFixture(t)
	batch.fund(t, outsider, 100)
	a = batch.settledExchange(t, 0xA)
	b = batch.settledExchange(t, 0xB)
	res, err := batch.settlement.BatchClaim(ctx, guest1, []int64{b.ID, a.ID})
	require.NoError(t, err)

	assert.Equal(t, singles, res.Total)
	assert.Equal(t, int64(216), res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, b.ID, res.Items[0].ExchangeID, "items follow request order")
	assert.Equal(t, a.ID, res.Items[1].ExchangeID)

	singleBalance, _ := single.ledger.AccountBalance(ctx, guest1)
	batchBalance, _ := batch.ledger.AccountBalance(ctx, guest1)
	assert.Equal(t, singleBalance, batchBalance)

	for _, id := range []int64{a.ID, b.ID} {
		p, _ := batch.query.GetParticipant(ctx, id, guest1)
		assert.True(t, p.Claimed)
	}
	transfers := batch.store.Ledger().Transfers(guest1)
	payout := transfers[len(transfers)-1]
	assert.Equal(t, domain.TransferPayout, payout.Kind)
	assert.Nil(t, payout.ExchangeID)
	assert.Equal(t, int64(216), payout.Amount)
}

func TestSettlementService_BatchClaim_AllOrNothing(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	f.fund(t, outsider, 100)
	a := f.settledExchange(t, 0xA)
	b := f.openExchange(t)

	before, _ := f.ledger.AccountBalance(ctx, guest1)

	_, err := f.settlement.BatchClaim(ctx, guest1, []int64{a.ID, a.ID})
	assertAppError(t, err, "EXC_009")

	_, err = f.settlement.BatchClaim(ctx, guest1, []int64{a.ID, b.ID})
	assertAppError(t, err, "EXC_009")

	_, err = f.settlement.BatchClaim(ctx, guest1, []int64{a.ID, 42})
	assertAppError(t, err, "EXC_001")

	_, err = f.settlement.BatchClaim(ctx, guest1, nil)
	assertAppError(t, err, "EXC_012")

	after, _ := f.ledger.AccountBalance(ctx, guest1)
	assert.Equal(t, before, after)
	p, _ := f.query.GetParticipant(ctx, a.ID, guest1)
	assert.False(t, p.Claimed)
}

func TestSettlementService_BatchClaim_ZeroPayout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	exchangeRepo := mocks.NewMockExchangeRepository(ctrl)
	participantRepo := mocks.NewMockParticipantRepository(ctrl)
	eventRepo := mocks.NewMockEventRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)

	svc := NewSettlementService(exchangeRepo, participantRepo, mocks.NewMockStatsRepository(ctrl),
		eventRepo, mocks.NewMockLedgerService(ctrl), nil, transactor, newTestLogger())
	svc.SetNowFunc(func() time.Time { return testStart })
	svc.SetMetrics(nil)

	ctx := context.Background()
	tx := &mockTx{}
	ex := domain.NewExchange(organizer, 0, 0, 60, testStart.Unix())
	ex.ID, ex.State, ex.ParticipantCount, ex.SuccessfulGifts = 7, domain.StateClaiming, 3, 3

	transactor.EXPECT().Begin(ctx).Return(tx, nil)
	exchangeRepo.EXPECT().GetByIDForUpdate(ctx, tx, int64(7)).Return(ex, nil)
	participantRepo.EXPECT().GetForUpdate(ctx, tx, int64(7), guest1).
		Return(&domain.Participant{ExchangeID: 7, Address: guest1, Registered: true, GiftSubmitted: true}, nil)
	participantRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	_, err := svc.BatchClaim(ctx, guest1, []int64{7})
	assertAppError(t, err, "EXC_013")
}

func TestSettlementService_BatchClaim_LocksAscending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	exchangeRepo := mocks.NewMockExchangeRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	svc := NewSettlementService(exchangeRepo, mocks.NewMockParticipantRepository(ctrl), mocks.NewMockStatsRepository(ctrl),
		mocks.NewMockEventRepository(ctrl), mocks.NewMockLedgerService(ctrl), nil, transactor, newTestLogger())

	ctx := context.Background()
	tx := &mockTx{}

	transactor.EXPECT().Begin(ctx).Return(tx, nil)
	gomock.InOrder(
		exchangeRepo.EXPECT().GetByIDForUpdate(ctx, tx, int64(2)).Return(&domain.Exchange{ID: 2}, nil),
		exchangeRepo.EXPECT().GetByIDForUpdate(ctx, tx, int64(5)).Return(nil, nil),
	)

	_, err := svc.BatchClaim(ctx, guest1, []int64{5, 2, 5})
	assertAppError(t, err, "EXC_001")
}
