package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/internal/core/ports/mocks"
	"gift-exchange-escrow/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type exchangeTestDeps struct {
	svc             *ExchangeServiceImpl
	exchangeRepo    *mocks.MockExchangeRepository
	participantRepo *mocks.MockParticipantRepository
	statsRepo       *mocks.MockStatsRepository
	eventRepo       *mocks.MockEventRepository
	idempRepo       *mocks.MockIdempotencyRepository
	idempCache      *mocks.MockIdempotencyCache
	ledger          *mocks.MockLedgerService
	proofs          *mocks.MockProofVerifier
	publisher       *mocks.MockEventPublisher
	transactor      *mocks.MockDBTransactor
	ctrl            *gomock.Controller
}

func setupExchangeService(t *testing.T) *exchangeTestDeps {
	ctrl := gomock.NewController(t)
	d := &exchangeTestDeps{
		exchangeRepo:    mocks.NewMockExchangeRepository(ctrl),
		participantRepo: mocks.NewMockParticipantRepository(ctrl),
		statsRepo:       mocks.NewMockStatsRepository(ctrl),
		eventRepo:       mocks.NewMockEventRepository(ctrl),
		idempRepo:       mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:      mocks.NewMockIdempotencyCache(ctrl),
		ledger:          mocks.NewMockLedgerService(ctrl),
		proofs:          mocks.NewMockProofVerifier(ctrl),
		publisher:       mocks.NewMockEventPublisher(ctrl),
		transactor:      mocks.NewMockDBTransactor(ctrl),
		ctrl:            ctrl,
	}
	d.svc = NewExchangeService(
		d.exchangeRepo, d.participantRepo, d.statsRepo, d.eventRepo,
		d.idempRepo, d.idempCache, d.ledger, d.proofs, d.publisher,
		d.transactor, newTestLogger(),
	)
	d.svc.SetNowFunc(func() time.Time { return testStart })
	d.svc.SetMetrics(nil)
	return d
}

// ==================== CreateExchange Tests ====================

func TestExchangeService_CreateExchange_Success(t *testing.T) {
	d := setupExchangeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildIdempotencyKey(organizer, "party-2024")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.exchangeRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, ex *domain.Exchange) error {
			ex.ID = 1
			return nil
		},
	)
	d.participantRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, p *domain.Participant) error {
			assert.Equal(t, organizer, p.Address)
			assert.Equal(t, 0, p.JoinIndex)
			assert.Equal(t, int64(150), p.Deposit)
			return nil
		},
	)
	d.participantRepo.EXPECT().AppendHistory(ctx, tx, organizer, int64(1)).Return(nil)
	d.statsRepo.EXPECT().Increment(ctx, tx, domain.ProtocolStats{TotalExchanges: 1, TotalParticipants: 1}).Return(nil)
	d.ledger.EXPECT().Collect(ctx, tx, organizer, int64(150), int64(1)).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(nil)
	d.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(fmt.Errorf("redis down"))

	ex, err := d.svc.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller:               organizer,
		DepositAmount:        100,
		RegistrationDuration: 3600,
		ExchangeDuration:     7200,
		AttachedValue:        150,
		ReferenceID:          "party-2024",
	})
	require.NoError(t, err)

	start := testStart.Unix()
	assert.Equal(t, int64(1), ex.ID)
	assert.Equal(t, domain.StateRegistration, ex.State)
	assert.Equal(t, start+3600, ex.RegistrationDeadline)
	assert.Equal(t, start+3600+domain.RevealGracePeriod, ex.RevealDeadline)
	assert.Equal(t, start+3600+domain.RevealGracePeriod+7200, ex.ClaimDeadline)
	assert.Equal(t, 1, ex.ParticipantCount)
	assert.Equal(t, int64(150), ex.TotalDeposits, "surplus over the deposit is retained")
	assert.Equal(t, []common.Address{organizer}, ex.Participants)
}

func TestExchangeService_CreateExchange_IdempotentCacheHit(t *testing.T) {
	d := setupExchangeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.BuildIdempotencyKey(organizer, "party-2024")
	cached, _ := json.Marshal(&domain.Exchange{ID: 9, Organizer: organizer, GiftAmount: 100})

	d.idempCache.EXPECT().Get(ctx, key).Return(cached, nil)

	ex, err := d.svc.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: 100, ExchangeDuration: 10, AttachedValue: 100, ReferenceID: "party-2024",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), ex.ID)
}

func TestExchangeService_CreateExchange_IdempotentDBHit(t *testing.T) {
	d := setupExchangeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.BuildIdempotencyKey(organizer, "r")
	cached, _ := json.Marshal(&domain.Exchange{ID: 4})

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, fmt.Errorf("redis down"))
	d.idempRepo.EXPECT().Get(ctx, key).Return(&domain.IdempotencyLog{Key: key, ExchangeID: 4, ResponseJSON: cached}, nil)

	ex, err := d.svc.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: 100, ExchangeDuration: 10, AttachedValue: 100, ReferenceID: "r",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), ex.ID)
}

func TestExchangeService_CreateExchange_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  ports.CreateExchangeRequest
		code string
	}{
		{"zero deposit", ports.CreateExchangeRequest{DepositAmount: 0, ExchangeDuration: 10, AttachedValue: 10}, "REQ_001"},
		{"deposit above maximum", ports.CreateExchangeRequest{DepositAmount: domain.MaxDepositAmount + 1, ExchangeDuration: 10, AttachedValue: math.MaxInt64}, "REQ_001"},
		{"negative registration", ports.CreateExchangeRequest{DepositAmount: 1, RegistrationDuration: -1, ExchangeDuration: 10, AttachedValue: 10}, "REQ_001"},
		{"zero exchange duration", ports.CreateExchangeRequest{DepositAmount: 1, AttachedValue: 10}, "REQ_001"},
		{"huge exchange duration", ports.CreateExchangeRequest{DepositAmount: 1, ExchangeDuration: maxDuration + 1, AttachedValue: 10}, "REQ_001"},
		{"under-deposit", ports.CreateExchangeRequest{DepositAmount: 100, ExchangeDuration: 10, AttachedValue: 99}, "EXC_003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupExchangeService(t)
			defer d.ctrl.Finish()

			tt.req.Caller = organizer
			_, err := d.svc.CreateExchange(context.Background(), tt.req)
			assertAppError(t, err, tt.code)
		})
	}
}

func TestExchangeService_CreateExchange_InsufficientBalance(t *testing.T) {
	d := setupExchangeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.exchangeRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.participantRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.participantRepo.EXPECT().AppendHistory(ctx, tx, organizer, gomock.Any()).Return(nil)
	d.statsRepo.EXPECT().Increment(ctx, tx, gomock.Any()).Return(nil)
	d.ledger.EXPECT().Collect(ctx, tx, organizer, int64(100), gomock.Any()).Return(apperror.ErrInsufficientBalance())

	_, err := d.svc.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: 100, ExchangeDuration: 10, AttachedValue: 100,
	})
	assertAppError(t, err, "VLT_001")
}

// ==================== Register Tests ====================

func TestExchangeService_Register_Checks(t *testing.T) {
	open := func() *domain.Exchange {
		ex := domain.NewExchange(organizer, 100, 3600, 7200, testStart.Unix())
		ex.ID = 1
		ex.ParticipantCount = 1
		return ex
	}

	tests := []struct {
		name     string
		exchange func() *domain.Exchange
		existing *domain.Participant
		attached int64
		code     string
	}{
		{"missing exchange", func() *domain.Exchange { return nil }, nil, 100, "EXC_001"},
		{"wrong state", func() *domain.Exchange { ex := open(); ex.State = domain.StateActive; return ex }, nil, 100, "EXC_002"},
		{"deadline passed", func() *domain.Exchange { ex := open(); ex.RegistrationDeadline = testStart.Unix() - 1; return ex }, nil, 100, "EXC_010"},
		{"already registered", open, &domain.Participant{Registered: true}, 100, "EXC_006"},
		{"under-deposit", open, nil, 99, "EXC_003"},
		{"full", func() *domain.Exchange { ex := open(); ex.ParticipantCount = domain.MaxParticipants; return ex }, nil, 100, "EXC_004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupExchangeService(t)
			defer d.ctrl.Finish()

			ctx := context.Background()
			tx := &mockTx{}
			ex := tt.exchange()

			d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
			d.exchangeRepo.EXPECT().GetByIDForUpdate(ctx, tx, int64(1)).Return(ex, nil)
			if ex != nil && ex.State == domain.StateRegistration && testStart.Unix() <= ex.RegistrationDeadline {
				d.participantRepo.EXPECT().GetForUpdate(ctx, tx, int64(1), guest1).Return(tt.existing, nil)
			}

			_, err := d.svc.Register(ctx, ports.RegisterRequest{Caller: guest1, ExchangeID: 1, AttachedValue: tt.attached})
			assertAppError(t, err, tt.code)
		})
	}
}

func TestExchangeService_Register_LockTimeout(t *testing.T) {
	d := setupExchangeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.exchangeRepo.EXPECT().GetByIDForUpdate(ctx, tx, int64(1)).
		Return(nil, fmt.Errorf("get exchange for update: %w", &pgconn.PgError{Code: "55P03"}))

	_, err := d.svc.Register(ctx, ports.RegisterRequest{Caller: guest1, ExchangeID: 1, AttachedValue: 100})
	assertAppError(t, err, "SYS_002")
}

// ==================== SubmitGift Tests ====================

func TestExchangeService_SubmitGift_InvalidProof(t *testing.T) {
	d := setupExchangeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	root := crypto.Keccak256Hash([]byte("root"))
	ex := domain.NewExchange(organizer, 100, 0, 7200, testStart.Unix())
	ex.ID, ex.State, ex.AssignmentRoot, ex.ParticipantCount = 1, domain.StateActive, root, 3
	req := ports.SubmitGiftRequest{Caller: guest1, ExchangeID: 1, Recipient: guest2, Proof: []common.Hash{{0x01}}}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.exchangeRepo.EXPECT().GetByIDForUpdate(ctx, tx, int64(1)).Return(ex, nil)
	d.participantRepo.EXPECT().GetForUpdate(ctx, tx, int64(1), guest1).Return(&domain.Participant{Registered: true}, nil)
	d.proofs.EXPECT().VerifyAssignment(root, guest1, guest2, req.Nonce, req.Proof).Return(false)

	_, err := d.svc.SubmitGift(ctx, req)
	assertAppError(t, err, "EXC_008")
}

// ==================== Behaviour over the memory store ====================

func TestExchangeFlow_CreateRegisterReveal(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()

	ex := f.openExchange(t)
	assert.Equal(t, int64(1), ex.ID)

	got, err := f.query.GetExchange(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ParticipantCount)
	assert.Equal(t, int64(300), got.TotalDeposits)
	assert.Equal(t, []common.Address{organizer, guest1, guest2}, got.Participants)

	vault, _ := f.ledger.VaultBalance(ctx)
	assert.Equal(t, int64(300), vault)
	balance, _ := f.ledger.AccountBalance(ctx, guest1)
	assert.Equal(t, int64(900), balance)

	_, err = f.exchanges.Register(ctx, ports.RegisterRequest{Caller: guest1, ExchangeID: ex.ID, AttachedValue: 100})
	assertAppError(t, err, "EXC_006")

	_, err = f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: guest1, ExchangeID: ex.ID, Root: common.Hash{0x01}})
	assertAppError(t, err, "EXC_011")

	revealed, err := f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: ex.ID, Root: common.Hash{0x01}})
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, revealed.State)

	_, err = f.exchanges.Register(ctx, ports.RegisterRequest{Caller: outsider, ExchangeID: ex.ID, AttachedValue: 100})
	assertAppError(t, err, "EXC_002")

	stats, err := f.query.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalExchanges)
	assert.Equal(t, int64(3), stats.TotalParticipants)
	assert.Equal(t, int64(300), stats.VaultBalance)

	events, err := f.query.ListEvents(ctx, ex.ID)
	require.NoError(t, err)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []domain.EventKind{
		domain.EventExchangeCreated, domain.EventRegistered, domain.EventRegistered, domain.EventRevealed,
	}, kinds)
}

func TestExchangeFlow_RevealNeedsThreeParticipants(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	f.fund(t, organizer, 100)

	ex, err := f.exchanges.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: 100, RegistrationDuration: 60, ExchangeDuration: 60, AttachedValue: 100,
	})
	require.NoError(t, err)

	_, err = f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: ex.ID, Root: common.Hash{0x01}})
	assertAppError(t, err, "EXC_002")
}

func TestExchangeFlow_AnyoneMayRevealAfterRegistrationDeadline(t *testing.T) {
	f := newEscrowFixture(t)
	ex := f.openExchange(t)

	f.now = time.Unix(ex.RegistrationDeadline+1, 0)
	got, err := f.exchanges.RevealAssignments(context.Background(), ports.RevealRequest{Caller: outsider, ExchangeID: ex.ID, Root: common.Hash{0x02}})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x02}, got.AssignmentRoot)
}

func TestExchangeFlow_RegisterRollsBackOnInsufficientBalance(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	ex := f.openExchange(t)

	f.fund(t, outsider, 50)
	_, err := f.exchanges.Register(ctx, ports.RegisterRequest{Caller: outsider, ExchangeID: ex.ID, AttachedValue: 100})
	assertAppError(t, err, "VLT_001")

	got, _ := f.query.GetExchange(ctx, ex.ID)
	assert.Equal(t, 3, got.ParticipantCount)
	p, err := f.query.GetParticipant(ctx, ex.ID, outsider)
	require.NoError(t, err)
	assert.False(t, p.Registered)
	history, _ := f.query.ExchangesFor(ctx, outsider)
	assert.Empty(t, history)
}

func TestExchangeFlow_RegisterRejectsDepositTotalOverflow(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	f.fund(t, organizer, domain.MaxDepositAmount)
	f.fund(t, guest1, domain.MaxDepositAmount)

	ex, err := f.exchanges.CreateExchange(ctx, ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: domain.MaxDepositAmount, RegistrationDuration: 3600, ExchangeDuration: 60,
		AttachedValue: domain.MaxDepositAmount,
	})
	require.NoError(t, err)

	_, err = f.exchanges.Register(ctx, ports.RegisterRequest{Caller: guest1, ExchangeID: ex.ID, AttachedValue: domain.MaxDepositAmount})
	assertAppError(t, err, "VLT_004")

	got, _ := f.query.GetExchange(ctx, ex.ID)
	assert.Equal(t, 1, got.ParticipantCount)
	assert.Equal(t, int64(domain.MaxDepositAmount), got.TotalDeposits)
	balance, _ := f.ledger.AccountBalance(ctx, guest1)
	assert.Equal(t, int64(domain.MaxDepositAmount), balance)
}

func TestExchangeFlow_SubmitGiftAdvancesToClaiming(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	ex := f.openExchange(t)
	members := []common.Address{organizer, guest1, guest2}
	root, assignments := ringAssignments(t, members, 1)

	_, err := f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: ex.ID, Root: root})
	require.NoError(t, err)

	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{Caller: outsider, ExchangeID: ex.ID})
	assertAppError(t, err, "EXC_005")

	// A real leaf presented by the wrong giver does not verify.
	a := assignments[guest1]
	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{
		Caller: organizer, ExchangeID: ex.ID, Recipient: a.recipient, Nonce: a.nonce, Proof: a.proof,
	})
	assertAppError(t, err, "EXC_008")

	for i, giver := range members {
		a := assignments[giver]
		p, err := f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{
			Caller: giver, ExchangeID: ex.ID, ContentHash: common.Hash{byte(i + 1)},
			Recipient: a.recipient, Nonce: a.nonce, Proof: a.proof,
		})
		require.NoError(t, err)
		assert.True(t, p.GiftSubmitted)

		got, _ := f.query.GetExchange(ctx, ex.ID)
		assert.Equal(t, i+1, got.SuccessfulGifts)
		if i < len(members)-1 {
			assert.Equal(t, domain.StateActive, got.State)
		} else {
			assert.Equal(t, domain.StateClaiming, got.State)
		}
	}

	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{Caller: guest1, ExchangeID: ex.ID})
	assertAppError(t, err, "EXC_002")

	p, err := f.query.GetParticipant(ctx, ex.ID, guest2)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{3}, p.GiftHash)

	stats, _ := f.query.Stats(ctx)
	assert.Equal(t, int64(3), stats.TotalGifts)
}

func TestExchangeFlow_SubmitGiftChecks(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	ex := f.openExchange(t)
	members := []common.Address{organizer, guest1, guest2}
	root, assignments := ringAssignments(t, members, 1)
	_, err := f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: ex.ID, Root: root})
	require.NoError(t, err)

	a := assignments[guest1]
	req := ports.SubmitGiftRequest{Caller: guest1, ExchangeID: ex.ID, Recipient: a.recipient, Nonce: a.nonce, Proof: a.proof}
	_, err = f.exchanges.SubmitGift(ctx, req)
	require.NoError(t, err)

	_, err = f.exchanges.SubmitGift(ctx, req)
	assertAppError(t, err, "EXC_007")

	f.now = time.Unix(ex.ClaimDeadline+1, 0)
	b := assignments[guest2]
	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{Caller: guest2, ExchangeID: ex.ID, Recipient: b.recipient, Nonce: b.nonce, Proof: b.proof})
	assertAppError(t, err, "EXC_010")
}

func TestExchangeFlow_ProofFromAnotherExchangeRejected(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	members := []common.Address{organizer, guest1, guest2}

	first := f.openExchange(t)
	second := f.openExchange(t)

	rootA, _ := ringAssignments(t, members, 0xA)
	_, assignmentsB := ringAssignments(t, members, 0xB)

	_, err := f.exchanges.RevealAssignments(ctx, ports.RevealRequest{Caller: organizer, ExchangeID: first.ID, Root: rootA})
	require.NoError(t, err)

	b := assignmentsB[guest1]
	_, err = f.exchanges.SubmitGift(ctx, ports.SubmitGiftRequest{
		Caller: guest1, ExchangeID: first.ID, Recipient: b.recipient, Nonce: b.nonce, Proof: b.proof,
	})
	assertAppError(t, err, "EXC_008")

	ids, _ := f.query.ExchangesFor(ctx, guest1)
	assert.Equal(t, []int64{first.ID, second.ID}, ids)
}

func TestExchangeFlow_CreateIsIdempotent(t *testing.T) {
	f := newEscrowFixture(t)
	ctx := context.Background()
	f.fund(t, organizer, 500)

	req := ports.CreateExchangeRequest{
		Caller: organizer, DepositAmount: 100, RegistrationDuration: 60, ExchangeDuration: 60, AttachedValue: 100, ReferenceID: "xmas",
	}
	first, err := f.exchanges.CreateExchange(ctx, req)
	require.NoError(t, err)
	second, err := f.exchanges.CreateExchange(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	balance, _ := f.ledger.AccountBalance(ctx, organizer)
	assert.Equal(t, int64(400), balance, "retry must not charge twice")
}
