package memory

import (
	"context"
	"fmt"
	"time"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// ParticipantRepo implements ports.ParticipantRepository.
type ParticipantRepo struct {
	s *Store
}

// Participants returns the participant repository backed by s.
func (s *Store) Participants() *ParticipantRepo {
	return &ParticipantRepo{s: s}
}

func (r *ParticipantRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Participant) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	key := participantKey{p.ExchangeID, p.Address}
	if _, exists := st.participants[key]; exists {
		return fmt.Errorf("insert participant: %s already in exchange %d", p.Address.Hex(), p.ExchangeID)
	}
	st.participants[key] = *p
	st.joinOrder[p.ExchangeID] = append(st.joinOrder[p.ExchangeID], p.Address)
	return nil
}

// Get returns nil, nil when absent.
func (r *ParticipantRepo) Get(ctx context.Context, exchangeID int64, addr common.Address) (*domain.Participant, error) {
	var out *domain.Participant
	r.s.read(func(st *state) {
		if p, ok := st.participants[participantKey{exchangeID, addr}]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r *ParticipantRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, exchangeID int64, addr common.Address) (*domain.Participant, error) {
	st, err := txState(r.s, tx)
	if err != nil {
		return nil, err
	}
	p, ok := st.participants[participantKey{exchangeID, addr}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Update writes the mutable flags only.
func (r *ParticipantRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Participant) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	key := participantKey{p.ExchangeID, p.Address}
	cur, ok := st.participants[key]
	if !ok {
		return fmt.Errorf("update participant: %s not in exchange %d", p.Address.Hex(), p.ExchangeID)
	}
	cur.GiftSubmitted = p.GiftSubmitted
	cur.GiftHash = p.GiftHash
	cur.Claimed = p.Claimed
	st.participants[key] = cur
	return nil
}

// ListByExchange returns participants in join order.
func (r *ParticipantRepo) ListByExchange(ctx context.Context, exchangeID int64) ([]domain.Participant, error) {
	var out []domain.Participant
	r.s.read(func(st *state) {
		for _, addr := range st.joinOrder[exchangeID] {
			out = append(out, st.participants[participantKey{exchangeID, addr}])
		}
	})
	return out, nil
}

func (r *ParticipantRepo) AppendHistory(ctx context.Context, tx pgx.Tx, addr common.Address, exchangeID int64) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	st.history = append(st.history, domain.HistoryEntry{
		Seq:        int64(len(st.history) + 1),
		Address:    addr,
		ExchangeID: exchangeID,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

// ListExchangesByIdentity returns exchange ids in the order addr joined them.
func (r *ParticipantRepo) ListExchangesByIdentity(ctx context.Context, addr common.Address) ([]int64, error) {
	ids := []int64{}
	r.s.read(func(st *state) {
		for _, h := range st.history {
			if h.Address == addr {
				ids = append(ids, h.ExchangeID)
			}
		}
	})
	return ids, nil
}
