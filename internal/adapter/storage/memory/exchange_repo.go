package memory

import (
	"context"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ExchangeRepo implements ports.ExchangeRepository.
type ExchangeRepo struct {
	s *Store
}

// Exchanges returns the exchange repository backed by s.
func (s *Store) Exchanges() *ExchangeRepo {
	return &ExchangeRepo{s: s}
}

// Create assigns the next sequential id.
func (r *ExchangeRepo) Create(ctx context.Context, tx pgx.Tx, ex *domain.Exchange) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	st.lastExchangeID++
	ex.ID = st.lastExchangeID
	stored := *ex
	stored.Participants = nil
	st.exchanges[ex.ID] = stored
	return nil
}

// GetByID returns nil, nil when absent.
func (r *ExchangeRepo) GetByID(ctx context.Context, id int64) (*domain.Exchange, error) {
	var out *domain.Exchange
	r.s.read(func(st *state) {
		if ex, ok := st.exchanges[id]; ok {
			out = &ex
		}
	})
	return out, nil
}

// GetByIDForUpdate reads from the transaction's working copy. Transactions
// are already serialized, so no row lock is taken.
func (r *ExchangeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Exchange, error) {
	st, err := txState(r.s, tx)
	if err != nil {
		return nil, err
	}
	ex, ok := st.exchanges[id]
	if !ok {
		return nil, nil
	}
	return &ex, nil
}

func (r *ExchangeRepo) Update(ctx context.Context, tx pgx.Tx, ex *domain.Exchange) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	if _, ok := st.exchanges[ex.ID]; !ok {
		return fmt.Errorf("update exchange %d: not found", ex.ID)
	}
	stored := *ex
	stored.Participants = nil
	st.exchanges[ex.ID] = stored
	return nil
}
