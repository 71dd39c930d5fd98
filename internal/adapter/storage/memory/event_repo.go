package memory

import (
	"context"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	s *Store
}

// Events returns the event repository backed by s.
func (s *Store) Events() *EventRepo {
	return &EventRepo{s: s}
}

func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, ev *domain.ExchangeEvent) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	st.events[ev.ExchangeID] = append(st.events[ev.ExchangeID], *ev)
	return nil
}

// ListByExchange returns events in the order they were recorded.
func (r *EventRepo) ListByExchange(ctx context.Context, exchangeID int64) ([]domain.ExchangeEvent, error) {
	out := []domain.ExchangeEvent{}
	r.s.read(func(st *state) {
		out = append(out, st.events[exchangeID]...)
	})
	return out, nil
}
