package memory

import (
	"context"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	s *Store
}

// Idempotency returns the idempotency repository backed by s.
func (s *Store) Idempotency() *IdempotencyRepo {
	return &IdempotencyRepo{s: s}
}

func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	if _, exists := st.idempotency[log.Key]; exists {
		return fmt.Errorf("insert idempotency log: duplicate key %q", log.Key)
	}
	st.idempotency[log.Key] = *log
	return nil
}

// Get returns nil, nil when absent.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	var out *domain.IdempotencyLog
	r.s.read(func(st *state) {
		if l, ok := st.idempotency[key]; ok {
			out = &l
		}
	})
	return out, nil
}
