package memory

import (
	"context"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// StatsRepo implements ports.StatsRepository.
type StatsRepo struct {
	s *Store
}

// Stats returns the statistics repository backed by s.
func (s *Store) Stats() *StatsRepo {
	return &StatsRepo{s: s}
}

func (r *StatsRepo) Get(ctx context.Context) (*domain.ProtocolStats, error) {
	var out domain.ProtocolStats
	r.s.read(func(st *state) { out = st.stats })
	return &out, nil
}

func (r *StatsRepo) Increment(ctx context.Context, tx pgx.Tx, delta domain.ProtocolStats) error {
	st, err := txState(r.s, tx)
	if err != nil {
		return err
	}
	return st.stats.Add(delta)
}
