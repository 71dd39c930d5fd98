package postgres

import (
	"context"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// StatsRepo implements ports.StatsRepository over the single protocol_stats row.
type StatsRepo struct {
	pool Pool
}

// NewStatsRepo creates a new StatsRepo.
func NewStatsRepo(pool Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// Get returns the current counters.
func (r *StatsRepo) Get(ctx context.Context) (*domain.ProtocolStats, error) {
	query := `SELECT total_exchanges, total_participants, total_gifts, total_value_transferred
		FROM protocol_stats WHERE id = 1`

	s := &domain.ProtocolStats{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.TotalExchanges, &s.TotalParticipants, &s.TotalGifts, &s.TotalValueTransferred,
	)
	if err != nil {
		return nil, fmt.Errorf("get protocol stats: %w", err)
	}
	return s, nil
}

// Increment adds delta to the counters within a transaction.
func (r *StatsRepo) Increment(ctx context.Context, tx pgx.Tx, delta domain.ProtocolStats) error {
	query := `UPDATE protocol_stats SET
		total_exchanges = total_exchanges + $1,
		total_participants = total_participants + $2,
		total_gifts = total_gifts + $3,
		total_value_transferred = total_value_transferred + $4
		WHERE id = 1`

	_, err := tx.Exec(ctx, query,
		delta.TotalExchanges, delta.TotalParticipants, delta.TotalGifts, delta.TotalValueTransferred,
	)
	if err != nil {
		return fmt.Errorf("increment protocol stats: %w", err)
	}
	return nil
}
