package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create persists an event within the operation's transaction.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, ev *domain.ExchangeEvent) error {
	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return fmt.Errorf("marshal event attributes: %w", err)
	}

	query := `INSERT INTO exchange_events (id, exchange_id, kind, actor, amount, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, query, ev.ID, ev.ExchangeID, string(ev.Kind), ev.Actor.Hex(), ev.Amount, attrs, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByExchange returns events in the order they were recorded.
func (r *EventRepo) ListByExchange(ctx context.Context, exchangeID int64) ([]domain.ExchangeEvent, error) {
	query := `SELECT id, exchange_id, kind, actor, amount, attributes, created_at
		FROM exchange_events WHERE exchange_id = $1 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []domain.ExchangeEvent{}
	for rows.Next() {
		var (
			ev    domain.ExchangeEvent
			kind  string
			actor string
			attrs []byte
		)
		if err := rows.Scan(&ev.ID, &ev.ExchangeID, &kind, &actor, &ev.Amount, &attrs, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.Actor = common.HexToAddress(actor)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &ev.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal event attributes: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
