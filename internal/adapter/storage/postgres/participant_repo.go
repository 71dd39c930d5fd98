package postgres

import (
	"context"
	"errors"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

const participantColumns = `exchange_id, address, join_index, deposit, registered, gift_submitted, gift_hash, claimed, registered_at`

// ParticipantRepo implements ports.ParticipantRepository.
type ParticipantRepo struct {
	pool Pool
}

// NewParticipantRepo creates a new ParticipantRepo.
func NewParticipantRepo(pool Pool) *ParticipantRepo {
	return &ParticipantRepo{pool: pool}
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p        domain.Participant
		addr     string
		giftHash string
	)
	err := row.Scan(
		&p.ExchangeID, &addr, &p.JoinIndex, &p.Deposit, &p.Registered,
		&p.GiftSubmitted, &giftHash, &p.Claimed, &p.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	p.Address = common.HexToAddress(addr)
	p.GiftHash = common.HexToHash(giftHash)
	return &p, nil
}

// Create inserts a membership record within a transaction.
func (r *ParticipantRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Participant) error {
	query := `INSERT INTO participants (` + participantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		p.ExchangeID, p.Address.Hex(), p.JoinIndex, p.Deposit, p.Registered,
		p.GiftSubmitted, p.GiftHash.Hex(), p.Claimed, p.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// Get fetches a membership record (non-locking read). Returns nil, nil when absent.
func (r *ParticipantRepo) Get(ctx context.Context, exchangeID int64, addr common.Address) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE exchange_id = $1 AND address = $2`

	p, err := scanParticipant(r.pool.QueryRow(ctx, query, exchangeID, addr.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// GetForUpdate fetches a membership record with pessimistic locking.
// This MUST be called within a transaction.
func (r *ParticipantRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, exchangeID int64, addr common.Address) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE exchange_id = $1 AND address = $2 FOR UPDATE`

	p, err := scanParticipant(tx.QueryRow(ctx, query, exchangeID, addr.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant for update: %w", err)
	}
	return p, nil
}

// Update writes the participant flags.
func (r *ParticipantRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Participant) error {
	query := `UPDATE participants SET gift_submitted = $1, gift_hash = $2, claimed = $3
		WHERE exchange_id = $4 AND address = $5`

	_, err := tx.Exec(ctx, query, p.GiftSubmitted, p.GiftHash.Hex(), p.Claimed, p.ExchangeID, p.Address.Hex())
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}

// ListByExchange returns participants in join order.
func (r *ParticipantRepo) ListByExchange(ctx context.Context, exchangeID int64) ([]domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE exchange_id = $1 ORDER BY join_index`

	rows, err := r.pool.Query(ctx, query, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}

// AppendHistory records that addr joined exchangeID.
func (r *ParticipantRepo) AppendHistory(ctx context.Context, tx pgx.Tx, addr common.Address, exchangeID int64) error {
	query := `INSERT INTO identity_history (address, exchange_id) VALUES ($1, $2)`

	if _, err := tx.Exec(ctx, query, addr.Hex(), exchangeID); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListExchangesByIdentity returns exchange ids in the order addr joined them.
func (r *ParticipantRepo) ListExchangesByIdentity(ctx context.Context, addr common.Address) ([]int64, error) {
	query := `SELECT exchange_id FROM identity_history WHERE address = $1 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return ids, nil
}
