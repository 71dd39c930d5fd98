package postgres

import (
	"context"
	"errors"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

const exchangeColumns = `id, organizer, gift_amount, registration_deadline, reveal_deadline, claim_deadline,
	state, participant_count, total_deposits, assignment_root, successful_gifts, created_at`

// ExchangeRepo implements ports.ExchangeRepository.
type ExchangeRepo struct {
	pool Pool
}

// NewExchangeRepo creates a new ExchangeRepo.
func NewExchangeRepo(pool Pool) *ExchangeRepo {
	return &ExchangeRepo{pool: pool}
}

func scanExchange(row pgx.Row) (*domain.Exchange, error) {
	var (
		ex        domain.Exchange
		organizer string
		root      string
		state     int16
	)
	err := row.Scan(
		&ex.ID, &organizer, &ex.GiftAmount, &ex.RegistrationDeadline, &ex.RevealDeadline, &ex.ClaimDeadline,
		&state, &ex.ParticipantCount, &ex.TotalDeposits, &root, &ex.SuccessfulGifts, &ex.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ex.Organizer = common.HexToAddress(organizer)
	ex.AssignmentRoot = common.HexToHash(root)
	ex.State = domain.ExchangeState(state)
	return &ex, nil
}

// Create inserts a new exchange and assigns its id from the sequence.
func (r *ExchangeRepo) Create(ctx context.Context, tx pgx.Tx, ex *domain.Exchange) error {
	query := `INSERT INTO exchanges (organizer, gift_amount, registration_deadline, reveal_deadline, claim_deadline,
		state, participant_count, total_deposits, assignment_root, successful_gifts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`

	err := tx.QueryRow(ctx, query,
		ex.Organizer.Hex(), ex.GiftAmount, ex.RegistrationDeadline, ex.RevealDeadline, ex.ClaimDeadline,
		int16(ex.State), ex.ParticipantCount, ex.TotalDeposits, ex.AssignmentRoot.Hex(), ex.SuccessfulGifts, ex.CreatedAt,
	).Scan(&ex.ID)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// GetByID fetches an exchange by id (without locking).
func (r *ExchangeRepo) GetByID(ctx context.Context, id int64) (*domain.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE id = $1`

	ex, err := scanExchange(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exchange by id: %w", err)
	}
	return ex, nil
}

// GetByIDForUpdate fetches an exchange with pessimistic locking.
// This MUST be called within a transaction.
func (r *ExchangeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE id = $1 FOR UPDATE`

	ex, err := scanExchange(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exchange for update: %w", err)
	}
	return ex, nil
}

// Update writes the mutable exchange fields.
func (r *ExchangeRepo) Update(ctx context.Context, tx pgx.Tx, ex *domain.Exchange) error {
	query := `UPDATE exchanges SET state = $1, participant_count = $2, total_deposits = $3,
		assignment_root = $4, successful_gifts = $5 WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		int16(ex.State), ex.ParticipantCount, ex.TotalDeposits, ex.AssignmentRoot.Hex(), ex.SuccessfulGifts, ex.ID,
	)
	if err != nil {
		return fmt.Errorf("update exchange: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update exchange %d: no rows affected", ex.ID)
	}
	return nil
}
