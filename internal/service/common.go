package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gift-exchange-escrow/internal/core/domain"
	"gift-exchange-escrow/internal/core/ports"
	"gift-exchange-escrow/pkg/apperror"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
	lockNotAvailable = "55P03"
	// numericOutOfRange is raised when a BIGINT column would overflow.
	numericOutOfRange = "22003"
)

// storageError wraps a repository failure. Row lock waits that exceed the
// configured timeout become SYS_002 so clients know the call is retryable.
// Amount columns that would overflow become VLT_004.
func storageError(op string, err error) *apperror.AppError {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, domain.ErrAmountOverflow) {
		return apperror.ErrAmountOverflow(wrapped)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case lockNotAvailable:
			return apperror.ErrLockTimeout(wrapped)
		case numericOutOfRange:
			return apperror.ErrAmountOverflow(wrapped)
		}
	}
	return apperror.InternalError(wrapped)
}

// passThrough keeps AppErrors from collaborating services intact.
func passThrough(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return storageError(op, err)
}

// clock is embedded by services that read the current time.
type clock struct {
	now func() time.Time
}

func systemClock() clock {
	return clock{now: time.Now}
}

// SetNowFunc replaces the time source. Tests use it to cross deadlines.
func (c *clock) SetNowFunc(fn func() time.Time) {
	c.now = fn
}

func (c *clock) unix() int64 {
	return c.now().Unix()
}

// publishEvents fans committed events out. Failures only cost subscribers a
// notification; the persisted rows stay authoritative.
func publishEvents(ctx context.Context, pub ports.EventPublisher, log zerolog.Logger, events []*domain.ExchangeEvent) {
	if pub == nil {
		return
	}
	for _, ev := range events {
		if err := pub.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).
				Int64("exchange_id", ev.ExchangeID).
				Str("kind", string(ev.Kind)).
				Msg("failed to publish exchange event")
		}
	}
}
