// Package memory is a process-local storage backend for development and
// tests. Transactions are serialized and work on a private copy of the data
// that replaces the committed copy on Commit.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"gift-exchange-escrow/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// ErrNotInTransaction is returned when a write is attempted with a tx that
// was not issued by this store, or after it finished.
var ErrNotInTransaction = errors.New("memory: not in an active transaction")

type participantKey struct {
	exchangeID int64
	addr       common.Address
}

type state struct {
	lastExchangeID int64
	exchanges      map[int64]domain.Exchange
	participants   map[participantKey]domain.Participant
	joinOrder      map[int64][]common.Address
	history        []domain.HistoryEntry
	stats          domain.ProtocolStats
	accounts       map[common.Address]domain.Account
	vault          int64
	transfers      []domain.Transfer
	events         map[int64][]domain.ExchangeEvent
	idempotency    map[string]domain.IdempotencyLog
}

func newState() *state {
	return &state{
		exchanges:    map[int64]domain.Exchange{},
		participants: map[participantKey]domain.Participant{},
		joinOrder:    map[int64][]common.Address{},
		accounts:     map[common.Address]domain.Account{},
		events:       map[int64][]domain.ExchangeEvent{},
		idempotency:  map[string]domain.IdempotencyLog{},
	}
}

func (s *state) clone() *state {
	c := &state{
		lastExchangeID: s.lastExchangeID,
		exchanges:      maps.Clone(s.exchanges),
		participants:   maps.Clone(s.participants),
		joinOrder:      make(map[int64][]common.Address, len(s.joinOrder)),
		history:        slices.Clone(s.history),
		stats:          s.stats,
		accounts:       maps.Clone(s.accounts),
		vault:          s.vault,
		transfers:      slices.Clone(s.transfers),
		events:         make(map[int64][]domain.ExchangeEvent, len(s.events)),
		idempotency:    maps.Clone(s.idempotency),
	}
	for id, order := range s.joinOrder {
		c.joinOrder[id] = slices.Clone(order)
	}
	for id, evs := range s.events {
		c.events[id] = slices.Clone(evs)
	}
	return c
}

// Store holds all data. Use the repository accessors to obtain port
// implementations that share it.
type Store struct {
	sem chan struct{} // one open transaction at a time

	mu        sync.RWMutex
	committed *state

	auditMu sync.Mutex
	audit   []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sem:       make(chan struct{}, 1),
		committed: newState(),
	}
}

// Begin implements ports.DBTransactor. It blocks until any open transaction
// finishes or ctx is done.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	return &memTx{store: s, work: work}, nil
}

// read runs fn against the committed data.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

// memTx satisfies pgx.Tx for the service layer. Only Commit and Rollback are
// meaningful; the repositories reach the working copy through txState.
type memTx struct {
	pgx.Tx
	store *Store
	work  *state
	done  bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	t.store.committed = t.work
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards the working copy. It is a no-op after Commit.
func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	t.work = nil
	<-t.store.sem
}

func txState(s *Store, tx pgx.Tx) (*state, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.done || mt.store != s {
		return nil, ErrNotInTransaction
	}
	return mt.work, nil
}
