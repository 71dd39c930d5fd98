package memory

import (
	"context"
	"slices"

	"gift-exchange-escrow/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository. Entries are written outside
// transactions and survive rollbacks.
type AuditRepo struct {
	s *Store
}

// Audit returns the audit repository backed by s.
func (s *Store) Audit() *AuditRepo {
	return &AuditRepo{s: s}
}

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// Entries returns a copy of all audit entries, oldest first.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	return slices.Clone(r.s.audit)
}
