package domain

import (
	"context"
	"io"
	"time"
)

// OpportunityStore persists detected opportunities and enforces exactly-once
// alerting per idempotency key per cooldown window.
type OpportunityStore interface {
	// TryRegister performs a single atomic check-then-insert. If a record
	// with the same idempotency key already exists, IsNew is false and the
	// existing record is returned; otherwise the opportunity is inserted
	// with status NEW.
	TryRegister(ctx context.Context, opp Opportunity) (RegisterResult, error)
	// MarkNotified advances a NEW opportunity to NOTIFIED.
	MarkNotified(ctx context.Context, id string) error
	// ExpireOlderThan marks opportunities detected before cutoff as EXPIRED
	// and returns how many were affected.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// ListRecent returns the most recent opportunities, newest first.
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// DeliveryStore persists per-recipient delivery outcomes.
type DeliveryStore interface {
	Insert(ctx context.Context, res DeliveryResult) error
	ListByOpportunity(ctx context.Context, opportunityID string) ([]DeliveryResult, error)
}

// LockManager provides distributed locking, used to make check-then-insert
// atomic across concurrent processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// QuotaTracker mirrors the provider's remaining monthly request budget so a
// cycle can check it before spending a request.
type QuotaTracker interface {
	// Remaining returns the last recorded remaining budget, or -1 when no
	// value has been recorded yet.
	Remaining(ctx context.Context) (int, error)
	// Record stores the remaining budget reported by the provider.
	Record(ctx context.Context, remaining int) error
}

// BlobWriter uploads audit artefacts to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
