// Package repository persists feedback, scoring events and versioned models.
//
// Two implementations share the contracts below: an in-memory store for tests
// and single-node deployments, and a SQL store (sqlite or postgres) built on
// sqlx. Both keep the activation pointer consistent: readers observe exactly
// one active version per domain once any activation succeeded.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/matchlearn/internal/domain/model"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// FeedbackStore is the append-only decision log.
type FeedbackStore interface {
	// Record appends a decision and returns the stored record.
	Record(ctx context.Context, in model.FeedbackInput) (model.FeedbackRecord, error)
	// Query returns matching records ordered by CreatedAt, then ID.
	Query(ctx context.Context, q model.FeedbackQuery) ([]model.FeedbackRecord, error)
	// MarkConsumed tags records as used by a training run. Records already
	// consumed keep their first consumer.
	MarkConsumed(ctx context.Context, ids []string, version int64) error
	// CountUnconsumed returns the number of unconsumed records in domain.
	CountUnconsumed(ctx context.Context, domain string) (int, error)
}

// Registry holds versioned models and the per-domain active pointer.
type Registry interface {
	// Publish stores m as the next version of its domain, inactive.
	Publish(ctx context.Context, m model.ScoringModel) (model.ScoringModel, error)
	// Get returns one version or model.ErrModelNotFound.
	Get(ctx context.Context, domain string, version int64) (model.ScoringModel, error)
	// List returns every version of domain in ascending order.
	List(ctx context.Context, domain string) ([]model.ScoringModel, error)
	// Active returns the active model or model.ErrNoActiveModel.
	Active(ctx context.Context, domain string) (model.ScoringModel, error)
	// Activate makes version the single active model of domain.
	Activate(ctx context.Context, domain string, version int64, opts ...ActivateOption) (model.ScoringModel, error)
	// Rollback reactivates the version active before the current one.
	Rollback(ctx context.Context, domain string) (model.ScoringModel, error)
	// History returns the activation audit trail, oldest first.
	History(ctx context.Context, domain string) ([]model.ActivationRecord, error)
	// Domains lists every domain with at least one published model.
	Domains(ctx context.Context) ([]string, error)
}

// EventLog stores scoring events for feedback correlation.
type EventLog interface {
	AppendEvents(ctx context.Context, events []model.ScoringEvent) error
	Event(ctx context.Context, id string) (model.ScoringEvent, error)
}

// Store bundles every persistence contract behind one handle.
type Store interface {
	FeedbackStore
	Registry
	EventLog
	Close() error
}

// Open returns a Store for driver. The memory driver ignores dsn.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(opts...), nil
	case DriverSQLite, DriverPostgres:
		return NewSQLStore(ctx, driver, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// activateOptions collects ActivateOption values.
type activateOptions struct {
	expected        *int64
	allowDegenerate bool
}

// ActivateOption tunes a single activation.
type ActivateOption func(*activateOptions)

// IfActive makes activation conditional on version being the currently active
// one; model.BaselineVersion means "nothing active". A mismatch fails with
// *model.ConflictError.
func IfActive(version int64) ActivateOption {
	return func(o *activateOptions) { o.expected = &version }
}

// AllowDegenerate permits activating a model flagged degenerate.
func AllowDegenerate() ActivateOption {
	return func(o *activateOptions) { o.allowDegenerate = true }
}

func collectActivate(opts []ActivateOption) activateOptions {
	var o activateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// normalizeInput checks a feedback input and canonicalizes its decision.
func normalizeInput(in model.FeedbackInput) (model.FeedbackInput, error) {
	if in.Domain == "" {
		return in, fmt.Errorf("%w: domain is required", ErrInvalidFeedback)
	}
	if in.CandidatePairID == "" {
		return in, fmt.Errorf("%w: candidate pair id is required", ErrInvalidFeedback)
	}
	d, err := model.ParseDecision(string(in.Decision))
	if err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidFeedback, err)
	}
	in.Decision = d
	return in, nil
}

// validateModel checks a model before publish.
func validateModel(m model.ScoringModel) error {
	if m.Domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidModel)
	}
	if err := m.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return nil
}

// rollbackStack replays an audit trail into the stack of versions a rollback
// can return to. Activations push the version they replaced; rollbacks pop.
func rollbackStack(log []model.ActivationRecord) []int64 {
	var stack []int64
	for _, rec := range log {
		switch rec.Action {
		case model.ActionActivate:
			if rec.FromVersion != model.BaselineVersion {
				stack = append(stack, rec.FromVersion)
			}
		case model.ActionRollback:
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		}
	}
	return stack
}
