package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"
)

const storeMemory = "memory"

// activeSnapshot is an immutable view of every domain's active model.
type activeSnapshot struct {
	byDomain map[string]model.ScoringModel
}

// registryDomain is the mutable per-domain registry state, guarded by
// MemoryStore.regMu.
type registryDomain struct {
	models []model.ScoringModel // index = version-1
	log    []model.ActivationRecord
}

// MemoryStore implements Store in process memory.
//
// Registry writers serialize on regMu and publish a fresh activeSnapshot;
// Active reads the snapshot without locking, so a reader sees either the old
// or the new active model and never an intermediate state.
type MemoryStore struct {
	opts storeOptions

	regMu    sync.Mutex
	domains  map[string]*registryDomain
	snapshot atomic.Pointer[activeSnapshot]

	fbMu     sync.RWMutex
	feedback []model.FeedbackRecord
	fbIndex  map[string]int

	evMu   sync.RWMutex
	events map[string]model.ScoringEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &MemoryStore{
		opts:    o,
		domains: make(map[string]*registryDomain),
		fbIndex: make(map[string]int),
		events:  make(map[string]model.ScoringEvent),
	}
	s.snapshot.Store(&activeSnapshot{byDomain: map[string]model.ScoringModel{}})
	return s
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func observe(store, op string, start time.Time) {
	metrics.RecordRepositoryLatency(store, op, float64(time.Since(start).Microseconds())/1000)
}

// Feedback

// Record implements FeedbackStore.
func (s *MemoryStore) Record(ctx context.Context, in model.FeedbackInput) (model.FeedbackRecord, error) {
	defer observe(storeMemory, "record", time.Now())
	if err := ctx.Err(); err != nil {
		return model.FeedbackRecord{}, err
	}
	in, err := normalizeInput(in)
	if err != nil {
		return model.FeedbackRecord{}, err
	}
	rec := newRecord(in, s.opts.now())

	s.fbMu.Lock()
	s.fbIndex[rec.ID] = len(s.feedback)
	s.feedback = append(s.feedback, rec)
	s.fbMu.Unlock()

	return copyRecord(rec), nil
}

// Query implements FeedbackStore.
func (s *MemoryStore) Query(ctx context.Context, q model.FeedbackQuery) ([]model.FeedbackRecord, error) {
	defer observe(storeMemory, "query", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.fbMu.RLock()
	out := make([]model.FeedbackRecord, 0, len(s.feedback))
	for i := range s.feedback {
		if q.Matches(s.feedback[i]) {
			out = append(out, copyRecord(s.feedback[i]))
		}
	}
	s.fbMu.RUnlock()
	sortRecords(out)
	return out, nil
}

// MarkConsumed implements FeedbackStore.
func (s *MemoryStore) MarkConsumed(ctx context.Context, ids []string, version int64) error {
	defer observe(storeMemory, "mark_consumed", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.fbMu.Lock()
	defer s.fbMu.Unlock()
	for _, id := range ids {
		if i, ok := s.fbIndex[id]; ok && s.feedback[i].ConsumedByVersion == 0 {
			s.feedback[i].ConsumedByVersion = version
		}
	}
	return nil
}

// CountUnconsumed implements FeedbackStore.
func (s *MemoryStore) CountUnconsumed(ctx context.Context, domain string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.fbMu.RLock()
	defer s.fbMu.RUnlock()
	n := 0
	for i := range s.feedback {
		if s.feedback[i].Domain == domain && s.feedback[i].ConsumedByVersion == 0 {
			n++
		}
	}
	return n, nil
}

// Scoring events

// AppendEvents implements EventLog.
func (s *MemoryStore) AppendEvents(ctx context.Context, events []model.ScoringEvent) error {
	defer observe(storeMemory, "append_events", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.evMu.Lock()
	defer s.evMu.Unlock()
	for _, e := range events {
		s.events[e.ID] = e
	}
	return nil
}

// Event implements EventLog.
func (s *MemoryStore) Event(ctx context.Context, id string) (model.ScoringEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoringEvent{}, err
	}
	s.evMu.RLock()
	defer s.evMu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.ScoringEvent{}, ErrEventNotFound
	}
	return e, nil
}

// Registry

// Publish implements Registry.
func (s *MemoryStore) Publish(ctx context.Context, m model.ScoringModel) (model.ScoringModel, error) {
	defer observe(storeMemory, "publish", time.Now())
	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	if err := validateModel(m); err != nil {
		return model.ScoringModel{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.opts.now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.IsActive = false

	s.regMu.Lock()
	defer s.regMu.Unlock()
	d := s.domain(m.Domain)
	m.Version = int64(len(d.models)) + 1
	d.models = append(d.models, m)
	return m, nil
}

// Get implements Registry.
func (s *MemoryStore) Get(ctx context.Context, domain string, version int64) (model.ScoringModel, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	m, ok := s.lookup(domain, version)
	if !ok {
		return model.ScoringModel{}, model.ErrModelNotFound
	}
	return s.withActiveFlag(m), nil
}

// List implements Registry.
func (s *MemoryStore) List(ctx context.Context, domain string) ([]model.ScoringModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	d, ok := s.domains[domain]
	if !ok {
		return []model.ScoringModel{}, nil
	}
	out := make([]model.ScoringModel, len(d.models))
	for i, m := range d.models {
		out[i] = s.withActiveFlag(m)
	}
	return out, nil
}

// Active implements Registry. It never takes a lock.
func (s *MemoryStore) Active(ctx context.Context, domain string) (model.ScoringModel, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	m, ok := s.snapshot.Load().byDomain[domain]
	if !ok {
		return model.ScoringModel{}, model.ErrNoActiveModel
	}
	return m, nil
}

// Activate implements Registry.
func (s *MemoryStore) Activate(ctx context.Context, domain string, version int64, opts ...ActivateOption) (model.ScoringModel, error) {
	defer observe(storeMemory, "activate", time.Now())
	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	o := collectActivate(opts)

	s.regMu.Lock()
	defer s.regMu.Unlock()

	target, ok := s.lookup(domain, version)
	if !ok {
		return model.ScoringModel{}, model.ErrModelNotFound
	}
	if target.Degenerate && !o.allowDegenerate {
		return model.ScoringModel{}, model.ErrDegenerateModel
	}
	current := s.currentVersion(domain)
	if o.expected != nil && *o.expected != current {
		return model.ScoringModel{}, &model.ConflictError{Domain: domain, Expected: *o.expected, Actual: current}
	}
	if current == version {
		return s.withActiveFlag(target), nil
	}
	s.switchActive(domain, target, current, model.ActionActivate)
	s.opts.log.Info(ctx, "model activated",
		logger.Domain(domain),
		logger.Int64("from", current),
		logger.Int64("to", version),
	)
	target.IsActive = true
	return target, nil
}

// Rollback implements Registry.
func (s *MemoryStore) Rollback(ctx context.Context, domain string) (model.ScoringModel, error) {
	defer observe(storeMemory, "rollback", time.Now())
	if err := ctx.Err(); err != nil {
		return model.ScoringModel{}, err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()

	d, ok := s.domains[domain]
	if !ok {
		return model.ScoringModel{}, model.ErrNoRollbackTarget
	}
	stack := rollbackStack(d.log)
	if len(stack) == 0 {
		return model.ScoringModel{}, model.ErrNoRollbackTarget
	}
	prev := stack[len(stack)-1]
	target, ok := s.lookup(domain, prev)
	if !ok {
		return model.ScoringModel{}, model.ErrModelNotFound
	}
	current := s.currentVersion(domain)
	s.switchActive(domain, target, current, model.ActionRollback)
	s.opts.log.Info(ctx, "model rolled back",
		logger.Domain(domain),
		logger.Int64("from", current),
		logger.Int64("to", prev),
	)
	target.IsActive = true
	return target, nil
}

// History implements Registry.
func (s *MemoryStore) History(ctx context.Context, domain string) ([]model.ActivationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	d, ok := s.domains[domain]
	if !ok {
		return []model.ActivationRecord{}, nil
	}
	out := make([]model.ActivationRecord, len(d.log))
	copy(out, d.log)
	return out, nil
}

// Domains implements Registry.
func (s *MemoryStore) Domains(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	out := make([]string, 0, len(s.domains))
	for name := range s.domains {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// switchActive appends the audit entry and publishes a new snapshot.
// Callers hold regMu.
func (s *MemoryStore) switchActive(domain string, target model.ScoringModel, from int64, action model.ActivationAction) {
	d := s.domain(domain)
	d.log = append(d.log, model.ActivationRecord{
		ID:          uuid.NewString(),
		Domain:      domain,
		FromVersion: from,
		ToVersion:   target.Version,
		Action:      action,
		At:          s.opts.now().UTC(),
	})

	old := s.snapshot.Load().byDomain
	next := make(map[string]model.ScoringModel, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	target.IsActive = true
	next[domain] = target
	s.snapshot.Store(&activeSnapshot{byDomain: next})
}

// domain returns the state for name, creating it. Callers hold regMu.
func (s *MemoryStore) domain(name string) *registryDomain {
	d, ok := s.domains[name]
	if !ok {
		d = &registryDomain{}
		s.domains[name] = d
	}
	return d
}

// lookup finds a version. Callers hold regMu.
func (s *MemoryStore) lookup(domain string, version int64) (model.ScoringModel, bool) {
	d, ok := s.domains[domain]
	if !ok || version < 1 || version > int64(len(d.models)) {
		return model.ScoringModel{}, false
	}
	return d.models[version-1], true
}

func (s *MemoryStore) currentVersion(domain string) int64 {
	if m, ok := s.snapshot.Load().byDomain[domain]; ok {
		return m.Version
	}
	return model.BaselineVersion
}

func (s *MemoryStore) withActiveFlag(m model.ScoringModel) model.ScoringModel {
	m.IsActive = s.currentVersion(m.Domain) == m.Version
	return m
}

// newRecord builds a stored record from input.
func newRecord(in model.FeedbackInput, now time.Time) model.FeedbackRecord {
	return model.FeedbackRecord{
		ID:                     uuid.NewString(),
		Domain:                 in.Domain,
		CandidatePairID:        in.CandidatePairID,
		RequesterID:            in.RequesterID,
		CandidateID:            in.CandidateID,
		ScoringEventID:         in.ScoringEventID,
		FeatureVector:          in.FeatureVector.Clamped(),
		ScoreAtDecision:        in.ScoreAtDecision,
		ModelVersionAtDecision: in.ModelVersionAtDecision,
		Decision:               in.Decision,
		Reason:                 copyReason(in.Reason),
		CreatedAt:              now.UTC(),
	}
}

func copyRecord(r model.FeedbackRecord) model.FeedbackRecord {
	r.Reason = copyReason(r.Reason)
	return r
}

func copyReason(r *string) *string {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}

func sortRecords(out []model.FeedbackRecord) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
