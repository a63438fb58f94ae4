package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/pkg/logger"
)

const (
	maxPublishAttempts = 5
	consumeBatchSize   = 500
)

// errPointerMoved marks a conditional pointer update that matched no row.
var errPointerMoved = errors.New("active pointer moved")

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLStore implements Store on a relational database through sqlx.
//
// The active pointer is one row per domain in active_models carrying a
// revision. Activation and rollback update it conditioned on the revision they
// read, inside the same transaction that appends the audit entry, so
// concurrent writers cannot both win.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	opts   storeOptions
}

// NewSQLStore connects to dsn and creates the schema.
func NewSQLStore(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driver, err)
	}
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	s := &SQLStore{db: db, driver: driver, opts: o}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	o.log.Info(ctx, "sql store ready", logger.String("driver", driver))
	return s, nil
}

// NewSQLStoreFromDB wraps an existing connection and creates the schema.
func NewSQLStoreFromDB(ctx context.Context, db *sqlx.DB, opts ...Option) (*SQLStore, error) {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &SQLStore{db: db, driver: db.DriverName(), opts: o}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// Rows

type modelRow struct {
	Domain              string  `db:"domain"`
	Version             int64   `db:"version"`
	Weights             string  `db:"weights"`
	TrainingSampleCount int64   `db:"training_sample_count"`
	AccuracyEstimate    float64 `db:"accuracy_estimate"`
	Metrics             string  `db:"metrics"`
	ParentVersion       int64   `db:"parent_version"`
	RunID               string  `db:"run_id"`
	Degenerate          bool    `db:"degenerate"`
	CreatedAt           int64   `db:"created_at"`
}

const modelColumns = `domain, version, weights, training_sample_count, accuracy_estimate, metrics, parent_version, run_id, degenerate, created_at`

func (r modelRow) toModel() (model.ScoringModel, error) {
	m := model.ScoringModel{
		Domain:              r.Domain,
		Version:             r.Version,
		TrainingSampleCount: int(r.TrainingSampleCount),
		AccuracyEstimate:    r.AccuracyEstimate,
		ParentVersion:       r.ParentVersion,
		RunID:               r.RunID,
		Degenerate:          r.Degenerate,
		CreatedAt:           fromNanos(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.Weights), &m.Weights); err != nil {
		return model.ScoringModel{}, fmt.Errorf("decoding weights of %s v%d: %w", r.Domain, r.Version, err)
	}
	if err := json.Unmarshal([]byte(r.Metrics), &m.Metrics); err != nil {
		return model.ScoringModel{}, fmt.Errorf("decoding metrics of %s v%d: %w", r.Domain, r.Version, err)
	}
	return m, nil
}

type feedbackRow struct {
	ID                     string         `db:"id"`
	Domain                 string         `db:"domain"`
	CandidatePairID        string         `db:"candidate_pair_id"`
	RequesterID            string         `db:"requester_id"`
	CandidateID            string         `db:"candidate_id"`
	ScoringEventID         string         `db:"scoring_event_id"`
	FeatureVector          string         `db:"feature_vector"`
	ScoreAtDecision        float64        `db:"score_at_decision"`
	ModelVersionAtDecision int64          `db:"model_version_at_decision"`
	Decision               string         `db:"decision"`
	Reason                 sql.NullString `db:"reason"`
	CreatedAt              int64          `db:"created_at"`
	ConsumedByVersion      int64          `db:"consumed_by_version"`
}

const feedbackColumns = `id, domain, candidate_pair_id, requester_id, candidate_id, scoring_event_id, feature_vector, score_at_decision, model_version_at_decision, decision, reason, created_at, consumed_by_version`

func (r feedbackRow) toRecord() (model.FeedbackRecord, error) {
	rec := model.FeedbackRecord{
		ID:                     r.ID,
		Domain:                 r.Domain,
		CandidatePairID:        r.CandidatePairID,
		RequesterID:            r.RequesterID,
		CandidateID:            r.CandidateID,
		ScoringEventID:         r.ScoringEventID,
		ScoreAtDecision:        r.ScoreAtDecision,
		ModelVersionAtDecision: r.ModelVersionAtDecision,
		Decision:               model.Decision(r.Decision),
		CreatedAt:              fromNanos(r.CreatedAt),
		ConsumedByVersion:      r.ConsumedByVersion,
	}
	if r.Reason.Valid {
		reason := r.Reason.String
		rec.Reason = &reason
	}
	if err := json.Unmarshal([]byte(r.FeatureVector), &rec.FeatureVector); err != nil {
		return model.FeedbackRecord{}, fmt.Errorf("decoding features of feedback %s: %w", r.ID, err)
	}
	return rec, nil
}

type eventRow struct {
	ID            string  `db:"id"`
	Domain        string  `db:"domain"`
	RequesterID   string  `db:"requester_id"`
	CandidateID   string  `db:"candidate_id"`
	FeatureVector string  `db:"feature_vector"`
	Score         float64 `db:"score"`
	ModelVersion  int64   `db:"model_version"`
	RankPosition  int64   `db:"rank_position"`
	CreatedAt     int64   `db:"created_at"`
}

type activationRow struct {
	ID          string `db:"id"`
	Domain      string `db:"domain"`
	Seq         int64  `db:"seq"`
	FromVersion int64  `db:"from_version"`
	ToVersion   int64  `db:"to_version"`
	Action      string `db:"action"`
	At          int64  `db:"at"`
}

type pointerRow struct {
	Version  int64 `db:"version"`
	Revision int64 `db:"revision"`
}

func toNanos(t time.Time) int64   { return t.UnixNano() }
func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (s *SQLStore) observe(op string, start time.Time) { observe(s.driver, op, start) }

// Feedback

// Record implements FeedbackStore.
func (s *SQLStore) Record(ctx context.Context, in model.FeedbackInput) (model.FeedbackRecord, error) {
	defer s.observe("record", time.Now())
	in, err := normalizeInput(in)
	if err != nil {
		return model.FeedbackRecord{}, err
	}
	rec := newRecord(in, s.opts.now())
	features, err := json.Marshal(rec.FeatureVector)
	if err != nil {
		return model.FeedbackRecord{}, err
	}
	var reason sql.NullString
	if rec.Reason != nil {
		reason = sql.NullString{String: *rec.Reason, Valid: true}
	}
	q := s.db.Rebind(`INSERT INTO feedback (` + feedbackColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.Domain, rec.CandidatePairID, rec.RequesterID, rec.CandidateID, rec.ScoringEventID,
		string(features), rec.ScoreAtDecision, rec.ModelVersionAtDecision, string(rec.Decision), reason,
		toNanos(rec.CreatedAt),
	)
	if err != nil {
		return model.FeedbackRecord{}, fmt.Errorf("recording feedback: %w", err)
	}
	return rec, nil
}

// Query implements FeedbackStore.
func (s *SQLStore) Query(ctx context.Context, fq model.FeedbackQuery) ([]model.FeedbackRecord, error) {
	defer s.observe("query", time.Now())
	var where []string
	var args []any
	if fq.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, fq.Domain)
	}
	if !fq.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toNanos(fq.Since))
	}
	if fq.ModelVersion != nil {
		where = append(where, "model_version_at_decision = ?")
		args = append(args, *fq.ModelVersion)
	}
	if fq.UnconsumedOnly {
		where = append(where, "consumed_by_version = 0")
	}
	q := `SELECT ` + feedbackColumns + ` FROM feedback`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`

	var rows []feedbackRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	out := make([]model.FeedbackRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkConsumed implements FeedbackStore.
func (s *SQLStore) MarkConsumed(ctx context.Context, ids []string, version int64) error {
	defer s.observe("mark_consumed", time.Now())
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ids); start += consumeBatchSize {
		end := start + consumeBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		q, args, err := sqlx.In(`UPDATE feedback SET consumed_by_version = ? WHERE consumed_by_version = 0 AND id IN (?)`, version, ids[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return fmt.Errorf("marking feedback consumed: %w", err)
		}
	}
	return tx.Commit()
}

// CountUnconsumed implements FeedbackStore.
func (s *SQLStore) CountUnconsumed(ctx context.Context, domain string) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM feedback WHERE domain = ? AND consumed_by_version = 0`)
	if err := s.db.GetContext(ctx, &n, q, domain); err != nil {
		return 0, fmt.Errorf("counting feedback: %w", err)
	}
	return n, nil
}

// Scoring events

// AppendEvents implements EventLog.
func (s *SQLStore) AppendEvents(ctx context.Context, events []model.ScoringEvent) error {
	defer s.observe("append_events", time.Now())
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := tx.Rebind(`INSERT INTO scoring_events (id, domain, requester_id, candidate_id, feature_vector, score, model_version, rank_position, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range events {
		features, err := json.Marshal(e.FeatureVector)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, e.ID, e.Domain, e.RequesterID, e.CandidateID, string(features),
			e.Score, e.ModelVersion, int64(e.RankPosition), toNanos(e.CreatedAt)); err != nil {
			return fmt.Errorf("writing scoring event: %w", err)
		}
	}
	return tx.Commit()
}

// Event implements EventLog.
func (s *SQLStore) Event(ctx context.Context, id string) (model.ScoringEvent, error) {
	var r eventRow
	q := s.db.Rebind(`SELECT id, domain, requester_id, candidate_id, feature_vector, score, model_version, rank_position, created_at FROM scoring_events WHERE id = ?`)
	if err := s.db.GetContext(ctx, &r, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScoringEvent{}, ErrEventNotFound
		}
		return model.ScoringEvent{}, fmt.Errorf("reading scoring event: %w", err)
	}
	e := model.ScoringEvent{
		ID:           r.ID,
		Domain:       r.Domain,
		RequesterID:  r.RequesterID,
		CandidateID:  r.CandidateID,
		Score:        r.Score,
		ModelVersion: r.ModelVersion,
		RankPosition: int(r.RankPosition),
		CreatedAt:    fromNanos(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.FeatureVector), &e.FeatureVector); err != nil {
		return model.ScoringEvent{}, fmt.Errorf("decoding scoring event %s: %w", r.ID, err)
	}
	return e, nil
}

// Registry

// Publish implements Registry. The version is MAX(version)+1 within a
// transaction; a concurrent publisher that loses the primary key race retries.
func (s *SQLStore) Publish(ctx context.Context, m model.ScoringModel) (model.ScoringModel, error) {
	defer s.observe("publish", time.Now())
	if err := validateModel(m); err != nil {
		return model.ScoringModel{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.opts.now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.IsActive = false

	weights, err := json.Marshal(m.Weights)
	if err != nil {
		return model.ScoringModel{}, err
	}
	metricsJSON, err := json.Marshal(m.Metrics)
	if err != nil {
		return model.ScoringModel{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.ScoringModel{}, err
		}
		version, err := s.insertModel(ctx, m, string(weights), string(metricsJSON))
		if err == nil {
			m.Version = version
			return m, nil
		}
		lastErr = err
		s.opts.log.Debug(ctx, "publish retry", logger.Domain(m.Domain), logger.Error(err))
	}
	return model.ScoringModel{}, fmt.Errorf("%w: %v", ErrPublishContention, lastErr)
}

func (s *SQLStore) insertModel(ctx context.Context, m model.ScoringModel, weights, metricsJSON string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxVersion int64
	if err := tx.GetContext(ctx, &maxVersion, tx.Rebind(`SELECT COALESCE(MAX(version), 0) FROM scoring_models WHERE domain = ?`), m.Domain); err != nil {
		return 0, err
	}
	version := maxVersion + 1
	q := tx.Rebind(`INSERT INTO scoring_models (` + modelColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, m.Domain, version, weights, int64(m.TrainingSampleCount), m.AccuracyEstimate,
		metricsJSON, m.ParentVersion, m.RunID, m.Degenerate, toNanos(m.CreatedAt)); err != nil {
		return 0, err
	}
	return version, tx.Commit()
}

// Get implements Registry.
func (s *SQLStore) Get(ctx context.Context, domain string, version int64) (model.ScoringModel, error) {
	m, err := s.getModel(ctx, s.db, domain, version)
	if err != nil {
		return model.ScoringModel{}, err
	}
	current, err := s.currentPointer(ctx, s.db, domain)
	if err != nil {
		return model.ScoringModel{}, err
	}
	m.IsActive = current.Version == m.Version
	return m, nil
}

// List implements Registry.
func (s *SQLStore) List(ctx context.Context, domain string) ([]model.ScoringModel, error) {
	var rows []modelRow
	q := s.db.Rebind(`SELECT ` + modelColumns + ` FROM scoring_models WHERE domain = ? ORDER BY version`)
	if err := s.db.SelectContext(ctx, &rows, q, domain); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	current, err := s.currentPointer(ctx, s.db, domain)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoringModel, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		m.IsActive = m.Version == current.Version
		out = append(out, m)
	}
	return out, nil
}

// Active implements Registry. The pointer and the model are read in one
// statement.
func (s *SQLStore) Active(ctx context.Context, domain string) (model.ScoringModel, error) {
	defer s.observe("active", time.Now())
	var r modelRow
	q := s.db.Rebind(`SELECT m.domain, m.version, m.weights, m.training_sample_count, m.accuracy_estimate, m.metrics,
		m.parent_version, m.run_id, m.degenerate, m.created_at
		FROM active_models a JOIN scoring_models m ON m.domain = a.domain AND m.version = a.version
		WHERE a.domain = ?`)
	if err := s.db.GetContext(ctx, &r, q, domain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScoringModel{}, model.ErrNoActiveModel
		}
		return model.ScoringModel{}, fmt.Errorf("reading active model: %w", err)
	}
	m, err := r.toModel()
	if err != nil {
		return model.ScoringModel{}, err
	}
	m.IsActive = true
	return m, nil
}

// Activate implements Registry.
func (s *SQLStore) Activate(ctx context.Context, domain string, version int64, opts ...ActivateOption) (model.ScoringModel, error) {
	defer s.observe("activate", time.Now())
	o := collectActivate(opts)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.ScoringModel{}, err
	}
	defer func() { _ = tx.Rollback() }()

	target, err := s.getModel(ctx, tx, domain, version)
	if err != nil {
		return model.ScoringModel{}, err
	}
	if target.Degenerate && !o.allowDegenerate {
		return model.ScoringModel{}, model.ErrDegenerateModel
	}
	current, err := s.currentPointer(ctx, tx, domain)
	if err != nil {
		return model.ScoringModel{}, err
	}
	if o.expected != nil && *o.expected != current.Version {
		return model.ScoringModel{}, &model.ConflictError{Domain: domain, Expected: *o.expected, Actual: current.Version}
	}
	target.IsActive = true
	if current.Version == version {
		return target, nil
	}
	if err := s.movePointer(ctx, tx, domain, current, version, model.ActionActivate); err != nil {
		_ = tx.Rollback()
		return model.ScoringModel{}, s.conflictOr(ctx, domain, current.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return model.ScoringModel{}, s.conflictOr(ctx, domain, current.Version, err)
	}
	s.opts.log.Info(ctx, "model activated",
		logger.Domain(domain),
		logger.Int64("from", current.Version),
		logger.Int64("to", version),
	)
	return target, nil
}

// Rollback implements Registry.
func (s *SQLStore) Rollback(ctx context.Context, domain string) (model.ScoringModel, error) {
	defer s.observe("rollback", time.Now())
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.ScoringModel{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.currentPointer(ctx, tx, domain)
	if err != nil {
		return model.ScoringModel{}, err
	}
	log, err := s.history(ctx, tx, domain)
	if err != nil {
		return model.ScoringModel{}, err
	}
	stack := rollbackStack(log)
	if current.Version == model.BaselineVersion || len(stack) == 0 {
		return model.ScoringModel{}, model.ErrNoRollbackTarget
	}
	prev := stack[len(stack)-1]
	target, err := s.getModel(ctx, tx, domain, prev)
	if err != nil {
		return model.ScoringModel{}, err
	}
	if err := s.movePointer(ctx, tx, domain, current, prev, model.ActionRollback); err != nil {
		_ = tx.Rollback()
		return model.ScoringModel{}, s.conflictOr(ctx, domain, current.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return model.ScoringModel{}, s.conflictOr(ctx, domain, current.Version, err)
	}
	s.opts.log.Info(ctx, "model rolled back",
		logger.Domain(domain),
		logger.Int64("from", current.Version),
		logger.Int64("to", prev),
	)
	target.IsActive = true
	return target, nil
}

// History implements Registry.
func (s *SQLStore) History(ctx context.Context, domain string) ([]model.ActivationRecord, error) {
	return s.history(ctx, s.db, domain)
}

// Domains implements Registry.
func (s *SQLStore) Domains(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.db.SelectContext(ctx, &out, `SELECT DISTINCT domain FROM scoring_models ORDER BY domain`); err != nil {
		return nil, fmt.Errorf("listing domains: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// movePointer swaps the active pointer conditioned on the revision read in
// current and appends the audit entry.
func (s *SQLStore) movePointer(ctx context.Context, tx *sqlx.Tx, domain string, current pointerRow, to int64, action model.ActivationAction) error {
	revision := current.Revision + 1
	if current.Revision == 0 {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO active_models (domain, version, revision) VALUES (?, ?, ?)`), domain, to, revision); err != nil {
			return err
		}
	} else {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE active_models SET version = ?, revision = ? WHERE domain = ? AND revision = ?`),
			to, revision, domain, current.Revision)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errPointerMoved
		}
	}
	q := tx.Rebind(`INSERT INTO activation_log (id, domain, seq, from_version, to_version, action, at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, q, uuid.NewString(), domain, revision, current.Version, to, string(action), toNanos(s.opts.now()))
	return err
}

// conflictOr reports a ConflictError when the pointer moved since it was read
// as expected, and wraps err otherwise. It must run outside the transaction.
func (s *SQLStore) conflictOr(ctx context.Context, domain string, expected int64, err error) error {
	now, readErr := s.currentPointer(ctx, s.db, domain)
	if readErr == nil && now.Version != expected {
		return &model.ConflictError{Domain: domain, Expected: expected, Actual: now.Version}
	}
	if errors.Is(err, errPointerMoved) {
		return &model.ConflictError{Domain: domain, Expected: expected, Actual: expected}
	}
	return fmt.Errorf("moving active pointer: %w", err)
}

func (s *SQLStore) getModel(ctx context.Context, q sqlx.QueryerContext, domain string, version int64) (model.ScoringModel, error) {
	var r modelRow
	query := s.db.Rebind(`SELECT ` + modelColumns + ` FROM scoring_models WHERE domain = ? AND version = ?`)
	if err := sqlx.GetContext(ctx, q, &r, query, domain, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScoringModel{}, model.ErrModelNotFound
		}
		return model.ScoringModel{}, fmt.Errorf("reading model: %w", err)
	}
	return r.toModel()
}

// currentPointer returns the active pointer; a zero row means none active.
func (s *SQLStore) currentPointer(ctx context.Context, q sqlx.QueryerContext, domain string) (pointerRow, error) {
	var p pointerRow
	query := s.db.Rebind(`SELECT version, revision FROM active_models WHERE domain = ?`)
	if err := sqlx.GetContext(ctx, q, &p, query, domain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pointerRow{}, nil
		}
		return pointerRow{}, fmt.Errorf("reading active pointer: %w", err)
	}
	return p, nil
}

func (s *SQLStore) history(ctx context.Context, q sqlx.QueryerContext, domain string) ([]model.ActivationRecord, error) {
	var rows []activationRow
	query := s.db.Rebind(`SELECT id, domain, seq, from_version, to_version, action, at FROM activation_log WHERE domain = ? ORDER BY seq`)
	if err := sqlx.SelectContext(ctx, q, &rows, query, domain); err != nil {
		return nil, fmt.Errorf("reading activation log: %w", err)
	}
	out := make([]model.ActivationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ActivationRecord{
			ID:          r.ID,
			Domain:      r.Domain,
			FromVersion: r.FromVersion,
			ToVersion:   r.ToVersion,
			Action:      model.ActivationAction(r.Action),
			At:          fromNanos(r.At),
		})
	}
	return out, nil
}
