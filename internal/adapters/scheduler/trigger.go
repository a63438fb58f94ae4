// Package scheduler runs retraining on a cron schedule. It is the caller that
// evaluates retrain status; the engine itself never trains on its own.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
	"github.com/okian/matchlearn/pkg/logger"
)

const defaultThreshold = 50

// Lifecycle is the slice of the matching service the trigger drives.
type Lifecycle interface {
	Domains(ctx context.Context) ([]string, error)
	RetrainStatus(ctx context.Context, domain string, threshold int) (types.RetrainStatus, error)
	Train(ctx context.Context, domain string) (model.ScoringModel, error)
	ActiveModel(ctx context.Context, domain string) (model.ScoringModel, error)
	Activate(ctx context.Context, domain string, version int64, expected *int64, force bool) (model.ScoringModel, error)
}

// Result outcomes.
const (
	OutcomeNotDue       = "not_due"
	OutcomeTrained      = "trained"
	OutcomeActivated    = "activated"
	OutcomeInsufficient = "insufficient_data"
	OutcomeDegenerate   = "degenerate"
	OutcomeFailed       = "failed"
)

// Result reports what one domain's check did.
type Result struct {
	Domain     string
	Outcome    string
	Unconsumed int
	Version    int64
	Err        error
}

// RetrainTrigger checks domains on a cron schedule and trains the ones with
// enough unconsumed feedback.
type RetrainTrigger struct {
	svc          Lifecycle
	spec         string
	schedule     cron.Schedule
	threshold    int
	domains      []string
	autoActivate bool
	minGain      float64
	loc          *time.Location
	log          logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRetrainTrigger parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func NewRetrainTrigger(svc Lifecycle, spec string, opts ...Option) (*RetrainTrigger, error) {
	spec = strings.TrimSpace(spec)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	t := &RetrainTrigger{
		svc:       svc,
		spec:      spec,
		schedule:  sched,
		threshold: defaultThreshold,
		loc:       time.UTC,
		log:       logger.Get().Named("retrain-trigger"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Next returns the first run time after now.
func (t *RetrainTrigger) Next(now time.Time) time.Time {
	return t.schedule.Next(now.In(t.loc))
}

// Start runs the trigger in the background until Stop or ctx ends.
func (t *RetrainTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	t.log.Info(ctx, "retrain trigger scheduled",
		logger.String("schedule", t.spec),
		logger.Int("threshold", t.threshold),
		logger.Bool("auto_activate", t.autoActivate),
	)
	go t.loop(ctx, t.done)
	return nil
}

// Stop halts the trigger and waits for an in-flight run to finish.
func (t *RetrainTrigger) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.running = false
	t.mu.Unlock()

	cancel()
	<-done
}

func (t *RetrainTrigger) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := time.Now()
		next := t.Next(now)
		t.log.Debug(ctx, "next retrain check", logger.String("at", next.Format(time.RFC3339)))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		t.RunOnce(ctx)
	}
}

// RunOnce checks every configured domain once and trains the due ones.
func (t *RetrainTrigger) RunOnce(ctx context.Context) []Result {
	domains := t.domains
	if len(domains) == 0 {
		var err error
		domains, err = t.svc.Domains(ctx)
		if err != nil {
			t.log.Error(ctx, "listing domains failed", logger.Error(err))
			return nil
		}
	}
	out := make([]Result, 0, len(domains))
	for _, d := range domains {
		if ctx.Err() != nil {
			break
		}
		r := t.check(ctx, d)
		out = append(out, r)
		if r.Err != nil && r.Outcome == OutcomeFailed {
			t.log.Error(ctx, "retrain check failed", logger.Domain(d), logger.Error(r.Err))
		}
	}
	return out
}

func (t *RetrainTrigger) check(ctx context.Context, domain string) Result {
	status, err := t.svc.RetrainStatus(ctx, domain, t.threshold)
	if err != nil {
		return Result{Domain: domain, Outcome: OutcomeFailed, Err: err}
	}
	res := Result{Domain: domain, Unconsumed: status.Unconsumed}
	if !status.Due {
		res.Outcome = OutcomeNotDue
		return res
	}

	m, err := t.svc.Train(ctx, domain)
	switch {
	case errors.Is(err, model.ErrInsufficientData):
		res.Outcome, res.Err = OutcomeInsufficient, err
		t.log.Info(ctx, "retrain skipped", logger.Domain(domain), logger.Error(err))
		return res
	case errors.Is(err, model.ErrDegenerateFit):
		res.Outcome, res.Err, res.Version = OutcomeDegenerate, err, m.Version
		t.log.Warn(ctx, "retrain produced a degenerate model", logger.Domain(domain), logger.Version(m.Version))
		return res
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	res.Outcome, res.Version = OutcomeTrained, m.Version

	if !t.autoActivate {
		return res
	}
	return t.maybeActivate(ctx, res, m)
}

func (t *RetrainTrigger) maybeActivate(ctx context.Context, res Result, m model.ScoringModel) Result {
	expected := model.BaselineVersion
	active, err := t.svc.ActiveModel(ctx, res.Domain)
	switch {
	case errors.Is(err, model.ErrNoActiveModel):
	case err != nil:
		res.Err = err
		return res
	default:
		expected = active.Version
		if m.AccuracyEstimate < active.AccuracyEstimate+t.minGain {
			t.log.Info(ctx, "new model not activated",
				logger.Domain(res.Domain),
				logger.Version(m.Version),
				logger.Float64("accuracy", m.AccuracyEstimate),
				logger.Float64("active_accuracy", active.AccuracyEstimate),
			)
			return res
		}
	}
	if _, err := t.svc.Activate(ctx, res.Domain, m.Version, &expected, false); err != nil {
		res.Err = err
		t.log.Warn(ctx, "auto-activation failed", logger.Domain(res.Domain), logger.Error(err))
		return res
	}
	res.Outcome = OutcomeActivated
	return res
}
