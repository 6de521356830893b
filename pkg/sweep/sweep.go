// Package sweep periodically clears saved addresses from customer accounts.
//
// Whether a run does anything is decided afresh from the sweep toggle on every
// invocation; there is no persisted enabled/disabled state.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/celerix-dev/celerix-redact/pkg/accounts"
	"github.com/celerix-dev/celerix-redact/pkg/schema"
)

var tracer = otel.Tracer("github.com/celerix-dev/celerix-redact/pkg/sweep")

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redact_sweep_runs_total",
		Help: "Sweep invocations by outcome",
	}, []string{"outcome"})

	sweepAccounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redact_sweep_accounts_total",
		Help: "Accounts processed by the sweep, by result",
	}, []string{"result"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "redact_sweep_duration_seconds",
		Help:    "Duration of enabled sweep runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)

const (
	stageResolve = "resolve"
	stageErase   = "erase"
)

// Toggles is the read side of the policy store the sweep needs.
type Toggles interface {
	SweepEnabled() (bool, error)
}

// Eraser is the host's customer-data eraser.
type Eraser interface {
	Erase(ctx context.Context, email string) error
}

// Sweeper clears saved addresses for every account that still has one.
type Sweeper struct {
	toggles  Toggles
	accounts accounts.Lookup
	eraser   Eraser
	lease    *Lease
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLease guards runs with l instead of a one-hour default lease.
func WithLease(l *Lease) Option {
	return func(s *Sweeper) { s.lease = l }
}

// WithRateLimit caps eraser calls per second. Zero or less means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(s *Sweeper) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// New wires a sweeper to its collaborators.
func New(t Toggles, l accounts.Lookup, e Eraser, opts ...Option) *Sweeper {
	s := &Sweeper{
		toggles:  t,
		accounts: l,
		eraser:   e,
		lease:    NewLease(time.Hour),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run performs one sweep. A disabled sweep returns a report with Enabled false
// and no error. Per-account failures are collected in the report; only a failure
// of the policy store or the account lookup as a whole is returned as an error.
func (s *Sweeper) Run(ctx context.Context) (schema.SweepReport, error) {
	report := schema.SweepReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}

	ctx, span := tracer.Start(ctx, "sweep.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", report.RunID))

	if err := s.lease.Acquire(report.RunID); err != nil {
		sweepRuns.WithLabelValues("skipped").Inc()
		return report, err
	}
	defer s.lease.Release(report.RunID)

	log := s.logger.With("run_id", report.RunID)

	enabled, err := s.toggles.SweepEnabled()
	if err != nil {
		return s.fail(span, report, fmt.Errorf("sweep: read toggle: %w", err))
	}
	if !enabled {
		report.FinishedAt = s.now()
		sweepRuns.WithLabelValues("disabled").Inc()
		log.Debug("saved address sweep disabled")
		return report, nil
	}
	report.Enabled = true

	ids, err := s.accounts.AccountsWithSavedAddress(ctx)
	if err != nil {
		return s.fail(span, report, fmt.Errorf("sweep: list accounts: %w", err))
	}
	report.Accounts = len(ids)
	log.Info("saved address sweep started", "accounts", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return s.fail(span, report, err)
		}
		if failure, ok := s.clear(ctx, id); !ok {
			report.Failures = append(report.Failures, failure)
			sweepAccounts.WithLabelValues("failed").Inc()
			log.Warn("saved address sweep failed for account", "account_id", id, "stage", failure.Stage, "error", failure.Error)
			continue
		}
		report.Erased++
		sweepAccounts.WithLabelValues("erased").Inc()
	}

	report.FinishedAt = s.now()
	sweepDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	sweepRuns.WithLabelValues("completed").Inc()
	span.SetAttributes(
		attribute.Int("accounts", report.Accounts),
		attribute.Int("erased", report.Erased),
		attribute.Int("failures", len(report.Failures)),
	)
	log.Info("saved address sweep finished", "erased", report.Erased, "failures", len(report.Failures))
	return report, nil
}

// clear resolves and erases one account. The address is never logged.
func (s *Sweeper) clear(ctx context.Context, id int64) (schema.AccountFailure, bool) {
	email, err := s.accounts.ContactAddress(ctx, id)
	if err == nil && email == "" {
		err = errors.New("account has no contact address")
	}
	if err != nil {
		return schema.AccountFailure{AccountID: id, Stage: stageResolve, Error: err.Error()}, false
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return schema.AccountFailure{AccountID: id, Stage: stageErase, Error: err.Error()}, false
		}
	}

	if err := s.eraser.Erase(ctx, email); err != nil {
		return schema.AccountFailure{AccountID: id, Stage: stageErase, Error: err.Error()}, false
	}
	return schema.AccountFailure{}, true
}

func (s *Sweeper) fail(span trace.Span, report schema.SweepReport, err error) (schema.SweepReport, error) {
	report.FinishedAt = s.now()
	sweepRuns.WithLabelValues("failed").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return report, err
}

// Count returns how many accounts currently hold a saved address.
func (s *Sweeper) Count(ctx context.Context) (int, error) {
	return accounts.CountWithSavedAddress(ctx, s.accounts)
}
