// Package sched orchestrates the detection pipeline: ingest, normalize,
// detect, then allocate, store, and notify per opportunity. One cycle runs at
// a time; a daily wall-clock trigger and an on-demand manual trigger share
// the same single-flight guard.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arbalert/arbalert/internal/domain"
	"github.com/arbalert/arbalert/internal/ingest"
	"github.com/arbalert/arbalert/internal/market"
	"github.com/arbalert/arbalert/internal/metrics"
)

// Ingestor fetches one cycle's quotes. Satisfied by *ingest.Ingestor.
type Ingestor interface {
	Ingest(ctx context.Context, sports []string) (ingest.Result, error)
}

// Normalizer groups quotes into markets. Satisfied by *market.Normalizer.
type Normalizer interface {
	Normalize(events map[string]domain.Event, quotes []domain.OddsQuote) ([]domain.Market, market.Stats)
}

// Detector evaluates one market. Satisfied by *arb.Detector.
type Detector interface {
	Detect(m domain.Market, now time.Time) (domain.Opportunity, bool)
}

// AlertSender fans an opportunity out to recipients. Satisfied by
// *notify.Notifier.
type AlertSender interface {
	Notify(ctx context.Context, opp domain.Opportunity, recipients []domain.Recipient) ([]domain.DeliveryResult, []domain.StakePlan)
}

// Archiver uploads per-cycle audit artefacts. Satisfied by
// *s3blob.AuditArchiver.
type Archiver interface {
	ArchiveQuotes(ctx context.Context, cycleID string, at time.Time, quotes []domain.OddsQuote) error
	ArchiveStakePlans(ctx context.Context, cycleID string, at time.Time, plans []domain.StakePlan) error
}

// Config holds the scheduler's run parameters.
type Config struct {
	Sports     []string
	Recipients []domain.Recipient
	// DailyAtMinutes is the daily trigger as minutes since midnight in
	// Location.
	DailyAtMinutes int
	Location       *time.Location
	// Retention is how long opportunities stay before expiry housekeeping.
	Retention time.Duration
	// LockTTL bounds how long a per-opportunity lock can outlive a crashed
	// holder.
	LockTTL time.Duration
}

// CycleSummary is the authoritative report of what one cycle did. The manual
// trigger returns it synchronously.
type CycleSummary struct {
	CycleID       string
	StartedAt     time.Time
	Duration      time.Duration
	SportsFetched int
	FailedSports  []string
	QuotesDropped int
	MarketsFound  int
	// MarketsDropped counts grouped markets discarded for having fewer than
	// two outcomes.
	MarketsDropped int
	// QuotesOrphaned counts quotes referencing an event outside this cycle's
	// ingestion result.
	QuotesOrphaned int

	OpportunitiesFound int
	OpportunitiesNew   int
	// Duplicates counts opportunities whose idempotency key was already
	// registered within the cooldown window.
	Duplicates int
	// LockSkipped counts opportunities skipped because another process held
	// their lock.
	LockSkipped int

	NotificationsSent    int
	NotificationsFailed  int
	NotificationsSkipped int

	Expired int64
}

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Ingestor      Ingestor
	Normalizer    Normalizer
	Detector      Detector
	Notifier      AlertSender
	Opportunities domain.OpportunityStore
	Deliveries    domain.DeliveryStore
	Locks         domain.LockManager
	// Archiver may be nil when audit archival is disabled.
	Archiver Archiver
	// Metrics may be nil in tests.
	Metrics *metrics.Metrics
	Clock   Clock
	Logger  *slog.Logger
}

// Scheduler owns the run-state flag and the trigger loop.
type Scheduler struct {
	deps    Deps
	cfg     Config
	running atomic.Bool
	logger  *slog.Logger
}

// New creates a Scheduler.
func New(deps Deps, cfg Config) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Scheduler{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.With(slog.String("component", "scheduler")),
	}
}

// Run blocks, firing one cycle at the configured wall-clock time each day,
// until ctx is cancelled. A cycle that overruns into the next trigger is not
// queued; the overlapping trigger is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wait := s.untilNextTrigger()
		s.logger.Info("waiting for next trigger",
			slog.Duration("wait", wait),
			slog.String("timezone", s.cfg.Location.String()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.deps.Clock.After(wait):
		}

		if _, err := s.TriggerNow(ctx); err != nil {
			if errors.Is(err, domain.ErrCycleRunning) {
				s.logger.Warn("previous cycle still running, skipping trigger")
				continue
			}
			s.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
	}
}

// TriggerNow runs one cycle synchronously. While a cycle is in flight,
// concurrent triggers are rejected with domain.ErrCycleRunning rather than
// queued.
func (s *Scheduler) TriggerNow(ctx context.Context) (CycleSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return CycleSummary{}, domain.ErrCycleRunning
	}
	defer s.running.Store(false)

	return s.runCycle(ctx)
}

// untilNextTrigger computes the wait until the next daily trigger in the
// configured timezone.
func (s *Scheduler) untilNextTrigger() time.Duration {
	now := s.deps.Clock.Now().In(s.cfg.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, s.cfg.DailyAtMinutes, 0, 0, s.cfg.Location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (s *Scheduler) runCycle(ctx context.Context) (CycleSummary, error) {
	start := s.deps.Clock.Now()
	summary := CycleSummary{
		CycleID:   uuid.New().String(),
		StartedAt: start,
	}
	logger := s.logger.With(slog.String("cycle_id", summary.CycleID))
	logger.Info("cycle started")

	defer func() {
		summary.Duration = s.deps.Clock.Now().Sub(start)
		if m := s.deps.Metrics; m != nil {
			m.CycleDuration.Observe(summary.Duration.Seconds())
		}
	}()

	res, err := s.deps.Ingestor.Ingest(ctx, s.cfg.Sports)
	if err != nil {
		s.countCycle("fatal")
		return summary, fmt.Errorf("cycle %s: %w", summary.CycleID, err)
	}
	summary.SportsFetched = res.Stats.SportsFetched
	summary.FailedSports = res.Stats.FailedSports
	summary.QuotesDropped = res.Stats.QuotesDropped

	if m := s.deps.Metrics; m != nil {
		m.QuotesDropped.Add(float64(res.Stats.QuotesDropped))
		m.SportsFailed.Add(float64(len(res.Stats.FailedSports)))
		if res.Stats.Remaining >= 0 {
			m.QuotaRemaining.Set(float64(res.Stats.Remaining))
		}
	}

	s.archiveQuotes(ctx, logger, summary.CycleID, start, res.Quotes)

	markets, mstats := s.deps.Normalizer.Normalize(res.Events, res.Quotes)
	summary.MarketsFound = len(markets)
	summary.MarketsDropped = mstats.MarketsDropped
	summary.QuotesOrphaned = mstats.QuotesOrphaned

	var plans []domain.StakePlan
	for _, mkt := range markets {
		opp, ok := s.deps.Detector.Detect(mkt, start)
		if !ok {
			continue
		}
		summary.OpportunitiesFound++
		if m := s.deps.Metrics; m != nil {
			m.OpportunitiesDetected.Inc()
		}

		oppPlans, err := s.processOpportunity(ctx, logger, opp, &summary)
		if err != nil {
			// Persistence failures abort the remainder of the cycle; the
			// next trigger starts fresh.
			s.countCycle("fatal")
			return summary, fmt.Errorf("cycle %s: %w", summary.CycleID, err)
		}
		plans = append(plans, oppPlans...)
	}

	s.expireOld(ctx, logger, start, &summary)
	s.archivePlans(ctx, logger, summary.CycleID, start, plans)

	s.countCycle("ok")
	logger.Info("cycle complete",
		slog.Int("sports_fetched", summary.SportsFetched),
		slog.Int("sports_failed", len(summary.FailedSports)),
		slog.Int("markets", summary.MarketsFound),
		slog.Int("markets_dropped", summary.MarketsDropped),
		slog.Int("quotes_orphaned", summary.QuotesOrphaned),
		slog.Int("opportunities", summary.OpportunitiesFound),
		slog.Int("new", summary.OpportunitiesNew),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("sent", summary.NotificationsSent),
		slog.Int("failed", summary.NotificationsFailed),
		slog.Int64("expired", summary.Expired),
	)
	return summary, nil
}

// processOpportunity registers one opportunity and, when it is new, notifies
// every recipient and records the delivery outcomes. The returned error is
// non-nil only for persistence failures.
func (s *Scheduler) processOpportunity(ctx context.Context, logger *slog.Logger, opp domain.Opportunity, summary *CycleSummary) ([]domain.StakePlan, error) {
	unlock, err := s.deps.Locks.Acquire(ctx, "opp:"+opp.IdempotencyKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			summary.LockSkipped++
			logger.Info("opportunity locked elsewhere, skipping",
				slog.String("idempotency_key", opp.IdempotencyKey),
			)
			return nil, nil
		}
		// The store's unique constraint still dedupes; a lock outage only
		// loses the early-exit optimisation.
		logger.Warn("lock manager unavailable, relying on store constraint",
			slog.String("error", err.Error()),
		)
	} else {
		defer unlock()
	}

	reg, err := s.deps.Opportunities.TryRegister(ctx, opp)
	if err != nil {
		return nil, fmt.Errorf("register opportunity: %w", err)
	}
	if !reg.IsNew {
		summary.Duplicates++
		logger.Info("opportunity already alerted within cooldown",
			slog.String("idempotency_key", opp.IdempotencyKey),
		)
		return nil, nil
	}
	summary.OpportunitiesNew++
	if m := s.deps.Metrics; m != nil {
		m.OpportunitiesNew.Inc()
	}

	results, plans := s.deps.Notifier.Notify(ctx, opp, s.cfg.Recipients)

	sent := 0
	for _, res := range results {
		switch res.Status {
		case domain.DeliverySent:
			sent++
			summary.NotificationsSent++
		case domain.DeliveryFailed:
			summary.NotificationsFailed++
		case domain.DeliverySkipped:
			summary.NotificationsSkipped++
		}
		if m := s.deps.Metrics; m != nil {
			m.NotificationsTotal.WithLabelValues(string(res.Status)).Inc()
		}
		// The alert already went out; a failed outcome record is an audit
		// gap, not a reason to abort.
		if err := s.deps.Deliveries.Insert(ctx, res); err != nil {
			logger.Error("could not record delivery outcome",
				slog.String("delivery_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if sent > 0 {
		if err := s.deps.Opportunities.MarkNotified(ctx, reg.Record.ID); err != nil {
			logger.Error("could not mark opportunity notified",
				slog.String("opportunity_id", reg.Record.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return plans, nil
}

// expireOld runs retention housekeeping. Failures are logged, not fatal.
func (s *Scheduler) expireOld(ctx context.Context, logger *slog.Logger, now time.Time, summary *CycleSummary) {
	cutoff := now.Add(-s.cfg.Retention)
	n, err := s.deps.Opportunities.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error("expiry housekeeping failed", slog.String("error", err.Error()))
		return
	}
	summary.Expired = n
}

func (s *Scheduler) archiveQuotes(ctx context.Context, logger *slog.Logger, cycleID string, at time.Time, quotes []domain.OddsQuote) {
	if s.deps.Archiver == nil {
		return
	}
	if err := s.deps.Archiver.ArchiveQuotes(ctx, cycleID, at, quotes); err != nil {
		logger.Error("quote archive failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) archivePlans(ctx context.Context, logger *slog.Logger, cycleID string, at time.Time, plans []domain.StakePlan) {
	if s.deps.Archiver == nil {
		return
	}
	if err := s.deps.Archiver.ArchiveStakePlans(ctx, cycleID, at, plans); err != nil {
		logger.Error("stake plan archive failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) countCycle(outcome string) {
	if m := s.deps.Metrics; m != nil {
		m.CyclesTotal.WithLabelValues(outcome).Inc()
	}
}
