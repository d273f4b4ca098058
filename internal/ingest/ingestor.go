// Package ingest fetches raw price quotes from the odds provider, one
// request per sport per cycle, with bounded parallelism and a remaining-budget
// check against the provider's finite monthly quota.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arbalert/arbalert/internal/domain"
	"github.com/arbalert/arbalert/internal/provider/oddsapi"
	"github.com/arbalert/arbalert/internal/retry"
)

// OddsSource provides per-sport odds. Satisfied by *oddsapi.Client.
type OddsSource interface {
	GetOdds(ctx context.Context, sportKey string, marketTypes []string) (oddsapi.OddsResponse, error)
}

// Config holds ingestion parameters.
type Config struct {
	MarketTypes []string
	// MaxParallel bounds concurrent per-sport requests to respect the
	// provider's rate limit.
	MaxParallel int
	// MinRemaining is the request budget floor checked before fetching.
	MinRemaining int
	Retry        retry.Policy
}

// Stats counts what happened during one ingestion pass. Every dropped quote
// and failed sport is counted here and surfaced in the cycle summary; nothing
// fails silently.
type Stats struct {
	SportsFetched int
	SportsEmpty   int
	FailedSports  []string
	QuotesDropped int
	// Remaining is the lowest request budget the provider reported during
	// this pass, or oddsapi.QuotaUnknown.
	Remaining int
}

// Result is the outcome of one ingestion pass: valid quotes plus the events
// they reference.
type Result struct {
	Events map[string]domain.Event // keyed by event id
	Quotes []domain.OddsQuote
	Stats  Stats
}

// Ingestor fetches quotes for a set of sports. Per-sport failures are
// isolated; only authentication and quota exhaustion abort the whole pass.
type Ingestor struct {
	source OddsSource
	quota  domain.QuotaTracker
	cfg    Config
	logger *slog.Logger
}

// New creates an Ingestor. quota may be nil, in which case the budget check
// is skipped and remaining counts are not mirrored.
func New(source OddsSource, quota domain.QuotaTracker, cfg Config, logger *slog.Logger) *Ingestor {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return &Ingestor{
		source: source,
		quota:  quota,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ingestor")),
	}
}

// Ingest fetches odds for every sport with bounded parallelism. The returned
// error is non-nil only for failures fatal to the cycle (auth, quota
// exhaustion); transient failures that outlive their retries fail only that
// sport and are reported in Stats.FailedSports.
func (i *Ingestor) Ingest(ctx context.Context, sports []string) (Result, error) {
	if err := i.checkBudget(ctx); err != nil {
		return Result{}, err
	}

	res := Result{
		Events: make(map[string]domain.Event),
		Stats:  Stats{Remaining: oddsapi.QuotaUnknown},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.MaxParallel)

	for _, sport := range sports {
		g.Go(func() error {
			resp, err := i.fetchSport(gctx, sport)
			if err != nil {
				if domain.IsFatalProviderError(err) {
					// Cancels the group; the whole cycle aborts.
					return err
				}
				i.logger.ErrorContext(gctx, "sport fetch failed",
					slog.String("sport", sport),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				res.Stats.FailedSports = append(res.Stats.FailedSports, sport)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			i.collect(&res, sport, resp)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}

	if i.quota != nil && res.Stats.Remaining != oddsapi.QuotaUnknown {
		if err := i.quota.Record(ctx, res.Stats.Remaining); err != nil {
			i.logger.Warn("could not record remaining quota", slog.String("error", err.Error()))
		}
	}

	i.logger.Info("ingestion complete",
		slog.Int("sports_fetched", res.Stats.SportsFetched),
		slog.Int("sports_failed", len(res.Stats.FailedSports)),
		slog.Int("quotes", len(res.Quotes)),
		slog.Int("quotes_dropped", res.Stats.QuotesDropped),
		slog.Int("quota_remaining", res.Stats.Remaining),
	)
	return res, nil
}

// checkBudget refuses to spend requests when the mirrored provider budget has
// fallen below the configured floor.
func (i *Ingestor) checkBudget(ctx context.Context) error {
	if i.quota == nil {
		return nil
	}
	remaining, err := i.quota.Remaining(ctx)
	if err != nil {
		// The mirror is advisory; an unreachable tracker must not block
		// ingestion when the provider itself may be fine.
		i.logger.Warn("quota tracker unavailable, proceeding", slog.String("error", err.Error()))
		return nil
	}
	if remaining >= 0 && remaining < i.cfg.MinRemaining {
		return fmt.Errorf("ingest: budget check: %d requests remaining, floor is %d: %w",
			remaining, i.cfg.MinRemaining, domain.ErrQuotaExhausted)
	}
	return nil
}

// fetchSport calls the provider once per attempt under the retry policy.
// Auth and quota errors are not retried.
func (i *Ingestor) fetchSport(ctx context.Context, sport string) (oddsapi.OddsResponse, error) {
	var resp oddsapi.OddsResponse

	policy := i.cfg.Retry
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool {
			return errors.Is(err, domain.ErrTransient)
		}
	}

	err := policy.Do(ctx, func() error {
		var fetchErr error
		resp, fetchErr = i.source.GetOdds(ctx, sport, i.cfg.MarketTypes)
		return fetchErr
	})
	return resp, err
}

// collect validates and accumulates one sport's response. Caller holds the
// result mutex.
func (i *Ingestor) collect(res *Result, sport string, resp oddsapi.OddsResponse) {
	res.Stats.SportsFetched++
	if len(resp.Events) == 0 {
		// No upcoming events is a normal outcome, not an error.
		res.Stats.SportsEmpty++
	}

	if resp.Remaining != oddsapi.QuotaUnknown {
		if res.Stats.Remaining == oddsapi.QuotaUnknown || resp.Remaining < res.Stats.Remaining {
			res.Stats.Remaining = resp.Remaining
		}
	}

	for _, ev := range resp.Events {
		res.Events[ev.ID] = ev.ToDomainEvent()
		for _, q := range ev.ToQuotes() {
			if !q.Valid() {
				res.Stats.QuotesDropped++
				continue
			}
			res.Quotes = append(res.Quotes, q)
		}
	}

	i.logger.Debug("sport fetched",
		slog.String("sport", sport),
		slog.Int("events", len(resp.Events)),
	)
}
