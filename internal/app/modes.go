package app

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// WatchMode runs the daemon: the metrics endpoint plus the daily scheduler
// loop, until the context is cancelled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("watch mode starting",
		slog.String("daily_at", a.cfg.Scheduler.DailyAt),
		slog.String("timezone", a.cfg.Scheduler.Timezone),
	)

	if deps.MetricsServer != nil {
		deps.MetricsServer.Start()
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = deps.MetricsServer.Shutdown(shutdownCtx)
		})
	}

	err := deps.Scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// OnceMode runs a single cycle synchronously and exits, logging the summary.
// Used for manual triggers and cron-style deployments.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("once mode: running a single cycle")

	summary, err := deps.Scheduler.TriggerNow(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("cycle summary",
		slog.String("cycle_id", summary.CycleID),
		slog.Duration("duration", summary.Duration),
		slog.Int("sports_fetched", summary.SportsFetched),
		slog.Int("sports_failed", len(summary.FailedSports)),
		slog.Int("quotes_dropped", summary.QuotesDropped),
		slog.Int("markets", summary.MarketsFound),
		slog.Int("markets_dropped", summary.MarketsDropped),
		slog.Int("quotes_orphaned", summary.QuotesOrphaned),
		slog.Int("opportunities_found", summary.OpportunitiesFound),
		slog.Int("opportunities_new", summary.OpportunitiesNew),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("notifications_sent", summary.NotificationsSent),
		slog.Int("notifications_failed", summary.NotificationsFailed),
		slog.Int("notifications_skipped", summary.NotificationsSkipped),
		slog.Int64("expired", summary.Expired),
	)
	return nil
}
