package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/arbalert/arbalert/internal/blob/s3"
	"github.com/arbalert/arbalert/internal/cache/redis"
	"github.com/arbalert/arbalert/internal/config"
	"github.com/arbalert/arbalert/internal/domain"
	"github.com/arbalert/arbalert/internal/ingest"
	"github.com/arbalert/arbalert/internal/market"
	"github.com/arbalert/arbalert/internal/metrics"
	"github.com/arbalert/arbalert/internal/notify"
	"github.com/arbalert/arbalert/internal/provider/oddsapi"
	"github.com/arbalert/arbalert/internal/retry"
	"github.com/arbalert/arbalert/internal/sched"
	"github.com/arbalert/arbalert/internal/store/postgres"

	arbpkg "github.com/arbalert/arbalert/internal/arb"
)

// Dependencies bundles everything the operating modes need.
type Dependencies struct {
	Scheduler     *sched.Scheduler
	MetricsServer *metrics.Server
	Provider      *oddsapi.Client
	Logger        *slog.Logger
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	oppStore := postgres.NewOpportunityStore(pool)
	deliveryStore := postgres.NewDeliveryStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	lockManager := redis.NewLockManager(redisClient)
	quotaTracker := redis.NewQuotaTracker(redisClient)

	// --- S3 audit archive (optional) ---
	var archiver sched.Archiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		archiver = s3blob.NewAuditArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Provider ---
	provider := oddsapi.NewClient(oddsapi.ClientConfig{
		BaseURL:    cfg.Provider.BaseURL,
		ApiKey:     cfg.Provider.ApiKey,
		Regions:    cfg.Provider.Regions,
		Bookmakers: cfg.Provider.Bookmakers,
		Timeout:    cfg.Provider.Timeout.Duration,
	})

	if err := validateSports(ctx, provider, cfg.Provider.Sports, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Duration,
		MaxDelay:    cfg.Retry.MaxDelay.Duration,
	}

	ingestor := ingest.New(provider, quotaTracker, ingest.Config{
		MarketTypes:  cfg.Provider.MarketTypes,
		MaxParallel:  cfg.Provider.MaxParallel,
		MinRemaining: cfg.Provider.MinRemaining,
		Retry:        policy,
	}, logger)

	// --- Detection ---
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load timezone: %w", err)
	}
	detector := arbpkg.NewDetector(cfg.Detector.Epsilon, loc, logger)
	normalizer := market.New(logger)

	// --- Notification ---
	sender := notify.NewTwilioSender(notify.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	})
	notifier := notify.New(sender, policy, logger)

	// --- Metrics ---
	m := metrics.New(nil)
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), nil, logger)
	}

	// --- Scheduler ---
	dailyAt, err := config.ParseDailyAt(cfg.Scheduler.DailyAt)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	scheduler := sched.New(sched.Deps{
		Ingestor:      ingestor,
		Normalizer:    normalizer,
		Detector:      detector,
		Notifier:      notifier,
		Opportunities: oppStore,
		Deliveries:    deliveryStore,
		Locks:         lockManager,
		Archiver:      archiver,
		Metrics:       m,
		Clock:         sched.RealClock(),
		Logger:        logger,
	}, sched.Config{
		Sports:         cfg.Provider.Sports,
		Recipients:     toRecipients(cfg.Recipients),
		DailyAtMinutes: dailyAt,
		Location:       loc,
		Retention:      time.Duration(cfg.Detector.RetentionDays) * 24 * time.Hour,
	})

	return &Dependencies{
		Scheduler:     scheduler,
		MetricsServer: metricsServer,
		Provider:      provider,
		Logger:        logger,
	}, cleanup, nil
}

// validateSports checks configured sport keys against the provider catalogue
// at startup. Unknown keys are logged, not fatal: the provider treats them as
// "no upcoming events", and the catalogue lookup itself is best-effort.
func validateSports(ctx context.Context, provider *oddsapi.Client, sports []string, logger *slog.Logger) error {
	catalogue, err := provider.GetSports(ctx)
	if err != nil {
		if domain.IsFatalProviderError(err) {
			return fmt.Errorf("wire: validate sports: %w", err)
		}
		if errors.Is(err, domain.ErrTransient) {
			logger.Warn("sport catalogue unavailable, skipping validation",
				slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("wire: validate sports: %w", err)
	}

	known := make(map[string]bool, len(catalogue))
	for _, s := range catalogue {
		known[s.Key] = true
	}
	for _, key := range sports {
		if !known[key] {
			logger.Warn("configured sport not in provider catalogue",
				slog.String("sport", key))
		}
	}
	return nil
}

func toRecipients(cfgs []config.RecipientConfig) []domain.Recipient {
	recipients := make([]domain.Recipient, 0, len(cfgs))
	for _, rc := range cfgs {
		recipients = append(recipients, domain.Recipient{
			Name:  rc.Name,
			Phone: rc.Phone,
			Unit:  decimal.NewFromFloat(rc.Unit),
		})
	}
	return recipients
}
