package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbalert/arbalert/internal/arb"
	"github.com/arbalert/arbalert/internal/domain"
	"github.com/arbalert/arbalert/internal/ingest"
	"github.com/arbalert/arbalert/internal/market"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeIngestor struct {
	res ingest.Result
	err error
}

func (f *fakeIngestor) Ingest(context.Context, []string) (ingest.Result, error) {
	return f.res, f.err
}

type memOppStore struct {
	mu          sync.Mutex
	byKey       map[string]domain.Opportunity
	registerErr error
}

func newMemOppStore() *memOppStore {
	return &memOppStore{byKey: make(map[string]domain.Opportunity)}
}

func (m *memOppStore) TryRegister(_ context.Context, opp domain.Opportunity) (domain.RegisterResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return domain.RegisterResult{}, m.registerErr
	}
	if existing, ok := m.byKey[opp.IdempotencyKey]; ok {
		return domain.RegisterResult{IsNew: false, Record: existing}, nil
	}
	m.byKey[opp.IdempotencyKey] = opp
	return domain.RegisterResult{IsNew: true, Record: opp}, nil
}

func (m *memOppStore) MarkNotified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, opp := range m.byKey {
		if opp.ID == id {
			if opp.Status == domain.StatusNew {
				opp.Status = domain.StatusNotified
				m.byKey[key] = opp
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memOppStore) ExpireOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, opp := range m.byKey {
		if opp.DetectedAt.Before(cutoff) && opp.Status != domain.StatusExpired {
			opp.Status = domain.StatusExpired
			m.byKey[key] = opp
			n++
		}
	}
	return n, nil
}

func (m *memOppStore) ListRecent(context.Context, int) ([]domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var opps []domain.Opportunity
	for _, opp := range m.byKey {
		opps = append(opps, opp)
	}
	return opps, nil
}

func (m *memOppStore) statuses() map[string]domain.OpportunityStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.OpportunityStatus, len(m.byKey))
	for key, opp := range m.byKey {
		out[key] = opp.Status
	}
	return out
}

type memDeliveryStore struct {
	mu      sync.Mutex
	results []domain.DeliveryResult
}

func (m *memDeliveryStore) Insert(_ context.Context, res domain.DeliveryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *memDeliveryStore) ListByOpportunity(_ context.Context, oppID string) ([]domain.DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeliveryResult
	for _, r := range m.results {
		if r.OpportunityID == oppID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

// fakeAlertSender reports every recipient with the configured status
// (default SENT) and optionally blocks until released.
type fakeAlertSender struct {
	mu      sync.Mutex
	calls   int
	status  domain.DeliveryStatus
	started chan struct{}
	release chan struct{}
}

func (f *fakeAlertSender) Notify(_ context.Context, opp domain.Opportunity, recipients []domain.Recipient) ([]domain.DeliveryResult, []domain.StakePlan) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	status := f.status
	if status == "" {
		status = domain.DeliverySent
	}

	var results []domain.DeliveryResult
	var plans []domain.StakePlan
	for i, rcp := range recipients {
		res := domain.DeliveryResult{
			ID:            fmt.Sprintf("d%d", i),
			OpportunityID: opp.ID,
			Recipient:     rcp.Name,
			Phone:         rcp.Phone,
			Status:        status,
		}
		if status == domain.DeliverySent {
			res.MessageID = fmt.Sprintf("SM%d", i)
			plans = append(plans, domain.StakePlan{OpportunityID: opp.ID, Recipient: rcp.Name})
		}
		results = append(results, res)
	}
	return results, plans
}

func (f *fakeAlertSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(time.Duration) <-chan time.Time { return c.tick }

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

var cycleTime = time.Date(2025, 11, 2, 11, 0, 0, 0, time.UTC)

// arbResult builds an ingestion result whose quotes contain one arbitrage:
// best odds 2.00 / 2.50 give an inverse sum of 0.90.
func arbResult() ingest.Result {
	ev := domain.Event{
		ID:           "g1",
		SportKey:     "basketball_nba",
		HomeTeam:     "Boston Celtics",
		AwayTeam:     "Miami Heat",
		CommenceTime: cycleTime.Add(12 * time.Hour),
	}
	quote := func(book, outcome string, odds float64) domain.OddsQuote {
		return domain.OddsQuote{
			Bookmaker: book, EventID: "g1", MarketType: "h2h",
			Outcome: outcome, Odds: odds, ObservedAt: cycleTime,
		}
	}
	return ingest.Result{
		Events: map[string]domain.Event{"g1": ev},
		Quotes: []domain.OddsQuote{
			quote("book1", "Boston Celtics", 2.00),
			quote("book1", "Miami Heat", 2.20),
			quote("book2", "Boston Celtics", 1.90),
			quote("book2", "Miami Heat", 2.50),
		},
		Stats: ingest.Stats{SportsFetched: 1, Remaining: 80},
	}
}

func testRecipients() []domain.Recipient {
	return []domain.Recipient{
		{Name: "alice", Phone: "+15550000001", Unit: decimal.RequireFromString("90")},
		{Name: "bob", Phone: "+15550000002", Unit: decimal.RequireFromString("180")},
	}
}

type testEnv struct {
	sched    *Scheduler
	opps     *memOppStore
	delivers *memDeliveryStore
	locks    *fakeLocks
	sender   *fakeAlertSender
	clock    *fakeClock
}

func newTestEnv(ing Ingestor, sender *fakeAlertSender) *testEnv {
	logger := slog.Default()
	env := &testEnv{
		opps:     newMemOppStore(),
		delivers: &memDeliveryStore{},
		locks:    &fakeLocks{},
		sender:   sender,
		clock:    &fakeClock{now: cycleTime, tick: make(chan time.Time, 1)},
	}
	env.sched = New(Deps{
		Ingestor:      ing,
		Normalizer:    market.New(logger),
		Detector:      arb.NewDetector(0.005, time.UTC, logger),
		Notifier:      sender,
		Opportunities: env.opps,
		Deliveries:    env.delivers,
		Locks:         env.locks,
		Clock:         env.clock,
		Logger:        logger,
	}, Config{
		Sports:         []string{"basketball_nba"},
		Recipients:     testRecipients(),
		DailyAtMinutes: 6 * 60,
		Location:       time.UTC,
		Retention:      7 * 24 * time.Hour,
		LockTTL:        time.Minute,
	})
	return env
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestTriggerNow_EndToEnd(t *testing.T) {
	env := newTestEnv(&fakeIngestor{res: arbResult()}, &fakeAlertSender{})

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.OpportunitiesFound != 1 || summary.OpportunitiesNew != 1 {
		t.Errorf("expected 1 found / 1 new, got %d / %d",
			summary.OpportunitiesFound, summary.OpportunitiesNew)
	}
	if summary.NotificationsSent != 2 {
		t.Errorf("expected 2 notifications sent, got %d", summary.NotificationsSent)
	}
	if len(env.delivers.results) != 2 {
		t.Errorf("expected 2 delivery records, got %d", len(env.delivers.results))
	}
	for _, status := range env.opps.statuses() {
		if status != domain.StatusNotified {
			t.Errorf("expected NOTIFIED after successful delivery, got %s", status)
		}
	}
	if len(env.locks.acquired) != 1 {
		t.Errorf("expected 1 lock acquisition, got %d", len(env.locks.acquired))
	}
}

func TestTriggerNow_SingleFlight(t *testing.T) {
	sender := &fakeAlertSender{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newTestEnv(&fakeIngestor{res: arbResult()}, sender)

	done := make(chan error, 1)
	go func() {
		_, err := env.sched.TriggerNow(context.Background())
		done <- err
	}()

	<-sender.started // first cycle is mid-flight

	if _, err := env.sched.TriggerNow(context.Background()); !errors.Is(err, domain.ErrCycleRunning) {
		t.Errorf("expected ErrCycleRunning for concurrent trigger, got %v", err)
	}

	close(sender.release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// Once the first cycle finishes the guard must reopen.
	if _, err := env.sched.TriggerNow(context.Background()); err != nil {
		t.Errorf("trigger after completion must succeed, got %v", err)
	}
}

func TestTriggerNow_DuplicateWithinCooldown(t *testing.T) {
	env := newTestEnv(&fakeIngestor{res: arbResult()}, &fakeAlertSender{})

	if _, err := env.sched.TriggerNow(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	firstCalls := env.sender.callCount()

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if summary.Duplicates != 1 || summary.OpportunitiesNew != 0 {
		t.Errorf("expected 1 duplicate / 0 new, got %d / %d",
			summary.Duplicates, summary.OpportunitiesNew)
	}
	if env.sender.callCount() != firstCalls {
		t.Error("duplicate opportunity must not be re-notified")
	}
}

func TestTriggerNow_FatalIngestAborts(t *testing.T) {
	ing := &fakeIngestor{err: fmt.Errorf("ingest: %w", domain.ErrProviderAuth)}
	env := newTestEnv(ing, &fakeAlertSender{})

	_, err := env.sched.TriggerNow(context.Background())
	if !errors.Is(err, domain.ErrProviderAuth) {
		t.Fatalf("expected ErrProviderAuth, got %v", err)
	}
	if env.sender.callCount() != 0 {
		t.Error("no notification may be sent after a fatal ingest failure")
	}
	if len(env.opps.statuses()) != 0 {
		t.Error("nothing may be stored after a fatal ingest failure")
	}
}

func TestTriggerNow_PersistenceFailureAborts(t *testing.T) {
	env := newTestEnv(&fakeIngestor{res: arbResult()}, &fakeAlertSender{})
	env.opps.registerErr = errors.New("connection refused")

	_, err := env.sched.TriggerNow(context.Background())
	if err == nil {
		t.Fatal("expected cycle to fail on persistence error")
	}
	if env.sender.callCount() != 0 {
		t.Error("no notification may be sent when registration fails")
	}
}

func TestTriggerNow_LockHeldSkips(t *testing.T) {
	res := arbResult()
	key := expectedKey(t, res)
	env := newTestEnv(&fakeIngestor{res: res}, &fakeAlertSender{})
	env.locks.held = map[string]bool{"opp:" + key: true}

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.LockSkipped != 1 {
		t.Errorf("expected 1 lock skip, got %d", summary.LockSkipped)
	}
	if env.sender.callCount() != 0 {
		t.Error("locked opportunity must not be notified")
	}
}

func TestTriggerNow_AllDeliveriesFailedKeepsStatusNew(t *testing.T) {
	env := newTestEnv(&fakeIngestor{res: arbResult()}, &fakeAlertSender{status: domain.DeliveryFailed})

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.NotificationsFailed != 2 || summary.NotificationsSent != 0 {
		t.Errorf("expected 0 sent / 2 failed, got %d / %d",
			summary.NotificationsSent, summary.NotificationsFailed)
	}
	for _, status := range env.opps.statuses() {
		if status != domain.StatusNew {
			t.Errorf("status must stay NEW when no delivery succeeded, got %s", status)
		}
	}
}

func TestTriggerNow_PartialSportFailureStillNotifies(t *testing.T) {
	res := arbResult()
	res.Stats.FailedSports = []string{"icehockey_nhl"}
	env := newTestEnv(&fakeIngestor{res: res}, &fakeAlertSender{})

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("a per-sport failure must not abort the cycle: %v", err)
	}
	if summary.OpportunitiesNew != 1 || summary.NotificationsSent != 2 {
		t.Errorf("healthy sport's opportunity must be processed, got new=%d sent=%d",
			summary.OpportunitiesNew, summary.NotificationsSent)
	}
	if len(summary.FailedSports) != 1 {
		t.Errorf("failed sport must appear in the summary, got %v", summary.FailedSports)
	}
}

func TestTriggerNow_ReportsNormalizerDrops(t *testing.T) {
	res := arbResult()
	// A totals market with a single outcome cannot host an arbitrage and gets
	// dropped; a quote for an unknown event is orphaned.
	res.Quotes = append(res.Quotes,
		domain.OddsQuote{
			Bookmaker: "book1", EventID: "g1", MarketType: "totals",
			Outcome: "Over 210.5", Odds: 1.91, ObservedAt: cycleTime,
		},
		domain.OddsQuote{
			Bookmaker: "book1", EventID: "ghost", MarketType: "h2h",
			Outcome: "Nobody", Odds: 2.00, ObservedAt: cycleTime,
		},
	)
	env := newTestEnv(&fakeIngestor{res: res}, &fakeAlertSender{})

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.MarketsFound != 1 {
		t.Errorf("expected 1 market, got %d", summary.MarketsFound)
	}
	if summary.MarketsDropped != 1 {
		t.Errorf("dropped market must be counted in the summary, got %d", summary.MarketsDropped)
	}
	if summary.QuotesOrphaned != 1 {
		t.Errorf("orphaned quote must be counted in the summary, got %d", summary.QuotesOrphaned)
	}
}

func TestTriggerNow_ExpiresOldOpportunities(t *testing.T) {
	env := newTestEnv(&fakeIngestor{res: arbResult()}, &fakeAlertSender{})
	env.opps.byKey["stale"] = domain.Opportunity{
		ID:         "old-1",
		DetectedAt: cycleTime.AddDate(0, 0, -30),
		Status:     domain.StatusNotified,
	}

	summary, err := env.sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Expired != 1 {
		t.Errorf("expected 1 expired opportunity, got %d", summary.Expired)
	}
	if env.opps.statuses()["stale"] != domain.StatusExpired {
		t.Error("stale opportunity must be marked EXPIRED")
	}
}

func TestRun_FiresOnDailyTrigger(t *testing.T) {
	sender := &fakeAlertSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	close(sender.release)
	env := newTestEnv(&fakeIngestor{res: arbResult()}, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.sched.Run(ctx) }()

	env.clock.tick <- cycleTime // fire the trigger

	select {
	case <-sender.started:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not fire on trigger")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// expectedKey computes the idempotency key the detector will assign to the
// fixture's single opportunity.
func expectedKey(t *testing.T, res ingest.Result) string {
	t.Helper()
	markets, _ := market.New(slog.Default()).Normalize(res.Events, res.Quotes)
	if len(markets) != 1 {
		t.Fatalf("fixture must produce exactly 1 market, got %d", len(markets))
	}
	opp, ok := arb.NewDetector(0.005, time.UTC, slog.Default()).Detect(markets[0], cycleTime)
	if !ok {
		t.Fatal("fixture must produce an opportunity")
	}
	return opp.IdempotencyKey
}
