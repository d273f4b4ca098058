package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbalert/arbalert/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. The
// unique constraint on idempotency_key makes TryRegister's check-then-insert
// atomic across concurrent cycles.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

const opportunitySelectCols = `id, idempotency_key, event_id, sport_key, market_type,
	home_team, away_team, commence_time, best_prices,
	inverse_sum, margin_percent, detected_at, status`

// TryRegister inserts the opportunity unless a record with the same
// idempotency key already exists. ON CONFLICT DO NOTHING keeps the check and
// the insert a single atomic statement; losers of a race observe the winner's
// record.
func (s *OpportunityStore) TryRegister(ctx context.Context, opp domain.Opportunity) (domain.RegisterResult, error) {
	const query = `
		INSERT INTO opportunities (
			id, idempotency_key, event_id, sport_key, market_type,
			home_team, away_team, commence_time, best_prices,
			inverse_sum, margin_percent, detected_at, status
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		)
		ON CONFLICT (idempotency_key) DO NOTHING`

	prices, err := json.Marshal(opp.BestPrices)
	if err != nil {
		return domain.RegisterResult{}, fmt.Errorf("postgres: encode best prices: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query,
		opp.ID, opp.IdempotencyKey, opp.EventID, opp.SportKey, opp.MarketType,
		opp.HomeTeam, opp.AwayTeam, opp.CommenceTime, prices,
		opp.InverseSum, opp.MarginPercent, opp.DetectedAt, opp.Status,
	)
	if err != nil {
		return domain.RegisterResult{}, fmt.Errorf("postgres: register opportunity %s: %w", opp.ID, err)
	}

	if tag.RowsAffected() == 1 {
		return domain.RegisterResult{IsNew: true, Record: opp}, nil
	}

	existing, err := s.getByKey(ctx, opp.IdempotencyKey)
	if err != nil {
		return domain.RegisterResult{}, fmt.Errorf("postgres: load existing opportunity: %w", err)
	}
	return domain.RegisterResult{IsNew: false, Record: existing}, nil
}

// MarkNotified advances an opportunity from NEW to NOTIFIED. Calling it again
// for an already notified opportunity is a no-op.
func (s *OpportunityStore) MarkNotified(ctx context.Context, id string) error {
	const query = `
		UPDATE opportunities SET status = $1
		WHERE id = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query, domain.StatusNotified, id, domain.StatusNew)
	if err != nil {
		return fmt.Errorf("postgres: mark notified %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM opportunities WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check opportunity %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

// ExpireOlderThan marks opportunities detected before cutoff as EXPIRED and
// returns how many were affected. Expiry is housekeeping; the idempotency key
// stays unique, so an expired record still blocks re-alerting within its
// cooldown window.
func (s *OpportunityStore) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE opportunities SET status = $1
		WHERE detected_at < $2 AND status <> $1`

	tag, err := s.pool.Exec(ctx, query, domain.StatusExpired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListRecent returns the most recent opportunities ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities rows: %w", err)
	}
	return opps, nil
}

func (s *OpportunityStore) getByKey(ctx context.Context, key string) (domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE idempotency_key = $1`
	return scanOpportunity(s.pool.QueryRow(ctx, query, key))
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var opp domain.Opportunity
	var prices []byte

	if err := row.Scan(
		&opp.ID, &opp.IdempotencyKey, &opp.EventID, &opp.SportKey, &opp.MarketType,
		&opp.HomeTeam, &opp.AwayTeam, &opp.CommenceTime, &prices,
		&opp.InverseSum, &opp.MarginPercent, &opp.DetectedAt, &opp.Status,
	); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: scan opportunity: %w", err)
	}
	if err := json.Unmarshal(prices, &opp.BestPrices); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: decode best prices: %w", err)
	}
	return opp, nil
}
