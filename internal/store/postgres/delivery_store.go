package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbalert/arbalert/internal/domain"
)

// DeliveryStore implements domain.DeliveryStore using PostgreSQL.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

// NewDeliveryStore creates a new DeliveryStore backed by the given pool.
func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

var _ domain.DeliveryStore = (*DeliveryStore)(nil)

// Insert records one per-recipient delivery outcome.
func (s *DeliveryStore) Insert(ctx context.Context, d domain.DeliveryResult) error {
	const query = `
		INSERT INTO deliveries (
			id, opportunity_id, recipient, phone, status,
			message_id, error, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// message_id and error are mutually exclusive in practice; store NULL
	// rather than empty strings.
	var messageID, errMsg *string
	if d.MessageID != "" {
		messageID = &d.MessageID
	}
	if d.Error != "" {
		errMsg = &d.Error
	}

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.OpportunityID, d.Recipient, d.Phone, d.Status,
		messageID, errMsg, d.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert delivery %s: %w", d.ID, err)
	}
	return nil
}

// ListByOpportunity returns all delivery outcomes recorded for an
// opportunity, oldest first.
func (s *DeliveryStore) ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.DeliveryResult, error) {
	const query = `
		SELECT id, opportunity_id, recipient, phone, status,
			message_id, error, attempted_at
		FROM deliveries
		WHERE opportunity_id = $1
		ORDER BY attempted_at ASC`

	rows, err := s.pool.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deliveries for %s: %w", opportunityID, err)
	}
	defer rows.Close()

	var results []domain.DeliveryResult
	for rows.Next() {
		var d domain.DeliveryResult
		var messageID, errMsg *string

		if err := rows.Scan(
			&d.ID, &d.OpportunityID, &d.Recipient, &d.Phone, &d.Status,
			&messageID, &errMsg, &d.AttemptedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan delivery: %w", err)
		}
		if messageID != nil {
			d.MessageID = *messageID
		}
		if errMsg != nil {
			d.Error = *errMsg
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list deliveries rows: %w", err)
	}
	return results, nil
}
