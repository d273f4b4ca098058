// Package notify renders and delivers per-recipient arbitrage alerts over
// SMS. Each recipient is handled independently: a malformed recipient, a
// failed allocation, or a carrier rejection never blocks delivery to the
// others.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbalert/arbalert/internal/arb"
	"github.com/arbalert/arbalert/internal/domain"
	"github.com/arbalert/arbalert/internal/retry"
)

// MessageSender delivers one message body to one phone number and returns
// the provider's delivery id. Satisfied by *TwilioSender.
type MessageSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Notifier fans one opportunity out to every recipient.
type Notifier struct {
	sender MessageSender
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Notifier applying the given retry policy to transient send
// failures.
func New(sender MessageSender, policy retry.Policy, logger *slog.Logger) *Notifier {
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool {
			return errors.Is(err, domain.ErrTransient)
		}
	}
	return &Notifier{
		sender: sender,
		policy: policy,
		logger: logger.With(slog.String("component", "notifier")),
		now:    time.Now,
	}
}

// Notify allocates, renders, and sends one alert per recipient. It returns a
// delivery result for every recipient plus the stake plans behind the
// successful sends, for audit archival. It never returns an error: all
// failures are isolated into their recipient's result.
func (n *Notifier) Notify(ctx context.Context, opp domain.Opportunity, recipients []domain.Recipient) ([]domain.DeliveryResult, []domain.StakePlan) {
	results := make([]domain.DeliveryResult, 0, len(recipients))
	var plans []domain.StakePlan

	for _, rcp := range recipients {
		res := domain.DeliveryResult{
			ID:            uuid.New().String(),
			OpportunityID: opp.ID,
			Recipient:     rcp.Name,
			Phone:         rcp.Phone,
			AttemptedAt:   n.now().UTC(),
		}

		if err := rcp.Validate(); err != nil {
			res.Status = domain.DeliverySkipped
			res.Error = err.Error()
			n.logger.Warn("skipping malformed recipient",
				slog.String("recipient", rcp.Name),
				slog.String("error", err.Error()),
			)
			results = append(results, res)
			continue
		}

		plan, err := arb.Allocate(opp, rcp)
		if err != nil {
			res.Status = domain.DeliveryFailed
			res.Error = err.Error()
			n.logger.Error("stake allocation failed",
				slog.String("recipient", rcp.Name),
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
			results = append(results, res)
			continue
		}

		body := RenderAlert(opp, plan)
		messageID, err := n.send(ctx, rcp.Phone, body)
		if err != nil {
			res.Status = domain.DeliveryFailed
			res.Error = err.Error()
			n.logger.Error("delivery failed",
				slog.String("recipient", rcp.Name),
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
			results = append(results, res)
			continue
		}

		res.Status = domain.DeliverySent
		res.MessageID = messageID
		results = append(results, res)
		plans = append(plans, plan)

		n.logger.Info("alert delivered",
			slog.String("recipient", rcp.Name),
			slog.String("opportunity_id", opp.ID),
			slog.String("message_id", messageID),
		)
	}

	return results, plans
}

// send applies the retry policy to one delivery. Permanent failures pass
// through on the first attempt.
func (n *Notifier) send(ctx context.Context, to, body string) (string, error) {
	var messageID string
	err := n.policy.Do(ctx, func() error {
		var sendErr error
		messageID, sendErr = n.sender.Send(ctx, to, body)
		return sendErr
	})
	return messageID, err
}
