package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// e164Pattern matches phone numbers in E.164 format: a leading plus followed
// by up to 15 digits, the first being non-zero.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Recipient is one alert subscriber. The recipient list is externally
// maintained and loaded once per cycle; recipients are read-only to the core.
type Recipient struct {
	Name  string
	Phone string // E.164, e.g. "+15551234567"
	// Unit is the recipient's total stake budget for one opportunity.
	Unit decimal.Decimal
}

// Validate checks that the recipient can be allocated for and messaged. A
// malformed recipient is skipped and logged by the notifier, never fatal to
// the cycle.
func (r Recipient) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: recipient name is empty", ErrValidation)
	}
	if !e164Pattern.MatchString(r.Phone) {
		return fmt.Errorf("%w: recipient %s: phone %q is not E.164", ErrValidation, r.Name, r.Phone)
	}
	if !r.Unit.IsPositive() {
		return fmt.Errorf("%w: recipient %s: unit size must be > 0, got %s", ErrValidation, r.Name, r.Unit)
	}
	return nil
}
