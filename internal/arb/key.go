package arb

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/arbalert/arbalert/internal/domain"
)

// IdempotencyKey derives the stable identity of an opportunity: the same
// event, market type, and outcome-to-bookmaker assignment hash to the same
// key for a whole calendar day in the reference timezone. The daily unique
// constraint on this key is what enforces one alert per opportunity per day.
func IdempotencyKey(eventID, marketType string, prices []domain.BestPrice, day time.Time) string {
	assignment := make([]string, 0, len(prices))
	for _, p := range prices {
		assignment = append(assignment, p.Outcome+"="+p.Bookmaker)
	}
	sort.Strings(assignment)

	var b strings.Builder
	b.WriteString(eventID)
	b.WriteByte('|')
	b.WriteString(marketType)
	b.WriteByte('|')
	b.WriteString(strings.Join(assignment, ","))
	b.WriteByte('|')
	b.WriteString(day.Format("2006-01-02"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
