package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/arbalert/arbalert/internal/domain"
)

// maxMessageLen caps rendered alerts. SMS bodies beyond this split into many
// segments and get truncated by some carriers anyway.
const maxMessageLen = 1500

// RenderAlert formats one opportunity plus the recipient's stake plan as an
// SMS body: matchup, date, margin, then one stake line per outcome.
func RenderAlert(opp domain.Opportunity, plan domain.StakePlan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Arbitrage alert: %s vs %s (%s %s)\n",
		opp.HomeTeam, opp.AwayTeam, opp.SportKey, opp.MarketType)
	fmt.Fprintf(&b, "Starts %s\n", opp.CommenceTime.Format("Mon Jan 2 15:04 MST"))
	fmt.Fprintf(&b, "Margin: %.2f%%\n", opp.MarginPercent)

	for _, s := range plan.Stakes {
		fmt.Fprintf(&b, "Bet $%s on %s @ %.2f (%s)\n",
			s.Amount.StringFixed(2), s.Outcome, s.Odds, s.Bookmaker)
	}

	fmt.Fprintf(&b, "Total $%s -> payout $%s, profit $%s",
		plan.TotalStaked().StringFixed(2),
		plan.Payout.StringFixed(2),
		plan.Profit.StringFixed(2))

	msg := b.String()
	if len(msg) > maxMessageLen {
		// Back up to a rune boundary so a multi-byte team name is never split.
		cut := maxMessageLen - 3
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
