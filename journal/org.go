package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a single trade as an org-mode entry with a
// properties drawer and empty narrative sections for manual review notes.
func FormatTradeOrg(t TradeRecord) string {
	short := t.TradeID
	if len(short) > 8 {
		short = short[:8]
	}

	var b strings.Builder

	fmt.Fprintf(&b, "** Trade: %s (%s)\n", t.Symbol, short)
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %g\n", t.Quantity)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.5f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.5f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":ENTRY_TIME: %s\n", t.EntryTime.Format(time.RFC3339))
	fmt.Fprintf(&b, ":EXIT_TIME: %s\n", t.ExitTime.Format(time.RFC3339))
	fmt.Fprintf(&b, ":PNL: %.2f\n", t.PnL)
	fmt.Fprintf(&b, ":PNL_PCT: %.2f\n", t.PnLPercent)
	fmt.Fprintf(&b, ":EXIT_REASON: %s\n", t.ExitReason)
	b.WriteString(":END:\n")
	b.WriteString("\n*** Thesis\n")
	b.WriteString("\n*** Execution\n")
	b.WriteString("\n*** Review\n")

	return b.String()
}
