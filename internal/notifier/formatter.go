package notifier

import (
	"fmt"
	"html"
	"strings"

	"TradingStation/internal/model"
)

var signalIcon = map[model.Signal]string{
	model.SignalBullish: "🟢",
	model.SignalBearish: "🔴",
	model.SignalNeutral: "⚪",
}

// TransitionMessage is the plain-text body shared by every sink.
func TransitionMessage(key model.InstrumentKey, prev, cur model.Signal, verdict string) string {
	return fmt.Sprintf("%s %s -> %s. %s", key, prev, cur, verdict)
}

// FormatTransition renders a notification as Telegram HTML.
func FormatTransition(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> | %s\n\n", signalIcon[n.Current], html.EscapeString(n.Key.Ticker), n.Key.Timeframe)
	fmt.Fprintf(&b, "%s → <b>%s</b>\n", n.Previous, n.Current)
	fmt.Fprintf(&b, "Close: %.4f\n", n.Snapshot.Close)
	fmt.Fprintf(&b, "EMA %d: %s | EMA %d: %s\n",
		n.Snapshot.Params.EMAFast, n.Snapshot.EMAFast, n.Snapshot.Params.EMASlow, n.Snapshot.EMASlow)
	fmt.Fprintf(&b, "RSI %d: %s\n\n", n.Snapshot.Params.RSI, n.Snapshot.RSI)
	b.WriteString(html.EscapeString(n.Message))
	return b.String()
}

// FormatStatus renders the latest evaluation of every instrument for the /status command.
func FormatStatus(evals []model.Evaluation) string {
	if len(evals) == 0 {
		return "No evaluations yet. Send /refresh to run one."
	}
	var b strings.Builder
	b.WriteString("📊 <b>TradingStation status</b>\n\n")
	for _, e := range evals {
		if e.Failed() {
			fmt.Fprintf(&b, "⚠️ <b>%s</b>: %s\n", html.EscapeString(e.Key.String()), html.EscapeString(e.Error))
			continue
		}
		fmt.Fprintf(&b, "%s <b>%s</b>: %s (close %.4f, RSI %s)\n",
			signalIcon[e.Signal], html.EscapeString(e.Key.String()), e.Signal, e.Snapshot.Close, e.Snapshot.RSI)
		if e.LotSize != "" {
			fmt.Fprintf(&b, "   suggested lot: %s\n", e.LotSize)
		}
		if e.Series.Stale {
			b.WriteString("   (stale data)\n")
		}
	}
	fmt.Fprintf(&b, "\nUpdated: %s", evals[0].EvaluatedAt.Format("2006-01-02 15:04"))
	return b.String()
}
