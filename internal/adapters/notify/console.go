package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polysniper/internal/application/tracker"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/timeparse"
)

// Console implementa ports.Reporter.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un reporter sobre w con reloj fijo. Para tests.
func NewConsoleWriter(w io.Writer, now func() time.Time) *Console {
	if now == nil {
		now = time.Now
	}
	return &Console{out: w, now: now}
}

// Candidates imprime la ventana de 15 minutos actual y la tabla de candidatos.
func (c *Console) Candidates(_ context.Context, candidates []domain.MarketCandidate) error {
	now := c.now()
	start, end := timeparse.FifteenMinuteWindow(now)
	fmt.Fprintf(c.out, "\n[%s] window %s → %s\n",
		now.Format("15:04:05"), timeparse.FormatET(start), timeparse.FormatET(end))

	if len(candidates) == 0 {
		fmt.Fprintln(c.out, "  no candidates found")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Shape", "Market", "Ends (ET)", "Left", "Sides")
	for i, cand := range candidates {
		table.Append(
			fmt.Sprintf("%d", i+1),
			cand.Shape.String(),
			marketLabel(cand),
			timeparse.FormatET(cand.EndTime),
			leftLabel(cand.TimeToExpiry(now)),
			cand.SideALabel+"/"+cand.SideBLabel,
		)
	}
	table.Render()
	return nil
}

// Session imprime el resumen de una sesión terminada.
func (c *Console) Session(_ context.Context, o domain.SessionOutcome) error {
	fmt.Fprintf(c.out, "\n── SESSION %s ── %s\n", shortID(o.SessionID), o.State)
	fmt.Fprintf(c.out, "  Market:   %s\n", marketLabel(o.Candidate))
	fmt.Fprintf(c.out, "  Ends:     %s\n", timeparse.FormatET(o.Candidate.EndTime))
	fmt.Fprintf(c.out, "  Book:     %s %s / %s %s\n",
		o.Candidate.SideALabel, tracker.FormatQuote(o.LastBook.SideA.Ask),
		o.Candidate.SideBLabel, tracker.FormatQuote(o.LastBook.SideB.Ask))

	if o.Result != nil {
		r := o.Result
		mode := "LIVE"
		if r.DryRun {
			mode = "DRY-RUN"
		}
		table := tablewriter.NewWriter(c.out)
		table.Header("Mode", "Side", "Price", "Shares", "Cost", "Order", "Status")
		table.Append(
			mode,
			r.Decision.Label,
			fmt.Sprintf("%.4f", r.Decision.Price),
			fmt.Sprintf("%.2f", r.Size),
			fmt.Sprintf("$%.2f", r.Notional),
			orderLabel(r.Placed.CLOBOrderID),
			statusLabel(*r),
		)
		table.Render()
	}

	if o.FailReason != "" {
		fmt.Fprintf(c.out, "  Reason:   %s\n", o.FailReason)
	}
	fmt.Fprintf(c.out, "  Duration: %s\n", o.EndedAt.Sub(o.StartedAt).Round(time.Millisecond))
	return nil
}

// PrintLiveBanner avisa de que las órdenes usan dinero real.
func (c *Console) PrintLiveBanner(notional string, grace time.Duration) {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║              LIVE MODE: REAL ORDERS WILL BE SENT             ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n")
	fmt.Fprintf(c.out, "  Notional per fire: $%s\n", notional)
	fmt.Fprintf(c.out, "  Starting in %s, press Ctrl+C to abort\n\n", grace)
}

func marketLabel(c domain.MarketCandidate) string {
	return domain.TruncateQuestion(c.Question, c.ConditionID, 60)
}

func leftLabel(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orderLabel(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 14 {
		return id[:12] + "..."
	}
	return id
}

func statusLabel(r domain.OrderResult) string {
	switch {
	case r.Err != nil:
		return "ERROR: " + compactErr(r.Err, 40)
	case r.DryRun:
		return "simulated"
	case r.Placed.Status != "":
		return r.Placed.Status
	default:
		return "sent"
	}
}

func compactErr(err error, maxLen int) string {
	s := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
