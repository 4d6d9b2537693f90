package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Console implementa ports.Notifier y los reportes del engine en terminal.
type Console struct {
	out   io.Writer
	table bool
	top   int
	now   func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
// table=false imprime una línea compacta por escaneo.
func NewConsole(table bool, top int) *Console {
	return NewConsoleWriter(os.Stdout, table, top)
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer, table bool, top int) *Console {
	if top <= 0 {
		top = 15
	}
	return &Console{out: w, table: table, top: top, now: time.Now}
}

// Notify imprime los candidatos con edge positivo, ordenados por EV.
func (c *Console) Notify(_ context.Context, candidates []domain.Candidate) error {
	positive := make([]domain.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Edge.Positive() {
			positive = append(positive, cand)
		}
	}
	if len(positive) == 0 {
		fmt.Fprintf(c.out, "[%s] no positive edges (%d candidates)\n", c.now().Format("15:04:05"), len(candidates))
		return nil
	}

	if c.table {
		c.printTable(positive, len(candidates))
	} else {
		c.printCompact(positive, len(candidates))
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(cands []domain.Candidate, total int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d cands → %d +EV", c.now().Format("15:04:05"), total, len(cands))
	for i, cand := range cands {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %+.1f%% @%.2f",
			compactName(candidateLabel(cand.Opportunity), 25), cand.Edge.EVPct*100, cand.Edge.BestPrice)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime la tabla de edges.
func (c *Console) printTable(cands []domain.Candidate, total int) {
	fmt.Fprintf(c.out, "\n[%s] %d candidates, %d with positive EV\n", c.now().Format("15:04:05"), total, len(cands))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Class", "Type", "Selection", "Price", "Source", "Fair", "EV", "Kelly", "Src")
	for i, cand := range cands {
		if i >= c.top {
			break
		}
		o, e := cand.Opportunity, cand.Edge
		table.Append(
			fmt.Sprintf("%d", i+1),
			o.AssetClass.String(),
			o.MarketType.String(),
			candidateLabel(o),
			fmt.Sprintf("%.3f", e.BestPrice),
			e.BestSource,
			fmt.Sprintf("%.4f", e.FairProbability),
			fmt.Sprintf("%+.2f%%", e.EVPct*100),
			fmt.Sprintf("%.2f%%", e.KellyFraction*100),
			fmt.Sprintf("%d", e.Sources),
		)
	}
	table.Render()
	if len(cands) > c.top {
		fmt.Fprintf(c.out, "  ... %d more\n", len(cands)-c.top)
	}
}

// candidateLabel describe la selección: "Lakers vs Celtics · home -3.5", "BTC long".
func candidateLabel(o domain.Opportunity) string {
	if !o.AssetClass.IsBet() {
		name := o.Symbol
		if name == "" {
			name = o.MarketID
		}
		return truncate(fmt.Sprintf("%s %s", name, strings.ToLower(string(o.Direction))), 38)
	}
	sel := string(o.Side)
	if o.MarketType != domain.MarketMoneyline {
		sel = fmt.Sprintf("%s %g", o.Side, o.Line)
	}
	return truncate(fmt.Sprintf("%s vs %s · %s", o.HomeName, o.AwayName, sel), 38)
}

// --- helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}
