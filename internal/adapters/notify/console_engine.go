package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/domain"
)

// PrintCycle imprime una línea compacta de estado por ciclo del engine.
func (c *Console) PrintCycle(res *engine.CycleResult) {
	if res == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][PAPER]", res.StartedAt.Local().Format("15:04:05"))
	if p := res.Placement; p != nil {
		fmt.Fprintf(&sb, " %d cands | +%d placed | %d filtered | %d guard | %d sizing",
			p.Candidates, p.Placed, p.Filtered, p.GuardRejected, p.SizingRejected)
		if p.Duplicates > 0 {
			fmt.Fprintf(&sb, " | %d dup", p.Duplicates)
		}
	}
	if p := res.Prices; p != nil && p.Open > 0 {
		fmt.Fprintf(&sb, " | ticks %d/%d closed %d", p.Priced, p.Open, p.Closed)
	}
	if s := res.Settlement; s != nil && s.Open > 0 {
		fmt.Fprintf(&sb, " | settled %d void %d pending %d", s.Settled, s.Voided, s.Pending)
	}
	fmt.Fprintf(&sb, " | %s", res.Duration.Round(time.Millisecond))

	for i, cm := range closesOf(res) {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, "\n  >> %s %s %s %s", cm.StrategyID, closeLabel(cm), cm.Status, money(cm.NetPnL))
	}
	if res.Elimination != nil {
		for _, s := range res.Elimination.Eliminated {
			fmt.Fprintf(&sb, "\n  !! eliminated %s: %s", s.ID, s.EliminationReason)
		}
	}
	for i, err := range res.Errors {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&sb, "\n  !! %v", err)
	}
	fmt.Fprintln(c.out, sb.String())
}

func closesOf(res *engine.CycleResult) []domain.Commitment {
	var out []domain.Commitment
	if res.Prices != nil {
		out = append(out, res.Prices.Closes...)
	}
	if res.Settlement != nil {
		out = append(out, res.Settlement.Closes...)
	}
	return out
}

func closeLabel(cm domain.Commitment) string {
	if !cm.AssetClass.IsBet() {
		return fmt.Sprintf("%s %s", cm.Symbol, strings.ToLower(string(cm.Direction)))
	}
	return truncate(fmt.Sprintf("%s vs %s %s", cm.HomeName, cm.AwayName, cm.Side), 30)
}

// PrintLeaderboard imprime todas las estrategias ordenadas por balance.
func (c *Console) PrintLeaderboard(rows []engine.LeaderboardRow) {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "\n  No strategies configured.")
		return
	}

	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  LEADERBOARD (%d strategies)\n", len(rows))
	fmt.Fprintf(c.out, "========================================================\n\n")

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("#", "Strategy", "Status", "Balance", "P&L", "ROI", "Win%", "MaxDD", "Settled", "Open", "Z", "Label")
	for i, r := range rows {
		tbl.Append(
			fmt.Sprintf("%d", i+1),
			truncate(r.Name, 24),
			string(r.Status),
			money(r.Balance),
			money(r.TotalPnL),
			fmt.Sprintf("%+.2f%%", r.ROIPct),
			fmt.Sprintf("%.1f%%", r.WinRate),
			fmt.Sprintf("%.1f%%", r.MaxDrawdownPct),
			fmt.Sprintf("%d", r.Settled),
			fmt.Sprintf("%d", r.Open),
			fmt.Sprintf("%.2f", r.Z),
			string(r.Label),
		)
	}
	tbl.Render()

	for _, r := range rows {
		if r.EliminationReason != "" {
			fmt.Fprintf(c.out, "  %s eliminated: %s\n", r.StrategyID, r.EliminationReason)
		}
	}
	fmt.Fprintln(c.out)
}

// PrintStrategyDetail imprime el reporte completo de una estrategia.
func (c *Console) PrintStrategyDetail(d *engine.StrategyDetail) {
	if d == nil {
		return
	}
	s, l := d.Strategy, d.Ledger

	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  %s (%s) [%s]\n", s.Name, s.ID, d.Row.Label)
	fmt.Fprintf(c.out, "========================================================\n")
	if s.EliminationReason != "" {
		fmt.Fprintf(c.out, "  Eliminated: %s\n", s.EliminationReason)
	}

	fmt.Fprintf(c.out, "\n  --- BANKROLL ---\n")
	fmt.Fprintf(c.out, "  Balance:          %s (initial %s)\n", money(l.Balance), money(l.InitialBalance))
	fmt.Fprintf(c.out, "  Total P&L:        %s on %s wagered (ROI %+.2f%%)\n", money(l.TotalPnL), money(l.TotalWagered), l.ROIPct())
	fmt.Fprintf(c.out, "  Peak / trough:    %s / %s\n", money(l.Peak), money(l.Trough))
	fmt.Fprintf(c.out, "  Max drawdown:     %.2f%% (current %.2f%%)\n", l.MaxDrawdownPct, l.CurrentDrawdownPct())

	fmt.Fprintf(c.out, "\n  --- RECORD ---\n")
	fmt.Fprintf(c.out, "  W/L/P:            %d/%d/%d (win rate %.1f%%)\n", l.Wins, l.Losses, l.Pushes, l.WinRate())
	fmt.Fprintf(c.out, "  Streak:           current %+d, best %+d, worst %+d\n", l.CurrentStreak, l.BestStreak, l.WorstStreak)
	fmt.Fprintf(c.out, "  Averages:         odds %.3f, EV %.2f%%, stake %s\n", l.AvgOdds, l.AvgEV*100, money(l.AvgStake))
	fmt.Fprintf(c.out, "  Avg win / loss:   %s / %s\n", money(l.AvgWin), money(l.AvgLoss))
	fmt.Fprintf(c.out, "  Significance:     z=%.2f over %d decided (%s)\n", d.Verdict.Z, d.Verdict.Sample, d.Verdict.Label)

	if len(d.ByStatus) > 0 {
		statuses := make([]string, 0, len(d.ByStatus))
		for st := range d.ByStatus {
			statuses = append(statuses, string(st))
		}
		sort.Strings(statuses)
		parts := make([]string, 0, len(statuses))
		for _, st := range statuses {
			parts = append(parts, fmt.Sprintf("%s=%d", st, d.ByStatus[domain.CommitmentStatus(st)]))
		}
		fmt.Fprintf(c.out, "  Commitments:      %s\n", strings.Join(parts, " "))
	}

	c.printBreakdown("MARKET TYPE", d.ByMarketType)
	c.printBreakdown("ASSET CLASS", d.ByAssetClass)

	if len(d.Open) > 0 {
		fmt.Fprintf(c.out, "\n  --- OPEN (%d) ---\n", len(d.Open))
		c.printCommitments(d.Open)
	}
	if len(d.Recent) > 0 {
		fmt.Fprintf(c.out, "\n  --- RECENT ---\n")
		c.printCommitments(d.Recent)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printBreakdown(title string, rows []engine.Breakdown) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n  --- BY %s ---\n", title)
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Group", "N", "W", "L", "P", "Void", "Wagered", "Net", "Win%", "ROI")
	for _, b := range rows {
		tbl.Append(
			b.Key,
			fmt.Sprintf("%d", b.Count),
			fmt.Sprintf("%d", b.Wins),
			fmt.Sprintf("%d", b.Losses),
			fmt.Sprintf("%d", b.Pushes),
			fmt.Sprintf("%d", b.Voided),
			money(b.Wagered),
			money(b.NetPnL),
			fmt.Sprintf("%.1f%%", b.WinRate()),
			fmt.Sprintf("%+.2f%%", b.ROIPct()),
		)
	}
	tbl.Render()
}

// PrintCommitments imprime una página de commitments.
func (c *Console) PrintCommitments(page *engine.CommitmentPage) {
	if page == nil || len(page.Items) == 0 {
		fmt.Fprintln(c.out, "\n  No commitments.")
		return
	}
	fmt.Fprintf(c.out, "\n  Commitments %d of %d (page %d)\n", len(page.Items), page.Total, page.Page)
	c.printCommitments(page.Items)
}

func (c *Console) printCommitments(list []domain.Commitment) {
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Entry", "Strategy", "Selection", "Price", "Stake", "EV", "Status", "Exit", "Net")
	for _, cm := range list {
		exit := "-"
		if cm.ExitTime != nil {
			exit = fmt.Sprintf("%.3f", cm.ExitPrice)
		} else if cm.LastPrice > 0 && !cm.AssetClass.IsBet() {
			exit = fmt.Sprintf("~%.3f", cm.LastPrice)
		}
		tbl.Append(
			cm.EntryTime.Local().Format("01-02 15:04"),
			cm.StrategyID,
			closeLabel(cm),
			fmt.Sprintf("%.3f", cm.EntryPrice),
			money(cm.Stake),
			fmt.Sprintf("%+.1f%%", cm.EVPct*100),
			string(cm.Status),
			exit,
			money(cm.NetPnL),
		)
	}
	tbl.Render()
}
