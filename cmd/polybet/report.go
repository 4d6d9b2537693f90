package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alejandrodnm/polybet/internal/adapters/notify"
	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/ports"
)

func runLeaderboard(ctx context.Context, eng *engine.Engine, console *notify.Console) {
	rows, err := eng.Leaderboard(ctx)
	if err != nil {
		slog.Error("failed to build leaderboard", "err", err)
		os.Exit(1)
	}
	console.PrintLeaderboard(rows)
}

func runDetail(ctx context.Context, eng *engine.Engine, console *notify.Console, id string) {
	requireFlag("strategy", id)
	d, err := eng.StrategyDetail(ctx, id, 20)
	if err != nil {
		slog.Error("failed to load strategy", "err", err, "strategy", id)
		os.Exit(1)
	}
	console.PrintStrategyDetail(d)
}

func runCommitments(ctx context.Context, eng *engine.Engine, console *notify.Console, id, status string, page int) {
	f := ports.CommitmentFilter{StrategyID: id, Page: page, Limit: 50}
	if status != "" {
		st, err := domain.ParseCommitmentStatus(status)
		if err != nil {
			slog.Error("invalid status", "err", err)
			os.Exit(2)
		}
		f.Status = st
	}
	res, err := eng.Commitments(ctx, f)
	if err != nil {
		slog.Error("failed to list commitments", "err", err)
		os.Exit(1)
	}
	console.PrintCommitments(res)
}

func runReset(ctx context.Context, eng *engine.Engine, id string) {
	requireFlag("strategy", id)
	s, err := eng.ResetStrategy(ctx, id)
	if err != nil {
		slog.Error("reset failed", "err", err, "strategy", id)
		os.Exit(1)
	}
	fmt.Printf("strategy %s reset: status %s, bankroll $%.2f\n", s.ID, s.Status, s.InitialBankroll)
}

func runClose(ctx context.Context, eng *engine.Engine, id string, price float64) {
	requireFlag("id", id)
	c, err := eng.CloseManual(ctx, id, price)
	if err != nil {
		slog.Error("close failed", "err", err, "commitment", id)
		os.Exit(1)
	}
	fmt.Printf("commitment %s closed at %.4f: net $%.2f (%s)\n", c.ID, c.ExitPrice, c.NetPnL, c.Result)
}

func requireFlag(name, v string) {
	if v == "" {
		slog.Error("missing required flag", "flag", "-"+name)
		os.Exit(2)
	}
}
