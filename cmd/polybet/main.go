package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polybet/config"
	"github.com/alejandrodnm/polybet/internal/adapters/feed"
	"github.com/alejandrodnm/polybet/internal/adapters/httpapi"
	"github.com/alejandrodnm/polybet/internal/adapters/notify"
	"github.com/alejandrodnm/polybet/internal/adapters/storage"
	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/application/scanner"
	"github.com/alejandrodnm/polybet/internal/cache"
	"github.com/alejandrodnm/polybet/internal/lifecycle"
	"github.com/alejandrodnm/polybet/internal/ports"
	"github.com/alejandrodnm/polybet/internal/registry"
)

// collaborator agrupa los puertos que cubre un mismo adapter de feed.
type collaborator interface {
	ports.OpportunityFeed
	ports.PriceProvider
	ports.OutcomeProvider
	ports.SignalProvider
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "run", "run | scan | leaderboard | detail | commitments | reset | close")
	once := flag.Bool("once", false, "run one full cycle (elimination and snapshot included) and exit")
	dryRun := flag.Bool("dry-run", false, "use local JSON fixtures instead of the HTTP feed")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print candidate tables on every scan (default: compact 1-line)")
	serve := flag.String("serve", "", "serve the HTTP API on this address (overrides config)")
	strategyID := flag.String("strategy", "", "strategy id for detail, commitments and reset")
	commitmentID := flag.String("id", "", "commitment id for close")
	price := flag.Float64("price", 0, "exit price for close (0 = last known price)")
	status := flag.String("status", "", "status filter for commitments")
	page := flag.Int("page", 1, "page for commitments")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *serve != "" {
		cfg.Server.Addr = *serve
	}
	setupLogger(cfg.Log)

	slog.Info("polybet starting",
		"config", *configPath,
		"mode", *mode,
		"interval", cfg.EngineSettings().Interval,
		"dry_run", *dryRun,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	reg, err := buildRegistry(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to load strategies", "err", err)
		os.Exit(1)
	}

	var source collaborator
	if *dryRun {
		source = feed.NewFixtures(cfg.Feed.FixturesDir)
	} else {
		source = feed.NewClient(cfg.FeedSettings(), cache.NewTTL[string, []byte](cfg.CacheTTL()))
	}

	console := notify.NewConsole(*table, 15)
	var scanNotifier ports.Notifier
	if *table || *mode == "scan" {
		scanNotifier = console
	}
	sc := scanner.New(cfg.ScannerSettings(), source, scanNotifier)

	lc, err := cfg.LifecycleRules()
	if err != nil {
		slog.Error("invalid lifecycle config", "err", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg.EngineSettings(), engine.Deps{
		Scanner:   sc,
		Prices:    source,
		Outcomes:  source,
		Signals:   source,
		Store:     store,
		Registry:  reg,
		Lifecycle: lifecycle.NewManager(lc),
		Sizing:    cfg.SizingDefaults(),
		Rules:     cfg.EliminationRules(),
		Windows:   cache.NewPriceWindow(cfg.WindowSize()),
	})
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}

	switch *mode {
	case "run":
		// el flujo principal sigue abajo
	case "scan":
		if _, _, err := sc.Scan(ctx); err != nil {
			slog.Error("scan failed", "err", err)
			os.Exit(1)
		}
		return
	case "leaderboard":
		runLeaderboard(ctx, eng, console)
		return
	case "detail":
		runDetail(ctx, eng, console, *strategyID)
		return
	case "commitments":
		runCommitments(ctx, eng, console, *strategyID, *status, *page)
		return
	case "reset":
		runReset(ctx, eng, *strategyID)
		return
	case "close":
		runClose(ctx, eng, *commitmentID, *price)
		return
	default:
		slog.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}

	if *once {
		console.PrintCycle(eng.RunCycle(ctx, true))
		runLeaderboard(ctx, eng, console)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Addr != "" {
		if cfg.Server.AdminToken == "" {
			slog.Warn("admin token not set, admin routes are disabled")
		}
		srv := httpapi.New(eng, cfg.Server.AdminToken)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.Addr) })
	}
	g.Go(func() error {
		defer cancel() // parar el servidor cuando el loop termina por STOP
		return eng.Run(gctx, console.PrintCycle)
	})

	if err := g.Wait(); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	runLeaderboard(context.Background(), eng, console)
	slog.Info("polybet stopped cleanly")
}

// buildRegistry siembra las estrategias del config y recupera el estado
// persistido (eliminaciones) antes de armar el registry.
func buildRegistry(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) (*registry.Registry, error) {
	strategies, err := cfg.StrategyList()
	if err != nil {
		return nil, err
	}
	if err := store.SeedStrategies(ctx, strategies); err != nil {
		return nil, err
	}
	reg, err := registry.New(strategies)
	if err != nil {
		return nil, err
	}
	persisted, err := store.ListStrategies(ctx)
	if err != nil {
		return nil, err
	}
	reg.Sync(persisted)
	return reg, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
