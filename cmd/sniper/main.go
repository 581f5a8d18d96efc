package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/adapters/lock"
	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysniper/internal/adapters/storage"
	"github.com/alejandrodnm/polysniper/internal/application/inference"
	"github.com/alejandrodnm/polysniper/internal/application/resolver"
	"github.com/alejandrodnm/polysniper/internal/application/sniper"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

func main() {
	os.Exit(run())
}

// run devuelve el código de salida. Los errores se loguean aquí para que los
// defers (journal, lock, log) se ejecuten antes de os.Exit.
func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to config file (optional)")
	once := flag.Bool("once", false, "run a single session (or exit if no market is in range)")
	live := flag.Bool("live", false, "send real orders (requires POLY_PRIVATE_KEY)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	list := flag.Bool("list", false, "print current candidates and exit")
	history := flag.Int("history", 0, "print the last N journaled sessions and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *live {
		cfg.SetDryRun(false)
	}
	if *once {
		cfg.Sniper.RunOnce = true
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	slog.Info("polysniper starting",
		"config", *configPath,
		"dry_run", cfg.IsDryRun(),
		"once", cfg.Sniper.RunOnce,
		"ceiling", cfg.Sniper.BuyPriceCeiling,
		"notional", cfg.Sniper.NotionalUSDC,
		"trigger", cfg.TriggerWindow(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := polymarket.NewClient(polymarket.Endpoints{
		CLOB:  cfg.API.CLOBBase,
		Gamma: cfg.API.GammaBase,
		WS:    cfg.API.WSURL,
	})
	console := notify.NewConsole()
	alerter := buildNotifier(cfg.Notify)
	res := resolver.New(resolverConfig(cfg), client, alerter)

	if *history > 0 {
		if err := runHistory(ctx, cfg, console, *history); err != nil {
			slog.Error("history failed", "err", err)
			return 1
		}
		return 0
	}
	if *list {
		if err := runList(ctx, res, console); err != nil {
			slog.Error("candidate search failed", "err", err)
			return 1
		}
		return 0
	}

	deps := sniper.Deps{
		Targets: res,
		Books:   client,
		Stream: client.NewBookStream(polymarket.StreamConfig{
			MaxReconnects: cfg.Stream.MaxReconnects,
			ReconnectBase: time.Duration(cfg.Stream.ReconnectBaseMS) * time.Millisecond,
		}),
		Reporter: console,
		Alerter:  alerter,
	}

	if cfg.Journal.DSN != "" {
		journal, err := storage.NewSQLiteJournal(cfg.Journal.DSN)
		if err != nil {
			slog.Error("failed to open journal", "err", err, "dsn", cfg.Journal.DSN)
			return 1
		}
		defer journal.Close()
		deps.Journal = journal
	}

	if cfg.Lock.RedisAddr != "" {
		fireLock, err := lock.NewRedisLock(ctx, lock.Config{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		if err != nil {
			slog.Error("failed to connect fire lock", "err", err, "addr", cfg.Lock.RedisAddr)
			return 1
		}
		defer fireLock.Close()
		deps.Lock = fireLock
		slog.Info("fire lock enabled", "addr", cfg.Lock.RedisAddr, "ttl", cfg.LockTTL())
	}

	if !cfg.IsDryRun() {
		executor, err := setupLive(ctx, cfg, console)
		if errors.Is(err, errLiveAborted) {
			slog.Info("live mode aborted by user")
			return 0
		}
		if err != nil {
			slog.Error("live setup failed", "err", err)
			return 1
		}
		deps.Executor = executor
	}

	runner := sniper.NewRunner(runnerConfig(cfg), deps)
	if err := runner.Run(ctx); err != nil {
		slog.Error("sniper exited with error", "err", err)
		return 1
	}

	slog.Info("polysniper stopped cleanly")
	return 0
}

func runList(ctx context.Context, res *resolver.Resolver, console *notify.Console) error {
	candidates, err := res.Candidates(ctx)
	if err != nil {
		return err
	}
	if err := console.Candidates(ctx, candidates); err != nil {
		slog.Warn("console error", "err", err)
	}
	return nil
}

func runHistory(ctx context.Context, cfg *config.Config, console *notify.Console, n int) error {
	if cfg.Journal.DSN == "" {
		return fmt.Errorf("history requires journal.dsn (or JOURNAL_DSN)")
	}
	journal, err := storage.NewSQLiteJournal(cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer journal.Close()

	sessions, err := journal.Recent(ctx, n)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		slog.Info("journal is empty")
		return nil
	}
	for _, o := range sessions {
		console.Session(ctx, o)
	}
	return nil
}

func buildNotifier(cfg config.NotifyConfig) *notify.Notifier {
	senders := []notify.Sender{notify.LogSender{}}
	if cfg.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhook))
	}
	return notify.NewNotifier(senders...)
}

func resolverConfig(cfg *config.Config) resolver.Config {
	rc := resolver.DefaultConfig()
	rc.Queries = cfg.Resolver.Queries
	rc.IncludeDaily = cfg.IncludeDaily()
	rc.AssetKeywords = cfg.Resolver.AssetKeywords
	rc.ResolutionKeywords = cfg.Resolver.ResolutionKeywords
	rc.FifteenMinHorizon = hours(cfg.Resolver.FifteenMinHorizonHours)
	rc.DailyHorizon = hours(cfg.Resolver.DailyHorizonHours)
	rc.FifteenMinMonitorWindow = minutes(cfg.Resolver.FifteenMinMonitorMinutes)
	rc.DailyMonitorWindow = minutes(cfg.Resolver.DailyMonitorMinutes)
	rc.Workers = cfg.Resolver.Workers
	return rc
}

func runnerConfig(cfg *config.Config) sniper.RunnerConfig {
	rc := sniper.DefaultRunnerConfig()
	rc.RunOnce = cfg.Sniper.RunOnce
	rc.NoTargetBackoff = seconds(cfg.Sniper.NoTargetBackoffSeconds)
	rc.PostSessionPause = seconds(cfg.Sniper.PostFirePauseSeconds)
	rc.ErrorPause = seconds(cfg.Sniper.ErrorPauseSeconds)

	rc.Session.TriggerWindow = cfg.TriggerWindow()
	rc.Session.StatusInterval = seconds(cfg.Sniper.StatusIntervalSeconds)
	rc.Session.Inference = inference.Params{
		BuyPriceCeiling:   cfg.Sniper.BuyPriceCeiling,
		MinConfidence:     cfg.MinConfidence(),
		IlliquidThreshold: cfg.Sniper.IlliquidThreshold,
		TieBreak:          domain.ParseTieBreak(cfg.Sniper.TieBreak),
	}

	rc.Gate = sniper.GateConfig{
		Notional:  decimal.NewFromFloat(cfg.Sniper.NotionalUSDC),
		DryRun:    cfg.IsDryRun(),
		LockTTL:   cfg.LockTTL(),
		OrderType: domain.OrderTypeFOK,
	}
	return rc
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func minutes(f float64) time.Duration { return time.Duration(f * float64(time.Minute)) }

func hours(f float64) time.Duration { return time.Duration(f * float64(time.Hour)) }

// setupLogger configura slog. Con log.file se escribe también a un archivo
// rotado por lumberjack; la función devuelta lo cierra.
func setupLogger(cfg config.LogConfig) func() {
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

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { rotating.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn
}
