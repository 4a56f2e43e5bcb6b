// Command flox wires together the event distribution core: a ring buffer
// per event family, an object pool for variable-sized book updates, the
// order book keeper, bar aggregator, multi-exchange composite layer, order
// lifecycle tracker, and replay codec, then runs until SIGINT/SIGTERM.
//
// Architecture:
//
//	main.go                — entry point: loads config, wires subsystems, waits for signal
//	internal/bus           — Disruptor-style ring buffer, one per event family
//	internal/pool          — refcounted object pool backing pooled events (book updates)
//	internal/book          — per-symbol N-level order book, fed by the book-update bus
//	internal/bar           — OHLCV bar aggregation, fed by the trade bus
//	internal/composite     — cross-exchange top-of-book, position tracking, order routing
//	internal/registry      — symbol/exchange id assignment and equivalence groups
//	internal/order         — order lifecycle state machine
//	internal/strategy      — strategy runtime contracts and signal handling
//	internal/replay        — binary segment/frame codec for trade and book history
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flox/internal/bar"
	"flox/internal/book"
	"flox/internal/bus"
	"flox/internal/composite"
	"flox/internal/config"
	"flox/internal/events"
	"flox/internal/metrics"
	"flox/internal/order"
	"flox/internal/pool"
	"flox/internal/registry"
	"flox/internal/replay"
	"flox/pkg/numeric"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FLOX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	rec := newRecorder(cfg.Metrics)
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.Addr, rec, logger)
	}

	reg := registry.New()
	exchange := reg.RegisterExchange("primary")
	logger.Info("registered default exchange", "exchange_id", exchange)

	svc, err := newCore(*cfg, rec, logger)
	if err != nil {
		logger.Error("failed to build core", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start core", "error", err)
		os.Exit(1)
	}

	logger.Info("flox started",
		"bus_capacity", cfg.Bus.Capacity,
		"book_max_levels", cfg.Book.MaxLevels,
		"router_strategy", cfg.Router.Strategy,
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
		shutdownCancel()
	}

	svc.Stop()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
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
	return slog.New(handler)
}

func newRecorder(cfg config.MetricsConfig) *metrics.Recorder {
	if !cfg.Enabled {
		return nil
	}
	return metrics.New()
}

func startMetricsServer(addr string, rec *metrics.Recorder, logger *slog.Logger) *http.Server {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rec.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server started", "addr", addr)
	return srv
}

// core owns every wired subsystem and their Start/Stop ordering: buses
// start before anything subscribes work onto them and stop only after
// every downstream consumer has drained, the same shape the reference implementation's engine uses for market slots.
type core struct {
	logger *slog.Logger
	cfg    config.Config

	tradeBus    *bus.Bus[events.Trade]
	bookBus     *bus.Bus[pool.Handle[events.BookUpdate]]
	barBus      *bus.Bus[events.Bar]
	bookPool    *pool.Pool[events.BookUpdate]
	keeper      *book.Keeper
	aggregator  *bar.Aggregator
	compositeBk *composite.Book
	positions   *composite.PositionTracker
	clock       *composite.ClockSync
	router      *composite.Router
	orders      *order.Tracker

	replayEncoder *replay.Encoder
	replayFile    *os.File
}

func newCore(cfg config.Config, rec *metrics.Recorder, logger *slog.Logger) (*core, error) {
	tradeBus, err := bus.New[events.Trade]("trades", cfg.Bus, nil, rec, logger.Warn)
	if err != nil {
		return nil, fmt.Errorf("create trade bus: %w", err)
	}
	bookBus, err := bus.New[pool.Handle[events.BookUpdate]]("book-updates", cfg.Bus, nil, rec, logger.Warn)
	if err != nil {
		return nil, fmt.Errorf("create book-update bus: %w", err)
	}
	barBus, err := bus.New[events.Bar]("bars", cfg.Bus, nil, rec, logger.Warn)
	if err != nil {
		return nil, fmt.Errorf("create bar bus: %w", err)
	}

	bookPool := pool.New[events.BookUpdate]("book-updates", cfg.Pool, rec)
	keeper := book.NewKeeper(cfg.Book, rec, logger.With("component", "book"))
	aggregator := bar.NewAggregator(policyFactory(cfg.Aggregator, cfg.Book), barBus, cfg.Aggregator.MaxSymbols)

	symbolTick := numericTickFromConfig(cfg.Book.TickSize)
	compositeBk := composite.NewBook(0, symbolTick, 8)
	positions := composite.NewPositionTracker()
	clock := composite.NewClockSync()
	router := composite.NewRouter(cfg.Router, compositeBk, clock)

	orders := order.NewTracker()

	if _, err := tradeBus.Subscribe(bus.ListenerFunc[events.Trade](func(_ uint64, ev *events.Trade, placeholder bool) {
		if placeholder {
			return
		}
		aggregator.OnTrade(ev)
	}), true); err != nil {
		return nil, fmt.Errorf("subscribe bar aggregator to trade bus: %w", err)
	}

	if _, err := bookBus.Subscribe(bus.ListenerFunc[pool.Handle[events.BookUpdate]](func(_ uint64, ev *pool.Handle[events.BookUpdate], placeholder bool) {
		if placeholder || !ev.Valid() {
			return
		}
		_ = keeper.Apply(ev.Value())
	}), true); err != nil {
		return nil, fmt.Errorf("subscribe book keeper to book-update bus: %w", err)
	}

	c := &core{
		logger:      logger,
		cfg:         cfg,
		tradeBus:    tradeBus,
		bookBus:     bookBus,
		barBus:      barBus,
		bookPool:    bookPool,
		keeper:      keeper,
		aggregator:  aggregator,
		compositeBk: compositeBk,
		positions:   positions,
		clock:       clock,
		router:      router,
		orders:      orders,
	}

	if cfg.Replay.DataDir != "" {
		if err := c.openReplaySegment(cfg.Replay); err != nil {
			return nil, fmt.Errorf("open replay segment: %w", err)
		}
	}

	return c, nil
}

func (c *core) openReplaySegment(cfg config.ReplayConfig) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.DataDir, "segment-0001.flox")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	compression := replay.CompressionNone
	blockFrames := 1
	if cfg.CompressBlocks > 0 {
		compression = replay.CompressionFlate
		blockFrames = cfg.CompressBlocks
	}
	enc, err := replay.NewEncoder(f, compression, blockFrames, cfg.WriteIndex, time.Now().UnixNano())
	if err != nil {
		f.Close()
		return err
	}
	c.replayFile = f
	c.replayEncoder = enc
	return nil
}

// Start brings up every bus before anything can be published onto it.
// Subscriptions must already be in place: Bus.Subscribe only succeeds
// before Start per internal/bus's own doc comment.
func (c *core) Start(ctx context.Context) error {
	if err := c.tradeBus.Start(ctx); err != nil {
		return fmt.Errorf("start trade bus: %w", err)
	}
	if err := c.bookBus.Start(ctx); err != nil {
		return fmt.Errorf("start book-update bus: %w", err)
	}
	if err := c.barBus.Start(ctx); err != nil {
		return fmt.Errorf("start bar bus: %w", err)
	}
	return nil
}

// Stop drains and stops tradeBus first, flushes the bar aggregator's final
// partial bars onto barBus, then stops bookBus and barBus (the same order
// Start brings the buses up in), then finalizes the replay segment so its trailing index and frame
// count are correct on disk.
func (c *core) Stop() {
	c.tradeBus.Stop()
	c.aggregator.Flush()
	c.bookBus.Stop()
	c.barBus.Stop()

	if c.replayEncoder != nil {
		if err := c.replayEncoder.Close(); err != nil {
			c.logger.Error("failed to close replay segment", "error", err)
		}
	}
	if c.replayFile != nil {
		if err := c.replayFile.Close(); err != nil {
			c.logger.Error("failed to close replay file", "error", err)
		}
	}
}

// numericTickFromConfig converts a YAML-configured float tick/price into
// fixed-point Price the same way book.Keeper converts its own TickSize:
// numeric.FromFloatPrice(x, 0) scales without snapping to a coarser tick.
func numericTickFromConfig(x float64) numeric.Price {
	return numeric.FromFloatPrice(x, 0)
}

func policyFactory(cfg config.AggregatorConfig, bookCfg config.BookConfig) bar.PolicyFactory {
	tick := numericTickFromConfig(bookCfg.TickSize)
	switch cfg.PolicyKind {
	case "tick":
		return func() bar.Policy { return bar.TickPolicy{N: int64(cfg.TickCount)} }
	case "volume":
		thresholdRaw := numericTickFromConfig(cfg.VolumeThresh).Raw()
		return func() bar.Policy { return bar.VolumePolicy{ThresholdRaw: thresholdRaw} }
	case "range":
		return func() bar.Policy { return bar.RangePolicy{Ticks: int64(cfg.RangeTicks), TickSize: tick} }
	case "renko":
		brickRaw := tick.Raw() * int64(cfg.BrickTicks)
		return func() bar.Policy { return &bar.RenkoPolicy{BrickRaw: brickRaw} }
	case "heikin_ashi":
		intervalNs := cfg.Interval.Nanoseconds()
		return func() bar.Policy { return &bar.HeikinAshiPolicy{IntervalNs: intervalNs} }
	default: // "time"
		intervalNs := cfg.Interval.Nanoseconds()
		return func() bar.Policy { return bar.TimePolicy{IntervalNs: intervalNs} }
	}
}
