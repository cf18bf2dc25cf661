package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof" // For pprof profiling

	"github.com/spf13/cobra"

	"swarm_hft/internal/app"
	"swarm_hft/internal/event"
	"swarm_hft/internal/infra/feed"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const metricsInterval = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "swarmhft",
		Short:         "Swarm-intelligence HFT decision engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Trade the live feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLive(configPath)
		},
	}

	var (
		from   uint64
		record bool
		dump   string
	)
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run the recorded event WAL through fresh swarms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd.Context(), configPath, from, record, dump)
		},
	}
	replayCmd.Flags().Uint64Var(&from, "from", 1, "first sequence number to replay")
	replayCmd.Flags().BoolVar(&record, "record", false, "persist replayed decisions under a new session")
	replayCmd.Flags().StringVar(&dump, "dump", "", "write the final engine state to this file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "swarmhft", version)
		},
	}

	root.AddCommand(runCmd, replayCmd, versionCmd)
	return root
}

func runLive(configPath string) error {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return err
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	if cfg.Debug.PprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", cfg.Debug.PprofAddr))
			if err := http.ListenAndServe(cfg.Debug.PprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Strategy & Sequencer, resuming after the persisted WAL
	startSeq, err := bootstrap.ResumeSeq(ctx)
	if err != nil {
		return err
	}
	event.Warmup()
	seq := bootstrap.NewSequencer(bootstrap.Storage, bootstrap.NewStrategy(), startSeq, cfg.Storage.RecordDecisions)

	go seq.Run(ctx)
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started", slog.Uint64("start_seq", startSeq))

	// 5. Feed Worker
	worker := feed.NewWorker(feed.Config{
		URL:         cfg.Feed.URL,
		Exchange:    cfg.Feed.Exchange,
		Symbols:     cfg.Feed.Symbols,
		MaxBackoff:  time.Duration(cfg.Feed.MaxBackoffSec) * time.Second,
		ReadTimeout: time.Duration(cfg.Feed.ReadTimeoutSec) * time.Second,
	}, seq.Inbox(), startSeq)
	if err := worker.Connect(ctx); err != nil {
		slog.Error("Failed to connect feed", slog.Any("error", err))
	}
	defer worker.Disconnect()
	slog.InfoContext(ctx, "✅ Feed worker started", slog.Int("symbols", len(cfg.Feed.Symbols)))

	go logMetrics(ctx, bootstrap)

	slog.InfoContext(ctx, "✨ SwarmHFT fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	return nil
}

func runReplay(ctx context.Context, configPath string, from uint64, record bool, dump string) error {
	bootstrap := app.NewBootstrap(configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return err
	}
	defer bootstrap.Close()

	records, err := bootstrap.Storage.LoadEvents(ctx, from)
	if err != nil {
		return fmt.Errorf("load WAL: %w", err)
	}
	if len(records) == 0 {
		slog.Info("Nothing to replay", slog.Uint64("from", from))
		return nil
	}

	seq := bootstrap.NewSequencer(nil, bootstrap.NewStrategy(), records[0].Seq, record)

	start := time.Now()
	n, err := seq.ReplayAll(records)
	snap := bootstrap.Metrics.Snapshot()
	slog.Info("🔁 Replay finished",
		slog.Int("events", n),
		slog.Duration("elapsed", time.Since(start)),
		slog.Uint64("iterations", snap.Iterations),
		slog.Uint64("trades", snap.Trades),
		slog.Uint64("no_trade", snap.NoTrades),
		slog.Uint64("degenerate", snap.Degenerate),
		globalBestAttr(snap.GlobalBest))

	if record {
		logRecordedDecisions(ctx, bootstrap)
	}
	if dump != "" {
		seq.DumpState(dump)
	}
	return err
}

// logRecordedDecisions prints the newest decisions this session persisted.
func logRecordedDecisions(ctx context.Context, b *app.Bootstrap) {
	const perSymbol = 5
	bySymbol, err := app.SessionDecisions(ctx, b.Storage, b.SessionID, b.Config.Feed.Symbols, perSymbol)
	if err != nil {
		slog.Warn("Failed to read recorded decisions", slog.Any("error", err))
		return
	}
	for sym, recs := range bySymbol {
		for _, r := range recs {
			slog.Info("📒 Recorded decision",
				slog.String("symbol", sym),
				slog.Uint64("seq", r.Seq),
				slog.String("side", r.Side),
				slog.String("entry", r.Entry.String()),
				slog.Int64("qty", r.Quantity),
				slog.Float64("fitness", r.Fitness))
		}
	}
}

// globalBestAttr avoids logging -Inf, which the JSON handler cannot encode.
func globalBestAttr(v float64) slog.Attr {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return slog.String("global_best", "none")
	}
	return slog.Float64("global_best", v)
}

// logMetrics periodically logs a metrics snapshot until ctx is done.
func logMetrics(ctx context.Context, b *app.Bootstrap) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := b.Metrics.Snapshot()
			slog.Info("📊 Metrics",
				slog.Uint64("events", snap.EventsProcessed),
				slog.Uint64("iterations", snap.Iterations),
				slog.Uint64("trades", snap.Trades),
				slog.Uint64("no_trade", snap.NoTrades),
				slog.Uint64("degenerate", snap.Degenerate),
				slog.Uint64("errors", snap.ErrorsTotal),
				slog.Int64("avg_iteration_ns", snap.AvgLatencyNs),
				slog.Int("connections", int(snap.ActiveConnections)),
				globalBestAttr(snap.GlobalBest))
		}
	}
}
