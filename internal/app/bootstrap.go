package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/engine"
	"swarm_hft/internal/infra"
	"swarm_hft/internal/infra/storage"
	"swarm_hft/internal/strategy"
	"swarm_hft/internal/swarm"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Config     *infra.Config
	Storage    *storage.Storage
	Metrics    *infra.Metrics
	SessionID  string

	// PreviousSession is the session recorded by the last start, if any.
	PreviousSession string
}

const settingLastSession = "last_session"

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{
		ConfigPath: configPath,
		Metrics:    infra.GlobalMetrics,
	}
}

// Initialize performs core system initialization: config, logger, storage.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping SwarmHFT...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Session
	ctx := context.Background()
	settings, err := store.Settings(ctx)
	if err != nil {
		slog.Warn("Failed to read settings", slog.Any("error", err))
	}
	b.PreviousSession = settings[settingLastSession]
	b.SessionID = uuid.NewString()
	if err := store.SaveSetting(ctx, settingLastSession, b.SessionID); err != nil {
		slog.Warn("Failed to record session", slog.Any("error", err))
	}
	slog.Info("✅ Session started",
		slog.String("session", b.SessionID),
		slog.String("previous", b.PreviousSession))

	return nil
}

// Close releases storage.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close storage", slog.Any("error", err))
		}
	}
}

// SwarmFactory builds one swarm per symbol. Each symbol gets its own seed
// derived from the configured seed so symbols do not share random streams
// and a replay with the same seed reproduces the run.
func (b *Bootstrap) SwarmFactory() strategy.SwarmFactory {
	base := b.Config.SwarmConfig()
	return func(symbol string) (*swarm.Swarm, error) {
		cfg := base
		cfg.Seed = SymbolSeed(base.Seed, symbol)
		return swarm.New(cfg)
	}
}

// SymbolSeed mixes the FNV-1a hash of symbol into seed.
func SymbolSeed(seed uint64, symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return seed ^ h.Sum64()
}

// NewStrategy builds the swarm strategy with metrics attached.
func (b *Bootstrap) NewStrategy() *strategy.SwarmStrategy {
	return strategy.NewSwarmStrategy(b.SwarmFactory(), b.observeDecision)
}

func (b *Bootstrap) observeDecision(_ string, d domain.Decision, elapsed time.Duration) {
	b.Metrics.RecordIteration(elapsed.Nanoseconds(), !d.IsNoTrade(), d.Degenerate)
	if !d.IsNoTrade() {
		b.Metrics.ObserveFitness(d.Fitness)
	}
}

// NewSequencer builds the sequencer. store is nil for replays, which must
// not write the WAL. Decisions are persisted when record is set.
func (b *Bootstrap) NewSequencer(store engine.EventStore, strat strategy.Strategy, startSeq uint64, record bool) *engine.Sequencer {
	opts := []engine.Option{
		engine.WithStartSeq(startSeq),
		engine.WithFeatureWindow(b.Config.Swarm.FeatureWindow),
		engine.WithDumpPath(b.Config.App.DumpPath),
	}
	if record {
		opts = append(opts, engine.WithActionHandler(NewDecisionRecorder(b.Storage, b.SessionID, b.Metrics)))
	}
	return engine.NewSequencer(b.Config.Feed.InboxSize, store, strat, opts...)
}

// NewDecisionRecorder returns an action handler that persists each action as
// a DecisionRecord. Write failures are logged and counted, never fatal.
func NewDecisionRecorder(repo domain.DecisionRepository, sessionID string, m *infra.Metrics) engine.ActionHandler {
	return func(seq uint64, a strategy.Action) {
		rec := &domain.DecisionRecord{
			SessionID:  sessionID,
			Symbol:     a.Symbol,
			Seq:        seq,
			Iteration:  a.Iteration,
			Side:       a.Type.String(),
			Entry:      a.Entry,
			Target:     a.Target,
			Stop:       a.Stop,
			Quantity:   a.Qty,
			Fitness:    a.Fitness,
			Agent:      a.Agent,
			Degenerate: a.Degenerate,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := repo.SaveDecision(ctx, rec); err != nil {
			m.RecordError()
			slog.Error("Failed to save decision",
				slog.Uint64("seq", seq),
				slog.Any("error", fmt.Errorf("save decision: %w", err)))
		}
	}
}

// SessionDecisions returns, per symbol, up to limit of the newest decisions
// recorded under sessionID. Symbols without any are left out.
func SessionDecisions(ctx context.Context, repo domain.DecisionRepository, sessionID string, symbols []string, limit int) (map[string][]domain.DecisionRecord, error) {
	out := make(map[string][]domain.DecisionRecord)
	for _, sym := range symbols {
		recs, err := repo.RecentDecisions(ctx, sym, limit)
		if err != nil {
			return nil, fmt.Errorf("recent decisions for %s: %w", sym, err)
		}
		for _, r := range recs {
			if r.SessionID == sessionID {
				out[sym] = append(out[sym], r)
			}
		}
	}
	return out, nil
}

// ResumeSeq returns the sequence number following the persisted WAL.
func (b *Bootstrap) ResumeSeq(ctx context.Context) (uint64, error) {
	last, err := b.Storage.LastSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("read WAL head: %w", err)
	}
	return last + 1, nil
}
