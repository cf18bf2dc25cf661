package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/event"
	"swarm_hft/internal/feature"
	"swarm_hft/internal/strategy"
)

// EventStore is the write-ahead log of sequenced events.
type EventStore interface {
	SaveEvent(ctx context.Context, ev event.Event) error
}

// ActionHandler receives every strategy action with the sequence of the
// event that produced it.
type ActionHandler func(seq uint64, action strategy.Action)

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithActionHandler sets the action callback.
func WithActionHandler(h ActionHandler) Option {
	return func(s *Sequencer) { s.onAction = h }
}

// WithFeatureWindow sets the price window of each symbol's analyzer.
func WithFeatureWindow(n int) Option {
	return func(s *Sequencer) { s.featureWindow = n }
}

// WithStartSeq sets the first expected sequence number, for resuming
// after an existing WAL or replaying from the middle of one.
func WithStartSeq(seq uint64) Option {
	return func(s *Sequencer) {
		if seq > 0 {
			s.nextSeq = seq
		}
	}
}

// WithDumpPath sets where the panic state dump is written.
func WithDumpPath(path string) Option {
	return func(s *Sequencer) { s.dumpPath = path }
}

// Sequencer is the core single-threaded event processor.
type Sequencer struct {
	inbox     chan event.Event
	markets   map[string]*domain.MarketState
	analyzers map[string]*feature.Analyzer
	nextSeq   uint64
	store     EventStore

	strategy strategy.Strategy
	onAction ActionHandler

	featureWindow int
	dumpPath      string

	mu sync.RWMutex // guards markets for external reads
}

// NewSequencer creates a new sequencer instance. store and strat may be nil.
func NewSequencer(inboxSize int, store EventStore, strat strategy.Strategy, opts ...Option) *Sequencer {
	s := &Sequencer{
		inbox:         make(chan event.Event, inboxSize),
		markets:       make(map[string]*domain.MarketState),
		analyzers:     make(map[string]*feature.Analyzer),
		nextSeq:       1,
		store:         store,
		strategy:      strat,
		featureWindow: feature.DefaultWindow,
		dumpPath:      "panic_dump.json",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inbox returns the event channel. External workers send events here.
// Pooled MarketUpdateEvents are released after processing.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// NextSeq returns the sequence number the sequencer expects next.
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// Run starts the main event loop. This MUST be run in a single goroutine.
// It returns when ctx is done or a SystemHaltEvent is processed.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (Single-Thread Hotpath)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			halt := s.processEvent(ev)
			if mu, ok := ev.(*event.MarketUpdateEvent); ok {
				event.ReleaseMarketUpdateEvent(mu)
			}
			if halt {
				slog.Info("Sequencer halted by event")
				return
			}
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) bool {
	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. WAL-first: Persistence
	if s.store != nil {
		if err := s.store.SaveEvent(context.Background(), ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 3. Logic Dispatch
	halt := s.dispatch(ev)

	// 4. Increment Sequence
	s.advance()
	return halt
}

// ReplayEvent processes an event synchronously without WAL logging.
// It reports whether the event halts the sequencer.
func (s *Sequencer) ReplayEvent(ev event.Event) bool {
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	halt := s.dispatch(ev)
	s.advance()
	return halt
}

// ReplayAll decodes and replays WAL records in order, stopping at a halt
// event. Gaps and strategy failures are returned as errors instead of
// panicking.
func (s *Sequencer) ReplayAll(records []domain.EventRecord) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replay halted after %d events: %v", n, r)
		}
	}()

	for _, rec := range records {
		ev, err := event.Decode(rec)
		if err != nil {
			return n, err
		}
		halt := s.ReplayEvent(ev)
		n++
		if halt {
			break
		}
	}
	return n, nil
}

func (s *Sequencer) advance() {
	s.mu.Lock()
	s.nextSeq++
	s.mu.Unlock()
}

func (s *Sequencer) dispatch(ev event.Event) bool {
	switch e := ev.(type) {
	case *event.MarketUpdateEvent:
		s.handleMarketUpdate(e)
	case *event.SystemHaltEvent:
		slog.Warn("SYSTEM_HALT", slog.Uint64("seq", e.Seq), slog.String("reason", e.Reason))
		return true
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
	return false
}

func (s *Sequencer) handleMarketUpdate(e *event.MarketUpdateEvent) {
	an, ok := s.analyzers[e.Symbol]
	if !ok {
		an = feature.NewAnalyzer(s.featureWindow)
		s.analyzers[e.Symbol] = an
	}
	an.Update(e.Price, e.Bids, e.Asks)

	s.mu.Lock()
	state, ok := s.markets[e.Symbol]
	if !ok {
		state = &domain.MarketState{Symbol: e.Symbol}
		s.markets[e.Symbol] = state
	}
	state.Features = an.Features()
	state.LastUpdateUnixM = e.Ts
	state.Ticks++
	snapshot := *state
	s.mu.Unlock()

	if s.strategy == nil {
		return
	}

	// A strategy error is a configuration bug (e.g. dimension mismatch): halt.
	actions, err := s.strategy.OnMarketUpdate(snapshot)
	if err != nil {
		panic(fmt.Sprintf("STRATEGY_FAILURE: seq %d: %v", e.Seq, err))
	}
	for _, action := range actions {
		slog.Info("STRATEGY_ACTION",
			slog.Uint64("seq", e.Seq),
			slog.String("symbol", action.Symbol),
			slog.String("side", action.Type.String()),
			slog.String("entry", action.Entry.String()),
			slog.Int64("qty", action.Qty),
			slog.Float64("fitness", action.Fitness))
		if s.onAction != nil {
			s.onAction(e.Seq, action)
		}
	}
}

// GetMarketState returns a snapshot of the market state (external read).
func (s *Sequencer) GetMarketState(symbol string) (domain.MarketState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.markets[symbol]
	if !ok {
		return domain.MarketState{}, false
	}
	return *state, true
}

// DumpState writes the entire internal state to a file (for post-mortem).
// Non-finite features are written as strings. If the strategy state cannot
// be encoded it is replaced by the error so the market state still lands.
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	s.mu.RLock()
	data := struct {
		NextSeq  uint64                `json:"next_seq"`
		Markets  map[string]dumpMarket `json:"markets"`
		Strategy any                   `json:"strategy,omitempty"`
	}{
		NextSeq: s.nextSeq,
		Markets: make(map[string]dumpMarket, len(s.markets)),
	}
	for sym, m := range s.markets {
		data.Markets[sym] = newDumpMarket(m)
	}
	s.mu.RUnlock()

	if d, ok := s.strategy.(strategy.StateDumper); ok {
		data.Strategy = d.DumpState()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil && data.Strategy != nil {
		slog.Warn("Strategy state not encodable", slog.Any("error", err))
		data.Strategy = fmt.Sprintf("unavailable: %v", err)
		b, err = json.MarshalIndent(data, "", "  ")
	}
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

// dumpFloat encodes NaN and ±Inf as strings instead of failing.
type dumpFloat float64

func (f dumpFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

type dumpFeatures struct {
	Price              dumpFloat `json:"price"`
	BidAskSpread       dumpFloat `json:"bid_ask_spread"`
	OrderFlowImbalance dumpFloat `json:"order_flow_imbalance"`
	LiquidityShift     dumpFloat `json:"liquidity_shift"`
	TrendlineSlope     dumpFloat `json:"trendline_slope"`
	Volatility         dumpFloat `json:"volatility"`
}

type dumpMarket struct {
	Features        dumpFeatures `json:"features"`
	LastUpdateUnixM int64        `json:"last_update"`
	Ticks           uint64       `json:"ticks"`
	Symbol          string       `json:"symbol"`
}

func newDumpMarket(m *domain.MarketState) dumpMarket {
	f := m.Features
	return dumpMarket{
		Features: dumpFeatures{
			Price:              dumpFloat(f.Price),
			BidAskSpread:       dumpFloat(f.BidAskSpread),
			OrderFlowImbalance: dumpFloat(f.OrderFlowImbalance),
			LiquidityShift:     dumpFloat(f.LiquidityShift),
			TrendlineSlope:     dumpFloat(f.TrendlineSlope),
			Volatility:         dumpFloat(f.Volatility),
		},
		LastUpdateUnixM: m.LastUpdateUnixM,
		Ticks:           m.Ticks,
		Symbol:          m.Symbol,
	}
}
