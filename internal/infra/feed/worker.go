// Package feed connects to a websocket tick feed and turns each message into
// a sequenced MarketUpdateEvent.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/event"
	"swarm_hft/internal/infra"
)

const (
	handshakeTimeout   = 10 * time.Second
	defaultReadTimeout = 60 * time.Second
)

// Config configures a Worker.
type Config struct {
	URL         string
	Exchange    string
	Symbols     []string
	MaxBackoff  time.Duration
	ReadTimeout time.Duration
}

// tickMessage is one feed message. Book sides are [price, volume] pairs,
// best level first.
type tickMessage struct {
	Type   string       `json:"type"` // tick
	Symbol string       `json:"symbol"`
	Price  float64      `json:"price"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
	TsMs   int64        `json:"ts"`
}

type subscribeMessage struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// Worker handles the feed WebSocket connection. It is the only producer for
// its inbox: sends block so the sequence never has gaps.
type Worker struct {
	cfg       Config
	inbox     chan<- event.Event
	nextSeq   uint64
	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ domain.ExchangeWorker = (*Worker)(nil)

// NewWorker creates a feed worker whose first event carries startSeq.
func NewWorker(cfg Config, inbox chan<- event.Event, startSeq uint64) *Worker {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if startSeq == 0 {
		startSeq = 1
	}
	return &Worker{
		cfg:     cfg,
		inbox:   inbox,
		nextSeq: startSeq,
	}
}

// Connect starts the WebSocket connection with automatic reconnection
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff
func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feed panic recovered", slog.Any("panic", r))
		}
	}()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Feed connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			infra.GlobalMetrics.RecordError()
			if !domain.IsRetriable(err) {
				slog.Error("Feed connection failed permanently", slog.Any("error", err))
				return
			}
			delay := infra.CalculateBackoff(attempt, w.cfg.MaxBackoff)
			slog.Warn("Feed connection failed",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
			)
			attempt++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		attempt = 0
		w.readLoop(ctx)
	}
}

// connect establishes the WebSocket connection and subscribes to symbols
func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	if u, err := url.Parse(w.cfg.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return domain.NewFatalNetworkError("dial", fmt.Errorf("invalid feed URL %q", w.cfg.URL))
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	infra.GlobalMetrics.IncrementConnections()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return domain.NewNetworkError("subscribe", err)
	}

	slog.Info("Feed WebSocket connected",
		slog.String("url", w.cfg.URL),
		slog.Int("symbols", len(w.cfg.Symbols)),
	)
	return nil
}

func (w *Worker) subscribe() error {
	if len(w.cfg.Symbols) == 0 {
		return nil
	}
	msg, err := json.Marshal(subscribeMessage{Op: "subscribe", Symbols: w.cfg.Symbols})
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, msg)
}

// threadSafeWrite sends a message to the WebSocket connection in a thread-safe manner
func (w *Worker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return domain.ErrConnectionFailed
	}
	return conn.WriteMessage(messageType, data)
}

// readLoop reads messages until the connection fails or ctx is done
func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Feed WebSocket read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		ev, ok := w.parse(message)
		if !ok {
			continue
		}
		select {
		case w.inbox <- ev:
			w.nextSeq++
			infra.GlobalMetrics.RecordEvent()
		case <-ctx.Done():
			event.ReleaseMarketUpdateEvent(ev)
			return
		}
	}
}

// parse turns a tick message into a pooled event stamped with the next
// sequence number. Non-tick and malformed messages are skipped.
func (w *Worker) parse(message []byte) (*event.MarketUpdateEvent, bool) {
	var msg tickMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Debug("Feed message parse error", slog.Any("error", err))
		return nil, false
	}
	if msg.Type != "tick" {
		return nil, false
	}
	if msg.Symbol == "" {
		slog.Debug("Feed tick skipped", slog.Any("error", domain.ErrInvalidSymbol))
		return nil, false
	}

	ts := msg.TsMs * 1000
	if ts == 0 {
		ts = time.Now().UnixMicro()
	}

	ev := event.AcquireMarketUpdateEvent()
	ev.Seq = w.nextSeq
	ev.Ts = ts
	ev.Symbol = msg.Symbol
	ev.Price = msg.Price
	ev.Exchange = w.cfg.Exchange
	for _, l := range msg.Bids {
		ev.Bids = append(ev.Bids, domain.BookLevel{Price: l[0], Volume: l[1]})
	}
	for _, l := range msg.Asks {
		ev.Asks = append(ev.Asks, domain.BookLevel{Price: l[0], Volume: l[1]})
	}
	return ev, true
}

// closeConnection safely closes the WebSocket connection
func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		infra.GlobalMetrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect closes the WebSocket connection
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("Feed WebSocket disconnected")
}

// IsConnected returns connection status
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
