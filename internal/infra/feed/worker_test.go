package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"swarm_hft/internal/event"
)

// newFeedServer serves one connection per entry of sessions; each session
// is the list of raw messages written after the subscription is read.
func newFeedServer(t *testing.T, sessions ...[]string) (*httptest.Server, chan subscribeMessage) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	subs := make(chan subscribeMessage, len(sessions)+1)
	calls := make(chan int, 16)
	for i := range sessions {
		calls <- i
	}
	close(calls)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i, ok := <-calls
		if !ok {
			http.Error(w, "no more sessions", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub

		for _, msg := range sessions[i] {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		if i < len(sessions)-1 {
			return // drop the connection to force a reconnect
		}
		// keep the last session open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, subs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recv(t *testing.T, inbox <-chan event.Event) *event.MarketUpdateEvent {
	t.Helper()
	select {
	case ev := <-inbox:
		mu, ok := ev.(*event.MarketUpdateEvent)
		if !ok {
			t.Fatalf("Expected *MarketUpdateEvent, got %T", ev)
		}
		return mu
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for event")
		return nil
	}
}

func TestWorker_StreamsSequencedTicks(t *testing.T) {
	srv, subs := newFeedServer(t, []string{
		`{"type":"tick","symbol":"BTCUSDT","price":100.5,"bids":[[100.4,2],[100.3,1]],"asks":[[100.6,3]],"ts":1700000000000}`,
		`{"type":"heartbeat"}`,
		`not json`,
		`{"type":"tick","symbol":"BTCUSDT","price":100.7}`,
	})

	inbox := make(chan event.Event, 10)
	w := NewWorker(Config{URL: wsURL(srv), Exchange: "SIM", Symbols: []string{"BTCUSDT"}}, inbox, 1)
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer w.Disconnect()

	select {
	case sub := <-subs:
		if sub.Op != "subscribe" || len(sub.Symbols) != 1 || sub.Symbols[0] != "BTCUSDT" {
			t.Errorf("Unexpected subscription %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No subscription received")
	}

	first := recv(t, inbox)
	if first.Seq != 1 || first.Price != 100.5 || first.Exchange != "SIM" || first.Ts != 1700000000000000 {
		t.Errorf("Unexpected first event %+v", first)
	}
	if len(first.Bids) != 2 || first.Bids[1].Volume != 1 || len(first.Asks) != 1 || first.Asks[0].Price != 100.6 {
		t.Errorf("Unexpected book %+v / %+v", first.Bids, first.Asks)
	}

	second := recv(t, inbox)
	if second.Seq != 2 || second.Price != 100.7 || second.Ts == 0 {
		t.Errorf("Skipped messages must not consume sequence numbers, got %+v", second)
	}
	if !w.IsConnected() {
		t.Error("Worker should report connected")
	}
}

func TestWorker_ReconnectKeepsSequence(t *testing.T) {
	tick := func(price float64) string {
		b, _ := json.Marshal(tickMessage{Type: "tick", Symbol: "ETHUSDT", Price: price, TsMs: 1})
		return string(b)
	}
	srv, _ := newFeedServer(t,
		[]string{tick(1), tick(2)},
		[]string{tick(3)},
	)

	inbox := make(chan event.Event, 10)
	w := NewWorker(Config{URL: wsURL(srv), Symbols: []string{"ETHUSDT"}, MaxBackoff: 100 * time.Millisecond}, inbox, 41)
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer w.Disconnect()

	for i, want := range []uint64{41, 42, 43} {
		ev := recv(t, inbox)
		if ev.Seq != want || ev.Price != float64(i+1) {
			t.Errorf("event %d: seq %d price %v, want seq %d", i, ev.Seq, ev.Price, want)
		}
	}
}

func TestWorker_DisconnectStopsLoop(t *testing.T) {
	inbox := make(chan event.Event, 1)
	w := NewWorker(Config{URL: "ws://127.0.0.1:1/unreachable", MaxBackoff: 50 * time.Millisecond}, inbox, 0)
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnect did not return")
	}
	if w.IsConnected() {
		t.Error("Worker should not be connected")
	}
}

func TestWorker_InvalidURLIsFatal(t *testing.T) {
	w := NewWorker(Config{URL: "http://not-a-websocket"}, make(chan event.Event), 1)
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connection loop should stop on a fatal error")
	}
	w.Disconnect()
}
