package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Frames may carry several newline-separated envelopes; take the first.
	if i := strings.IndexByte(string(msg), '\n'); i >= 0 {
		msg = msg[:i]
	}
	var envelope map[string]any
	if err := json.Unmarshal(msg, &envelope); err != nil {
		t.Fatalf("unmarshal %q: %v", msg, err)
	}
	return envelope
}

func sampleResult() *model.SignalResult {
	return &model.SignalResult{
		Signal:    model.ActionBuy,
		Timestamp: time.Date(2024, 1, 15, 9, 20, 0, 0, time.UTC),
		LastClose: 101.5,
	}
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	h := NewHub()
	conn := dialTestHub(t, h)

	waitForClients(t, h, 1)
	h.BroadcastSignal("NSE:3045", "SBIN-EQ", sampleResult())

	envelope := readEnvelope(t, conn)
	if envelope["type"] != "signal" {
		t.Errorf("type: got %v, want signal", envelope["type"])
	}
	if envelope["key"] != "NSE:3045" || envelope["symbol"] != "SBIN-EQ" {
		t.Errorf("identity fields: %v", envelope)
	}
	result, ok := envelope["result"].(map[string]any)
	if !ok {
		t.Fatalf("result payload missing: %v", envelope)
	}
	if result["signal"] != "BUY" {
		t.Errorf("signal: got %v, want BUY", result["signal"])
	}
}

func TestHub_LateJoinerGetsSnapshot(t *testing.T) {
	h := NewHub()
	h.BroadcastSignal("NSE:3045", "SBIN-EQ", sampleResult())

	conn := dialTestHub(t, h)
	envelope := readEnvelope(t, conn)
	if envelope["key"] != "NSE:3045" {
		t.Errorf("snapshot envelope: %v", envelope)
	}
}

func TestHub_ClientCountTracksConnections(t *testing.T) {
	h := NewHub()
	var mu sync.Mutex
	var counts []int
	h.OnClientChange = func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}

	conn := dialTestHub(t, h)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)

	mu.Lock()
	defer mu.Unlock()
	if len(counts) < 2 || counts[0] != 1 || counts[len(counts)-1] != 0 {
		t.Errorf("client change notifications: %v", counts)
	}
}

func TestHub_BroadcastWithNoClients(t *testing.T) {
	h := NewHub()
	// Must not block or panic.
	h.BroadcastSignal("NSE:3045", "SBIN-EQ", sampleResult())
	if h.ClientCount() != 0 {
		t.Errorf("client count: got %d, want 0", h.ClientCount())
	}
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (have %d)", want, h.ClientCount())
}
