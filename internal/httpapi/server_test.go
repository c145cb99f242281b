package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taraworks/taravoice/internal/config"
	"github.com/taraworks/taravoice/internal/registry"
	"github.com/taraworks/taravoice/internal/upstream"
)

type stubStatus struct {
	ready bool
	state upstream.State
}

func (s stubStatus) Ready() bool           { return s.ready }
func (s stubStatus) State() upstream.State { return s.state }

type echoHandler struct {
	mu   sync.Mutex
	raws [][]byte
}

func (h *echoHandler) HandleMessage(_ context.Context, _ string, conn registry.Conn, raw []byte) {
	h.mu.Lock()
	h.raws = append(h.raws, append([]byte(nil), raw...))
	h.mu.Unlock()
	_ = conn.SendJSON(map[string]string{"type": "echo"})
}

func (h *echoHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.raws)
}

func newTestServer(handler MessageHandler, status UpstreamStatus) (*httptest.Server, *registry.Registry) {
	reg := registry.New(nil)
	srv := New(config.Config{}, reg, handler, status, nil)
	return httptest.NewServer(srv.Router()), reg
}

func TestHealthAndReady(t *testing.T) {
	ts, _ := newTestServer(&echoHandler{}, stubStatus{ready: true, state: upstream.StateOpen})
	defer ts.Close()

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	readyRes, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer readyRes.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(readyRes.Body).Decode(&payload); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if payload["upstream_state"] != "open" {
		t.Fatalf("upstream_state = %v, want open", payload["upstream_state"])
	}
	if payload["upstream_ready"] != true {
		t.Fatalf("upstream_ready = %v, want true", payload["upstream_ready"])
	}
}

func TestUIRedirect(t *testing.T) {
	ts, _ := newTestServer(&echoHandler{}, stubStatus{})
	defer ts.Close()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	res, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("GET / status = %d, want %d", res.StatusCode, http.StatusTemporaryRedirect)
	}
	if got := res.Header.Get("Location"); got != "/ui/" {
		t.Fatalf("GET / location = %q, want /ui/", got)
	}

	uiRes, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("GET /ui/ status = %d, want %d", uiRes.StatusCode, http.StatusOK)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(uiRes.Body); err != nil {
		t.Fatalf("reading /ui/ body failed: %v", err)
	}
	if !strings.Contains(body.String(), "Taravoice") {
		t.Fatalf("GET /ui/ body missing expected content")
	}
}

func TestWebsocketLifecycle(t *testing.T) {
	handler := &echoHandler{}
	ts, reg := newTestServer(handler, stubStatus{})
	defer ts.Close()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error = %v", err)
	}

	waitFor(t, "registration", func() bool { return reg.Count() == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}
	waitFor(t, "handler delivery", func() bool { return handler.count() == 1 })

	var reply map[string]string
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply error = %v", err)
	}
	if reply["type"] != "echo" {
		t.Fatalf("reply = %v, want echo", reply)
	}

	conn.Close()
	waitFor(t, "unregistration", func() bool { return reg.Count() == 0 })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
