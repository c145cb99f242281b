package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taraworks/taravoice/internal/observability"
	"github.com/taraworks/taravoice/internal/protocol"
	"github.com/taraworks/taravoice/internal/reliability"
)

// State is the upstream connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
)

// Conn is the subset of the websocket transport the manager needs. The
// gorilla connection satisfies it directly; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport to the upstream endpoint.
type Dialer func(ctx context.Context, rawURL string, header http.Header) (Conn, error)

// Broadcaster receives serialized envelopes for fan-out to downstream
// clients.
type Broadcaster interface {
	BroadcastRaw(data []byte)
}

type Config struct {
	APIKey         string
	URL            string
	Model          string
	DefaultVoice   string
	ReconnectDelay time.Duration
	SampleRate     int

	// Dial overrides the transport for tests. Nil means gorilla websocket.
	Dial Dialer
}

// Manager owns the single persistent connection to the upstream realtime
// API. All downstream clients share it. The manager survives upstream drops
// by reconnecting after a fixed delay and replaying the last applied
// instructions and voice, so conversational context is not lost across a
// transient disconnect.
//
// All mutable state is guarded by one mutex; the public contract is the only
// way in.
type Manager struct {
	cfg         Config
	dial        Dialer
	broadcaster Broadcaster
	metrics     *observability.Metrics
	policy      *reliability.ReconnectPolicy

	mu           sync.Mutex
	writeMu      sync.Mutex
	state        State
	conn         Conn
	ready        bool
	gen          uint64
	instructions string
	voice        string
	closed       bool
	timer        *time.Timer
	onReconnect  func(attempt int)
}

func NewManager(cfg Config, broadcaster Broadcaster, metrics *observability.Metrics) *Manager {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	dial := cfg.Dial
	if dial == nil {
		dial = dialWebsocket
	}
	return &Manager{
		cfg:         cfg,
		dial:        dial,
		broadcaster: broadcaster,
		metrics:     metrics,
		policy:      reliability.NewReconnectPolicy(cfg.ReconnectDelay),
		state:       StateDisconnected,
		voice:       NormalizeVoice(cfg.DefaultVoice, cfg.DefaultVoice),
	}
}

// SetReconnectHook registers a callback invoked before each scheduled
// reconnect attempt.
func (m *Manager) SetReconnectHook(hook func(attempt int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = hook
}

// Configure applies a new enrichment context and voice. On a live ready
// connection the instructions are injected in place; tearing down a working
// session just to swap context would cut the conversation mid-stream. When
// no connection is open the configuration is stored and a connect starts.
func (m *Manager) Configure(instructions, voice string) {
	voice = NormalizeVoice(voice, m.cfg.DefaultVoice)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.instructions = instructions
	m.voice = voice

	if m.state == StateOpen && m.ready {
		conn := m.conn
		m.mu.Unlock()
		if instructions != "" {
			m.writeSessionUpdate(conn, instructions, voice)
		}
		return
	}

	if m.state == StateDisconnected {
		m.startConnectLocked()
	}
	m.mu.Unlock()
}

// Send forwards a structured instruction to the upstream connection. When
// the connection is not ready the instruction is logged and dropped; the
// relay checks readiness first, but races with an upstream drop are
// tolerated here rather than surfaced.
func (m *Manager) Send(eventType string, fields map[string]any) {
	m.mu.Lock()
	if !m.ready || m.conn == nil {
		m.mu.Unlock()
		log.Printf("upstream: dropping %s, connection not ready", eventType)
		return
	}
	conn := m.conn
	m.mu.Unlock()

	msg := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		msg[k] = v
	}
	msg["type"] = eventType

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("upstream: marshal %s failed: %v", eventType, err)
		return
	}
	m.write(conn, data)
}

func (m *Manager) AppendAudio(audioBase64 string) {
	m.Send("input_audio_buffer.append", map[string]any{"audio": audioBase64})
}

func (m *Manager) CommitBuffer() {
	m.Send("input_audio_buffer.commit", nil)
}

func (m *Manager) CreateResponse() {
	m.Send("response.create", nil)
}

func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Voice reports the last applied voice identifier.
func (m *Manager) Voice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voice
}

// Instructions reports the last applied enrichment text.
func (m *Manager) Instructions() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instructions
}

// Close shuts the manager down for good. Used on process shutdown only.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.state = StateClosing
	m.ready = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// startConnectLocked begins a connect attempt. Caller holds m.mu. The
// generation counter fences the new attempt against callbacks from any
// previous transport, so at most one non-terminal handle can exist.
func (m *Manager) startConnectLocked() {
	m.state = StateConnecting
	m.gen++
	g := m.gen
	go m.runConnect(g)
}

func (m *Manager) runConnect(g uint64) {
	m.mu.Lock()
	instructions := m.instructions
	voice := m.voice
	m.mu.Unlock()

	endpoint, err := m.endpointURL(voice)
	if err != nil {
		log.Printf("upstream: bad endpoint url: %v", err)
		m.mu.Lock()
		if !m.closed && g == m.gen {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	log.Printf("upstream: connecting (model=%s voice=%s)", m.cfg.Model, voice)
	conn, err := m.dial(context.Background(), endpoint, header)
	if err != nil {
		log.Printf("upstream: connect failed: %v", err)
		m.mu.Lock()
		if m.closed || g != m.gen {
			m.mu.Unlock()
			return
		}
		m.state = StateDisconnected
		m.mu.Unlock()
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.closed || g != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.ready = true
	m.policy.Reset()
	// Re-read under the lock: a Configure that landed while the dial was in
	// flight supersedes the snapshot taken before dialing.
	instructions = m.instructions
	voice = m.voice
	m.mu.Unlock()

	log.Printf("upstream: connected")

	// First message on the fresh transport carries the pending context so a
	// reconnect never loses the configured persona.
	m.writeSessionUpdate(conn, instructions, voice)

	go m.readLoop(conn, g)
}

func (m *Manager) readLoop(conn Conn, g uint64) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(g, err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			env := protocol.OutputAudioBinary{
				Type:       protocol.TypeOutputAudioBinary,
				Data:       base64.StdEncoding.EncodeToString(data),
				SampleRate: m.cfg.SampleRate,
			}
			out, err := json.Marshal(env)
			if err != nil {
				log.Printf("upstream: wrap binary frame failed: %v", err)
				continue
			}
			if m.metrics != nil {
				m.metrics.UpstreamEvents.WithLabelValues("binary").Inc()
			}
			m.broadcaster.BroadcastRaw(out)

		case websocket.TextMessage:
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Printf("upstream: unparseable event dropped: %v", err)
				if m.metrics != nil {
					m.metrics.UpstreamEvents.WithLabelValues("parse_error").Inc()
				}
				continue
			}
			if env.Type == "error" {
				log.Printf("upstream: error event: %s", data)
			}
			if m.metrics != nil {
				m.metrics.UpstreamEvents.WithLabelValues("text").Inc()
			}
			m.broadcaster.BroadcastRaw(data)
		}
	}
}

// handleClose runs when the transport read side fails. Close, not error, is
// the trigger for reconnection; write errors only clear the ready flag and
// wait for the read loop to observe the close.
func (m *Manager) handleClose(g uint64, err error) {
	m.mu.Lock()
	if m.closed || g != m.gen {
		m.mu.Unlock()
		return
	}
	m.ready = false
	m.state = StateDisconnected
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("upstream: connection closed")
	} else {
		log.Printf("upstream: connection lost: %v", err)
	}
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	hook := m.onReconnect
	delay := m.policy.NextDelay()
	attempt := m.policy.Attempts()
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed || m.state != StateDisconnected {
			return
		}
		m.startConnectLocked()
	})
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.UpstreamReconnects.Inc()
	}
	log.Printf("upstream: reconnect attempt %d scheduled in %v", attempt, delay)
	if hook != nil {
		hook(attempt)
	}
}

func (m *Manager) writeSessionUpdate(conn Conn, instructions, voice string) {
	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"voice":               voice,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
	}
	if instructions != "" {
		session["instructions"] = instructions
	}
	data, err := json.Marshal(map[string]any{
		"type":    "session.update",
		"session": session,
	})
	if err != nil {
		log.Printf("upstream: marshal session.update failed: %v", err)
		return
	}
	m.write(conn, data)
}

func (m *Manager) write(conn Conn, data []byte) {
	m.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		log.Printf("upstream: write failed: %v", err)
		m.mu.Lock()
		m.ready = false
		m.mu.Unlock()
	}
}

func (m *Manager) endpointURL(voice string) (string, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse upstream url: %w", err)
	}
	q := u.Query()
	q.Set("model", m.cfg.Model)
	q.Set("voice", voice)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dialWebsocket(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
