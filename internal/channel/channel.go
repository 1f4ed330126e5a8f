// Package channel manages a single persistent push connection. It reconnects
// with exponential backoff after unexpected drops and fans inbound
// {type, payload} frames out to subscribers by type.
package channel

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// State of the connection
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Closing      State = "closing"
)

// Events emitted by the manager itself
const (
	EventConnected    = "connection:connected"
	EventDisconnected = "connection:disconnected"
	EventFailed       = "connection:failed"
	EventError        = "error"
)

const (
	DefaultReconnectBase        = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// Message is the wire shape of every frame
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives the payload of a dispatched event
type Handler func(payload json.RawMessage)

// Config holds manager settings. Zero values take the defaults.
type Config struct {
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	Dialer               Dialer
	Clock                mclock.Clock
	Logger               *log.Logger
}

// Stats is a snapshot of the manager
type Stats struct {
	State                State    `json:"connectionState"`
	ReconnectAttempts    int      `json:"reconnectAttempts"`
	MaxReconnectAttempts int      `json:"maxReconnectAttempts"`
	ListenerCount        int      `json:"listenerCount"`
	EventTypes           []string `json:"eventTypes"`
}

type subscription struct {
	fn Handler
}

// Manager owns one push connection and its subscribers
type Manager struct {
	base        time.Duration
	maxAttempts int
	dialer      Dialer
	clock       mclock.Clock
	logger      *log.Logger

	mu       sync.Mutex
	state    State
	url      string
	conn     Conn
	attempts int
	gen      uint64 // bumped by Disconnect; stale callbacks compare and bail
	timer    mclock.Timer
	cancel   context.CancelFunc

	subsMu sync.RWMutex
	subs   map[string][]*subscription

	wg sync.WaitGroup
}

// New creates a disconnected manager
func New(cfg Config) *Manager {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WSDialer{Timeout: 30 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Manager{
		base:        cfg.ReconnectBase,
		maxAttempts: cfg.MaxReconnectAttempts,
		dialer:      cfg.Dialer,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		state:       Disconnected,
		subs:        make(map[string][]*subscription),
	}
}

// Connect starts connecting to url in the background. It is a no-op while
// already connecting or connected.
func (m *Manager) Connect(url string) {
	m.mu.Lock()
	if m.state == Connecting || m.state == Connected {
		m.mu.Unlock()
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = Connecting
	m.url = url
	gen := m.gen
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dial(gen, url)
	}()
}

// dial opens the connection for generation gen
func (m *Manager) dial(gen uint64, url string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, url)

	m.mu.Lock()
	m.cancel = nil
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close(StatusNormalClosure, "client disconnecting")
		}
		return
	}
	if err != nil {
		m.state = Disconnected
		m.mu.Unlock()

		m.logger.Printf("WARNING | Channel: failed to connect to %s: %v", url, err)
		m.emit(EventError, map[string]any{"error": err.Error()})
		m.emit(EventDisconnected, map[string]any{"status": "disconnected", "code": closeCode(err)})
		m.scheduleReconnect(gen)
		return
	}

	m.conn = conn
	m.state = Connected
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Printf("Channel | connected to %s", url)
	m.emit(EventConnected, map[string]any{"status": "connected"})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.readLoop(gen, conn)
	}()
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			m.closed(gen, conn, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			m.logger.Printf("WARNING | Channel: dropping malformed frame: %.120q", data)
			continue
		}
		m.dispatch(msg.Type, msg.Payload)
	}
}

// closed handles the end of conn. A close with status 1000 is clean; any
// other ending schedules a reconnect.
func (m *Manager) closed(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		// Disconnect already took this connection down.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = Disconnected
	m.mu.Unlock()

	code := closeCode(err)
	m.logger.Printf("Channel | disconnected (code %d)", code)
	m.emit(EventDisconnected, map[string]any{"status": "disconnected", "code": code})

	if IsNormalClosure(err) {
		return
	}
	m.scheduleReconnect(gen)
}

func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.maxAttempts {
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Printf("WARNING | Channel: max reconnection attempts reached (%d)", attempts)
		m.emit(EventFailed, map[string]any{"status": "failed", "attempts": attempts})
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.base << (attempt - 1)
	m.timer = m.clock.AfterFunc(delay, func() { m.reconnect(gen) })
	m.mu.Unlock()

	m.logger.Printf("Channel | reconnecting in %v (%d/%d)", delay, attempt, m.maxAttempts)
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.state = Connecting
	url := m.url
	m.mu.Unlock()

	m.dial(gen, url)
}

// Disconnect closes the connection with a normal closure and suppresses any
// further reconnection, including one already scheduled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.attempts = m.maxAttempts
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	prev := m.state
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.state = Closing
	} else {
		m.state = Disconnected
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(StatusNormalClosure, "client disconnecting"); err != nil {
			m.logger.Printf("WARNING | Channel: close failed: %v", err)
		}
		m.mu.Lock()
		if m.state == Closing {
			m.state = Disconnected
		}
		m.mu.Unlock()
	}

	if prev != Disconnected {
		m.logger.Printf("Channel | disconnected by client")
		m.emit(EventDisconnected, map[string]any{"status": "disconnected", "code": StatusNormalClosure})
	}
}

// Close disconnects, drops every subscription and waits for background work
func (m *Manager) Close() {
	m.Disconnect()

	m.subsMu.Lock()
	m.subs = make(map[string][]*subscription)
	m.subsMu.Unlock()

	m.wg.Wait()
}

// Send writes a {type, payload} frame. When not connected it logs a warning
// and returns false.
func (m *Manager) Send(eventType string, payload any) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected && conn != nil
	m.mu.Unlock()

	if !connected {
		m.logger.Printf("WARNING | Channel: not connected, dropping %q message", eventType)
		return false
	}

	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{eventType, payload})
	if err != nil {
		m.logger.Printf("WARNING | Channel: failed to encode %q message: %v", eventType, err)
		return false
	}
	if err := conn.Write(data); err != nil {
		m.logger.Printf("WARNING | Channel: failed to send %q message: %v", eventType, err)
		return false
	}
	return true
}

// Subscribe registers fn for eventType. The returned func removes exactly
// this registration and is safe to call more than once.
func (m *Manager) Subscribe(eventType string, fn Handler) (unsubscribe func()) {
	sub := &subscription{fn: fn}

	m.subsMu.Lock()
	m.subs[eventType] = append(m.subs[eventType], sub)
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()

		list := m.subs[eventType]
		for i, s := range list {
			if s == sub {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(m.subs, eventType)
		} else {
			m.subs[eventType] = list
		}
	}
}

func (m *Manager) emit(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Printf("WARNING | Channel: failed to encode %s event: %v", eventType, err)
		return
	}
	m.dispatch(eventType, data)
}

// dispatch calls every subscriber of eventType in registration order
func (m *Manager) dispatch(eventType string, payload json.RawMessage) {
	m.subsMu.RLock()
	list := append([]*subscription(nil), m.subs[eventType]...)
	m.subsMu.RUnlock()

	for _, sub := range list {
		m.invoke(eventType, sub.fn, payload)
	}
}

func (m *Manager) invoke(eventType string, fn Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("WARNING | Channel: subscriber for %s panicked: %v", eventType, r)
		}
	}()
	fn(payload)
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of connection and subscriber counts
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	st := Stats{
		State:                m.state,
		ReconnectAttempts:    m.attempts,
		MaxReconnectAttempts: m.maxAttempts,
	}
	m.mu.Unlock()

	m.subsMu.RLock()
	for eventType, list := range m.subs {
		st.ListenerCount += len(list)
		st.EventTypes = append(st.EventTypes, eventType)
	}
	m.subsMu.RUnlock()
	sort.Strings(st.EventTypes)

	return st
}
