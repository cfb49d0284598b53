package homepulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSRegistryConfig configures the live websocket registry mirror.
type WSRegistryConfig struct {
	// URL is the host's websocket endpoint, e.g. "ws://homehub.local:8123/api/websocket".
	URL string

	// Token is the bearer token presented during the auth handshake.
	Token string

	// ReconnectBackoff is the initial delay before reconnecting after a
	// dropped connection; it doubles up to MaxReconnectBackoff.
	// Default: 1s.
	ReconnectBackoff time.Duration

	// MaxReconnectBackoff caps the reconnect delay. Default: 1 minute.
	MaxReconnectBackoff time.Duration

	// HandshakeTimeout bounds the websocket dial. Default: 10s.
	HandshakeTimeout time.Duration

	// Logger receives connection lifecycle messages. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// WSRegistry mirrors the host's entity states over its websocket event bus.
// After Start it keeps an in-memory map current by applying state_changed
// events; the map is the EntityRegistry consumed by the analyzers.
type WSRegistry struct {
	cfg WSRegistryConfig

	mu       sync.RWMutex
	entities map[string]EntitySnapshot

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	nextID int
}

// wsMessage is the envelope for host websocket traffic.
type wsMessage struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *wsEvent        `json:"event,omitempty"`
}

type wsEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string   `json:"entity_id"`
		NewState *wsState `json:"new_state"`
	} `json:"data"`
}

type wsState struct {
	EntityID    string    `json:"entity_id"`
	State       string    `json:"state"`
	LastUpdated time.Time `json:"last_updated"`
	Attributes  struct {
		FriendlyName string `json:"friendly_name"`
		DeviceClass  string `json:"device_class"`
		Unit         string `json:"unit_of_measurement"`
	} `json:"attributes"`
}

// NewWSRegistry creates a registry mirror. Call Start to begin syncing.
func NewWSRegistry(cfg WSRegistryConfig) (*WSRegistry, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket URL is required")
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = time.Minute
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WSRegistry{
		cfg:      cfg,
		entities: make(map[string]EntitySnapshot),
		logger:   cfg.Logger,
	}, nil
}

// Start launches the sync loop. It returns immediately; the registry fills
// as the initial state dump arrives.
func (r *WSRegistry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Close stops the sync loop and waits for it to exit.
func (r *WSRegistry) Close() error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done
	return nil
}

// Snapshot returns the current state of one entity.
func (r *WSRegistry) Snapshot(entityID string) (EntitySnapshot, bool) {
	r.mu.RLock()
	s, ok := r.entities[entityID]
	r.mu.RUnlock()
	return s, ok
}

// All returns every known entity.
func (r *WSRegistry) All() []EntitySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EntitySnapshot, 0, len(r.entities))
	for _, s := range r.entities {
		out = append(out, s)
	}
	return out
}

// run dials, syncs, and reconnects with exponential backoff until canceled.
func (r *WSRegistry) run(ctx context.Context) {
	defer close(r.done)

	backoff := r.cfg.ReconnectBackoff
	for {
		err := r.syncOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Warn("registry sync dropped, reconnecting", "err", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.cfg.MaxReconnectBackoff {
			backoff = r.cfg.MaxReconnectBackoff
		}
	}
}

// syncOnce runs one connection lifetime: dial, authenticate, request the
// full state dump, subscribe to changes, then apply events until the
// connection drops or the context is canceled.
func (r *WSRegistry) syncOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Unblock reads when the context is canceled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := r.authenticate(conn); err != nil {
		return err
	}

	r.nextID = 0
	if err := conn.WriteJSON(map[string]any{"id": r.nextMsgID(), "type": "get_states"}); err != nil {
		return fmt.Errorf("request states: %w", err)
	}
	if err := conn.WriteJSON(map[string]any{"id": r.nextMsgID(), "type": "subscribe_events", "event_type": "state_changed"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case "result":
			if len(msg.Result) > 0 {
				r.applyStateDump(msg.Result)
			}
		case "event":
			if msg.Event != nil && msg.Event.EventType == "state_changed" {
				r.applyEvent(msg.Event)
			}
		}
	}
}

// authenticate performs the auth handshake expected by the host bus.
func (r *WSRegistry) authenticate(conn *websocket.Conn) error {
	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("auth hello: %w", err)
	}
	if hello.Type != "auth_required" {
		// Host does not require auth; nothing to do.
		return nil
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": r.cfg.Token}); err != nil {
		return fmt.Errorf("auth send: %w", err)
	}
	var resp wsMessage
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("auth response: %w", err)
	}
	if resp.Type != "auth_ok" {
		return fmt.Errorf("auth rejected: %s", resp.Type)
	}
	return nil
}

func (r *WSRegistry) nextMsgID() int {
	r.nextID++
	return r.nextID
}

func (r *WSRegistry) applyStateDump(raw json.RawMessage) {
	var states []wsState
	if err := json.Unmarshal(raw, &states); err != nil {
		r.logger.Warn("registry state dump decode failed", "err", err)
		return
	}
	r.mu.Lock()
	for _, st := range states {
		r.entities[st.EntityID] = snapshotFromState(st)
	}
	r.mu.Unlock()
}

func (r *WSRegistry) applyEvent(ev *wsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Data.NewState == nil {
		// Entity removed.
		delete(r.entities, ev.Data.EntityID)
		return
	}
	r.entities[ev.Data.EntityID] = snapshotFromState(*ev.Data.NewState)
}

func snapshotFromState(st wsState) EntitySnapshot {
	return EntitySnapshot{
		EntityID:    st.EntityID,
		Domain:      DomainOf(st.EntityID),
		Name:        st.Attributes.FriendlyName,
		State:       st.State,
		DeviceClass: st.Attributes.DeviceClass,
		Unit:        st.Attributes.Unit,
		LastUpdated: st.LastUpdated,
	}
}
