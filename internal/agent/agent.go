// Package agent implements the client-side counterpart of the hub: a local
// mirror of the shared application state, a connection lifecycle with bounded
// reconnect backoff, and an echo-suppression scheme based on the provenance
// of each state change rather than a timing flag.
package agent

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/Tyrowin/soundmesh/internal/protocol"
	"github.com/Tyrowin/soundmesh/internal/state"
)

// Status is the advisory connection state exposed to the embedding UI.
type Status string

// Connection lifecycle states. The agent cycles disconnected → connecting →
// connected and back, retrying forever with growing delays in between.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Config controls one Agent. Only URL is required.
type Config struct {
	// URL is the ws:// or wss:// address of the hub's upgrade endpoint.
	URL string

	// Reconnect backoff bounds. Zero values fall back to 500ms minimum,
	// 30s ceiling, factor 2.
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	BackoffFactor float64

	// OnState is called with the full mirror snapshot after every applied
	// change, local or remote. Callbacks run on the agent's change loop.
	OnState func(snapshot []byte)

	// OnStatus is called on every connection state transition.
	OnStatus func(Status)
}

func (c Config) withDefaults() Config {
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
	return c
}

// changeOrigin tags where a state change came from. Remote-origin changes are
// applied to the mirror but never re-emitted as updates, which removes the
// echo loop without any timing window.
type changeOrigin int

const (
	originLocal changeOrigin = iota
	originRemote
)

type change struct {
	origin  changeOrigin
	payload []byte
}

// Agent maintains a local mirror of the hub state. Local patches are merged
// into the mirror and transmitted as update messages; init and state-update
// frames from the hub are merged with the same shallow-replace semantics and
// suppressed from retransmission.
type Agent struct {
	cfg     Config
	mirror  *state.Store
	changes chan change

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
}

// New creates an Agent whose mirror starts from the hard-coded defaults, the
// same value a fresh hub instance holds.
func New(cfg Config) *Agent {
	return &Agent{
		cfg:     cfg.withDefaults(),
		mirror:  state.NewStore(),
		changes: make(chan change, 64),
		status:  StatusDisconnected,
	}
}

// Snapshot returns the complete current mirror state.
func (a *Agent) Snapshot() []byte {
	return a.mirror.Snapshot()
}

// Status returns the current connection state. Advisory only.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetLocal records a locally originated patch: it is merged into the mirror
// and transmitted to the hub as an update message. While disconnected the
// mirror still advances; the hub's init frame re-synchronizes it on
// reconnect. Returns an error if the change queue is full.
func (a *Agent) SetLocal(patch []byte) error {
	select {
	case a.changes <- change{origin: originLocal, payload: patch}:
		return nil
	default:
		return errors.New("agent: change queue full")
	}
}

// Run connects to the hub and keeps the connection alive until the context is
// canceled, reconnecting with bounded exponential backoff. It blocks; call it
// in its own goroutine.
func (a *Agent) Run(ctx context.Context) {
	go a.processChanges(ctx)

	b := &backoff.Backoff{
		Min:    a.cfg.MinBackoff,
		Max:    a.cfg.MaxBackoff,
		Factor: a.cfg.BackoffFactor,
		Jitter: true,
	}

	for {
		a.setStatus(StatusConnecting)

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			a.setStatus(StatusDisconnected)
			if ctx.Err() != nil {
				return
			}
			log.Printf("Agent dial %s failed: %v", a.cfg.URL, err)
			if !sleepContext(ctx, b.Duration()) {
				return
			}
			continue
		}

		b.Reset()
		a.setConn(conn)
		a.setStatus(StatusConnected)

		a.readLoop(ctx, conn)

		a.setConn(nil)
		a.setStatus(StatusDisconnected)
		if ctx.Err() != nil {
			return
		}
		if !sleepContext(ctx, b.Duration()) {
			return
		}
	}
}

// readLoop consumes frames from one connection until it fails or the context
// is canceled. Malformed frames are logged and skipped; unknown message types
// are ignored.
func (a *Agent) readLoop(ctx context.Context, conn *websocket.Conn) {
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-finished:
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !isExpectedClose(err) {
				log.Printf("Agent read error: %v", err)
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			log.Printf("Agent received invalid frame: %v", err)
			continue
		}

		switch env.Type {
		case protocol.TypeInit, protocol.TypeStateUpdate:
			select {
			case a.changes <- change{origin: originRemote, payload: env.State}:
			case <-ctx.Done():
				return
			}
		default:
			// Unknown types stay a forward-compatible no-op.
		}
	}
}

// processChanges applies queued changes to the mirror one at a time. The
// provenance tag decides whether the change is also transmitted: only
// local-origin changes emit an update message.
func (a *Agent) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-a.changes:
			a.apply(ch)
		}
	}
}

func (a *Agent) apply(ch change) {
	snapshot, err := a.mirror.Merge(ch.payload)
	if err != nil {
		log.Printf("Agent could not apply change: %v", err)
		return
	}

	if a.cfg.OnState != nil {
		a.cfg.OnState(snapshot)
	}

	if ch.origin != originLocal {
		return
	}
	a.sendUpdate(ch.payload)
}

func (a *Agent) sendUpdate(patch []byte) {
	msg, err := protocol.EncodeUpdate(patch)
	if err != nil {
		log.Printf("Agent could not encode update: %v", err)
		return
	}

	conn := a.currentConn()
	if conn == nil {
		log.Printf("Agent not connected; local change kept in mirror only")
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Agent could not set write deadline: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		// The read loop observes the same failure and schedules a reconnect.
		log.Printf("Agent send failed: %v", err)
	}
}

func (a *Agent) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

func (a *Agent) currentConn() *websocket.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *Agent) setStatus(status Status) {
	a.mu.Lock()
	changed := a.status != status
	a.status = status
	a.mu.Unlock()

	if changed && a.cfg.OnStatus != nil {
		a.cfg.OnStatus(status)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
