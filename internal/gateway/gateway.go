// Package gateway terminates client WebSocket connections and bridges
// them to the match service: inbound events are dispatched on each
// connection's read loop, outbound events are queued to a per-connection
// writer. Each connection gets an opaque id at accept time.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/chess-arena-go/internal/match"
	"github.com/kapu/chess-arena-go/internal/obslog"
	"github.com/kapu/chess-arena-go/pkg/arenawire"
)

const writeTimeout = 5 * time.Second

// NameResolver turns the client-requested name into the display name the
// match service should use.
type NameResolver interface {
	DisplayName(ctx context.Context, requested string) string
}

type passthroughResolver struct{}

func (passthroughResolver) DisplayName(_ context.Context, requested string) string {
	return requested
}

type conn struct {
	id     string
	ws     *websocket.Conn
	egress chan arenawire.Envelope

	done     chan struct{}
	stopOnce sync.Once
}

func (c *conn) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

type Handler struct {
	svc      *match.Service
	resolver NameResolver

	originPatterns []string
	egressBuffer   int

	mu    sync.RWMutex
	conns map[string]*conn
}

type Option func(*Handler)

func WithResolver(r NameResolver) Option {
	return func(h *Handler) {
		if r != nil {
			h.resolver = r
		}
	}
}

func WithOriginPatterns(patterns []string) Option {
	return func(h *Handler) {
		if len(patterns) > 0 {
			h.originPatterns = patterns
		}
	}
}

func WithEgressBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.egressBuffer = n
		}
	}
}

func New(svc *match.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		resolver:       passthroughResolver{},
		originPatterns: []string{"*"},
		egressBuffer:   32,
		conns:          make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Deliver implements match.Sender. Non-blocking: a connection whose
// egress buffer is full is closed, which the reconciler later observes
// as a disconnect. Delivery to an unknown connection is dropped.
func (h *Handler) Deliver(connID string, env arenawire.Envelope) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		obslog.L().Debug("gateway_deliver_drop",
			zap.String("conn_id", connID),
			zap.String("event", env.Event),
			zap.String("reason", "unknown_conn"),
		)
		return
	}
	select {
	case c.egress <- env:
	default:
		obslog.L().Warn("gateway_slow_consumer", zap.String("conn_id", connID))
		c.stop()
		go c.ws.Close(websocket.StatusPolicyViolation, "egress overflow")
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		obslog.L().Warn("gateway_accept_error", zap.Error(err))
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		egress: make(chan arenawire.Envelope, h.egressBuffer),
		done:   make(chan struct{}),
	}
	h.register(c)
	obslog.L().Info("gateway_connect", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)

	h.unregister(c.id)
	c.stop()
	h.svc.Disconnect(context.Background(), c.id)
	_ = ws.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("gateway_disconnect", zap.String("conn_id", c.id))
}

func (h *Handler) readLoop(ctx context.Context, c *conn) {
	for {
		var env arenawire.Envelope
		if err := wsjson.Read(ctx, c.ws, &env); err != nil {
			return
		}
		h.dispatch(ctx, c, &env)
	}
}

func (h *Handler) writeLoop(c *conn) {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.egress:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.ws, env)
			cancel()
			if err != nil {
				// Read loop fails next and runs the disconnect path.
				_ = c.ws.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *conn, env *arenawire.Envelope) {
	switch env.Event {
	case arenawire.EvtJoinGame:
		var p arenawire.JoinGame
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				obslog.L().Warn("gateway_event_drop", zap.String("conn_id", c.id), zap.String("event", env.Event), zap.Error(err))
				return
			}
		}
		name := h.resolver.DisplayName(ctx, p.UserName)
		h.svc.Join(ctx, c.id, name)
	case arenawire.EvtMakeMove:
		var p arenawire.MakeMove
		if err := json.Unmarshal(env.Data, &p); err != nil {
			obslog.L().Warn("gateway_event_drop", zap.String("conn_id", c.id), zap.String("event", env.Event), zap.Error(err))
			return
		}
		h.svc.Move(ctx, c.id, p.RoomID, p.FEN, p.Move)
	case arenawire.EvtLeaveGame:
		h.svc.Leave(ctx, c.id)
	default:
		obslog.L().Warn("gateway_event_drop",
			zap.String("conn_id", c.id),
			zap.String("event", env.Event),
			zap.String("reason", "unknown_event"),
		)
	}
}

func (h *Handler) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Handler) unregister(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Count reports live connections.
func (h *Handler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every live connection. Their read loops unwind and run
// the usual disconnect reconciliation.
func (h *Handler) Shutdown(ctx context.Context) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.stop()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutdown")
	}
}
