// Package server coordinates connection upgrades, relay lifecycles, and
// graceful shutdown for the echat delivery service via the Gateway type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qumn/echat/internal/auth"
	"github.com/qumn/echat/internal/bus"
	"github.com/qumn/echat/internal/registry"
	"github.com/qumn/echat/internal/relay"
	"github.com/qumn/echat/internal/store"
)

// presenceTopic carries connect/disconnect events on the gateway's event bus.
const presenceTopic = "presence"

// PresenceEvent records one user going online or offline.
type PresenceEvent struct {
	UID      uint64
	Username string
	Online   bool
	At       time.Time
}

// Gateway owns the shared routing structures (connection registry and event
// bus) and hands authenticated connections to per-connection relays. Relay
// code never touches the registry map or the bus topics directly; everything
// goes through their mediated APIs.
type Gateway struct {
	cfg      Config
	reg      *registry.Registry
	events   *bus.Bus[PresenceEvent]
	messages store.MessageStore
	auth     auth.Provider
	origins  *originSet
	upgrader websocket.Upgrader
	log      *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGateway wires the registry, event bus, and collaborators into a ready
// gateway and starts the presence watcher.
func NewGateway(cfg Config, messages store.MessageStore, provider auth.Provider, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	cfg = sanitizeConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:      cfg,
		reg:      registry.New(),
		events:   bus.New[PresenceEvent](),
		messages: messages,
		auth:     provider,
		origins:  newOriginSet(cfg.AllowedOrigins),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.check,
	}

	g.wg.Add(1)
	go g.watchPresence()

	return g
}

// Registry exposes the connection registry for collaborators and tests.
func (g *Gateway) Registry() *registry.Registry {
	return g.reg
}

// HandleWebSocket authenticates the request, upgrades it, and hands the
// connection to a relay. This is the only call the transport layer makes
// into the delivery subsystem.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	// Once shutdown has begun, refuse new relays instead of racing the
	// gateway's wait group.
	if g.ctx.Err() != nil {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	identity, err := g.auth.Authenticate(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Token")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	rl := relay.New(conn, identity, g.reg, g.messages, relay.Config{
		MailboxCapacity: g.cfg.MailboxCapacity,
		MaxMessageSize:  g.cfg.MaxMessageSize,
		RateLimit:       g.cfg.RateLimit,
	}, g.log)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		g.publishPresence(identity, true)
		if err := rl.Run(g.ctx); err != nil {
			g.log.Warn("relay terminated", "conn", rl.ID(), "uid", identity.UID, "error", err)
		}
		g.publishPresence(identity, false)
	}()
}

func (g *Gateway) publishPresence(id auth.Identity, online bool) {
	ev := PresenceEvent{UID: id.UID, Username: id.Username, Online: online, At: time.Now()}
	switch err := g.events.Publish(presenceTopic, ev); {
	case err == nil:
	case errors.Is(err, bus.ErrNoSubscriber), errors.Is(err, bus.ErrBusTerminated):
		// No watcher, or the bus is already gone during shutdown.
		g.log.Debug("presence event not delivered", "uid", id.UID, "reason", err)
	default:
		g.log.Warn("presence publish failed", "uid", id.UID, "error", err)
	}
}

// watchPresence consumes the presence topic and logs connection churn along
// with the current registry size.
func (g *Gateway) watchPresence() {
	defer g.wg.Done()

	sub, err := g.events.Subscribe(presenceTopic)
	if err != nil {
		g.log.Error("presence subscription failed", "error", err)
		return
	}
	defer sub.Cancel()

	for ev := range sub.C() {
		state := "offline"
		if ev.Online {
			state = "online"
		}
		g.log.Info("presence", "uid", ev.UID, "user", ev.Username, "state", state, "connected", g.reg.Count())
	}
}

// Shutdown stops accepting relay work, unwinds active connections, and waits
// for all goroutines to finish or the timeout to elapse.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	g.log.Info("shutting down gateway")

	g.cancel()
	g.events.Close()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.log.Info("gateway shutdown completed")
		return nil
	case <-time.After(timeout):
		g.log.Warn("gateway shutdown timeout reached, some connections may still be draining")
		return context.DeadlineExceeded
	}
}
