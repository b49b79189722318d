// Package relay bridges one authenticated websocket connection to the
// connection registry and the message store. Each connection runs two pumps:
// the outbound pump drains the user's mailbox onto the wire, the inbound pump
// decodes client frames, persists them, and forwards them to the recipient's
// mailbox. The pumps communicate only through the mailbox; neither holds a
// reference to the other.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qumn/echat/internal/auth"
	"github.com/qumn/echat/internal/registry"
	"github.com/qumn/echat/internal/store"
)

// formatErrorContent is the diagnostic pushed back to a sender whose text
// frame could not be decoded.
const formatErrorContent = "message format error"

// Connection lifecycle states.
const (
	StateConnected int32 = iota
	StateRelaying
	StateClosed
)

// UnsupportedFrameError reports a frame kind the relay has no policy for.
// Currently fatal for the connection; the policy lives in exactly one branch
// of the inbound pump so it can change without touching delivery logic.
type UnsupportedFrameError struct {
	Kind int
}

func (e *UnsupportedFrameError) Error() string {
	return fmt.Sprintf("unsupported frame kind %d", e.Kind)
}

// Conn is the subset of *websocket.Conn the relay needs. Narrowed to an
// interface so tests can drive the pumps with a scripted connection.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Config carries per-connection tuning. Zero values fall back to defaults.
type Config struct {
	MailboxCapacity int
	MaxMessageSize  int64
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	RateLimit       RateLimitConfig
}

func (c Config) withDefaults() Config {
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = registry.DefaultMailboxCapacity
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 54 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 64
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	return c
}

// Relay is the per-connection pump pair. Construct with New and drive with
// Run; a Relay is not reusable.
type Relay struct {
	id       string
	identity auth.Identity
	conn     Conn
	reg      *registry.Registry
	messages store.MessageStore
	cfg      Config
	limiter  *rateLimiter
	log      *slog.Logger
	state    atomic.Int32
}

// New prepares a relay for an authenticated connection. The registry and
// store are shared across connections and must outlive the relay.
func New(conn Conn, identity auth.Identity, reg *registry.Registry, messages store.MessageStore, cfg Config, log *slog.Logger) *Relay {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	id := uuid.NewString()
	return &Relay{
		id:       id,
		identity: identity,
		conn:     conn,
		reg:      reg,
		messages: messages,
		cfg:      cfg,
		limiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		log:      log.With("conn", id, "uid", identity.UID, "user", identity.Username),
	}
}

// ID returns the relay's connection id.
func (r *Relay) ID() string {
	return r.id
}

// State reports the connection lifecycle state.
func (r *Relay) State() int32 {
	return r.state.Load()
}

// Run registers the user's mailbox, starts both pumps, and blocks until the
// connection ends. The registry entry is released exactly once on every exit
// path. A nil return means the client closed cleanly or went away; a non-nil
// return names the failure that ended the connection.
func (r *Relay) Run(ctx context.Context) error {
	mb := registry.NewMailbox(r.cfg.MailboxCapacity)
	r.reg.Register(r.identity.UID, mb)
	r.state.Store(StateRelaying)
	r.log.Info("relay started")

	defer func() {
		r.reg.Remove(r.identity.UID, mb)
		r.state.Store(StateClosed)
		r.log.Info("relay closed")
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.writePump(mb)
	}()

	// Server shutdown unwinds the inbound pump by closing the socket.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = r.conn.Close()
		case <-stop:
		}
	}()

	err := r.readPump(ctx, mb)

	close(stop)
	mb.Close()
	wg.Wait()
	if cerr := r.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
		r.log.Debug("closing connection", "error", cerr)
	}
	return err
}

// readPump consumes frames from the network until the client closes, the
// context is cancelled, or a fatal error occurs.
func (r *Relay) readPump(ctx context.Context, own *registry.Mailbox) error {
	r.conn.SetReadLimit(r.cfg.MaxMessageSize)
	if err := r.conn.SetReadDeadline(time.Now().Add(r.cfg.PongWait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(r.cfg.PongWait))
	})

	for {
		kind, data, err := r.conn.ReadMessage()
		if err != nil {
			return r.classifyReadError(err)
		}

		if kind != websocket.TextMessage {
			return &UnsupportedFrameError{Kind: kind}
		}

		if !r.limiter.allow() {
			r.log.Warn("rate limit exceeded, discarding frame",
				"burst", r.cfg.RateLimit.Burst, "interval", r.cfg.RateLimit.RefillInterval)
			continue
		}

		if err := r.handleFrame(ctx, own, data); err != nil {
			return err
		}
	}
}

// decodeFrame parses one inbound text frame into a well-formed message. A
// JSON body that omits or blanks receiver_kind is malformed the same as
// unparsable text; the zero kind never travels past this point.
func decodeFrame(data []byte) (store.Message, error) {
	var msg store.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return store.Message{}, err
	}
	if !msg.ReceiverKind.Valid() {
		return store.Message{}, fmt.Errorf("missing or unknown receiver kind %q", msg.ReceiverKind)
	}
	return msg, nil
}

// handleFrame processes one inbound text frame. Decode failures are local to
// the frame: the sender gets a format-error notice and the connection keeps
// going. A store failure is fatal so the message is never presumed delivered.
func (r *Relay) handleFrame(ctx context.Context, own *registry.Mailbox, data []byte) error {
	msg, err := decodeFrame(data)
	if err != nil {
		r.log.Debug("malformed frame", "error", err)
		notice := store.Message{
			ReceiverKind: store.ReceiverUser,
			ReceiverID:   0,
			Content:      formatErrorContent,
		}
		if err := own.Put(notice); err != nil {
			r.log.Warn("format-error notice not queued", "error", err)
		}
		return nil
	}

	msg.SenderUID = r.identity.UID
	msg.CreatedAt = time.Now().UTC()

	// Store before forward: delivery must never outrun persistence.
	mid, err := r.messages.Create(ctx, &msg)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	msg.MID = mid

	if msg.ReceiverKind != store.ReceiverUser {
		// Live fan-out to group members needs membership data this
		// subsystem does not hold; group messages are reachable through
		// the history query.
		r.log.Debug("group message stored", "mid", mid, "group", msg.ReceiverID)
		return nil
	}

	recipient, online := r.reg.Lookup(msg.ReceiverID)
	if !online {
		r.log.Debug("recipient offline, message stored", "mid", mid, "receiver", msg.ReceiverID)
		return nil
	}
	if err := recipient.Put(msg); err != nil {
		// Persisted but not deliverable right now; same outcome as an
		// offline recipient.
		r.log.Warn("recipient mailbox unavailable", "mid", mid, "receiver", msg.ReceiverID, "error", err)
	}
	return nil
}

// classifyReadError folds the websocket error taxonomy into the relay's: a
// client close frame or ordinary network teardown ends the connection
// cleanly, everything else is reported.
func (r *Relay) classifyReadError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		r.log.Debug("client disconnected", "reason", err)
		return nil
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("frame exceeds %d bytes: %w", r.cfg.MaxMessageSize, err)
	}
	if isExpectedCloseError(err) {
		r.log.Debug("connection closed", "reason", err)
		return nil
	}
	return fmt.Errorf("read frame: %w", err)
}

// writePump drains the mailbox onto the wire and keeps the connection alive
// with pings. It ends when the mailbox closes or a write fails; on failure it
// closes the socket so the inbound pump unwinds too.
func (r *Relay) writePump(mb *registry.Mailbox) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-mb.C():
			if err := r.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteWait)); err != nil {
				r.log.Debug("set write deadline", "error", err)
			}
			if !ok {
				if err := r.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					r.log.Debug("write close frame", "error", err)
				}
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				r.log.Error("encode outbound message", "mid", msg.MID, "error", err)
				continue
			}
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !isExpectedCloseError(err) {
					r.log.Warn("write frame", "error", err)
				}
				_ = r.conn.Close()
				return
			}

		case <-ticker.C:
			if err := r.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteWait)); err != nil {
				r.log.Debug("set write deadline", "error", err)
			}
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = r.conn.Close()
				return
			}
		}
	}
}
