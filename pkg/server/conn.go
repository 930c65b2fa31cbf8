package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
)

// Conn is the connection handler: it owns one transport, runs the receive
// loop and holds the Session. Only the loop goroutine touches session; other
// goroutines reach the connection through the Handle methods.
type Conn struct {
	id      string
	srv     *Server
	t       Transport
	remote  string
	since   time.Time
	log     *slog.Logger // loop goroutine only; gains "user" after login
	baseLog *slog.Logger
	session *model.Session

	// Mirrors of the session for Handle callers on other goroutines.
	boundUser atomic.Int64
	profile   atomic.Pointer[model.Profile]

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Handle = (*Conn)(nil)

func newConn(srv *Server, t Transport) *Conn {
	id := uuid.NewString()
	remote := t.RemoteAddr()
	log := srv.log.With("conn", id, "remote", remote)
	return &Conn{
		id:      id,
		srv:     srv,
		t:       t,
		remote:  remote,
		since:   srv.now(),
		log:     log,
		baseLog: log,
		session: model.NewSession(),
	}
}

func (c *Conn) ID() string { return c.id }

// Push sends a server-initiated message. Safe from any goroutine.
func (c *Conn) Push(msg *protocol.Message) error {
	return c.write(msg)
}

// Disconnect closes the transport and drops the registry entry. The loop
// notices the closed transport and finishes teardown. Safe from any
// goroutine and idempotent.
func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.baseLog.Debug("close transport", "err", err)
		}
		c.srv.registry.RemoveIf(c.boundUser.Load(), c)
	})
}

// Presence describes the connection for LIST_ONLINE.
func (c *Conn) Presence() pb.OnlineUser {
	p := pb.OnlineUser{Remote: c.remote, Since: c.since}
	if prof := c.profile.Load(); prof != nil {
		p.UserID = prof.UserID
		p.Login = prof.Login
		p.DisplayName = prof.DisplayName
		p.Role = prof.Role
	}
	return p
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool { return c.closed.Load() }

func (c *Conn) write(msg *protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}
	if d := c.srv.cfg.WriteTimeout; d > 0 {
		_ = c.t.SetWriteDeadline(time.Now().Add(d))
	}
	return c.t.WriteMessage(msg)
}

// serve runs the receive loop until the transport fails or the connection
// is disconnected, then tears down.
func (c *Conn) serve(ctx context.Context) {
	c.log.Debug("connection opened")
	defer c.teardown()

	for {
		if d := c.srv.cfg.IdleTimeout; d > 0 {
			_ = c.t.SetReadDeadline(time.Now().Add(d))
		}
		msg, err := c.t.ReadMessage()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				c.log.Debug("malformed message", "err", err)
				resp := protocol.Failure(protocol.OpUnsupportedRequest, protocol.StatusBadRequest, err.Error())
				if err := c.reply(resp); err != nil {
					return
				}
				continue
			}
			if !c.closed.Load() && !errors.Is(err, io.EOF) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}

		resp := c.dispatch(ctx, msg)
		if err := c.reply(resp); err != nil {
			if !errors.Is(err, ErrConnClosed) {
				c.log.Debug("write failed", "op", resp.Opcode, "err", err)
			}
			return
		}
	}
}

// reply writes a response. A response too large to frame is replaced by an
// INTERNAL_ERROR; encoding fails before any byte is written, so the stream
// stays aligned and the loop can continue.
func (c *Conn) reply(resp *protocol.Message) error {
	err := c.write(resp)
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		return err
	}
	c.log.Warn("response too large", "op", resp.Opcode, "err", err)
	c.srv.metrics.OversizedReplies.Inc()
	return c.write(protocol.Failure(resp.Opcode, protocol.StatusInternalError, "response too large"))
}

// dispatch runs one request to completion. Panics in handlers are recovered
// here and answered with INTERNAL_ERROR; the connection keeps going.
func (c *Conn) dispatch(ctx context.Context, msg *protocol.Message) (resp *protocol.Message) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			c.srv.metrics.HandlerPanics.Inc()
			c.log.Error("handler panic", "op", msg.Opcode, "panic", rec, "stack", string(debug.Stack()))
			resp = protocol.Failure(msg.Opcode, protocol.StatusInternalError, fmt.Sprintf("internal error: %v", rec))
		}
		if resp == nil {
			c.log.Error("handler returned no response", "op", msg.Opcode)
			resp = protocol.Failure(msg.Opcode, protocol.StatusInternalError, "internal error: no response")
		}
		c.srv.metrics.observe(msg.Opcode, resp.Status, time.Since(start))
	}()

	route, ok := c.srv.table.Lookup(msg.Opcode)
	if !ok {
		return protocol.Failure(protocol.OpUnsupportedRequest, protocol.StatusBadRequest,
			fmt.Sprintf("unsupported request %q", msg.Opcode))
	}
	if err := c.srv.policy.Check(route.Rule, c.session.Authenticated(), c.session.Role()); err != nil {
		status, text := StatusFromError(err)
		return protocol.Failure(msg.Opcode, status, text)
	}

	if d := c.srv.cfg.ServiceTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return route.Handler(ctx, &Request{Conn: c, Session: c.session, Msg: msg, Rule: route.Rule})
}

// login binds the session to p and registers the connection, applying the
// duplicate-login policy. A rejected login leaves the current session intact.
func (c *Conn) login(p model.Profile) error {
	if c.session.Authenticated() && c.session.UserID == p.UserID {
		c.refresh(p)
		return nil
	}

	reject := c.srv.cfg.DuplicateLogin == DuplicateReject
	if reject {
		if _, ok := c.srv.registry.PutIfAbsent(p.UserID, c); !ok {
			return ErrAlreadyOnline
		}
	}
	c.logout("login as another user")

	// Publish the binding before checking closed: a Disconnect that misses
	// the check sees this id and removes the entry itself.
	c.boundUser.Store(p.UserID)
	if !reject {
		if prev := c.srv.registry.Put(p.UserID, c); prev != nil {
			c.log.Info("evicting previous session", "user", p.Login, "evicted", prev.ID())
			kick, _ := protocol.NewResponse(protocol.OpForcedLogout, protocol.StatusSuccess,
				pb.ForcedLogout{Reason: "logged in from another connection"}, "")
			if err := prev.Push(kick); err != nil && !errors.Is(err, ErrConnClosed) {
				c.log.Debug("notify evicted session", "err", err)
			}
			prev.Disconnect()
		}
	}
	if c.closed.Load() {
		c.srv.registry.RemoveIf(p.UserID, c)
		c.boundUser.Store(0)
		return ErrConnClosed
	}

	c.session.Bind(p)
	c.profile.Store(&p)
	c.log = c.log.With("user", p.Login)
	c.log.Info("logged in", "user_id", p.UserID, "role", p.Role.String())
	return nil
}

// logout clears the session and its registry entry.
func (c *Conn) logout(reason string) {
	if !c.session.Authenticated() {
		return
	}
	c.srv.registry.RemoveIf(c.session.UserID, c)
	c.srv.watchers.Unwatch(c.id)
	c.log.Info("logged out", "reason", reason)
	c.session.Clear()
	c.boundUser.Store(0)
	c.profile.Store(nil)
	c.log = c.baseLog
}

// refresh replaces the cached profile after a profile mutation.
func (c *Conn) refresh(p model.Profile) {
	c.session.Refresh(p)
	if c.session.Profile != nil {
		cp := *c.session.Profile
		c.profile.Store(&cp)
	}
}

// teardown runs on the loop goroutine after serve exits. Only the first call
// has any effect.
func (c *Conn) teardown() {
	if !c.session.Connected {
		return
	}
	c.session.Connected = false
	c.Disconnect()
	c.srv.registry.RemoveIf(c.session.UserID, c)
	c.srv.watchers.Unwatch(c.id)
	c.srv.metrics.ConnectionsActive.Dec()
	c.log.Debug("connection closed")
}
