// Package client implements a campus protocol client: one request in flight
// at a time, with server pushes delivered to a handler.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
)

// ErrClosed is returned by Call once the connection is gone.
var ErrClosed = errors.New("client: connection closed")

// PushHandler receives server-initiated messages. It runs on the receive
// goroutine and must not call back into the client.
type PushHandler func(msg *protocol.Message)

// StatusError is a non-success response.
type StatusError struct {
	Op     protocol.Opcode
	Status protocol.Status
	Text   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Text)
}

// Options controls Dial.
type Options struct {
	TLS                bool
	InsecureSkipVerify bool // accept self-signed server certificates
}

// Client is a connection to a campus server.
type Client struct {
	conn net.Conn

	callMu  sync.Mutex
	replies chan *protocol.Message

	handlerMu sync.RWMutex
	handler   PushHandler

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	var (
		conn net.Conn
		err  error
	)
	if opts.TLS {
		dialer := &tls.Dialer{Config: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed servers
			MinVersion:         tls.VersionTLS13,
		}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return New(conn), nil
}

// New wraps an established connection and starts receiving.
func New(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		replies: make(chan *protocol.Message, 1),
		done:    make(chan struct{}),
	}
	go c.receive()
	return c
}

// SetPushHandler sets the callback for pushes. Pushes arriving with no
// handler are dropped.
func (c *Client) SetPushHandler(h PushHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

func (c *Client) receive() {
	defer c.shutdown()
	for {
		msg, err := protocol.ReadMessage(c.conn)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				slog.Warn("client: malformed message from server", "err", err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("client: read failed", "err", err)
			}
			return
		}
		if msg.Opcode.IsPush() {
			c.handlerMu.RLock()
			h := c.handler
			c.handlerMu.RUnlock()
			if h != nil {
				h(msg)
			}
			continue
		}
		select {
		case c.replies <- msg:
		default:
			slog.Warn("client: unexpected reply", "op", msg.Opcode)
		}
	}
}

// Call sends one request and waits for its reply. A successful reply is
// decoded into resp when resp is non-nil; a failed one becomes a
// *StatusError. Cancelling ctx mid-call closes the connection, since the
// late reply would otherwise be taken as the answer to the next call.
func (c *Client) Call(ctx context.Context, op protocol.Opcode, req, resp any) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	msg, err := protocol.NewRequest(op, req)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if err := protocol.WriteMessage(c.conn, msg); err != nil {
		c.Close()
		return fmt.Errorf("client: send %s: %w", op, err)
	}

	var reply *protocol.Message
	select {
	case reply = <-c.replies:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}

	if !reply.Status.Success() {
		return &StatusError{Op: reply.Opcode, Status: reply.Status, Text: reply.Text}
	}
	if resp == nil {
		return nil
	}
	return reply.Decode(resp)
}

// Login authenticates the connection.
func (c *Client) Login(ctx context.Context, login, password string) (model.Profile, error) {
	var p model.Profile
	err := c.Call(ctx, protocol.OpLogin, pb.LoginRequest{ID: login, Password: password}, &p)
	return p, err
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) shutdown() {
	_ = c.Close()
	close(c.done)
}

// Done returns a channel that's closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
