package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	"github.com/NicolasHaas/campus/pkg/rbac"
	"github.com/NicolasHaas/campus/pkg/service"
)

// HandlerFunc serves one decoded request and returns the response to send.
// It runs on the connection's goroutine; the next request is not read
// until it returns.
type HandlerFunc func(ctx context.Context, r *Request) *protocol.Message

// Route binds an opcode to its access rule and handler.
type Route struct {
	Op      protocol.Opcode
	Rule    rbac.Rule
	Handler HandlerFunc
}

// Table is the immutable opcode -> route mapping.
type Table struct {
	routes map[protocol.Opcode]Route
}

// NewTable checks that every request opcode of the protocol has exactly one
// route and that no route targets a non-request opcode.
func NewTable(routes []Route) (*Table, error) {
	t := &Table{routes: make(map[protocol.Opcode]Route, len(routes))}
	var problems []string
	for _, r := range routes {
		switch {
		case !r.Op.IsRequest():
			problems = append(problems, fmt.Sprintf("%s is not a request opcode", r.Op))
		case r.Handler == nil:
			problems = append(problems, fmt.Sprintf("%s has a nil handler", r.Op))
		default:
			if _, dup := t.routes[r.Op]; dup {
				problems = append(problems, fmt.Sprintf("%s registered twice", r.Op))
				continue
			}
			t.routes[r.Op] = r
		}
	}
	for _, op := range protocol.RequestOpcodes() {
		if _, ok := t.routes[op]; !ok {
			problems = append(problems, fmt.Sprintf("%s has no handler", op))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("server: dispatch table: %s", strings.Join(problems, "; "))
	}
	return t, nil
}

// Lookup returns the route for op.
func (t *Table) Lookup(op protocol.Opcode) (Route, bool) {
	r, ok := t.routes[op]
	return r, ok
}

// Request is what a handler sees: the message, the session it arrived on
// and the connection for session-affecting operations.
type Request struct {
	Conn    *Conn
	Session *model.Session
	Msg     *protocol.Message
	Rule    rbac.Rule

	// TargetID is the user a SelfOrAdmin request acts on, resolved to the
	// caller when the payload leaves it zero.
	TargetID int64
}

// Actor describes the caller to the service layer.
func (r *Request) Actor() service.Actor {
	return service.Actor{UserID: r.Session.UserID, Role: r.Session.Role()}
}

// Reply builds a response for the request's opcode.
func (r *Request) Reply(status protocol.Status, payload any) *protocol.Message {
	return replyAs(r.Msg.Opcode, status, payload)
}

// Fail builds a payload-less failure for the request's opcode.
func (r *Request) Fail(status protocol.Status, text string) *protocol.Message {
	return protocol.Failure(r.Msg.Opcode, status, text)
}

// Error converts a handler error into a failure response.
func (r *Request) Error(err error) *protocol.Message {
	status, text := StatusFromError(err)
	if status == protocol.StatusInternalError {
		r.Conn.log.Error("handler failed", "op", r.Msg.Opcode, "err", err)
	}
	return r.Fail(status, text)
}

func replyAs(op protocol.Opcode, status protocol.Status, payload any) *protocol.Message {
	msg, err := protocol.NewResponse(op, status, payload, "")
	if err != nil {
		slog.Error("encode response", "op", op, "err", err)
		return protocol.Failure(op, protocol.StatusInternalError, "internal error: "+err.Error())
	}
	return msg
}

// StatusFromError maps an error to a response status and client-facing
// text. Unexpected errors get a generic text; their detail stays in logs.
func StatusFromError(err error) (protocol.Status, string) {
	var decodeErr *protocol.DecodeError
	switch {
	case err == nil:
		return protocol.StatusSuccess, ""
	case errors.As(err, &decodeErr):
		return protocol.StatusBadRequest, err.Error()
	case errors.Is(err, rbac.ErrUnauthenticated):
		return protocol.StatusUnauthorized, "login required"
	case errors.Is(err, rbac.ErrForbidden):
		var denied *rbac.DeniedError
		if errors.As(err, &denied) {
			return protocol.StatusForbidden, denied.Error()
		}
		return protocol.StatusForbidden, "permission denied"
	case errors.Is(err, ErrAlreadyOnline):
		return protocol.StatusConflict, "user is already logged in elsewhere"
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.StatusInternalError, "request timed out"
	}

	text := err.Error()
	switch {
	case errors.Is(err, service.ErrNotFound):
		return protocol.StatusNotFound, text
	case errors.Is(err, service.ErrForbidden):
		return protocol.StatusForbidden, text
	case errors.Is(err, service.ErrInvalid):
		return protocol.StatusBadRequest, text
	case errors.Is(err, service.ErrConflict):
		return protocol.StatusConflict, text
	case errors.Is(err, service.ErrBadCredentials):
		return protocol.StatusUnauthorized, text
	default:
		return protocol.StatusInternalError, "internal error: " + text
	}
}

type validator interface {
	Validate() error
}

type targeted interface {
	TargetUserID() int64
}

// handle adapts a typed function into a HandlerFunc: it decodes the payload
// strictly, runs Validate when the request type has one, enforces
// SelfOrAdmin, and answers SUCCESS with the result.
func handle[Req, Resp any](fn func(ctx context.Context, r *Request, req Req) (Resp, error)) HandlerFunc {
	return adapt(protocol.StatusSuccess, fn)
}

// handleCreated is handle for operations that answer CREATED.
func handleCreated[Req, Resp any](fn func(ctx context.Context, r *Request, req Req) (Resp, error)) HandlerFunc {
	return adapt(protocol.StatusCreated, fn)
}

func adapt[Req, Resp any](status protocol.Status, fn func(ctx context.Context, r *Request, req Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, r *Request) *protocol.Message {
		var req Req
		if err := r.Msg.Decode(&req); err != nil {
			return r.Fail(protocol.StatusBadRequest, err.Error())
		}
		if v, ok := any(req).(validator); ok {
			if err := v.Validate(); err != nil {
				return r.Fail(protocol.StatusBadRequest, err.Error())
			}
		}
		if r.Rule.SelfOrAdmin {
			r.TargetID = r.Session.UserID
			if t, ok := any(req).(targeted); ok && t.TargetUserID() != 0 {
				r.TargetID = t.TargetUserID()
			}
			if err := r.Conn.srv.policy.CheckTarget(r.Session.UserID, r.TargetID, r.Session.Role()); err != nil {
				return r.Fail(protocol.StatusForbidden, "you may only act on your own account")
			}
		}
		resp, err := fn(ctx, r, req)
		if err != nil {
			return r.Error(err)
		}
		return r.Reply(status, resp)
	}
}
