package server

import (
	"context"
	"strings"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
	"github.com/NicolasHaas/campus/pkg/version"
)

// handleLogin answers with LOGIN_SUCCESS carrying the profile, or
// LOGIN_FAILED. It is the only handler that binds a session.
func (s *Server) handleLogin(ctx context.Context, r *Request) *protocol.Message {
	failed := func(result string, status protocol.Status, text string) *protocol.Message {
		s.metrics.Logins.WithLabelValues(result).Inc()
		return protocol.Failure(protocol.OpLoginFailed, status, text)
	}

	var req pb.LoginRequest
	if err := r.Msg.Decode(&req); err != nil {
		return failed("malformed", protocol.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return failed("malformed", protocol.StatusBadRequest, err.Error())
	}

	profile, err := s.services.Accounts.Authenticate(ctx, strings.TrimSpace(req.ID), req.Password)
	if err != nil {
		status, text := StatusFromError(err)
		if status == protocol.StatusInternalError {
			r.Conn.log.Error("authenticate", "err", err)
			return failed("error", status, text)
		}
		r.Conn.log.Info("login failed", "login", req.ID)
		return failed("rejected", status, text)
	}

	if err := r.Conn.login(profile); err != nil {
		status, text := StatusFromError(err)
		return failed("duplicate", status, text)
	}
	s.metrics.Logins.WithLabelValues("success").Inc()
	return replyAs(protocol.OpLoginSuccess, protocol.StatusSuccess, profile)
}

func (s *Server) handleLogout(_ context.Context, r *Request) *protocol.Message {
	var req pb.Empty
	if err := r.Msg.Decode(&req); err != nil {
		return r.Fail(protocol.StatusBadRequest, err.Error())
	}
	r.Conn.logout("logout")
	return r.Reply(protocol.StatusSuccess, pb.Empty{})
}

func (s *Server) heartbeat(_ context.Context, _ *Request, _ pb.Empty) (pb.HeartbeatResponse, error) {
	return pb.HeartbeatResponse{ServerTime: s.now().Unix(), Version: version.String()}, nil
}

func (s *Server) register(ctx context.Context, _ *Request, req pb.RegisterRequest) (model.Profile, error) {
	return s.services.Accounts.Register(ctx, req.ID, req.Password, req.DisplayName)
}

// newPush builds a server-initiated message.
func newPush(op protocol.Opcode, payload any) *protocol.Message {
	return replyAs(op, protocol.StatusSuccess, payload)
}

// list keeps empty results encoding as [] instead of null.
func list[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
