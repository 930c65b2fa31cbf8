package server

import (
	"context"
	"strings"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
	"github.com/NicolasHaas/campus/pkg/service"
)

func badRequest(msg string) error {
	return &service.Error{Kind: service.ErrInvalid, Msg: msg}
}

func (s *Server) getProfile(ctx context.Context, r *Request, _ pb.UserRequest) (model.Profile, error) {
	p, err := s.services.Accounts.Profile(ctx, r.TargetID)
	if err != nil {
		return model.Profile{}, err
	}
	if r.TargetID == r.Session.UserID {
		r.Conn.refresh(p)
	}
	return p, nil
}

func (s *Server) updateProfile(ctx context.Context, r *Request, req pb.UpdateProfileRequest) (model.Profile, error) {
	p, err := s.services.Accounts.UpdateDisplayName(ctx, r.TargetID, req.DisplayName)
	if err != nil {
		return model.Profile{}, err
	}
	if r.TargetID == r.Session.UserID {
		r.Conn.refresh(p)
	}
	return p, nil
}

// changePassword requires the old password when users change their own;
// administrators resetting someone else's do not need it.
func (s *Server) changePassword(ctx context.Context, r *Request, req pb.ChangePasswordRequest) (pb.Empty, error) {
	self := r.TargetID == r.Session.UserID
	err := s.services.Accounts.ChangePassword(ctx, r.TargetID, req.OldPassword, req.NewPassword, self)
	return pb.Empty{}, err
}

func (s *Server) listUsers(ctx context.Context, _ *Request, req pb.PageRequest) ([]model.Profile, error) {
	users, err := s.services.Accounts.ListUsers(ctx, req.Offset, req.Limit)
	return list(users), err
}

// deleteUser removes an account and disconnects its owner if online.
func (s *Server) deleteUser(ctx context.Context, r *Request, req pb.UserRequest) (pb.Empty, error) {
	if req.UserID <= 0 {
		return pb.Empty{}, badRequest("user_id is required")
	}
	if req.UserID == r.Session.UserID {
		return pb.Empty{}, badRequest("you cannot delete your own account")
	}
	if err := s.services.Accounts.DeleteUser(ctx, req.UserID); err != nil {
		return pb.Empty{}, err
	}

	if h, ok := s.registry.Get(req.UserID); ok {
		_ = h.Push(newPush(protocol.OpForcedLogout, pb.ForcedLogout{Reason: "account deleted"}))
		h.Disconnect()
	}
	r.Conn.log.Info("user deleted", "target", req.UserID)
	return pb.Empty{}, nil
}

func (s *Server) listOnline(_ context.Context, _ *Request, _ pb.Empty) ([]pb.OnlineUser, error) {
	handles := s.registry.Snapshot()
	online := make([]pb.OnlineUser, 0, len(handles))
	for _, h := range handles {
		online = append(online, h.Presence())
	}
	return online, nil
}

func (s *Server) sendAnnouncement(ctx context.Context, r *Request, req pb.AnnouncementRequest) (pb.AnnouncementResponse, error) {
	msg := newPush(protocol.OpAnnouncement, pb.Announcement{
		From:   r.Session.Profile.DisplayName,
		Text:   strings.TrimSpace(req.Text),
		SentAt: s.now().UTC(),
	})
	delivered := s.registry.Broadcast(ctx, msg, r.Conn)
	r.Conn.log.Info("announcement sent", "delivered", delivered)
	return pb.AnnouncementResponse{Delivered: delivered}, nil
}
