package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
)

// fakeServer answers each request with whatever reply returns, after
// sending any pushes it also returns.
func fakeServer(t *testing.T, conn net.Conn, reply func(req *protocol.Message) (pushes []*protocol.Message, resp *protocol.Message)) {
	t.Helper()
	go func() {
		for {
			req, err := protocol.ReadMessage(conn)
			if err != nil {
				return
			}
			pushes, resp := reply(req)
			for _, p := range pushes {
				if protocol.WriteMessage(conn, p) != nil {
					return
				}
			}
			if resp == nil {
				continue
			}
			if protocol.WriteMessage(conn, resp) != nil {
				return
			}
		}
	}()
}

func TestCall(t *testing.T) {
	t.Parallel()
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	fakeServer(t, serverSide, func(req *protocol.Message) ([]*protocol.Message, *protocol.Message) {
		switch req.Opcode {
		case protocol.OpLogin:
			var lr pb.LoginRequest
			if err := req.Decode(&lr); err != nil || lr.Password != "secret1" {
				return nil, protocol.Failure(protocol.OpLoginFailed, protocol.StatusUnauthorized, "invalid login or password")
			}
			resp, _ := protocol.NewResponse(protocol.OpLoginSuccess, protocol.StatusSuccess,
				model.Profile{UserID: 42, Login: lr.ID, Role: model.RoleStudent}, "")
			return nil, resp
		case protocol.OpHeartbeat:
			push, _ := protocol.NewResponse(protocol.OpAnnouncement, protocol.StatusSuccess, pb.Announcement{Text: "hi"}, "")
			resp, _ := protocol.NewResponse(protocol.OpHeartbeat, protocol.StatusSuccess, pb.HeartbeatResponse{ServerTime: 1, Version: "dev"}, "")
			return []*protocol.Message{push}, resp
		default:
			return nil, protocol.Failure(protocol.OpUnsupportedRequest, protocol.StatusBadRequest, "unsupported")
		}
	})

	c := New(clientSide)
	defer c.Close()
	pushes := make(chan *protocol.Message, 1)
	c.SetPushHandler(func(msg *protocol.Message) { pushes <- msg })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Login(ctx, "s042", "wrong")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	if diff := cmp.Diff(&StatusError{Op: protocol.OpLoginFailed, Status: protocol.StatusUnauthorized, Text: "invalid login or password"}, statusErr); diff != "" {
		t.Fatalf("status error (-want +got):\n%s", diff)
	}

	p, err := c.Login(ctx, "s042", "secret1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, p.UserID)

	var hb pb.HeartbeatResponse
	require.NoError(t, c.Call(ctx, protocol.OpHeartbeat, nil, &hb))
	assert.Equal(t, "dev", hb.Version)
	select {
	case msg := <-pushes:
		assert.Equal(t, protocol.OpAnnouncement, msg.Opcode)
	case <-time.After(5 * time.Second):
		t.Fatal("push not delivered")
	}

	err = c.Call(ctx, "FLY", nil, nil)
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, protocol.StatusBadRequest, statusErr.Status)
}

func TestCallCancelledClosesConnection(t *testing.T) {
	t.Parallel()
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	fakeServer(t, serverSide, func(*protocol.Message) ([]*protocol.Message, *protocol.Message) {
		return nil, nil // never answers
	})

	c := New(clientSide)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Call(ctx, protocol.OpHeartbeat, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client still open after cancelled call")
	}
	err = c.Call(context.Background(), protocol.OpHeartbeat, nil, nil)
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "campusctl.yaml")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s.Server = "campus.example:9700"
	s.TLS = true
	s.Login = "s042"
	require.NoError(t, s.Save(path))

	got, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.Equal(t, Options{TLS: true}, got.Options())
}
