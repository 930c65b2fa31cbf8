package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
	"github.com/NicolasHaas/campus/pkg/service"
)

const replyTimeout = 5 * time.Second

func newTestServer(t *testing.T, configure func(*Config), wrap func(*service.Set)) (*Server, service.Set) {
	t.Helper()
	db, err := datastore.NewProviderFactory(filepath.Join(t.TempDir(), "campus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := service.NewSet(db)
	if wrap != nil {
		wrap(&svc)
	}
	cfg := DefaultConfig()
	cfg.MetricsListen = ""
	if configure != nil {
		configure(&cfg)
	}
	srv, err := New(cfg, Dependencies{
		Services: svc,
		Store:    db,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(srv.closeConns)
	return srv, svc
}

func createUser(t *testing.T, svc service.Set, login string, role model.Role) model.Profile {
	t.Helper()
	p, err := svc.Accounts.CreateUser(context.Background(), login, "secret1", "", role)
	require.NoError(t, err)
	return p
}

// testClient speaks the framed protocol over one end of a net.Pipe. A
// reader goroutine sorts incoming messages into replies and pushes so the
// server never blocks on a write.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	replies chan *protocol.Message
	pushes  chan *protocol.Message
	done    chan struct{}
}

func connect(t *testing.T, srv *Server) *testClient {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	go srv.ServeConn(context.Background(), NewStreamTransport(serverSide))

	c := &testClient{
		t:       t,
		conn:    clientSide,
		replies: make(chan *protocol.Message, 64),
		pushes:  make(chan *protocol.Message, 64),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		for {
			msg, err := protocol.ReadMessage(clientSide)
			if err != nil {
				return
			}
			if msg.Opcode.IsPush() {
				c.pushes <- msg
			} else {
				c.replies <- msg
			}
		}
	}()
	t.Cleanup(func() { _ = clientSide.Close() })
	return c
}

func (c *testClient) send(op protocol.Opcode, payload any) error {
	msg, err := protocol.NewRequest(op, payload)
	if err != nil {
		return err
	}
	return protocol.WriteMessage(c.conn, msg)
}

func (c *testClient) next() (*protocol.Message, error) {
	select {
	case msg := <-c.replies:
		return msg, nil
	case <-c.done:
		return nil, io.EOF
	case <-time.After(replyTimeout):
		return nil, fmt.Errorf("no reply within %s", replyTimeout)
	}
}

func (c *testClient) tryCall(op protocol.Opcode, payload any) (*protocol.Message, error) {
	if err := c.send(op, payload); err != nil {
		return nil, err
	}
	return c.next()
}

func (c *testClient) call(op protocol.Opcode, payload any) *protocol.Message {
	c.t.Helper()
	resp, err := c.tryCall(op, payload)
	require.NoError(c.t, err, "call %s", op)
	return resp
}

func (c *testClient) login(login string) model.Profile {
	c.t.Helper()
	resp := c.call(protocol.OpLogin, pb.LoginRequest{ID: login, Password: "secret1"})
	require.Equal(c.t, protocol.OpLoginSuccess, resp.Opcode, resp.Text)
	var p model.Profile
	require.NoError(c.t, resp.Decode(&p))
	return p
}

func (c *testClient) push() *protocol.Message {
	c.t.Helper()
	select {
	case msg := <-c.pushes:
		return msg
	case <-time.After(replyTimeout):
		c.t.Fatalf("no push within %s", replyTimeout)
		return nil
	}
}

func (c *testClient) waitClosed() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(replyTimeout):
		c.t.Fatalf("connection still open after %s", replyTimeout)
	}
}

func TestLoginSuccess(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	created := createUser(t, svc, "s042", model.RoleStudent)
	c := connect(t, srv)

	resp := c.call(protocol.OpLogin, pb.LoginRequest{ID: "s042", Password: "secret1"})
	require.Equal(t, protocol.OpLoginSuccess, resp.Opcode)
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &raw))
	assert.EqualValues(t, created.UserID, raw["user_id"])
	assert.Equal(t, "STUDENT", raw["role"])
	pw, ok := raw["password"]
	assert.True(t, ok, "password key must be present")
	assert.Nil(t, pw)

	h, ok := srv.Registry().Get(created.UserID)
	require.True(t, ok)
	assert.Equal(t, "s042", h.Presence().Login)
}

func TestLoginFailures(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "s001", model.RoleStudent)
	c := connect(t, srv)

	tests := map[string]struct {
		payload    any
		wantStatus protocol.Status
	}{
		"wrong_password": {payload: pb.LoginRequest{ID: "s001", Password: "nope"}, wantStatus: protocol.StatusUnauthorized},
		"unknown_login":  {payload: pb.LoginRequest{ID: "s999", Password: "secret1"}, wantStatus: protocol.StatusUnauthorized},
		"empty_login":    {payload: pb.LoginRequest{Password: "secret1"}, wantStatus: protocol.StatusBadRequest},
		"unknown_field":  {payload: map[string]any{"id": "s001", "password": "secret1", "extra": 1}, wantStatus: protocol.StatusBadRequest},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			resp := c.call(protocol.OpLogin, tc.payload)
			assert.Equal(t, protocol.OpLoginFailed, resp.Opcode)
			assert.Equal(t, tc.wantStatus, resp.Status)
			assert.NotEmpty(t, resp.Text)
		})
	}
	assert.Equal(t, 0, srv.Registry().Count())

	// The connection survives every failure.
	resp := c.call(protocol.OpHeartbeat, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
}

func TestRepliesKeepRequestOrder(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	c := connect(t, srv)

	ops := []protocol.Opcode{protocol.OpHeartbeat, protocol.OpGetCart, protocol.OpLogin, protocol.OpListCourses}
	for _, op := range ops {
		require.NoError(t, c.send(op, nil))
	}
	var got []protocol.Opcode
	for range ops {
		resp, err := c.next()
		require.NoError(t, err)
		got = append(got, resp.Opcode)
	}
	want := []protocol.Opcode{protocol.OpHeartbeat, protocol.OpGetCart, protocol.OpLoginFailed, protocol.OpListCourses}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reply order mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownOpcodeAndMalformedFrames(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	c := connect(t, srv)

	resp := c.call("FLY_TO_MOON", nil)
	assert.Equal(t, protocol.OpUnsupportedRequest, resp.Opcode)
	assert.Equal(t, protocol.StatusBadRequest, resp.Status)

	// Server-only opcodes are not requests either.
	resp = c.call(protocol.OpAnnouncement, nil)
	assert.Equal(t, protocol.OpUnsupportedRequest, resp.Opcode)

	body := []byte("{not json")
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err := c.conn.Write(frame)
	require.NoError(t, err)
	resp, err = c.next()
	require.NoError(t, err)
	assert.Equal(t, protocol.OpUnsupportedRequest, resp.Opcode)
	assert.Equal(t, protocol.StatusBadRequest, resp.Status)

	resp = c.call(protocol.OpHeartbeat, nil)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var hb pb.HeartbeatResponse
	require.NoError(t, resp.Decode(&hb))
	assert.NotZero(t, hb.ServerTime)
}

type panickyLibrary struct{ service.Library }

func (panickyLibrary) Search(context.Context, string, int) ([]model.Book, error) {
	panic("index corrupted")
}

func TestHandlerPanicIsContained(t *testing.T) {
	srv, svc := newTestServer(t, nil, func(s *service.Set) {
		s.Library = panickyLibrary{s.Library}
	})
	createUser(t, svc, "s001", model.RoleStudent)
	c := connect(t, srv)
	c.login("s001")

	resp := c.call(protocol.OpSearchBooks, pb.SearchBooksRequest{Query: "go"})
	assert.Equal(t, protocol.OpSearchBooks, resp.Opcode)
	assert.Equal(t, protocol.StatusInternalError, resp.Status)
	assert.Contains(t, resp.Text, "index corrupted")
	assert.EqualValues(t, 1, srv.Metrics().Snapshot().HandlerPanics)

	resp = c.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, 1, srv.Registry().Count())
}

func TestHandlerPanicLeavesOtherConnectionsAlone(t *testing.T) {
	const rounds = 20
	srv, svc := newTestServer(t, nil, func(s *service.Set) {
		s.Library = panickyLibrary{s.Library}
	})
	createUser(t, svc, "s001", model.RoleStudent)
	createUser(t, svc, "s002", model.RoleStudent)
	crashing := connect(t, srv)
	crashing.login("s001")
	steady := connect(t, srv)
	steady.login("s002")

	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			resp, err := crashing.tryCall(protocol.OpSearchBooks, pb.SearchBooksRequest{Query: "go"})
			if err != nil {
				errs <- fmt.Errorf("search %d: %w", i, err)
				return
			}
			if resp.Status != protocol.StatusInternalError {
				errs <- fmt.Errorf("search %d: status %s", i, resp.Status)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			resp, err := steady.tryCall(protocol.OpGetCart, nil)
			if err != nil {
				errs <- fmt.Errorf("cart %d: %w", i, err)
				return
			}
			if resp.Opcode != protocol.OpGetCart || resp.Status != protocol.StatusSuccess {
				errs <- fmt.Errorf("cart %d: %s %s %s", i, resp.Opcode, resp.Status, resp.Text)
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.EqualValues(t, rounds, srv.Metrics().Snapshot().HandlerPanics)
	assert.Equal(t, 2, srv.Registry().Count())
}

func TestOversizedReplyKeepsConnection(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	author := createUser(t, svc, "s001", model.RoleStudent)
	ctx := context.Background()
	th, err := svc.Forum.CreateThread(ctx, author.UserID, "Escapes", "Angle brackets")
	require.NoError(t, err)
	// Each '<' is escaped to six bytes, so three of these posts exceed one frame.
	body := strings.Repeat("<", model.MaxPostLength)
	for i := 0; i < 3; i++ {
		_, err := svc.Forum.Reply(ctx, author.UserID, th.ID, body)
		require.NoError(t, err)
	}

	c := connect(t, srv)
	c.login("s001")

	resp := c.call(protocol.OpGetThread, pb.ThreadRequest{ID: th.ID})
	assert.Equal(t, protocol.OpGetThread, resp.Opcode)
	assert.Equal(t, protocol.StatusInternalError, resp.Status)
	assert.Equal(t, "response too large", resp.Text)
	assert.EqualValues(t, 1, srv.Metrics().Snapshot().OversizedReplies)

	resp = c.call(protocol.OpGetThread, pb.ThreadRequest{ID: th.ID, Offset: 1, Limit: 1})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)
	var got model.Thread
	require.NoError(t, resp.Decode(&got))
	require.Len(t, got.Posts, 1)
	assert.Equal(t, body, got.Posts[0].Body)
	assert.Equal(t, 3, got.Replies)

	resp = c.call(protocol.OpHeartbeat, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
}

type countingStore struct {
	service.Store
	calls atomic.Int32
}

func (s *countingStore) Cart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	s.calls.Add(1)
	return s.Store.Cart(ctx, userID)
}

func (s *countingStore) AddProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	s.calls.Add(1)
	return s.Store.AddProduct(ctx, p)
}

func TestAccessRulesRunBeforeHandlers(t *testing.T) {
	spy := &countingStore{}
	srv, svc := newTestServer(t, nil, func(s *service.Set) {
		spy.Store = s.Store
		s.Store = spy
	})
	other := createUser(t, svc, "s002", model.RoleStudent)
	createUser(t, svc, "s001", model.RoleStudent)
	c := connect(t, srv)

	resp := c.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusUnauthorized, resp.Status)
	assert.Equal(t, int32(0), spy.calls.Load())

	c.login("s001")

	resp = c.call(protocol.OpAddProduct, pb.AddProductRequest{Name: "Pen", Price: 150, Stock: 3})
	assert.Equal(t, protocol.StatusForbidden, resp.Status)
	assert.Equal(t, int32(0), spy.calls.Load())

	resp = c.call(protocol.OpGetBalance, pb.UserRequest{UserID: other.UserID})
	assert.Equal(t, protocol.StatusForbidden, resp.Status)

	resp = c.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, int32(1), spy.calls.Load())
}

func TestLogout(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "s001", model.RoleStudent)
	c := connect(t, srv)
	c.login("s001")
	require.Equal(t, 1, srv.Registry().Count())

	resp := c.call(protocol.OpLogout, nil)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, 0, srv.Registry().Count())

	resp = c.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusUnauthorized, resp.Status)

	resp = c.call(protocol.OpLogout, nil)
	assert.Equal(t, protocol.StatusUnauthorized, resp.Status)
}

func TestDuplicateLoginEvicts(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	p := createUser(t, svc, "s001", model.RoleStudent)
	first := connect(t, srv)
	first.login("s001")
	second := connect(t, srv)
	second.login("s001")

	kick := first.push()
	assert.Equal(t, protocol.OpForcedLogout, kick.Opcode)
	first.waitClosed()

	h, ok := srv.Registry().Get(p.UserID)
	require.True(t, ok)
	assert.Equal(t, 1, srv.Registry().Count())

	resp := second.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	// The evicted connection's teardown must not remove its successor.
	h2, ok := srv.Registry().Get(p.UserID)
	require.True(t, ok)
	assert.Equal(t, h.ID(), h2.ID())
}

func TestDuplicateLoginRejects(t *testing.T) {
	srv, svc := newTestServer(t, func(c *Config) { c.DuplicateLogin = DuplicateReject }, nil)
	p := createUser(t, svc, "s001", model.RoleStudent)
	first := connect(t, srv)
	first.login("s001")
	second := connect(t, srv)

	resp := second.call(protocol.OpLogin, pb.LoginRequest{ID: "s001", Password: "secret1"})
	assert.Equal(t, protocol.OpLoginFailed, resp.Opcode)
	assert.Equal(t, protocol.StatusConflict, resp.Status)

	resp = second.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusUnauthorized, resp.Status)

	resp = first.call(protocol.OpGetCart, nil)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	_, ok := srv.Registry().Get(p.UserID)
	assert.True(t, ok)
}

func TestRejectedLoginKeepsCurrentSession(t *testing.T) {
	srv, svc := newTestServer(t, func(c *Config) { c.DuplicateLogin = DuplicateReject }, nil)
	a := createUser(t, svc, "s001", model.RoleStudent)
	b := createUser(t, svc, "s002", model.RoleStudent)
	first := connect(t, srv)
	first.login("s001")
	second := connect(t, srv)
	second.login("s002")

	resp := first.call(protocol.OpLogin, pb.LoginRequest{ID: "s002", Password: "secret1"})
	assert.Equal(t, protocol.OpLoginFailed, resp.Opcode)
	assert.Equal(t, protocol.StatusConflict, resp.Status)

	resp = first.call(protocol.OpGetProfile, pb.UserRequest{})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)
	var p model.Profile
	require.NoError(t, resp.Decode(&p))
	assert.Equal(t, "s001", p.Login)

	ha, ok := srv.Registry().Get(a.UserID)
	require.True(t, ok)
	assert.Equal(t, "s001", ha.Presence().Login)
	hb, ok := srv.Registry().Get(b.UserID)
	require.True(t, ok)
	assert.Equal(t, "s002", hb.Presence().Login)
	assert.Equal(t, 2, srv.Registry().Count())
}

func TestLoginOnClosedConnectionIsNotRegistered(t *testing.T) {
	for _, policy := range []string{DuplicateEvict, DuplicateReject} {
		t.Run(policy, func(t *testing.T) {
			srv, svc := newTestServer(t, func(c *Config) { c.DuplicateLogin = policy }, nil)
			p := createUser(t, svc, "s001", model.RoleStudent)
			serverSide, clientSide := net.Pipe()
			t.Cleanup(func() { _ = clientSide.Close() })
			c := newConn(srv, NewStreamTransport(serverSide))

			c.Disconnect()
			assert.ErrorIs(t, c.login(p), ErrConnClosed)
			_, ok := srv.Registry().Get(p.UserID)
			assert.False(t, ok)
			assert.False(t, c.session.Authenticated())
		})
	}
}

func TestTeardownRunsOnce(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })
	c := newConn(srv, NewStreamTransport(serverSide))
	srv.metrics.ConnectionsActive.Inc()

	c.teardown()
	c.teardown()
	assert.False(t, c.session.Connected)
	assert.True(t, c.Closed())
	assert.EqualValues(t, 0, srv.Metrics().Snapshot().ConnectionsActive)
}

func TestRegistryTracksConcurrentSessions(t *testing.T) {
	const n, m = 4, 2
	srv, svc := newTestServer(t, nil, nil)
	clients := make([]*testClient, n)
	ids := make([]int64, n)
	for i := range clients {
		ids[i] = createUser(t, svc, fmt.Sprintf("s%03d", i), model.RoleStudent).UserID
		clients[i] = connect(t, srv)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.tryCall(protocol.OpLogin, pb.LoginRequest{ID: fmt.Sprintf("s%03d", i), Password: "secret1"})
			if err != nil {
				errs <- err
				return
			}
			if resp.Opcode != protocol.OpLoginSuccess {
				errs <- fmt.Errorf("login %d: %s %s", i, resp.Opcode, resp.Text)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	require.Equal(t, n, srv.Registry().Count())

	errs = make(chan error, m)
	for i, c := range clients[:m] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.tryCall(protocol.OpLogout, nil)
			if err != nil {
				errs <- err
				return
			}
			if resp.Status != protocol.StatusSuccess {
				errs <- fmt.Errorf("logout %d: %s %s", i, resp.Status, resp.Text)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Equal(t, n-m, srv.Registry().Count())
	for i, id := range ids {
		_, ok := srv.Registry().Get(id)
		assert.Equal(t, i >= m, ok, "user %d online", i)
	}
	assert.EqualValues(t, n, srv.Metrics().Snapshot().ConnectionsActive)

	for _, c := range clients[m:] {
		require.NoError(t, c.conn.Close())
	}
	require.Eventually(t, func() bool { return srv.Registry().Count() == 0 },
		replyTimeout, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Metrics().Snapshot().ConnectionsActive == m },
		replyTimeout, 10*time.Millisecond)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	p := createUser(t, svc, "s001", model.RoleStudent)
	c := connect(t, srv)
	c.login("s001")

	h, ok := srv.Registry().Get(p.UserID)
	require.True(t, ok)
	h.Disconnect()
	h.Disconnect()
	c.waitClosed()

	_, ok = srv.Registry().Get(p.UserID)
	assert.False(t, ok)
	assert.ErrorIs(t, h.Push(newPush(protocol.OpAnnouncement, pb.Announcement{Text: "late"})), ErrConnClosed)
}

func TestAnnouncementReachesOthers(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "admin1", model.RoleAdmin)
	createUser(t, svc, "s001", model.RoleStudent)
	admin := connect(t, srv)
	admin.login("admin1")
	student := connect(t, srv)
	student.login("s001")

	resp := admin.call(protocol.OpSendAnnouncement, pb.AnnouncementRequest{Text: "Library closes at 6"})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)
	var ack pb.AnnouncementResponse
	require.NoError(t, resp.Decode(&ack))
	assert.Equal(t, 1, ack.Delivered)

	msg := student.push()
	require.Equal(t, protocol.OpAnnouncement, msg.Opcode)
	var ann pb.Announcement
	require.NoError(t, msg.Decode(&ann))
	assert.Equal(t, "Library closes at 6", ann.Text)
	assert.Equal(t, "admin1", ann.From)

	resp = admin.call(protocol.OpListOnline, nil)
	var online []pb.OnlineUser
	require.NoError(t, resp.Decode(&online))
	logins := make([]string, 0, len(online))
	for _, u := range online {
		logins = append(logins, u.Login)
	}
	assert.ElementsMatch(t, []string{"admin1", "s001"}, logins)
}

func TestDeleteNotifiesViewers(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "admin1", model.RoleAdmin)
	createUser(t, svc, "s001", model.RoleStudent)
	admin := connect(t, srv)
	admin.login("admin1")
	student := connect(t, srv)
	student.login("s001")

	resp := admin.call(protocol.OpAddBook, pb.AddBookRequest{ISBN: "978-0134190440", Title: "The Go Programming Language", Author: "Donovan", Copies: 2})
	require.Equal(t, protocol.StatusCreated, resp.Status, resp.Text)
	var book model.Book
	require.NoError(t, resp.Decode(&book))

	resp = student.call(protocol.OpGetBook, pb.IDRequest{ID: book.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	resp = admin.call(protocol.OpDeleteBook, pb.IDRequest{ID: book.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)

	msg := student.push()
	require.Equal(t, protocol.OpResourceDeleted, msg.Opcode)
	var gone pb.ResourceDeleted
	require.NoError(t, msg.Decode(&gone))
	if diff := cmp.Diff(pb.ResourceDeleted{Kind: KindBook, ID: book.ID, By: "admin1"}, gone); diff != "" {
		t.Fatalf("push mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, srv.Watchers().Viewers(resourceKey(KindBook, book.ID)))

	resp = student.call(protocol.OpGetBook, pb.IDRequest{ID: book.ID})
	assert.Equal(t, protocol.StatusNotFound, resp.Status)
}

func TestDeleteUserDisconnectsTarget(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	admin := createUser(t, svc, "admin1", model.RoleAdmin)
	victim := createUser(t, svc, "s001", model.RoleStudent)
	a := connect(t, srv)
	a.login("admin1")
	v := connect(t, srv)
	v.login("s001")

	resp := a.call(protocol.OpDeleteUser, pb.UserRequest{UserID: admin.UserID})
	assert.Equal(t, protocol.StatusBadRequest, resp.Status)

	resp = a.call(protocol.OpDeleteUser, pb.UserRequest{UserID: victim.UserID})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)
	assert.Equal(t, protocol.OpForcedLogout, v.push().Opcode)
	v.waitClosed()

	_, ok := srv.Registry().Get(victim.UserID)
	assert.False(t, ok)
}

func TestShoppingFlow(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "admin1", model.RoleAdmin)
	student := createUser(t, svc, "s001", model.RoleStudent)
	a := connect(t, srv)
	a.login("admin1")
	s := connect(t, srv)
	s.login("s001")

	resp := a.call(protocol.OpAddProduct, pb.AddProductRequest{Name: "Notebook", Price: 250, Stock: 5})
	require.Equal(t, protocol.StatusCreated, resp.Status, resp.Text)
	var product model.Product
	require.NoError(t, resp.Decode(&product))

	resp = a.call(protocol.OpRechargeBalance, pb.RechargeRequest{UserID: student.UserID, Amount: 1000})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)

	resp = s.call(protocol.OpAddToCart, pb.CartRequest{ProductID: product.ID, Quantity: 2})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)

	resp = s.call(protocol.OpCreateOrder, nil)
	require.Equal(t, protocol.StatusCreated, resp.Status, resp.Text)
	var order model.Order
	require.NoError(t, resp.Decode(&order))
	assert.EqualValues(t, 500, order.Total)

	resp = s.call(protocol.OpGetBalance, nil)
	var bal pb.BalanceResponse
	require.NoError(t, resp.Decode(&bal))
	assert.Equal(t, pb.BalanceResponse{UserID: student.UserID, Balance: 500}, bal)

	resp = s.call(protocol.OpGetCart, nil)
	assert.JSONEq(t, `[]`, string(resp.Payload))
}

func TestCourseFlow(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	createUser(t, svc, "t001", model.RoleTeacher)
	student := createUser(t, svc, "s001", model.RoleStudent)
	tc := connect(t, srv)
	tc.login("t001")
	sc := connect(t, srv)
	sc.login("s001")

	resp := tc.call(protocol.OpCreateCourse, pb.CreateCourseRequest{Code: "cs101", Name: "Intro to CS", Capacity: 30})
	require.Equal(t, protocol.StatusCreated, resp.Status, resp.Text)
	var course model.Course
	require.NoError(t, resp.Decode(&course))
	assert.Equal(t, "CS101", course.Code)

	resp = tc.call(protocol.OpEnrollCourse, pb.IDRequest{ID: course.ID})
	assert.Equal(t, protocol.StatusForbidden, resp.Status)

	resp = sc.call(protocol.OpEnrollCourse, pb.IDRequest{ID: course.ID})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)
	resp = sc.call(protocol.OpEnrollCourse, pb.IDRequest{ID: course.ID})
	assert.Equal(t, protocol.StatusConflict, resp.Status)

	resp = tc.call(protocol.OpSetGrade, pb.SetGradeRequest{CourseID: course.ID, StudentID: student.UserID, Score: 91})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)

	resp = sc.call(protocol.OpGetGrades, nil)
	var grades []model.Grade
	require.NoError(t, resp.Decode(&grades))
	require.Len(t, grades, 1)
	require.NotNil(t, grades[0].Score)
	assert.Equal(t, 91, *grades[0].Score)

	resp = tc.call(protocol.OpGetMyCourses, nil)
	var taught []model.Course
	require.NoError(t, resp.Decode(&taught))
	require.Len(t, taught, 1)
	assert.Equal(t, course.ID, taught[0].ID)
}

func TestProfileRefreshesSession(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	p := createUser(t, svc, "s001", model.RoleStudent)
	c := connect(t, srv)
	c.login("s001")

	resp := c.call(protocol.OpUpdateProfile, pb.UpdateProfileRequest{DisplayName: "Ada"})
	require.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)

	h, ok := srv.Registry().Get(p.UserID)
	require.True(t, ok)
	assert.Equal(t, "Ada", h.Presence().DisplayName)

	resp = c.call(protocol.OpChangePassword, pb.ChangePasswordRequest{OldPassword: "wrong!", NewPassword: "secret2"})
	assert.NotEqual(t, protocol.StatusSuccess, resp.Status)
	resp = c.call(protocol.OpChangePassword, pb.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status, resp.Text)
}

func TestRegisterCreatesStudent(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	c := connect(t, srv)

	resp := c.call(protocol.OpRegister, pb.RegisterRequest{ID: "s777", Password: "secret1", DisplayName: "New Student"})
	require.Equal(t, protocol.StatusCreated, resp.Status, resp.Text)
	var p model.Profile
	require.NoError(t, resp.Decode(&p))
	assert.Equal(t, model.RoleStudent, p.Role)

	resp = c.call(protocol.OpRegister, pb.RegisterRequest{ID: "s777", Password: "secret1", DisplayName: "Again"})
	assert.Equal(t, protocol.StatusConflict, resp.Status)

	c.login("s777")
}
