package server

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
)

var (
	// ErrConnClosed is returned by Push on a connection that has been torn down.
	ErrConnClosed = errors.New("server: connection closed")
	// ErrAlreadyOnline is returned by LOGIN under the reject policy.
	ErrAlreadyOnline = errors.New("server: user already online")
)

// Handle is what the registry keeps per online user: a way to reach that
// user's connection from any goroutine.
type Handle interface {
	ID() string
	// Push sends a server-initiated message. It is safe to call after the
	// connection closed; it then returns ErrConnClosed and does nothing.
	Push(msg *protocol.Message) error
	// Disconnect tears the connection down. Repeated calls are no-ops.
	Disconnect()
	Presence() pb.OnlineUser
}

// Registry is the process-wide map from user id to live connection.
// At most one handle is registered per user.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]Handle

	workers int
	metrics *Metrics
}

// NewRegistry creates an empty registry. workers bounds the fan-out of
// Broadcast; m may be nil.
func NewRegistry(workers int, m *Metrics) *Registry {
	if workers <= 0 {
		workers = 16
	}
	return &Registry{
		entries: make(map[int64]Handle),
		workers: workers,
		metrics: m,
	}
}

// Put registers h for userID and returns the handle it replaced, if any.
func (r *Registry) Put(userID int64, h Handle) (prev Handle) {
	r.mu.Lock()
	prev = r.entries[userID]
	r.entries[userID] = h
	n := len(r.entries)
	r.mu.Unlock()

	r.setGauge(n)
	if prev == h {
		return nil
	}
	return prev
}

// PutIfAbsent registers h unless another handle already holds userID.
// Re-registering the same handle succeeds.
func (r *Registry) PutIfAbsent(userID int64, h Handle) (existing Handle, ok bool) {
	r.mu.Lock()
	if cur, found := r.entries[userID]; found && cur != h {
		r.mu.Unlock()
		return cur, false
	}
	r.entries[userID] = h
	n := len(r.entries)
	r.mu.Unlock()

	r.setGauge(n)
	return nil, true
}

// Remove drops whatever handle userID has and returns it.
func (r *Registry) Remove(userID int64) Handle {
	r.mu.Lock()
	h, ok := r.entries[userID]
	delete(r.entries, userID)
	n := len(r.entries)
	r.mu.Unlock()

	if ok {
		r.setGauge(n)
	}
	return h
}

// RemoveIf drops the entry for userID only if it is still h. A connection
// that was evicted by a newer login must not remove its successor.
func (r *Registry) RemoveIf(userID int64, h Handle) bool {
	if userID == 0 {
		return false
	}
	r.mu.Lock()
	cur, ok := r.entries[userID]
	if !ok || cur != h {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, userID)
	n := len(r.entries)
	r.mu.Unlock()

	r.setGauge(n)
	return true
}

// Get returns the handle registered for userID.
func (r *Registry) Get(userID int64) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[userID]
	return h, ok
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the registered handles ordered by user id.
func (r *Registry) Snapshot() []Handle {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handles := make([]Handle, len(ids))
	for i, id := range ids {
		handles[i] = r.entries[id]
	}
	r.mu.RUnlock()
	return handles
}

// Broadcast pushes msg to every registered handle except exclude (may be
// nil) and returns how many deliveries succeeded. Sends happen outside the
// lock; one failing recipient does not affect the others.
func (r *Registry) Broadcast(ctx context.Context, msg *protocol.Message, exclude Handle) int {
	targets := r.Snapshot()
	if exclude != nil {
		kept := targets[:0]
		for _, h := range targets {
			if h != exclude {
				kept = append(kept, h)
			}
		}
		targets = kept
	}
	return fanout(ctx, targets, msg, r.workers, r.metrics)
}

func (r *Registry) setGauge(n int) {
	if r.metrics != nil {
		r.metrics.OnlineSessions.Set(float64(n))
	}
}

// fanout pushes msg to targets with at most workers sends in flight.
func fanout(ctx context.Context, targets []Handle, msg *protocol.Message, workers int, m *Metrics) int {
	if len(targets) == 0 {
		return 0
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	delivered := 0
	for _, h := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := h.Push(msg); err != nil {
				if !errors.Is(err, ErrConnClosed) {
					slog.Warn("push failed", "conn", h.ID(), "op", msg.Opcode, "err", err)
				}
				if m != nil {
					m.PushFailures.Inc()
				}
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}
