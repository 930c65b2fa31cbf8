package server

import (
	"strconv"
	"sync"
)

// Resource kinds that connections can watch.
const (
	KindBook    = "book"
	KindProduct = "product"
	KindThread  = "thread"
)

func resourceKey(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

// Watchers tracks which resource each connection is currently viewing.
// A connection views at most one resource; viewing another replaces it.
type Watchers struct {
	mu       sync.RWMutex
	viewers  map[string]map[string]Handle // resource -> conn id -> handle
	watching map[string]string            // conn id -> resource
}

// NewWatchers creates an empty watcher set.
func NewWatchers() *Watchers {
	return &Watchers{
		viewers:  make(map[string]map[string]Handle),
		watching: make(map[string]string),
	}
}

// Watch makes h a viewer of resource and returns what it viewed before.
func (w *Watchers) Watch(h Handle, resource string) (prev string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev = w.unwatchLocked(h.ID())
	set, ok := w.viewers[resource]
	if !ok {
		set = make(map[string]Handle)
		w.viewers[resource] = set
	}
	set[h.ID()] = h
	w.watching[h.ID()] = resource
	return prev
}

// Unwatch stops connID from viewing anything and returns what it viewed.
func (w *Watchers) Unwatch(connID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unwatchLocked(connID)
}

func (w *Watchers) unwatchLocked(connID string) string {
	resource, ok := w.watching[connID]
	if !ok {
		return ""
	}
	delete(w.watching, connID)
	if set := w.viewers[resource]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(w.viewers, resource)
		}
	}
	return resource
}

// Viewers returns the handles currently viewing resource.
func (w *Watchers) Viewers(resource string) []Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()

	set := w.viewers[resource]
	result := make([]Handle, 0, len(set))
	for _, h := range set {
		result = append(result, h)
	}
	return result
}

// Clear forgets resource entirely and returns its former viewers.
func (w *Watchers) Clear(resource string) []Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	set := w.viewers[resource]
	result := make([]Handle, 0, len(set))
	for id, h := range set {
		delete(w.watching, id)
		result = append(result, h)
	}
	delete(w.viewers, resource)
	return result
}

// Watching returns the resource connID views, or "" if none.
func (w *Watchers) Watching(connID string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching[connID]
}
