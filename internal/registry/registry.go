// Package registry implements the server's ClientRegistry + Dispatcher:
// it tracks one ClientSession per connected client, assigns the
// monotonic SyncRecord version, and wakes each session's delivery worker
// whenever a new record is published.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// ClientSession is the per-connection state the registry retains for a
// joined client. Clients with duplicate ids are not rejected: the
// registry keys sessions by an internal sequence number and retains all
// of them, emitting each independently to subscribers of join events.
type ClientSession struct {
	Key      uint64
	ID       string
	Config   map[string]any
	JoinedAt time.Time
}

// Registry holds the current SyncRecord behind a single-writer/many-reader
// lock (the media driver, via timeline.Manager's Publisher callback, is
// the sole writer) and fans out version-change notifications to every joined
// session. It implements timeline.Publisher.
type Registry struct {
	mu       sync.RWMutex
	version  uint64
	record   syncrecord.Record
	sessions map[uint64]*subEntry

	nextKey atomic.Uint64
	events  EventPublisher
}

type subEntry struct {
	session ClientSession
	wake    chan struct{}
}

// New creates an empty Registry. events may be nil, in which case
// join/leave notifications are simply not published anywhere (the
// per-client record delivery in Subscription is unaffected).
func New(events EventPublisher) *Registry {
	return &Registry{
		sessions: make(map[uint64]*subEntry),
		events:   events,
	}
}

// OnChange implements timeline.Publisher: it bumps the version, stores
// the record, and wakes every joined session's delivery worker. Holding
// time is bounded to the map copy below; no suspension point is reached
// while the write lock is held.
func (r *Registry) OnChange(rec syncrecord.Record) {
	r.mu.Lock()
	r.version++
	rec.Version = r.version
	r.record = rec
	entries := make([]*subEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		wake(e.wake)
	}
}

// wake performs a non-blocking send, collapsing any already-pending
// wake-up into one: the per-worker channel carries only "there is a new
// version". The worker always re-reads the latest record under the read
// lock rather than trusting the signal's payload, so collapsing
// duplicate wakes loses no information.
func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (r *Registry) current() (syncrecord.Record, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.record.Clone(), r.version
}

// Join registers a new session and returns a Subscription whose first
// Wait call delivers the currently published record immediately. config
// is the client's free-form descriptor payload.
func (r *Registry) Join(id string, config map[string]any) *Subscription {
	key := r.nextKey.Add(1)
	entry := &subEntry{
		session: ClientSession{Key: key, ID: id, Config: config, JoinedAt: time.Now()},
		wake:    make(chan struct{}, 1),
	}

	r.mu.Lock()
	r.sessions[key] = entry
	r.mu.Unlock()

	if r.events != nil {
		r.events.PublishJoined(entry.session)
	}

	return &Subscription{reg: r, key: key, wake: entry.wake}
}

// Leave removes a session and emits client-left. It is idempotent.
func (r *Registry) Leave(sub *Subscription) {
	r.mu.Lock()
	entry, ok := r.sessions[sub.key]
	if ok {
		delete(r.sessions, sub.key)
	}
	r.mu.Unlock()

	if ok && r.events != nil {
		r.events.PublishLeft(entry.session)
	}
}

// Sessions returns a snapshot of all currently joined sessions.
func (r *Registry) Sessions() []ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClientSession, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	return out
}

// Subscription is a joined client's view onto the registry: repeated
// calls to Wait block until a new version is available and return it,
// collapsing any versions that were superseded while the caller was not
// waiting. A session need not observe intermediate versions, only
// eventually the latest published one.
type Subscription struct {
	reg       *Registry
	key       uint64
	wake      chan struct{}
	lastSent  uint64
	delivered bool
}

// Wait blocks until a record newer than the last one returned is
// available, or ctx is done. The very first call returns the currently
// published record without waiting.
func (s *Subscription) Wait(ctx context.Context) (syncrecord.Record, error) {
	for {
		rec, ver := s.reg.current()
		if !s.delivered || ver != s.lastSent {
			s.delivered = true
			s.lastSent = ver
			return rec, nil
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return syncrecord.Record{}, ctx.Err()
		}
	}
}
