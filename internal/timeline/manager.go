// Package timeline holds the server's authoritative reference-time model:
// the Manager tracks base_time and base_time_offset across pauses, seeks
// and track transitions, and publishes a SyncRecord snapshot on every
// change.
package timeline

import (
	"sync"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// Clock reads a monotonic reference time, in nanoseconds. In production
// this is backed by the system clock served by internal/netclock;
// tests supply a fake.
type Clock interface {
	Now() uint64
}

// Publisher is notified every time the manager's snapshot changes, so it
// can bump the record version and fan it out to clients: a plain record
// plus setters that call back into the dispatcher, with no implicit
// signal bus in between.
type Publisher interface {
	OnChange(syncrecord.Record)
}

// MultiPublisher fans OnChange out to several publishers in registration
// order. It lets the media driver observe the same snapshots the
// dispatcher distributes, without the manager knowing about either.
type MultiPublisher struct {
	mu      sync.Mutex
	targets []Publisher
}

// Add registers t to receive subsequent OnChange calls.
func (p *MultiPublisher) Add(t Publisher) {
	p.mu.Lock()
	p.targets = append(p.targets, t)
	p.mu.Unlock()
}

// OnChange implements Publisher.
func (p *MultiPublisher) OnChange(rec syncrecord.Record) {
	p.mu.Lock()
	targets := make([]Publisher, len(p.targets))
	copy(targets, p.targets)
	p.mu.Unlock()

	for _, t := range targets {
		t.OnChange(rec)
	}
}

// Manager owns base_time and base_time_offset for the playlist currently
// being served. All exported methods are safe for concurrent use.
type Manager struct {
	clock     Clock
	publisher Publisher

	mu                 sync.RWMutex
	playlist           syncrecord.Playlist
	baseTimeNs         uint64
	baseTimeOffsetNs   uint64
	latencyNs          uint64
	streamStartDelayNs uint64
	stopped            bool
	paused             bool
	lastPauseNs        uint64
	lastDurationNs     uint64 // duration credited for the most recently ended track: declared, or observed when DurationUnknown
	clockAddress       string
	clockPort          uint16
	transforms         syncrecord.Transforms
}

// New creates a Manager over the given playlist. latencyNs and
// streamStartDelayNs are carried into every published SyncRecord
// unmodified; they are pipeline-slack configuration, not timeline state.
func New(clock Clock, publisher Publisher, playlist syncrecord.Playlist, latencyNs, streamStartDelayNs uint64) *Manager {
	m := &Manager{
		clock:              clock,
		publisher:          publisher,
		playlist:           playlist.Clone(),
		latencyNs:          latencyNs,
		streamStartDelayNs: streamStartDelayNs,
	}
	if _, ok := playlist.Current(); ok {
		m.baseTimeNs = clock.Now()
	}
	m.publish()
	return m
}

// SetClockAddr records where the network clock this manager's timeline is
// anchored to is reachable, for inclusion in published records.
func (m *Manager) SetClockAddr(address string, port uint16) {
	m.mu.Lock()
	m.clockAddress, m.clockPort = address, port
	m.mu.Unlock()
	m.publish()
}

// Now returns the current reference-clock reading.
func (m *Manager) Now() uint64 {
	return m.clock.Now()
}

// StartTrack anchors base_time to now and resets base_time_offset to zero,
// for beginning playback of the track at index.
func (m *Manager) StartTrack(index uint64) {
	m.mu.Lock()
	m.playlist.CurrentTrack = index
	m.baseTimeNs = m.clock.Now()
	m.baseTimeOffsetNs = 0
	m.mu.Unlock()
	m.publish()
}

// AdvanceTrack moves to the next playlist entry. The outgoing track's
// duration (or, if unknown, the observedDurationNs supplied by the media
// driver, per the "fall back to the observed last duration" boundary
// behaviour) plus stream_start_delay is added to base_time_offset. The
// current-track index is incremented; if the outgoing track was last, it
// becomes NoCurrentTrack.
func (m *Manager) AdvanceTrack(observedDurationNs uint64) {
	m.mu.Lock()
	track, ok := m.playlist.Current()
	if !ok {
		m.mu.Unlock()
		return
	}

	duration := track.DurationNs
	if duration == syncrecord.DurationUnknown {
		duration = observedDurationNs
	}
	m.baseTimeOffsetNs += duration + m.streamStartDelayNs
	m.lastDurationNs = duration

	if m.playlist.AtEnd() {
		m.playlist.CurrentTrack = syncrecord.NoCurrentTrack
	} else {
		m.playlist.CurrentTrack++
	}
	m.mu.Unlock()

	m.publish()
}

// SetPlaylist replaces the playlist wholesale. Editing entries other
// than the current track does not disturb playback: the timeline is only
// re-anchored when CurrentTrack itself changes.
func (m *Manager) SetPlaylist(p syncrecord.Playlist) {
	m.mu.Lock()
	retune := p.CurrentTrack != m.playlist.CurrentTrack
	m.playlist = p.Clone()
	if retune {
		m.baseTimeNs = m.clock.Now()
		m.baseTimeOffsetNs = 0
	}
	m.mu.Unlock()
	m.publish()
}

// SetPaused toggles the paused flag. On entry to paused it records the
// wall-clock instant; on exit it folds the elapsed paused duration into
// base_time_offset, so rendering_position(before) == rendering_position(after).
func (m *Manager) SetPaused(paused bool) {
	m.mu.Lock()
	if paused == m.paused {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	if paused {
		m.lastPauseNs = now
	} else {
		m.baseTimeOffsetNs += now - m.lastPauseNs
	}
	m.paused = paused
	m.mu.Unlock()
	m.publish()
}

// SetStopped toggles the stopped flag without mutating base_time; clients
// quiesce their pipelines but the timeline keeps no record of the outage.
func (m *Manager) SetStopped(stopped bool) {
	m.mu.Lock()
	if stopped == m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = stopped
	m.mu.Unlock()
	m.publish()
}

// SetTransforms replaces the per-client transform mapping.
func (m *Manager) SetTransforms(t syncrecord.Transforms) {
	m.mu.Lock()
	m.transforms = t
	m.mu.Unlock()
	m.publish()
}

// Snapshot returns an immutable copy of the current SyncRecord. Version is
// NOT set here: the dispatcher (internal/registry) owns version
// allocation, since it is the one thing every publish must strictly
// increase and the manager itself never needs to read it back.
func (m *Manager) Snapshot() syncrecord.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return syncrecord.Record{
		ClockAddress:       m.clockAddress,
		ClockPort:          m.clockPort,
		Playlist:           m.playlist.Clone(),
		BaseTimeNs:         m.baseTimeNs,
		BaseTimeOffsetNs:   m.effectiveOffsetLocked(),
		LatencyNs:          m.latencyNs,
		StreamStartDelayNs: m.streamStartDelayNs,
		Stopped:            m.stopped,
		Paused:             m.paused,
		Transforms:         m.transforms,
	}
}

// effectiveOffsetLocked returns base_time_offset as it currently stands.
// While paused, the offset does not advance with wall time; it is only
// folded in on resume by SetPaused.
func (m *Manager) effectiveOffsetLocked() uint64 {
	return m.baseTimeOffsetNs
}

func (m *Manager) publish() {
	if m.publisher == nil {
		return
	}
	m.publisher.OnChange(m.Snapshot())
}
