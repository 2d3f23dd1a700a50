package timeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// fakeClock is a manually-advanced Clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *fakeClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d uint64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []syncrecord.Record
}

func (p *recordingPublisher) OnChange(r syncrecord.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
}

func (p *recordingPublisher) last() syncrecord.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[len(p.records)-1]
}

func testPlaylist() syncrecord.Playlist {
	return syncrecord.Playlist{
		CurrentTrack: 0,
		Tracks: []syncrecord.Track{
			{URI: "file:///u1", DurationNs: 10_000_000_000},
			{URI: "file:///u2", DurationNs: 5_000_000_000},
		},
	}
}

func TestRenderingPositionInvariant(t *testing.T) {
	clock := &fakeClock{now: 1_000_000_000}
	pub := &recordingPublisher{}
	m := New(clock, pub, testPlaylist(), 0, 0)

	clock.Advance(2_000_000_000)
	snap := m.Snapshot()
	require.Equal(t, int64(2_000_000_000), snap.RenderingPosition(clock.Now()))
}

func TestPauseResumePreservesRenderingPosition(t *testing.T) {
	clock := &fakeClock{now: 0}
	pub := &recordingPublisher{}
	m := New(clock, pub, testPlaylist(), 0, 0)

	clock.Advance(3_000_000_000)
	before := m.Snapshot().RenderingPosition(clock.Now())

	m.SetPaused(true)
	clock.Advance(2_000_000_000) // D = 2s of wall time while paused
	m.SetPaused(false)

	after := m.Snapshot().RenderingPosition(clock.Now())
	require.Equal(t, before, after)

	// base_time_offset grew by exactly D.
	require.Equal(t, uint64(2_000_000_000), m.Snapshot().BaseTimeOffsetNs)
}

func TestAdvanceTrackKnownDuration(t *testing.T) {
	clock := &fakeClock{now: 0}
	pub := &recordingPublisher{}
	m := New(clock, pub, testPlaylist(), 0, 1_000_000_000)

	m.AdvanceTrack(0)

	snap := m.Snapshot()
	require.Equal(t, uint64(1), snap.Playlist.CurrentTrack)
	require.Equal(t, uint64(10_000_000_000+1_000_000_000), snap.BaseTimeOffsetNs)
}

func TestAdvanceTrackUnknownDurationFallsBackToObserved(t *testing.T) {
	clock := &fakeClock{now: 0}
	pub := &recordingPublisher{}
	playlist := testPlaylist()
	playlist.Tracks[0].DurationNs = syncrecord.DurationUnknown
	m := New(clock, pub, playlist, 0, 0)

	m.AdvanceTrack(7_500_000_000)

	snap := m.Snapshot()
	require.Equal(t, uint64(7_500_000_000), snap.BaseTimeOffsetNs)
}

func TestAdvanceTrackPastEndSetsNoCurrentTrack(t *testing.T) {
	clock := &fakeClock{now: 0}
	pub := &recordingPublisher{}
	playlist := testPlaylist()
	playlist.CurrentTrack = 1 // last track
	m := New(clock, pub, playlist, 0, 0)

	m.AdvanceTrack(0)

	snap := m.Snapshot()
	require.Equal(t, syncrecord.NoCurrentTrack, snap.Playlist.CurrentTrack)
}

func TestStartTrackResetsOffset(t *testing.T) {
	clock := &fakeClock{now: 100}
	pub := &recordingPublisher{}
	m := New(clock, pub, testPlaylist(), 0, 0)

	m.AdvanceTrack(0)
	clock.Advance(50)
	m.StartTrack(0)

	snap := m.Snapshot()
	require.Equal(t, uint64(0), snap.BaseTimeOffsetNs)
	require.Equal(t, uint64(150), snap.BaseTimeNs)
}

func TestStoppedDoesNotMutateBaseTime(t *testing.T) {
	clock := &fakeClock{now: 42}
	pub := &recordingPublisher{}
	m := New(clock, pub, testPlaylist(), 0, 0)

	before := m.Snapshot().BaseTimeNs
	m.SetStopped(true)
	clock.Advance(1000)
	m.SetStopped(false)

	require.Equal(t, before, m.Snapshot().BaseTimeNs)
}

func TestPublisherReceivesEveryChange(t *testing.T) {
	clock := &fakeClock{now: 0}
	pub := &recordingPublisher{}
	m := New(clock, pub, testPlaylist(), 0, 0)

	m.SetPaused(true)
	m.SetPaused(false)
	m.SetStopped(true)

	require.True(t, len(pub.records) >= 3)
	require.True(t, pub.last().Stopped)
}

func TestMultiPublisherFansOutInOrder(t *testing.T) {
	first := &recordingPublisher{}
	second := &recordingPublisher{}

	pub := &MultiPublisher{}
	pub.Add(first)
	pub.Add(second)

	pub.OnChange(syncrecord.Record{BaseTimeNs: 1})

	require.Len(t, first.records, 1)
	require.Len(t, second.records, 1)
	require.Equal(t, uint64(1), second.last().BaseTimeNs)
}
