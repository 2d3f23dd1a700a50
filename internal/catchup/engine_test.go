package catchup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

type fakePipeline struct {
	mu       sync.Mutex
	live     bool
	seeks    []int64
	anchors  []uint64
	position int64
	playing  bool
	paused   bool
	eosCh    chan struct{}
	seekErr  error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{eosCh: make(chan struct{}, 1)}
}

func (p *fakePipeline) Live(time.Duration) bool { return p.live }

func (p *fakePipeline) Position() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, true
}

func (p *fakePipeline) Anchor(baseTimeNs uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anchors = append(p.anchors, baseTimeNs)
}

func (p *fakePipeline) lastAnchor() (uint64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.anchors) == 0 {
		return 0, 0
	}
	return p.anchors[len(p.anchors)-1], len(p.anchors)
}

func (p *fakePipeline) Seek(positionNs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seekErr != nil {
		return p.seekErr
	}
	p.seeks = append(p.seeks, positionNs)
	return nil
}

func (p *fakePipeline) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.paused = false
	return nil
}

func (p *fakePipeline) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.paused = true
	return nil
}

func (p *fakePipeline) EOS() <-chan struct{} { return p.eosCh }

func (p *fakePipeline) lastSeek() (int64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seeks) == 0 {
		return 0, 0
	}
	return p.seeks[len(p.seeks)-1], len(p.seeks)
}

type fakeClock struct {
	nowNs uint64
	synced bool
}

func (c *fakeClock) Now() uint64 { return c.nowNs }

func (c *fakeClock) WaitForSync(ctx context.Context, timeout time.Duration) error {
	if c.synced {
		return nil
	}
	return context.DeadlineExceeded
}

func testRecord(track uint64, baseTime uint64) syncrecord.Record {
	return syncrecord.Record{
		Version: 1,
		Playlist: syncrecord.Playlist{
			CurrentTrack: track,
			Tracks:       []syncrecord.Track{{URI: "file:///a", DurationNs: 10_000_000_000}, {URI: "file:///b", DurationNs: 5_000_000_000}},
		},
		BaseTimeNs: baseTime,
	}
}

func TestTrackChangeTriggersSeekAndPlay(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.position = 1_000_000_000
	clock := &fakeClock{nowNs: 1_000_000_000, synced: true}
	e := New("client-a", pipeline, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnRecord(testRecord(0, 0))

	require.Eventually(t, func() bool {
		_, n := pipeline.lastSeek()
		return n == 1
	}, time.Second, time.Millisecond)

	pos, _ := pipeline.lastSeek()
	require.Equal(t, int64(1_000_000_000), pos)

	anchor, n := pipeline.lastAnchor()
	require.Equal(t, 1, n)
	require.Equal(t, uint64(1_000_000_000), anchor, "anchor must fold the achieved position into base_time")

	require.Eventually(t, func() bool {
		pipeline.mu.Lock()
		defer pipeline.mu.Unlock()
		return pipeline.playing
	}, time.Second, time.Millisecond)
}

func TestWithinToleranceAnchorsWithoutSeeking(t *testing.T) {
	pipeline := newFakePipeline()
	clock := &fakeClock{nowNs: 150_000_000, synced: true}
	e := New("client-a", pipeline, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnRecord(testRecord(0, 0))

	require.Eventually(t, func() bool {
		return e.state.State() == StateDoneSeek
	}, time.Second, time.Millisecond)

	_, seeks := pipeline.lastSeek()
	require.Equal(t, 0, seeks, "drift within tolerance must not trigger a seek")

	anchor, n := pipeline.lastAnchor()
	require.Equal(t, 1, n)
	require.Equal(t, uint64(0), anchor)
}

func TestPauseOnlyChangeDoesNotReseek(t *testing.T) {
	pipeline := newFakePipeline()
	clock := &fakeClock{nowNs: 1_000_000_000, synced: true}
	e := New("client-a", pipeline, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnRecord(testRecord(0, 0))
	require.Eventually(t, func() bool {
		_, n := pipeline.lastSeek()
		return n == 1
	}, time.Second, time.Millisecond)

	paused := testRecord(0, 0)
	paused.Paused = true
	e.OnRecord(paused)

	require.Eventually(t, func() bool {
		pipeline.mu.Lock()
		defer pipeline.mu.Unlock()
		return pipeline.paused
	}, time.Second, time.Millisecond)

	_, n := pipeline.lastSeek()
	require.Equal(t, 1, n, "pause-only change must not trigger a second seek")
}

func TestLivePipelineSkipsSeekGoesDirectlyToDone(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.live = true
	clock := &fakeClock{synced: true}
	e := New("client-a", pipeline, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnRecord(testRecord(0, 0))

	require.Eventually(t, func() bool {
		return e.state.State() == StateDoneSeek
	}, time.Second, time.Millisecond)

	_, n := pipeline.lastSeek()
	require.Equal(t, 0, n, "live pipeline must not be seeked")
}

func TestLivePipelineStillGatedOnClockSync(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.live = true
	clock := &fakeClock{synced: false}
	e := New("client-a", pipeline, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnRecord(testRecord(0, 0))

	require.Eventually(t, func() bool {
		return e.state.State() == StateNeedSeek
	}, time.Second, time.Millisecond)

	pipeline.mu.Lock()
	playing := pipeline.playing
	pipeline.mu.Unlock()
	require.False(t, playing, "rendering must not begin before the clock is synchronized")
}

func TestClockSyncTimeoutLeavesStateNeedSeek(t *testing.T) {
	pipeline := newFakePipeline()
	clock := &fakeClock{synced: false}
	e := New("client-a", pipeline, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.OnRecord(testRecord(0, 0))

	require.Eventually(t, func() bool {
		return e.state.State() == StateNeedSeek
	}, time.Second, time.Millisecond)
}

func TestNeedsSeekDiff(t *testing.T) {
	base := testRecord(0, 0)

	sameTrackPausedChange := base
	sameTrackPausedChange.Paused = true
	require.False(t, needsSeek(base, sameTrackPausedChange))

	trackChange := testRecord(1, 0)
	require.True(t, needsSeek(base, trackChange))

	baseTimeChange := testRecord(0, 500)
	require.True(t, needsSeek(base, baseTimeChange))
}
