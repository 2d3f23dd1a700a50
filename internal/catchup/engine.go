// Package catchup implements the client's Catch-Up Engine: it watches
// incoming SyncRecord updates, diffs them against the locally applied
// state, and drives the local pipeline's seek/play/pause state to match.
package catchup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// SeekState tracks where the engine is in aligning the pipeline's
// rendering position to the shared timeline.
type SeekState int32

const (
	StateDoneSeek SeekState = iota
	StateNeedSeek
	StateInSeek
)

func (s SeekState) String() string {
	switch s {
	case StateDoneSeek:
		return "DONE_SEEK"
	case StateNeedSeek:
		return "NEED_SEEK"
	case StateInSeek:
		return "IN_SEEK"
	default:
		return "UNKNOWN"
	}
}

// Pipeline is the local playback surface the engine drives. Satisfied by
// *playback.Pipeline; abstracted so the state machine is testable
// without a GStreamer runtime.
type Pipeline interface {
	Live(timeout time.Duration) bool
	Seek(positionNs int64) error
	// Position reports the pipeline's actually-achieved rendering
	// position, read synchronously after a seek completes.
	Position() (int64, bool)
	// Anchor sets the pipeline's base time so that running time maps onto
	// the shared reference timeline.
	Anchor(baseTimeNs uint64)
	Play() error
	Pause() error
	EOS() <-chan struct{}
}

// Clock is the net-clock consumer the engine gates catch-up on.
// Satisfied by *netclock.Consumer.
type Clock interface {
	Now() uint64
	WaitForSync(ctx context.Context, timeout time.Duration) error
}

// clockSyncTimeout is how long the engine waits for the net clock to
// report itself synchronized before giving up on a catch-up attempt.
const clockSyncTimeout = 10 * time.Second

// seekToleranceNs is the maximum drift between the pipeline's position
// and the record's intended position that the engine absorbs by
// re-anchoring base time instead of issuing a seek.
const seekToleranceNs = int64(200 * time.Millisecond)

// LocalPipelineState is the last record applied to the pipeline plus the
// current seek-state. The seek-state is atomic so the bus handler can
// inspect it without taking the record lock.
type LocalPipelineState struct {
	mu        sync.RWMutex
	record    syncrecord.Record
	received  bool
	seekState atomic.Int32
}

// snapshot returns the last applied record and whether any record has
// been applied yet. The first record received always needs a seek,
// regardless of how its fields compare to the zero-value Record.
func (s *LocalPipelineState) snapshot() (syncrecord.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record, s.received
}

func (s *LocalPipelineState) store(rec syncrecord.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
	s.received = true
}

func (s *LocalPipelineState) State() SeekState {
	return SeekState(s.seekState.Load())
}

func (s *LocalPipelineState) setState(state SeekState) {
	s.seekState.Store(int32(state))
}

// Engine runs the catch-up loop for one client.
type Engine struct {
	clientID string
	pipeline Pipeline
	clock    Clock

	state LocalPipelineState

	updates chan syncrecord.Record
}

// New creates an Engine driving pipeline, gated on clock, for clientID.
func New(clientID string, pipeline Pipeline, clock Clock) *Engine {
	return &Engine{
		clientID: clientID,
		pipeline: pipeline,
		clock:    clock,
		updates:  make(chan syncrecord.Record, 1),
	}
}

// OnRecord is the transport's onRecord callback: it diffs rec against
// the last applied record and, if the track or timeline base changed,
// marks the engine NEED_SEEK. It never blocks: a pending update
// overwrites any not-yet-processed one, since only the latest record
// matters once a new one has arrived.
func (e *Engine) OnRecord(rec syncrecord.Record) {
	prev, received := e.state.snapshot()
	if !received || needsSeek(prev, rec) {
		e.state.setState(StateNeedSeek)
	}
	e.state.store(rec)

	select {
	case e.updates <- rec:
	default:
		select {
		case <-e.updates:
		default:
		}
		select {
		case e.updates <- rec:
		default:
		}
	}
}

// needsSeek reports whether moving from prev to next requires a
// pipeline seek: a track change or a change to the timeline's
// base-time/base-time-offset (anything that moves the rendering
// position discontinuously). Pause/stop/transform-only changes do not.
func needsSeek(prev, next syncrecord.Record) bool {
	if prev.Playlist.CurrentTrack != next.Playlist.CurrentTrack {
		return true
	}
	if prev.BaseTimeNs != next.BaseTimeNs || prev.BaseTimeOffsetNs != next.BaseTimeOffsetNs {
		return true
	}
	return false
}

// Run drives the engine until ctx is canceled: it reacts to record
// updates and to the local pipeline reaching EOS.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-e.updates:
			if err := e.reconcile(ctx, rec); err != nil {
				log.Warn().Err(err).Str("client", e.clientID).Msg("catch-up reconcile failed")
			}
		case <-e.pipeline.EOS():
			e.handleLocalEOS(ctx)
		}
	}
}

func (e *Engine) reconcile(ctx context.Context, rec syncrecord.Record) error {
	if e.state.State() == StateNeedSeek {
		if err := e.catchUp(ctx, rec); err != nil {
			return err
		}
	}

	if rec.Paused {
		return e.pipeline.Pause()
	}
	return e.pipeline.Play()
}

// catchUp aligns the pipeline to the record's timeline. Liveness is
// re-evaluated every time NEED_SEEK is entered, not cached across
// tracks: a live (no-preroll) source has no seekable timeline, so the
// engine skips straight to DONE_SEEK.
func (e *Engine) catchUp(ctx context.Context, rec syncrecord.Record) error {
	e.state.setState(StateInSeek)

	// No rendering before the net clock reports itself synchronized,
	// live sources included.
	if err := e.clock.WaitForSync(ctx, clockSyncTimeout); err != nil {
		e.state.setState(StateNeedSeek)
		return syncerr.New(syncerr.Clock, err)
	}

	if e.pipeline.Live(time.Second) {
		e.state.setState(StateDoneSeek)
		return nil
	}

	position := rec.RenderingPosition(e.clock.Now())
	if position < 0 {
		position = 0
	}

	// Within tolerance there is no seek: anchoring the pipeline's base
	// time to base_time + base_time_offset (seek_offset = 0) is enough
	// for running time to land on the shared timeline.
	if position <= seekToleranceNs {
		e.pipeline.Anchor(rec.BaseTimeNs + rec.BaseTimeOffsetNs)
		e.state.setState(StateDoneSeek)
		return nil
	}

	if err := e.pipeline.Seek(position); err != nil {
		e.state.setState(StateNeedSeek)
		return err
	}

	// The seek rarely lands exactly where asked; fold the
	// actually-achieved position back into the anchor so rendering
	// converges on the reference timeline rather than on the request.
	seekOffset := position
	if achieved, ok := e.pipeline.Position(); ok {
		seekOffset = achieved
	}
	e.pipeline.Anchor(rec.BaseTimeNs + rec.BaseTimeOffsetNs + uint64(seekOffset))

	e.state.setState(StateDoneSeek)
	return nil
}

// handleLocalEOS treats local EOS as advisory: if a record update is
// already queued, it is reconciled now; otherwise the engine pauses and
// waits for the server's next record. It never advances the playlist
// speculatively, whether or not the next track's duration is known.
func (e *Engine) handleLocalEOS(ctx context.Context) {
	select {
	case rec := <-e.updates:
		if err := e.reconcile(ctx, rec); err != nil {
			log.Warn().Err(err).Str("client", e.clientID).Msg("catch-up reconcile after EOS failed")
		}
		return
	default:
	}

	if err := e.pipeline.Pause(); err != nil {
		log.Warn().Err(err).Str("client", e.clientID).Msg("failed to pause after local EOS")
	}
}
