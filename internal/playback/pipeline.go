// Package playback wraps the client's real GStreamer playback pipeline:
// state transitions, seeking to a rendering position, and EOS/error
// detection via gstutil.
package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/gstutil"
	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
)

// Pipeline wraps a single playbin-based playback pipeline for one track.
type Pipeline struct {
	pipeline *gst.Pipeline
	eosCh    chan struct{}
	errCh    chan error
}

// New constructs and prerolls (State=Paused) a playbin pipeline for uri.
// clock, if non-nil, is set as the pipeline's clock before it is played,
// matching a net-clock-disciplined client.
func New(uri string, clock *gst.Clock) (*Pipeline, error) {
	gstutil.Init()

	pipeline, err := gst.NewPipelineFromString(fmt.Sprintf("playbin uri=%q", uri))
	if err != nil {
		return nil, syncerr.New(syncerr.Timeline, err)
	}

	if clock != nil {
		if err := pipeline.SetClock(clock); err != nil {
			pipeline.SetState(gst.StateNull)
			return nil, syncerr.Newf(syncerr.Clock, "failed to set pipeline clock: %v", err)
		}
		pipeline.SetBaseTime(clock.GetTime())
	}

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, syncerr.Newf(syncerr.Timeline, "failed to preroll pipeline: %v", err)
	}

	p := &Pipeline{
		pipeline: pipeline,
		eosCh:    make(chan struct{}, 1),
		errCh:    make(chan error, 1),
	}
	return p, nil
}

// Watch starts the bus-watching goroutine; ctx cancellation stops it.
// Callers read EOS()/Errors() to learn of terminal pipeline events.
func (p *Pipeline) Watch(ctx context.Context) {
	go gstutil.WatchBus(ctx, p.pipeline, func(ev gstutil.BusEvent) {
		switch {
		case ev.EOS:
			select {
			case p.eosCh <- struct{}{}:
			default:
			}
		case ev.Err != nil:
			select {
			case p.errCh <- ev.Err:
			default:
			}
		}
	})
}

// EOS reports when the pipeline reaches end-of-stream.
func (p *Pipeline) EOS() <-chan struct{} { return p.eosCh }

// Errors reports pipeline errors.
func (p *Pipeline) Errors() <-chan error { return p.errCh }

// Live reports whether the pipeline failed to preroll within timeout,
// i.e. it is a live, non-seekable source.
func (p *Pipeline) Live(timeout time.Duration) bool {
	ret, _, _ := p.pipeline.GetState(gst.ClockTime(timeout))
	return ret == gst.StateChangeNoPreroll
}

// Position returns the current rendering position in nanoseconds.
func (p *Pipeline) Position() (int64, bool) {
	pos, ok := p.pipeline.QueryPosition(gst.FormatTime)
	if !ok {
		return 0, false
	}
	return int64(pos), true
}

// Seek performs a flushing accurate seek to positionNs and blocks until
// the pipeline reports the seek has completed.
func (p *Pipeline) Seek(positionNs int64) error {
	if !p.pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagAccurate, positionNs) {
		return syncerr.Newf(syncerr.Timeline, "seek to %dns failed", positionNs)
	}
	// A flushing seek puts the pipeline into an async state change;
	// waiting on its state blocks until that change (the seek) completes.
	p.pipeline.GetState(gst.ClockTime(5 * time.Second))
	return nil
}

// Play transitions the pipeline to the Playing state.
func (p *Pipeline) Play() error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return syncerr.New(syncerr.Timeline, err)
	}
	return nil
}

// Pause transitions the pipeline to the Paused state.
func (p *Pipeline) Pause() error {
	if err := p.pipeline.SetState(gst.StatePaused); err != nil {
		return syncerr.New(syncerr.Timeline, err)
	}
	return nil
}

// Anchor sets an explicit base time on the pipeline, realizing the
// rendering-position equation from syncrecord.Record: running time maps
// onto the shared reference timeline from this instant on.
func (p *Pipeline) Anchor(baseTimeNs uint64) {
	p.pipeline.SetBaseTime(gst.ClockTime(baseTimeNs))
}

// Element returns the underlying playbin element, for attaching
// transform sub-pipelines (internal/transform) via its video-filter
// property.
func (p *Pipeline) Element() *gst.Pipeline {
	return p.pipeline
}

// Close tears down the pipeline.
func (p *Pipeline) Close() {
	if p.pipeline == nil {
		return
	}
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		log.Warn().Err(err).Msg("failed to null playback pipeline")
	}
}
