// Package mediadriver runs the server-side probe pipeline: for each
// playlist track it discovers the duration (or confirms liveness) and
// detects end-of-stream, feeding both back into a timeline.Manager.
package mediadriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/gstutil"
	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// TrackSource resolves the URI of the playlist's current track, satisfied
// by an adapter over timeline.Manager in internal/cmd/syncserver.
type TrackSource interface {
	URIForCurrent() (string, bool)
}

// Advancer is invoked once a track's probe ends (EOS or error), live
// tracks included; it is the server's hook to mutate the timeline.
type Advancer func(observedDurationNs uint64)

// Driver owns exactly one probe pipeline at a time: the one for the
// playlist's current track. It also implements timeline.Publisher so the
// probe pipeline tracks the published paused/stopped state the same way
// clients do.
type Driver struct {
	source  TrackSource
	advance Advancer

	mu      sync.Mutex
	current *gst.Pipeline
	paused  bool
	stopped bool
}

// New creates a Driver that probes source's current track and calls
// advance when that track ends.
func New(source TrackSource, advance Advancer) *Driver {
	gstutil.Init()
	return &Driver{source: source, advance: advance}
}

// OnChange mirrors the published playback state onto the probe pipeline:
// stopped quiesces it, paused holds it, and resuming re-anchors its base
// time to base_time + base_time_offset so the server's own rendering
// clock agrees with what clients will present.
func (d *Driver) OnChange(rec syncrecord.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.paused, d.stopped = rec.Paused, rec.Stopped
	if d.current == nil {
		return
	}

	switch {
	case rec.Stopped:
		if err := d.current.SetState(gst.StateReady); err != nil {
			log.Warn().Err(err).Msg("failed to quiesce probe pipeline")
		}
	case rec.Paused:
		if err := d.current.SetState(gst.StatePaused); err != nil {
			log.Warn().Err(err).Msg("failed to pause probe pipeline")
		}
	default:
		d.current.SetBaseTime(gst.ClockTime(rec.BaseTimeNs + rec.BaseTimeOffsetNs))
		if err := d.current.SetState(gst.StatePlaying); err != nil {
			log.Warn().Err(err).Msg("failed to resume probe pipeline")
		}
	}
}

func (d *Driver) setCurrent(p *gst.Pipeline) {
	d.mu.Lock()
	d.current = p
	d.mu.Unlock()
}

// Run probes the current track repeatedly until ctx is canceled: each
// iteration builds a fresh probe pipeline, waits for EOS or an error,
// reports the observed duration, and calls advance. When the playlist
// has no current track Run returns.
func (d *Driver) Run(ctx context.Context) error {
	for {
		uri, ok := d.source.URIForCurrent()
		if !ok {
			return nil
		}

		observed, err := d.probeOnce(ctx, uri)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("uri", uri).Msg("probe pipeline failed, advancing anyway")
			observed = 0
		}

		d.advance(observed)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// probeOnce builds a uridecodebin-into-fakesink pipeline for uri, lets it
// preroll to discover duration (none for live sources), then waits for
// EOS. For a seekable track the returned duration is the prerolled one;
// for a live source it is the wall time that elapsed before the stream
// ended, which is exactly the observed duration the timeline needs when
// the track's declared duration is unknown.
func (d *Driver) probeOnce(ctx context.Context, uri string) (uint64, error) {
	pipelineStr := fmt.Sprintf("uridecodebin uri=%q name=src ! fakesink name=sink sync=false", uri)
	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return 0, syncerr.New(syncerr.Timeline, err)
	}
	defer func() {
		d.setCurrent(nil)
		pipeline.SetState(gst.StateNull)
	}()
	d.setCurrent(pipeline)

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		return 0, syncerr.Newf(syncerr.Timeline, "probe pipeline failed to preroll: %v", err)
	}

	changeRet, _, _ := pipeline.GetState(gst.ClockTime(5 * time.Second))
	live := changeRet == gst.StateChangeNoPreroll
	if live {
		log.Info().Str("uri", uri).Msg("track is live, no duration to discover")
	}

	started := time.Now()
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return 0, syncerr.Newf(syncerr.Timeline, "probe pipeline failed to play: %v", err)
	}

	var duration uint64
	if dur, ok := pipeline.QueryDuration(gst.FormatTime); ok && dur > 0 {
		duration = uint64(dur)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		gstutil.WatchBus(ctx, pipeline, func(ev gstutil.BusEvent) {
			if ev.Err != nil {
				log.Warn().Err(ev.Err).Str("uri", uri).Msg("probe pipeline error")
			}
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	if duration == 0 {
		duration = uint64(time.Since(started))
	}

	return duration, nil
}
