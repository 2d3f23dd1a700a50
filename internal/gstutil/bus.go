// Package gstutil holds small helpers shared by every package that drives a
// go-gst pipeline: initialization, and the poll-the-bus-until-EOS-or-error
// loop used by both the server's probe pipeline and the client's playback
// pipeline. Grounded on the desktop package's watchBus shape.
package gstutil

import (
	"context"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog/log"
)

var initOnce sync.Once

// Init initializes GStreamer. Safe to call from multiple packages; the
// underlying gst.Init only runs once per process.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// BusEvent summarizes a bus message relevant to callers: pipelines only
// care about EOS and errors, not the full message taxonomy.
type BusEvent struct {
	EOS bool
	Err error
}

// WatchBus polls pipeline's bus until ctx is canceled or a terminal event
// (EOS or error) occurs, invoking onEvent for every relevant message. It
// returns when the pipeline reaches a terminal state or ctx is done.
func WatchBus(ctx context.Context, pipeline *gst.Pipeline, onEvent func(BusEvent)) {
	bus := pipeline.GetPipelineBus()
	if bus == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			onEvent(BusEvent{EOS: true})
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			var err error
			if gerr != nil {
				err = gerr
			}
			onEvent(BusEvent{Err: err})
			return
		case gst.MessageWarning:
			if gwarn := msg.ParseWarning(); gwarn != nil {
				log.Warn().Err(gwarn).Msg("pipeline warning")
			}
		}
	}
}
