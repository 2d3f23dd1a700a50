// Package clientsession is the client's single-session analogue of the
// server's registry: it owns the one local playback pipeline, the net
// clock consumer dialed lazily once the first record names a clock
// address, and the catch-up engine driving them both.
package clientsession

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/catchup"
	"github.com/ford-prefect/gst-sync-server/internal/netclock"
	"github.com/ford-prefect/gst-sync-server/internal/playback"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
	"github.com/ford-prefect/gst-sync-server/internal/transform"
)

// Session owns the client-side state for one joined client: the current
// pipeline for whichever track the playlist names, the net clock
// consumer, and the catch-up engine reconciling them against incoming
// records.
type Session struct {
	clientID string

	mu           sync.Mutex
	clock        *netclock.Consumer
	pipeline     *playback.Pipeline
	engine       *catchup.Engine
	engineDone   chan struct{}
	currentURI   string
	lastBaseTime uint64
}

// New creates an empty Session for clientID; it builds its pipeline and
// clock lazily, on the first record it sees.
func New(clientID string) *Session {
	return &Session{clientID: clientID}
}

// OnRecord is the transport's onRecord callback.
func (s *Session) OnRecord(ctx context.Context, rec syncrecord.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock == nil {
		clock, err := netclock.NewConsumer(rec.ClockAddress, rec.ClockPort)
		if err != nil {
			log.Error().Err(err).Msg("failed to dial net clock, dropping record")
			return
		}
		s.clock = clock
	}

	track, ok := rec.Playlist.Current()
	if !ok || rec.Stopped {
		// Stopped (or played-past-end) quiesces the pipeline entirely;
		// the next record with Stopped cleared rebuilds it from scratch.
		s.teardownPipelineLocked()
		return
	}

	// A base-time change is a timeline discontinuity: rebuild rather
	// than trying to patch the running pipeline onto the new origin.
	rebuild := track.URI != s.currentURI || rec.BaseTimeNs != s.lastBaseTime
	if rebuild {
		if err := s.switchTrackLocked(ctx, track.URI, rec); err != nil {
			log.Error().Err(err).Str("uri", track.URI).Msg("failed to switch track")
			return
		}
	}
	s.lastBaseTime = rec.BaseTimeNs

	if err := transform.Apply(s.pipeline.Element(), rec.Transforms, s.clientID); err != nil {
		log.Warn().Err(err).Msg("failed to apply transform")
	}

	s.engine.OnRecord(rec)
}

func (s *Session) switchTrackLocked(ctx context.Context, uri string, rec syncrecord.Record) error {
	s.teardownPipelineLocked()

	pipeline, err := playback.New(uri, s.clock.Clock())
	if err != nil {
		return err
	}
	pipeline.Anchor(rec.BaseTimeNs + rec.BaseTimeOffsetNs)
	pipeline.Watch(ctx)

	engine := catchup.New(s.clientID, pipeline, s.clock)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run(ctx)
	}()

	s.pipeline = pipeline
	s.engine = engine
	s.engineDone = done
	s.currentURI = uri
	return nil
}

func (s *Session) teardownPipelineLocked() {
	if s.pipeline == nil {
		return
	}
	s.pipeline.Close()
	s.pipeline = nil
	s.engine = nil
	s.currentURI = ""
}

// Close tears down the pipeline and net clock.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownPipelineLocked()
	if s.clock != nil {
		_ = s.clock.Close()
		s.clock = nil
	}
}
