package syncserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ford-prefect/gst-sync-server/internal/config"
	"github.com/ford-prefect/gst-sync-server/internal/eventbus"
	"github.com/ford-prefect/gst-sync-server/internal/mediadriver"
	"github.com/ford-prefect/gst-sync-server/internal/netclock"
	"github.com/ford-prefect/gst-sync-server/internal/playlist"
	"github.com/ford-prefect/gst-sync-server/internal/registry"
	"github.com/ford-prefect/gst-sync-server/internal/timeline"
	"github.com/ford-prefect/gst-sync-server/internal/transport"
	"github.com/ford-prefect/gst-sync-server/internal/transport/tcpserver"
	"github.com/ford-prefect/gst-sync-server/internal/transport/wsserver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reference-time server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

// tcpRegistryAdapter satisfies tcpserver.Registry on top of
// *registry.Registry: registry.Registry.Join returns the concrete
// *registry.Subscription type, which Go cannot treat as satisfying
// tcpserver.Registry directly (interface method sets must match
// exactly), so this adapter bridges the two.
type tcpRegistryAdapter struct{ r *registry.Registry }

func (a tcpRegistryAdapter) Join(id string, cfg map[string]any) tcpserver.Subscription {
	return a.r.Join(id, cfg)
}

func (a tcpRegistryAdapter) Leave(sub tcpserver.Subscription) {
	if s, ok := sub.(*registry.Subscription); ok {
		a.r.Leave(s)
	}
}

// wsRegistryAdapter is the wsserver.Registry counterpart.
type wsRegistryAdapter struct{ r *registry.Registry }

func (a wsRegistryAdapter) Join(id string, cfg map[string]any) wsserver.Subscription {
	return a.r.Join(id, cfg)
}

func (a wsRegistryAdapter) Leave(sub wsserver.Subscription) {
	if s, ok := sub.(*registry.Subscription); ok {
		a.r.Leave(s)
	}
}

// playlistSource adapts a *timeline.Manager's current snapshot to
// mediadriver.TrackSource.
type playlistSource struct{ mgr *timeline.Manager }

func (s playlistSource) URIForCurrent() (string, bool) {
	rec := s.mgr.Snapshot()
	track, ok := rec.Playlist.Current()
	if !ok {
		return "", false
	}
	return track.URI, true
}

func runServe(ctx context.Context, cfg config.ServerConfig) error {
	pl, err := playlist.Load(cfg.Playlist)
	if err != nil {
		return fmt.Errorf("failed to load playlist: %w", err)
	}

	provider, err := netclock.NewProvider("", cfg.ClockPort)
	if err != nil {
		return fmt.Errorf("failed to start net time provider: %w", err)
	}
	defer provider.Close()

	bus, err := eventbus.New()
	if err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer bus.Close()

	reg := registry.New(bus)

	pub := &timeline.MultiPublisher{}
	pub.Add(reg)

	mgr := timeline.New(provider, pub, pl, cfg.LatencyMs*uint64(1_000_000), cfg.StreamStartDelayMs*uint64(1_000_000))
	mgr.SetClockAddr(cfg.ClockAddress, provider.Port())

	var serverTransport transport.ServerTransport
	switch cfg.Transport {
	case "ws":
		serverTransport = wsserver.New(cfg.Listen, wsRegistryAdapter{reg})
	default:
		serverTransport = tcpserver.New(cfg.Listen, tcpRegistryAdapter{reg})
	}

	if err := serverTransport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control channel server: %w", err)
	}
	defer serverTransport.Stop()

	driver := mediadriver.New(playlistSource{mgr}, mgr.AdvanceTrack)
	pub.Add(driver)

	driveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	driveErrCh := make(chan error, 1)
	go func() { driveErrCh <- driver.Run(driveCtx) }()

	log.Info().
		Str("listen", cfg.Listen).
		Str("clock-address", cfg.ClockAddress).
		Uint16("clock-port", provider.Port()).
		Msg("sync server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-sigCh:
		log.Info().Msg("shutting down")
	case err := <-driveErrCh:
		if err != nil {
			return fmt.Errorf("media driver stopped: %w", err)
		}
	}

	return nil
}
