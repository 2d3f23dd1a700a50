package syncclient

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ford-prefect/gst-sync-server/internal/clientsession"
	"github.com/ford-prefect/gst-sync-server/internal/config"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
	"github.com/ford-prefect/gst-sync-server/internal/transport"
	"github.com/ford-prefect/gst-sync-server/internal/transport/tcpclient"
	"github.com/ford-prefect/gst-sync-server/internal/transport/wsclient"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Join a sync server and discipline local playback to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig()
			if err != nil {
				return fmt.Errorf("failed to load client config: %w", err)
			}
			return runClient(cmd.Context(), cfg)
		},
	}
}

func runClient(ctx context.Context, cfg config.ClientConfig) error {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	var clientTransport transport.ClientTransport
	switch cfg.Transport {
	case "ws":
		clientTransport = wsclient.New(cfg.ServerAddr)
	default:
		clientTransport = tcpclient.New(cfg.ServerAddr)
	}

	session := clientsession.New(clientID)
	defer session.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	desc := syncrecord.JoinDescriptor{ID: clientID}
	log.Info().Str("client-id", clientID).Str("server", cfg.ServerAddr).Msg("joining sync server")

	err := clientTransport.Start(runCtx, desc, func(rec syncrecord.Record) {
		session.OnRecord(runCtx, rec)
	})
	if err != nil {
		return fmt.Errorf("control channel session ended: %w", err)
	}
	return nil
}
