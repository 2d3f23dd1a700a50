// Package wsserver is an alternative ServerTransport carrying the same
// join-descriptor/record-stream protocol as tcpserver over a WebSocket
// upgrade instead of a raw TCP connection.
package wsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// Registry mirrors tcpserver.Registry.
type Registry interface {
	Join(id string, config map[string]any) Subscription
	Leave(sub Subscription)
}

// Subscription mirrors tcpserver.Subscription.
type Subscription interface {
	Wait(ctx context.Context) (syncrecord.Record, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is a WebSocket ServerTransport, serving one endpoint ("/") on
// addr via its own http.Server.
type Server struct {
	addr     string
	registry Registry

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Server bound to addr once Start is called.
func New(addr string, registry Registry) *Server {
	return &Server{addr: addr, registry: registry}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.handleConn(runCtx, w, r)
	})

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		cancel()
		return syncerr.New(syncerr.Transport, err)
	}

	httpSrv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.srv = httpSrv
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("websocket control channel listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("websocket server stopped")
		}
	}()

	return nil
}

func (s *Server) handleConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var desc syncrecord.JoinDescriptor
	if err := conn.ReadJSON(&desc); err != nil {
		log.Warn().Err(err).Msg("failed to decode join descriptor")
		return
	}

	sub := s.registry.Join(desc.ID, desc.Config)
	defer s.registry.Leave(sub)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	unexpected := make(chan error, 1)
	go func() {
		_, _, err := conn.ReadMessage()
		if err != nil {
			unexpected <- nil
		} else {
			unexpected <- syncerr.New(syncerr.Protocol, syncerr.ErrUnexpectedBytes)
		}
		cancel()
	}()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- s.sendLoop(connCtx, sub, conn)
	}()

	select {
	case err := <-sendDone:
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("client", desc.ID).Msg("websocket send loop ended")
		}
	case err := <-unexpected:
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("client", desc.ID).Msg("websocket session closed on error")
		}
	}
}

func (s *Server) sendLoop(ctx context.Context, sub Subscription, conn *websocket.Conn) error {
	for {
		rec, err := sub.Wait(ctx)
		if err != nil {
			return nil
		}
		if err := conn.WriteJSON(rec); err != nil {
			return syncerr.New(syncerr.Transport, err)
		}
	}
}

// Stop shuts down the HTTP server and waits for it to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	srv := s.srv
	s.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	}
	s.wg.Wait()
	return nil
}
