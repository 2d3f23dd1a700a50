// Package tcpserver is the default ServerTransport: a framed-JSON TCP
// listener. Each accepted connection gets one worker goroutine that reads
// the client's join descriptor, sends the current record, then blocks on
// the registry's notification source and relays every subsequent record.
package tcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// Registry is the subset of *registry.Registry the server needs: join a
// client and retrieve a Subscription that delivers its records.
type Registry interface {
	Join(id string, config map[string]any) Subscription
	Leave(sub Subscription)
}

// Subscription matches registry.Subscription's Wait method.
type Subscription interface {
	Wait(ctx context.Context) (syncrecord.Record, error)
}

// Server is a framed-JSON TCP ServerTransport.
type Server struct {
	addr     string
	registry Registry

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Server bound to addr (e.g. ":9011") once Start is called.
func New(addr string, registry Registry) *Server {
	return &Server{addr: addr, registry: registry}
}

// Start opens the listener and begins accepting connections in the
// background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return syncerr.New(syncerr.Transport, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("control channel server listening")

	s.wg.Add(1)
	go s.acceptLoop(runCtx, ln)

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("control channel accept failed")
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	var desc syncrecord.JoinDescriptor
	if err := dec.Decode(&desc); err != nil {
		log.Warn().Err(err).Msg("failed to decode join descriptor")
		return
	}

	sub := s.registry.Join(desc.ID, desc.Config)
	defer s.registry.Leave(sub)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Any bytes from the client after the join descriptor are an error.
	// We never expect to read again, so a background goroutine solely
	// watches for that and cancels the connection the moment it happens.
	unexpected := make(chan error, 1)
	go func() {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		switch {
		case errors.Is(err, io.EOF):
			unexpected <- nil
		case err != nil:
			unexpected <- syncerr.New(syncerr.Transport, err)
		default:
			unexpected <- syncerr.New(syncerr.Protocol, syncerr.ErrUnexpectedBytes)
		}
		cancel()
	}()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- s.sendLoop(connCtx, sub, enc)
	}()

	select {
	case err := <-sendDone:
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("client", desc.ID).Msg("control channel send loop ended")
		}
	case err := <-unexpected:
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("client", desc.ID).Msg("control channel session closed on error")
		}
	}
}

func (s *Server) sendLoop(ctx context.Context, sub Subscription, enc *json.Encoder) error {
	for {
		rec, err := sub.Wait(ctx)
		if err != nil {
			return nil
		}
		if err := enc.Encode(rec); err != nil {
			return syncerr.New(syncerr.Transport, err)
		}
	}
}

// Stop closes the listener and waits for all workers to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	s.wg.Wait()
	return nil
}
