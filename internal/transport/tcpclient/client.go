// Package tcpclient is the default ClientTransport: it opens a TCP
// connection to the server, sends the join descriptor, then reads framed
// JSON records until the connection ends.
package tcpclient

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// Client is a framed-JSON TCP ClientTransport.
type Client struct {
	addr string
	dial func(network, address string) (net.Conn, error)

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Client that will dial addr (host:port) when Start is
// called.
func New(addr string) *Client {
	return &Client{addr: addr, dial: net.Dial}
}

// Start connects, sends desc, and delivers every subsequently received
// record to onRecord, in order, discarding any out-of-order (non strictly
// increasing version) delivery. Start blocks until
// the connection ends or Stop is called; its return value is the
// terminal error (nil on an orderly close or explicit Stop).
func (c *Client) Start(ctx context.Context, desc syncrecord.JoinDescriptor, onRecord func(syncrecord.Record)) error {
	conn, err := c.dial("tcp", c.addr)
	if err != nil {
		return syncerr.New(syncerr.Transport, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()
	defer close(c.done)
	defer conn.Close()

	go func() {
		<-runCtx.Done()
		conn.Close()
	}()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(desc); err != nil {
		return syncerr.New(syncerr.Transport, err)
	}

	dec := json.NewDecoder(conn)
	var lastVersion uint64
	for {
		var rec syncrecord.Record
		if err := dec.Decode(&rec); err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			return classifyReadError(err)
		}

		if rec.Version <= lastVersion {
			log.Warn().Uint64("version", rec.Version).Uint64("last", lastVersion).Msg("discarding out-of-order record")
			continue
		}
		lastVersion = rec.Version
		onRecord(rec)
	}
}

func classifyReadError(err error) error {
	if _, ok := err.(*json.SyntaxError); ok {
		return syncerr.New(syncerr.Decode, err)
	}
	if _, ok := err.(*json.UnmarshalTypeError); ok {
		return syncerr.New(syncerr.Decode, err)
	}
	return syncerr.New(syncerr.Transport, err)
}

// Stop closes the connection, causing Start to return.
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}
