// Package wsclient is the WebSocket counterpart to tcpclient: it dials a
// wsserver endpoint, sends the join descriptor, and relays incoming
// records.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// Client is a WebSocket ClientTransport.
type Client struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Client that will dial addr (host:port) as ws://addr/ when
// Start is called.
func New(addr string) *Client {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	return &Client{url: u.String()}
}

// Start connects, sends desc, and delivers every subsequently received
// record to onRecord in order, discarding out-of-order deliveries.
func (c *Client) Start(ctx context.Context, desc syncrecord.JoinDescriptor, onRecord func(syncrecord.Record)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
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

	if err := conn.WriteJSON(desc); err != nil {
		return syncerr.New(syncerr.Transport, err)
	}

	var lastVersion uint64
	for {
		var rec syncrecord.Record
		if err := conn.ReadJSON(&rec); err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				return syncerr.New(syncerr.Decode, err)
			}
			return syncerr.New(syncerr.Transport, err)
		}

		if rec.Version <= lastVersion {
			log.Warn().Uint64("version", rec.Version).Uint64("last", lastVersion).Msg("discarding out-of-order record")
			continue
		}
		lastVersion = rec.Version
		onRecord(rec)
	}
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
