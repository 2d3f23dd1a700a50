// Package netclock wraps the go-gst net-clock bindings: the Network Time
// Provider (server side, GstNetTimeProvider) that timeline.Manager reads,
// and the Network Time Consumer (client side, GstNetClientClock) that
// catchup.Engine disciplines playback against.
package netclock

import (
	"context"
	"time"

	"github.com/go-gst/go-gst/gst"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
)

// Provider runs a GstNetTimeProvider over the system clock, serving time
// queries on address:port so that clients can discipline their local
// pipeline clock to it.
type Provider struct {
	clock    *gst.Clock
	address  string
	port     uint16
	provider *gst.NetTimeProvider
}

// NewProvider starts serving the system clock on the given address (empty
// binds all interfaces) and port (0 picks an ephemeral port).
func NewProvider(address string, port uint16) (*Provider, error) {
	clock := gst.ObtainSystemClock().Clock

	ntp, err := gst.NewNetTimeProvider(clock, address, int(port))
	if err != nil {
		return nil, syncerr.New(syncerr.Clock, err)
	}

	bound := port
	if bound == 0 {
		// Port 0 asks the provider for an ephemeral port; read back the
		// one it actually bound.
		if v, err := ntp.GetProperty("port"); err == nil {
			if n, ok := v.(int); ok {
				bound = uint16(n)
			}
		}
	}

	return &Provider{
		clock:    clock,
		address:  address,
		port:     bound,
		provider: ntp,
	}, nil
}

// Clock returns the underlying clock, for use as a pipeline's base clock.
func (p *Provider) Clock() *gst.Clock {
	return p.clock
}

// Now returns the clock's current time in nanoseconds, satisfying
// timeline.Clock.
func (p *Provider) Now() uint64 {
	return uint64(p.clock.GetTime())
}

// Address is the address the provider was bound to (empty for all
// interfaces).
func (p *Provider) Address() string {
	return p.address
}

// Port is the bound UDP port reported to joining clients.
func (p *Provider) Port() uint16 {
	return p.port
}

// Close stops serving time queries.
func (p *Provider) Close() error {
	if p.provider != nil {
		p.provider.Unref()
	}
	return nil
}

// Consumer is a GstNetClientClock synced against a remote Provider. Its
// WaitForSync method blocks until the clock reports itself synchronized
// or the timeout elapses; rendering must not begin before that.
type Consumer struct {
	clock *gst.NetClientClock
}

// NewConsumer dials address:port and begins clock discipline.
func NewConsumer(address string, port uint16) (*Consumer, error) {
	clock, err := gst.NewNetClientClock("sync-net-clock", address, int(port), 0)
	if err != nil {
		return nil, syncerr.New(syncerr.Clock, err)
	}
	return &Consumer{clock: clock}, nil
}

// Clock returns the underlying GstClock, for use as a pipeline's clock.
func (c *Consumer) Clock() *gst.Clock {
	return c.clock.Clock
}

// Now returns the clock's current synchronized time in nanoseconds.
func (c *Consumer) Now() uint64 {
	return uint64(c.clock.GetTime())
}

// WaitForSync blocks until the clock reports itself synchronized with the
// remote provider, ctx is canceled, or timeout elapses, whichever comes
// first. A timeout returns a Clock error wrapping ErrClockSyncTimeout; a
// cancellation returns a Clock error wrapping ctx.Err().
func (c *Consumer) WaitForSync(ctx context.Context, timeout time.Duration) error {
	deadline := gst.ClockTime(timeout)
	synced := make(chan bool, 1)
	go func() { synced <- c.clock.WaitForSync(deadline) }()

	select {
	case ok := <-synced:
		if ok {
			return nil
		}
		return syncerr.New(syncerr.Clock, syncerr.ErrClockSyncTimeout)
	case <-ctx.Done():
		return syncerr.New(syncerr.Clock, ctx.Err())
	}
}

// Close releases the consumer clock.
func (c *Consumer) Close() error {
	if c.clock != nil {
		c.clock.Unref()
	}
	return nil
}
