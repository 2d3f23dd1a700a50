package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

type recordingEvents struct {
	mu     sync.Mutex
	joined []ClientSession
	left   []ClientSession
}

func (r *recordingEvents) PublishJoined(s ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, s)
}

func (r *recordingEvents) PublishLeft(s ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, s)
}

func TestJoinDeliversCurrentRecordImmediately(t *testing.T) {
	reg := New(nil)
	reg.OnChange(syncrecord.Record{BaseTimeNs: 42})

	sub := reg.Join("client-a", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rec, err := sub.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), rec.BaseTimeNs)
	require.Equal(t, uint64(1), rec.Version)
}

func TestVersionStrictlyIncreases(t *testing.T) {
	reg := New(nil)
	sub := reg.Join("client-a", nil)

	ctx := context.Background()
	first, err := sub.Wait(ctx)
	require.NoError(t, err)

	reg.OnChange(syncrecord.Record{BaseTimeNs: 1})
	second, err := sub.Wait(ctx)
	require.NoError(t, err)

	require.Greater(t, second.Version, first.Version)
}

func TestSubscriptionCollapsesIntermediateVersions(t *testing.T) {
	reg := New(nil)
	sub := reg.Join("client-a", nil)
	ctx := context.Background()

	_, err := sub.Wait(ctx)
	require.NoError(t, err)

	// Three rapid publishes with nobody waiting in between.
	reg.OnChange(syncrecord.Record{BaseTimeNs: 1})
	reg.OnChange(syncrecord.Record{BaseTimeNs: 2})
	reg.OnChange(syncrecord.Record{BaseTimeNs: 3})

	rec, err := sub.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.BaseTimeNs)
	require.Equal(t, uint64(3), rec.Version)
}

func TestWaitBlocksUntilCanceled(t *testing.T) {
	reg := New(nil)
	sub := reg.Join("client-a", nil)
	ctx := context.Background()
	_, err := sub.Wait(ctx)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDuplicateClientIDsBothRetained(t *testing.T) {
	reg := New(nil)
	reg.Join("dup", nil)
	reg.Join("dup", nil)

	sessions := reg.Sessions()
	require.Len(t, sessions, 2)
}

func TestJoinLeaveEmitsEvents(t *testing.T) {
	events := &recordingEvents{}
	reg := New(events)

	sub := reg.Join("client-a", map[string]any{"k": "v"})
	reg.Leave(sub)

	require.Len(t, events.joined, 1)
	require.Equal(t, "client-a", events.joined[0].ID)
	require.Len(t, events.left, 1)
	require.Equal(t, "client-a", events.left[0].ID)

	require.Empty(t, reg.Sessions())
}

func TestAllSessionsEventuallyReachLatestVersion(t *testing.T) {
	reg := New(nil)
	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = reg.Join("client", nil)
	}

	ctx := context.Background()
	for _, s := range subs {
		_, err := s.Wait(ctx)
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		reg.OnChange(syncrecord.Record{BaseTimeNs: uint64(i)})
	}

	for _, s := range subs {
		rec, err := s.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(9), rec.BaseTimeNs)
	}
}
