package prefs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func assertQuiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %v", v)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_ReplaysLast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster[int]()
	b.Publish(1)
	b.Publish(2)

	ch := b.Subscribe(ctx)
	assert.Equal(t, 2, receive(t, ch))

	b.Publish(3)
	assert.Equal(t, 3, receive(t, ch))
}

func TestBroadcaster_OrderedPerSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster[int]()
	a := b.Subscribe(ctx)
	c := b.Subscribe(ctx)

	for i := 0; i < 100; i++ {
		b.Publish(i)
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, i, receive(t, a))
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, i, receive(t, c))
	}
}

func TestBroadcaster_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBroadcaster[string]()
	ch := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.subs) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcaster_Current(t *testing.T) {
	b := NewBroadcaster[int]()
	_, ok := b.Current()
	assert.False(t, ok)

	b.Publish(7)
	v, ok := b.Current()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestDistinctMap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan Preferences)
	out := DistinctMap(ctx, in, func(p Preferences) AutoSyncMode { return p.AutoSync })

	send := func(mode AutoSyncMode, unstable bool) {
		p := Defaults()
		p.AutoSync = mode
		p.UnstableUpdate = unstable
		in <- p
	}

	go func() {
		send(AutoSyncWifiOnly, false)
		send(AutoSyncWifiOnly, true) // other field changed; suppressed
		send(AutoSyncNever, true)
		send(AutoSyncNever, false)
		send(AutoSyncWifiOnly, false)
		close(in)
	}()

	assert.Equal(t, AutoSyncWifiOnly, receive(t, out))
	assert.Equal(t, AutoSyncNever, receive(t, out))
	assert.Equal(t, AutoSyncWifiOnly, receive(t, out))

	_, ok := <-out
	assert.False(t, ok)
}

func TestDistinctMap_Composite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster[Preferences]()
	b.Publish(Defaults())
	out := DistinctMap(ctx, b.Subscribe(ctx), Preferences.Proxy)

	assert.Equal(t, Defaults().Proxy(), receive(t, out))

	p := Defaults()
	p.AutoSync = AutoSyncAlways
	b.Publish(p)
	assertQuiet(t, out)

	p.ProxyPort = 1080
	b.Publish(p)
	assert.Equal(t, 1080, receive(t, out).Port)
}
