package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/store"
	"github.com/stretchr/testify/require"
)

func TestStoreWatcher(t *testing.T) {
	dir := t.TempDir()

	// Two store handles over the same profile simulate two dashboard
	// processes sharing one browser profile.
	reader, err := store.NewFile(dir, time.Minute)
	require.NoError(t, err)
	writer, err := store.NewFile(dir, time.Minute)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []event.Notification
	watcher, err := NewStoreWatcher(reader, func(n event.Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	// Give the watch registration a moment before writing.
	time.Sleep(100 * time.Millisecond)

	n := event.New(event.TypeRouteApproved, "req-1", map[string]any{"route_id": "rt-1"})
	require.NoError(t, writer.PutNotification(n))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, 3*time.Second, 20*time.Millisecond, "watcher should pick up the cross-process write")

	mu.Lock()
	require.Equal(t, n.ID, got[0].ID)
	mu.Unlock()
}

func TestStoreWatcherIgnoresOldEvents(t *testing.T) {
	dir := t.TempDir()

	st, err := store.NewFile(dir, time.Minute)
	require.NoError(t, err)

	// An event written before the watcher exists must not be replayed.
	stale := event.New(event.TypeRouteStarted, "rt-0", nil)
	require.NoError(t, st.PutNotification(stale))

	var mu sync.Mutex
	var got []event.Notification
	watcher, err := NewStoreWatcher(st, func(n event.Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	fresh := event.New(event.TypeRouteStarted, "rt-1", nil)
	require.NoError(t, st.PutNotification(fresh))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, n := range got {
		require.NotEqual(t, stale.ID, n.ID, "pre-watch event must not be delivered")
	}
}

func TestStoreWatcherDeliversLastWriteOfBurst(t *testing.T) {
	dir := t.TempDir()

	reader, err := store.NewFile(dir, time.Minute)
	require.NoError(t, err)
	writer, err := store.NewFile(dir, time.Minute)
	require.NoError(t, err)

	var mu sync.Mutex
	got := make(map[string]bool)
	watcher, err := NewStoreWatcher(reader, func(n event.Notification) {
		mu.Lock()
		got[n.ID] = true
		mu.Unlock()
	})
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	// Two writes land well inside the debounce interval. The second must
	// still surface via the trailing re-read, not wait for a later event.
	first := event.New(event.TypeRouteAssigned, "rt-1", nil)
	require.NoError(t, writer.PutNotification(first))
	second := event.New(event.TypeRouteStarted, "rt-1", nil)
	require.NoError(t, writer.PutNotification(second))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got[first.ID] && got[second.ID]
	}, 3*time.Second, 20*time.Millisecond, "every write of a burst should be delivered")
}

func TestStoreWatcherRequiresFileBackend(t *testing.T) {
	st := store.New(store.NewMemoryBackend(), time.Minute)
	_, err := NewStoreWatcher(st, func(event.Notification) {})
	require.Error(t, err)
}
