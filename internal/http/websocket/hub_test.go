package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Send_IgnoredWhenHubOffline(t *testing.T) {
	t.Parallel()

	hub := New()

	// Must return promptly rather than blocking on the (nil) send channel.
	done := make(chan struct{})
	go func() {
		hub.Send(&SocketMessage{Title: "TEST", Type: Update})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send against an offline hub blocked")
	}
}

func Test_Start_RefusesCancelledContext(t *testing.T) {
	t.Parallel()

	hub := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hub.Start(ctx)
	assert.False(t, hub.running.Load())
}

func Test_Hub_ConcurrentSendsDuringLifecycle(t *testing.T) {
	t.Parallel()

	hub := New()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		close(started)
		hub.Start(ctx)
		close(stopped)
	}()

	<-started
	deadline := time.Now().Add(time.Second)
	for !hub.running.Load() {
		require.True(t, time.Now().Before(deadline), "hub never came up")
		time.Sleep(time.Millisecond)
	}

	// Hammer the running flag from many goroutines while the hub is live
	// and while it shuts down; with no clients connected the messages are
	// broadcast to nobody and simply drained.
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Send(&SocketMessage{Title: "TEST", Type: Update})
			}
		}()
	}

	wg.Wait()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub never shut down")
	}

	assert.False(t, hub.running.Load())
}
