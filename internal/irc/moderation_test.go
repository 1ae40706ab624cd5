package irc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOppedClient(channels ...string) *Client {
	c := &Client{
		opped:     make(map[string]bool),
		opWait:    make(map[string]chan struct{}),
		modeLocks: make(map[string]*sync.Mutex),
	}
	for _, ch := range channels {
		c.opped[foldNick(ch)] = true
	}
	return c
}

func TestWithOpsRunsOneAtATimePerChannel(t *testing.T) {
	t.Parallel()
	c := newOppedClient("#ops")

	var active, overlaps, runs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.withOps(context.Background(), "#OPS", func() error {
				if active.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				runs.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), runs.Load())
	assert.Zero(t, overlaps.Load())
}

func TestWithOpsOtherChannelsDoNotWait(t *testing.T) {
	t.Parallel()
	c := newOppedClient("#ops", "#chat")

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.withOps(context.Background(), "#ops", func() error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside
	defer close(release)

	done := make(chan struct{})
	go func() {
		_ = c.withOps(context.Background(), "#chat", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "a mode change on #chat waited for #ops")
	}
}

func TestChannelLockFoldsCase(t *testing.T) {
	t.Parallel()
	c := newOppedClient()

	assert.Same(t, c.channelLock("#Ops[1]"), c.channelLock("#ops{1}"))
	assert.NotSame(t, c.channelLock("#ops"), c.channelLock("#chat"))
}
