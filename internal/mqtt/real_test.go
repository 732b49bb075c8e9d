package mqtt

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubClient records publishes. Only the methods RealPublisher calls on the
// hot path are implemented.
type stubClient struct {
	paho.Client

	mu     sync.Mutex
	open   bool
	sent   []string
	failOn map[string]int       // payload -> remaining failures
	before func(payload string) // called before a publish completes
}

func (c *stubClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *stubClient) Publish(_ string, _ byte, _ bool, payload interface{}) paho.Token {
	s := payload.(string)
	if c.before != nil {
		c.before(s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn[s] > 0 {
		c.failOn[s]--
		return doneToken{err: errors.New("not delivered")}
	}
	c.sent = append(c.sent, s)
	return doneToken{}
}

func (c *stubClient) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func newStubPublisher(c *stubClient, queued ...string) *RealPublisher {
	p := &RealPublisher{
		client: c,
		topic:  Topic("machine2"),
		log:    slog.Default(),
		buf:    newRingBuffer(16),
	}
	for _, q := range queued {
		p.buf.push(queuedMsg{payload: q})
	}
	return p
}

func TestReplayFailureKeepsOrder(t *testing.T) {
	c := &stubClient{open: true, failOn: map[string]int{"b": 1}}
	p := newStubPublisher(c, "a", "b", "c")

	p.flush()
	assert.Equal(t, []string{"a"}, c.Sent())
	assert.Equal(t, 2, p.Buffered())

	// Queued payloads go out before the new one.
	require.NoError(t, p.Publish("d"))
	require.Eventually(t, func() bool { return len(c.Sent()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.Sent())
	assert.Equal(t, 0, p.Buffered())
}

func TestPublishDuringReplayIsQueued(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c := &stubClient{open: true}
	c.before = func(s string) {
		if s == "a" {
			close(started)
			<-release
		}
	}
	p := newStubPublisher(c, "a", "b")

	done := make(chan struct{})
	go func() {
		p.flush()
		close(done)
	}()
	<-started

	require.NoError(t, p.Publish("live"))
	assert.Empty(t, c.Sent(), "live payload must wait for the replay")

	close(release)
	<-done
	assert.Equal(t, []string{"a", "b", "live"}, c.Sent())
	assert.Equal(t, 0, p.Buffered())
}

func TestPublishWhileDisconnectedQueues(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	require.NoError(t, p.Publish("x"))
	assert.Equal(t, 1, p.Buffered())
	assert.Empty(t, c.Sent())
}
