package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultBufferSize holds a full 8 hour shift of one-minute payloads.
const DefaultBufferSize = 480

// Options configure a RealPublisher.
type Options struct {
	Broker         string
	Machine        string
	Username       string
	Password       string
	BufferSize     int
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	Logger         *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Payloads published while
// the connection is down are queued and replayed on reconnect. Payloads reach
// the broker in publish order: while anything is queued or a replay is
// running, new payloads join the queue.
type RealPublisher struct {
	client paho.Client
	topic  string
	log    *slog.Logger

	mu       sync.Mutex
	buf      *ringBuffer
	flushing bool
}

// NewRealPublisher creates a publisher for the given broker. It waits up to
// ConnectTimeout for the first connection and keeps retrying in the background
// after that; an unreachable broker is not an error.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &RealPublisher{
		topic: Topic(opts.Machine),
		log:   opts.Logger,
		buf:   newRingBuffer(opts.BufferSize),
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(fmt.Sprintf("%s-%s", opts.Machine, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(opts.RetryInterval).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Info("mqtt connected", "broker", opts.Broker)
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("mqtt connection lost", "error", err)
		})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		p.log.Warn("mqtt broker not reachable yet, buffering", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Publish sends payload to the machine topic, or queues it while disconnected
// or while older payloads are still waiting.
func (p *RealPublisher) Publish(payload string) error {
	connected := p.client.IsConnectionOpen()

	p.mu.Lock()
	if !connected || p.flushing || p.buf.len() > 0 {
		p.enqueueLocked(payload)
		start := connected && !p.flushing
		if start {
			p.flushing = true
		}
		p.mu.Unlock()
		if start {
			go p.drain()
		}
		return nil
	}
	p.mu.Unlock()

	// QoS 0 (at-most-once), not retained
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.enqueue(payload)
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.enqueue(payload)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Buffered returns the number of queued payloads.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) enqueue(payload string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueueLocked(payload)
}

func (p *RealPublisher) enqueueLocked(payload string) {
	if p.buf.push(queuedMsg{payload: payload, queued: time.Now()}) {
		p.log.Warn("mqtt buffer full, dropping oldest payload")
	}
}

// flush replays queued payloads unless a replay is already running.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	if p.flushing {
		p.mu.Unlock()
		return
	}
	p.flushing = true
	p.mu.Unlock()
	p.drain()
}

// drain replays queued payloads oldest first until the queue is empty. On a
// failed publish the unsent payloads go back to the front of the queue.
func (p *RealPublisher) drain() {
	for {
		p.mu.Lock()
		msgs, dropped := p.buf.drainAll()
		if len(msgs) == 0 {
			p.flushing = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.log.Info("mqtt replaying buffered payloads", "count", len(msgs), "dropped", dropped)
		for i, m := range msgs {
			token := p.client.Publish(p.topic, 0, false, m.payload)
			if token.WaitTimeout(5*time.Second) && token.Error() == nil {
				continue
			}
			p.mu.Lock()
			p.buf.pushFront(msgs[i:])
			p.flushing = false
			p.mu.Unlock()
			p.log.Warn("mqtt replay interrupted", "remaining", len(msgs)-i)
			return
		}
	}
}
