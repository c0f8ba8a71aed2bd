package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// ClientIDPrefix is combined with a random suffix so a restarted daemon
// never collides with its own stale session.
const ClientIDPrefix = "fridge-sensor"

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu        sync.Mutex
	connected bool // set once the first connect succeeded
}

// NewClientID returns "fridge-sensor-" plus the first uuid group.
func NewClientID() string {
	return ClientIDPrefix + "-" + uuid.NewString()[:8]
}

// NewRealPublisher creates a publisher connected to the given broker.
// The first connection is retried with exponential backoff for up to
// maxWait (one attempt if maxWait <= 0); after that paho reconnects on its own.
func NewRealPublisher(broker string, maxWait time.Duration) (*RealPublisher, error) {
	p := &RealPublisher{topic: Topic}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(NewClientID()).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(time.Minute).
		SetWill(TopicSystem, string(will), 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		}).
		SetOnConnectHandler(p.onConnect)

	p.client = paho.NewClient(opts)

	connect := func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connection timeout")
		}
		return token.Error()
	}
	notify := func(err error, next time.Duration) {
		log.Printf("mqtt: connect to %s failed: %v (retry in %v)", broker, err, next.Truncate(time.Millisecond))
	}
	if err := backoff.RetryNotify(connect, connectBackOff(maxWait), notify); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// connectBackOff bounds the first connection attempts to maxWait. A
// non-positive maxWait means a single attempt; backoff treats a zero
// MaxElapsedTime as unbounded.
func connectBackOff(maxWait time.Duration) backoff.BackOff {
	if maxWait <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = maxWait
	return b
}

// onConnect announces reconnects. The first connect is announced by the
// daemon's STARTUP event instead.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	first := !p.connected
	p.connected = true
	p.mu.Unlock()
	if first {
		return
	}

	log.Printf("mqtt: connection restored")
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	c.Publish(TopicSystem, 1, false, payload)
}

// Publish sends a batch of readings to the MQTT broker.
func (p *RealPublisher) Publish(b logic.Batch) error {
	payload, err := FormatPayload(b)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	token := p.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}

	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
