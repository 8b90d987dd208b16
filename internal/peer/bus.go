package peer

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// Bus is a connected pub/sub session.
type Bus interface {
	Subscribe(topic string, h Handler) error
	// Publish must not block on network round trips.
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close() error
}

// Will is published by the broker if the session dies uncleanly.
type Will struct {
	Topic   string
	Payload []byte
}

// Session describes one connection attempt.
type Session struct {
	ClientID string
	Will     *Will
	// OnLost is called once if the broker connection drops.
	OnLost func(error)
}

// Dialer opens a Bus.
type Dialer func(s Session) (Bus, error)

// DefaultConnectTimeout bounds a broker connect.
const DefaultConnectTimeout = 3 * time.Second

// MQTTOptions locate the broker.
type MQTTOptions struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// MQTTDialer returns a Dialer backed by paho.
func MQTTDialer(opts MQTTOptions) Dialer {
	return func(s Session) (Bus, error) {
		return DialMQTT(opts, s)
	}
}

// MQTTBus is a Bus over a paho client. Auto-reconnect is off; reconnecting
// is up to the caller.
type MQTTBus struct {
	client  mqtt.Client
	timeout time.Duration
	log     *slog.Logger
}

// DialMQTT connects to the broker, waiting at most opts.ConnectTimeout.
func DialMQTT(opts MQTTOptions, s Session) (*MQTTBus, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	broker := "tcp://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	o := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(s.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOrderMatters(true)
	if s.Will != nil {
		o.SetBinaryWill(s.Will.Topic, s.Will.Payload, 1, true)
	}
	if s.OnLost != nil {
		onLost := s.OnLost
		o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt: connection lost", "broker", broker, "err", err)
			onLost(err)
		})
	}

	client := mqtt.NewClient(o)
	tok := client.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: connect %s: timed out after %s", ErrTransport, broker, opts.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrTransport, broker, err)
	}
	log.Info("mqtt: connected", "broker", broker, "client_id", s.ClientID)
	return &MQTTBus{client: client, timeout: opts.ConnectTimeout, log: log}, nil
}

// Subscribe registers h for topic at QoS 0 and waits for the broker's ack.
func (b *MQTTBus) Subscribe(topic string, h Handler) error {
	tok := b.client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(b.timeout) {
		return fmt.Errorf("%w: subscribe %s: timed out", ErrTransport, topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrTransport, topic, err)
	}
	b.log.Debug("mqtt: subscribed", "topic", topic)
	return nil
}

// Publish hands the message to paho. Errors paho reports immediately (not
// connected, closed) are returned; anything later is not awaited.
func (b *MQTTBus) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := b.client.Publish(topic, qos, retained, payload)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("%w: publish %s: %w", ErrTransport, topic, err)
		}
	default:
	}
	return nil
}

// Close disconnects, allowing in-flight work a short grace period.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(250)
	b.log.Info("mqtt: disconnected")
	return nil
}
