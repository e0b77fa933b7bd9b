package protocol

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/types"
)

// Message is one broker payload, outbound or inbound.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
	At       time.Time
}

// BrokerHandler is the broker-facing handler specialization.
type BrokerHandler = Handler[Message, Message]

// NewBrokerHandler builds a handler over an MQTT transport for the given
// server profile, subscribing to topics on every (re)connect.
func NewBrokerHandler(server types.BrokerServer, topics []string, policy RetryPolicy) *BrokerHandler {
	return New[Message, Message]("broker", &brokerTransport{server: server, topics: topics}, policy)
}

// brokerTransport dials MQTT sessions. Auto-reconnect is disabled: the
// generic handler owns retry and backoff so the connection state machine
// has a single driver.
type brokerTransport struct {
	server types.BrokerServer
	topics []string
}

func (t *brokerTransport) Dial(ctx context.Context) (Session[Message, Message], error) {
	sess := &brokerSession{inbound: make(chan Message, 64)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.server.URL)
	clientID := t.server.ClientID
	if clientID == "" {
		clientID = "padbridge"
	}
	opts.SetClientID(clientID)
	if t.server.Username != "" {
		opts.SetUsername(t.server.Username)
	}
	if t.server.PasswordEnv != "" {
		opts.SetPassword(os.Getenv(t.server.PasswordEnv))
	}
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		blog := log.WithHandler("broker")
		blog.Debug().Err(err).Msg("broker connection lost")
		sess.closeInbound()
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("broker connect %s: %w", t.server.URL, err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	sess.client = client

	for _, topic := range t.topics {
		sub := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			m := Message{
				Topic:    msg.Topic(),
				Payload:  msg.Payload(),
				Retained: msg.Retained(),
				At:       time.Now(),
			}
			// Latest messages win over a stalled consumer.
			select {
			case sess.inbound <- m:
			default:
			}
		})
		sub.Wait()
		if err := sub.Error(); err != nil {
			client.Disconnect(250)
			return nil, fmt.Errorf("broker subscribe %q: %w", topic, err)
		}
	}

	return sess, nil
}

type brokerSession struct {
	client  mqtt.Client
	inbound chan Message
	once    sync.Once
}

func (s *brokerSession) Send(msg Message) error {
	token := s.client.Publish(msg.Topic, 0, msg.Retained, msg.Payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker publish %q: %w", msg.Topic, err)
	}
	return nil
}

func (s *brokerSession) Inbound() <-chan Message {
	return s.inbound
}

func (s *brokerSession) Close() error {
	s.client.Disconnect(250)
	s.closeInbound()
	return nil
}

func (s *brokerSession) closeInbound() {
	s.once.Do(func() { close(s.inbound) })
}
