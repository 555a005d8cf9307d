// Package mqttsub feeds edge-device events published over MQTT into the
// ingest queue.
//
// The session is clean, so the broker forgets subscriptions when the
// connection drops. Subscribing happens in the OnConnect handler, which paho
// runs after the first connect and after every automatic reconnect.
package mqttsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/shiftmetrics/internal/adapters/mq/queue"
	"github.com/okian/shiftmetrics/pkg/logger"
	"github.com/okian/shiftmetrics/pkg/metrics"
)

const (
	sourceName        = "mqtt"
	disconnectQuiesce = 250 // ms
	connectTimeout    = 10 * time.Second
)

// Enqueuer accepts decoded messages.
type Enqueuer interface {
	Enqueue(ctx context.Context, m queue.Message) error
}

// Config describes the broker connection.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// ClientFactory builds the MQTT client from the prepared options.
type ClientFactory func(o *mqtt.ClientOptions) mqtt.Client

// Subscriber owns one MQTT client subscribed to the event topic.
type Subscriber struct {
	cfg       Config
	q         Enqueuer
	client    mqtt.Client
	newClient ClientFactory
	logger    logger.Logger

	mu         sync.Mutex
	ctx        context.Context
	subscribed chan error
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithLogger overrides the subscriber's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		s.logger = l
	}
}

// WithClientFactory replaces mqtt.NewClient, mainly for tests.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Subscriber) {
		s.newClient = f
	}
}

// New validates cfg and prepares a client. Nothing connects until Start.
func New(cfg Config, q Enqueuer, opts ...Option) (*Subscriber, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker must not be empty")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("mqtt topic must not be empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d out of range", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "shiftmetrics"
	}

	s := &Subscriber{
		cfg:       cfg,
		q:         q,
		newClient: mqtt.NewClient,
		logger:    logger.Get().Named("mqtt"),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(cfg.Broker)
	o.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		o.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		o.SetPassword(cfg.Password)
	}
	o.SetAutoReconnect(true)
	o.SetCleanSession(true)
	o.SetConnectTimeout(connectTimeout)
	o.SetOnConnectHandler(s.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		metrics.RecordErrorByComponent("mqtt", "connection_lost")
		s.logger.Warn(s.context(), "mqtt connection lost, reconnecting",
			logger.String("broker", cfg.Broker),
			logger.Error(err),
		)
	})
	s.client = s.newClient(o)
	return s, nil
}

// Start connects and waits for the first subscription. Messages are enqueued
// until ctx ends or Close is called.
func (s *Subscriber) Start(ctx context.Context) error {
	first := make(chan error, 1)
	s.mu.Lock()
	s.ctx = ctx
	s.subscribed = first
	s.mu.Unlock()

	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.cfg.Broker, token.Error())
	}

	select {
	case err := <-first:
		if err != nil {
			s.client.Disconnect(disconnectQuiesce)
			return err
		}
	case <-ctx.Done():
		s.client.Disconnect(disconnectQuiesce)
		return ctx.Err()
	}

	s.logger.Info(ctx, "mqtt subscriber started",
		logger.String("broker", s.cfg.Broker),
		logger.String("topic", s.cfg.Topic),
		logger.Int("qos", int(s.cfg.QoS)),
	)
	return nil
}

// onConnect subscribes on every (re)connect. Only the result of the first
// one is reported to Start; later failures are logged.
func (s *Subscriber) onConnect(c mqtt.Client) {
	ctx := s.context()
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			s.logger.Warn(ctx, "mqtt message dropped",
				logger.String("topic", msg.Topic()),
				logger.Error(err),
			)
		}
	})
	var err error
	if token.Wait() && token.Error() != nil {
		err = fmt.Errorf("subscribe to topic %s: %w", s.cfg.Topic, token.Error())
		metrics.RecordErrorByComponent("mqtt", "subscribe_failed")
		s.logger.Error(ctx, "mqtt subscribe failed", logger.Error(err))
	} else {
		s.logger.Debug(ctx, "mqtt subscribed", logger.String("topic", s.cfg.Topic))
	}

	s.mu.Lock()
	first := s.subscribed
	s.subscribed = nil
	s.mu.Unlock()
	if first != nil {
		first <- err
	}
}

func (s *Subscriber) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// HandleMessage decodes one payload and enqueues it.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	in, err := queue.DecodeInput(payload)
	if err != nil {
		metrics.RecordEventRejected("malformed")
		return err
	}
	if err := s.q.Enqueue(ctx, queue.Message{Input: in, Source: sourceName}); err != nil {
		metrics.RecordErrorByComponent("mqtt", "enqueue_failed")
		return fmt.Errorf("enqueue from %s: %w", topic, err)
	}
	return nil
}

// Close unsubscribes and disconnects.
func (s *Subscriber) Close() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	if token := s.client.Unsubscribe(s.cfg.Topic); token.Wait() && token.Error() != nil {
		s.logger.Warn(context.Background(), "mqtt unsubscribe failed", logger.Error(token.Error()))
	}
	s.client.Disconnect(disconnectQuiesce)
}
