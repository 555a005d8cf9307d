// Package kafkasub feeds edge-device events from a Kafka topic into the
// ingest queue.
//
// A message's offset is committed only after the ingest worker has admitted
// or rejected it, or it was judged malformed. Messages are processed one at a
// time, so a crash replays at most the uncommitted one, and replays are
// harmless because admission is idempotent.
package kafkasub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/mq/queue"
	"github.com/okian/shiftmetrics/pkg/logger"
	"github.com/okian/shiftmetrics/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

const (
	sourceName         = "kafka"
	defaultPollTimeout = 5 * time.Second
	enqueueBackoff     = 50 * time.Millisecond
	retryBackoff       = time.Second
)

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Enqueuer accepts decoded messages.
type Enqueuer interface {
	Enqueue(ctx context.Context, m queue.Message) error
}

// Config describes the topic subscription.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// Consumer reads the event topic and enqueues each message.
type Consumer struct {
	cfg    Config
	reader Reader
	q      Enqueuer
	poll   time.Duration
	retry  time.Duration
	logger logger.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithReader replaces the Kafka reader, mainly for tests.
func WithReader(r Reader) Option {
	return func(c *Consumer) {
		c.reader = r
	}
}

// WithRetryBackoff sets the pause before a failed admission is retried.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.retry = d
		}
	}
}

// WithLogger overrides the consumer's logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		c.logger = l
	}
}

// New validates cfg and builds a group reader.
func New(cfg Config, q Enqueuer, opts ...Option) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka consumer group must not be empty")
	}

	c := &Consumer{
		cfg:    cfg,
		q:      q,
		poll:   cfg.PollTimeout,
		retry:  retryBackoff,
		logger: logger.Get().Named("kafka"),
	}
	if c.poll <= 0 {
		c.poll = defaultPollTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reader == nil {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		})
	}
	return c, nil
}

// Run consumes until ctx is canceled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "kafka consumer started",
		logger.String("topic", c.cfg.Topic),
		logger.String("group", c.cfg.GroupID),
		logger.String("brokers", strings.Join(c.cfg.Brokers, ",")),
	)
	defer c.logger.Info(ctx, "kafka consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			c.logger.Error(ctx, "kafka fetch failed", logger.Error(err))
			metrics.RecordErrorByComponent("kafka", "fetch_error")
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Not settled; the group replays it after restart.
				return ctx.Err()
			}
			c.logger.Warn(ctx, "kafka message dropped",
				logger.Int64("offset", msg.Offset),
				logger.Int("partition", msg.Partition),
				logger.Error(err),
			)
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, "kafka commit failed", logger.Error(err))
		}
		commitCancel()
	}
}

// handle decodes msg, queues it and waits until a worker has settled it.
// Admission failures that may be transient are retried. Only a malformed
// payload or a closed queue gives up on the message.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	in, err := queue.DecodeInput(msg.Value)
	if err != nil {
		metrics.RecordEventRejected("malformed")
		return err
	}
	for {
		settled := make(chan error, 1)
		m := queue.Message{Input: in, Source: sourceName, Done: func(err error) { settled <- err }}
		if err := c.enqueue(ctx, m); err != nil {
			return fmt.Errorf("enqueue offset %d: %w", msg.Offset, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-settled:
			if err == nil {
				return nil
			}
			metrics.RecordErrorByComponent("kafka", "ingest_retry")
			c.logger.Warn(ctx, "kafka message not admitted, retrying",
				logger.Int64("offset", msg.Offset),
				logger.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retry):
		}
	}
}

// enqueue waits for queue space.
func (c *Consumer) enqueue(ctx context.Context, m queue.Message) error { //nolint:gocritic // hugeParam: Message is passed by value for channel semantics
	for {
		err := c.q.Enqueue(ctx, m)
		if !errors.Is(err, queue.ErrFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(enqueueBackoff):
		}
	}
}

// Close shuts the reader down.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
