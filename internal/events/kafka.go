package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrPublisherClosed is reported when publishing after Close.
var ErrPublisherClosed = errors.New("events: publisher closed")

// KafkaPublisher buffers events and writes them from a single goroutine so
// publishing never blocks a request on the broker.
type KafkaPublisher struct {
	w       MessageWriter
	inbox   chan kafka.Message
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	started bool
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafkaWriter creates a writer for topic that partitions by message key.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher creates a publisher that writes through w with an inbox of buf messages.
func NewKafkaPublisher(w MessageWriter, buf int, logger zerolog.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 256
	}
	return &KafkaPublisher{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		done:    make(chan struct{}),
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

// Start runs the write loop until Close is called.
func (p *KafkaPublisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	go func() {
		defer close(p.done)
		for m := range p.inbox {
			p.write(m)
		}
		if err := p.w.Close(); err != nil {
			p.logger.Error().Err(err).Msg("failed to close kafka writer")
		}
	}()
}

func (p *KafkaPublisher) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.logger.Error().
			Err(err).
			Str("key", string(m.Key)).
			Msg("failed to write event to kafka")
	}
}

// Publish enqueues the event. When the inbox is full the event is dropped and logged.
func (p *KafkaPublisher) Publish(_ context.Context, e Envelope) {
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", e.EventType).Msg("failed to encode event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn().Err(ErrPublisherClosed).Str("event_type", e.EventType).Msg("event dropped")
		return
	}

	select {
	case p.inbox <- msg:
	default:
		p.logger.Warn().Str("event_type", e.EventType).Msg("event buffer full, event dropped")
	}
}

// Close stops accepting events, flushes the inbox and waits for the writer to close.
func (p *KafkaPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.inbox)
	started := p.started
	p.mu.Unlock()

	if !started {
		for m := range p.inbox {
			p.write(m)
		}
		_ = p.w.Close()
		close(p.done)
		return
	}
	<-p.done
}
