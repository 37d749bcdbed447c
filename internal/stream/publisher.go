package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Publisher ships envelopes to a downstream topic
type Publisher interface {
	Publish(ctx context.Context, envelopes ...Envelope) error
	Close() error
}

// KafkaConfig configures the Kafka publisher
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultKafkaConfig returns the sentirun.signals topic with small batches
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Topic:        "sentirun.signals",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// Enabled reports whether brokers are configured
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// MessageWriter is the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes envelopes keyed by symbol
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher backed by a kafka-go writer
func NewKafkaPublisher(config KafkaConfig) (*KafkaPublisher, error) {
	if !config.Enabled() {
		return nil, fmt.Errorf("kafka brokers and topic must be specified")
	}
	d := DefaultKafkaConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = d.BatchTimeout
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Zstd,
	}
	return NewKafkaPublisherWithWriter(writer, config.WriteTimeout), nil
}

// NewKafkaPublisherWithWriter wraps an existing writer
func NewKafkaPublisherWithWriter(writer MessageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = DefaultKafkaConfig().WriteTimeout
	}
	return &KafkaPublisher{writer: writer, timeout: timeout}
}

// Publish implements Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, envelopes ...Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(envelopes))
	for i := range envelopes {
		if err := Validate(&envelopes[i]); err != nil {
			return fmt.Errorf("invalid envelope %s: %w", envelopes[i].MessageID, err)
		}
		value, err := json.Marshal(envelopes[i])
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(envelopes[i].Symbol),
			Value: value,
			Time:  envelopes[i].Timestamp,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(envelopes[i].Kind)},
				{Key: "version", Value: []byte(fmt.Sprint(envelopes[i].Version))},
			},
		})
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to kafka: %w", len(msgs), err)
	}
	log.Debug().Int("messages", len(msgs)).Msg("Published to kafka")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MemoryPublisher records envelopes in memory
type MemoryPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
	closed    bool
}

// NewMemoryPublisher creates an empty in-memory publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish implements Publisher
func (p *MemoryPublisher) Publish(ctx context.Context, envelopes ...Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher closed")
	}
	for i := range envelopes {
		if err := Validate(&envelopes[i]); err != nil {
			return err
		}
	}
	p.envelopes = append(p.envelopes, envelopes...)
	return nil
}

// Envelopes returns a copy of everything published
func (p *MemoryPublisher) Envelopes() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}

// Close implements Publisher
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
