package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestEnvelope_ChecksumAndValidate(t *testing.T) {
	at := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	e, err := NewEnvelope(KindAggregate, "AAPL", map[string]float64{"weighted_sentiment": 0.4}, at)
	require.NoError(t, err)

	assert.NotEmpty(t, e.MessageID)
	assert.Equal(t, EnvelopeVersion, e.Version)
	assert.JSONEq(t, `{"weighted_sentiment":0.4}`, string(e.Payload))
	require.NoError(t, Validate(&e))

	tampered := e
	tampered.Symbol = "MSFT"
	assert.ErrorContains(t, Validate(&tampered), "checksum mismatch")

	missing := e
	missing.Payload = nil
	assert.Error(t, Validate(&missing))

	_, err = NewEnvelope(KindAggregate, "AAPL", func() {}, at)
	assert.Error(t, err)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w, time.Second)

	e1, err := NewEnvelope(KindOpportunity, "AAPL", map[string]string{"signal_type": "reversal"}, time.Now())
	require.NoError(t, err)
	e2, err := NewEnvelope(KindOpportunity, "TSLA", map[string]string{"signal_type": "momentum"}, time.Now())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), e1, e2))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "AAPL", string(w.msgs[0].Key))
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)
	assert.Equal(t, KindOpportunity, string(w.msgs[0].Headers[0].Value))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, "TSLA", decoded.Symbol)
	assert.NoError(t, Validate(&decoded))

	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisherWithWriter(w, 0)

	e, err := NewEnvelope(KindBacktest, "", map[string]int{"total_trades": 3}, time.Now())
	require.NoError(t, err)
	assert.ErrorContains(t, p.Publish(context.Background(), e), "broker down")

	bad := e
	bad.Version = 0
	assert.ErrorContains(t, p.Publish(context.Background(), bad), "invalid envelope")

	_, err = NewKafkaPublisher(KafkaConfig{Topic: "x"})
	assert.Error(t, err)
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	e, err := NewEnvelope(KindAggregate, "NVDA", map[string]int{"posts": 4}, time.Now())
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), e))
	assert.Len(t, p.Envelopes(), 1)

	require.NoError(t, p.Close())
	assert.Error(t, p.Publish(context.Background(), e))
}
