package telemetry

import (
	"context"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestLogSinkEmitDoesNotPanic(t *testing.T) {
	s := NewLogSink()
	assert.NotPanics(t, func() {
		s.Emit(context.Background(), EventDecayed, map[string]float64{"decay_score": 0.05}, map[string]string{"id": "e1"})
	})
}

func TestNewKafkaSinkRejectsEmptyBrokers(t *testing.T) {
	_, err := NewKafkaSink("", "topic")
	assert.Error(t, err)
}

func TestKafkaSinkEmitPublishesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{writer: w, topic: "memory.events"}

	s.Emit(context.Background(), EventRouting, map[string]float64{"confidence": 0.8}, map[string]string{"intent": "factual"})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "memory.events", w.msgs[0].Topic)
	assert.Equal(t, []byte(EventRouting), w.msgs[0].Key)
}
