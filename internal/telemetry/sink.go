// Package telemetry implements the engine's event sink: every background
// component (C5, C6, C13, C14, C15) and the router (C10) emit named events
// with measurements and metadata, per spec.md §6's event list. The wire
// format and Kafka transport are grounded on the teacher's
// internal/tools/kafka producer (itself backing the orchestrator's command
// bus); a logging sink covers local/dev use where no broker is configured.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Event names per spec.md §6.
const (
	EventAccessTracked                = "memory.access_tracked"
	EventConsolidationStarted         = "memory.consolidation.started"
	EventConsolidationCompleted       = "memory.consolidation.completed"
	EventDecayed                      = "memory.decayed"
	EventForgettingStarted            = "memory.forgetting.started"
	EventForgettingCompleted          = "memory.forgetting.completed"
	EventHybridSearchStarted          = "memory.hybrid_search.started"
	EventHybridSearchCompleted        = "memory.hybrid_search.completed"
	EventRouting                      = "memory.routing"
	EventWorkingMemoryStored          = "working_memory.stored"
	EventWorkingMemoryRetrieved       = "working_memory.retrieved"
	EventWorkingMemoryEvicted         = "working_memory.evicted"
	EventWorkingMemoryExpired         = "working_memory.expired"
	EventSynthesisStarted             = "brain.synthesis.started"
	EventSynthesisCompleted           = "brain.synthesis.completed"
	EventInteractionConsolidation     = "brain.interaction_consolidation.started"
	EventInteractionConsolidationDone = "brain.interaction_consolidation.completed"
)

// Sink is the engine-wide event emission contract: (event_name,
// measurements, metadata).
type Sink interface {
	Emit(ctx context.Context, event string, measurements map[string]float64, metadata map[string]string)
}

// Envelope is the wire format published by KafkaSink.
type Envelope struct {
	Event        string             `json:"event"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
	EmittedAt    time.Time          `json:"emitted_at"`
}

// LogSink emits events as structured log lines; used for local/dev runs or
// as the default when no broker is configured.
type LogSink struct{}

// NewLogSink constructs a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) Emit(ctx context.Context, event string, measurements map[string]float64, metadata map[string]string) {
	evt := log.Info().Str("event", event)
	for k, v := range measurements {
		evt = evt.Float64(k, v)
	}
	for k, v := range metadata {
		evt = evt.Str(k, v)
	}
	evt.Msg("telemetry_event")
}

// kafkaWriter is the subset of *kafka.Writer KafkaSink depends on, grounded
// on the teacher's tools/kafka.Writer interface.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// KafkaSink publishes JSON-encoded envelopes to a single topic.
type KafkaSink struct {
	writer kafkaWriter
	topic  string
}

// NewKafkaSink constructs a KafkaSink from a comma-separated broker list,
// grounded on the teacher's tools/kafka.NewProducerFromBrokers.
func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	brokers = strings.TrimSpace(brokers)
	if brokers == "" {
		return nil, fmt.Errorf("telemetry: kafka brokers cannot be empty")
	}
	brokerList := strings.Split(brokers, ",")
	for i, b := range brokerList {
		brokerList[i] = strings.TrimSpace(b)
	}
	w := &kafkago.Writer{
		Addr:     kafkago.TCP(brokerList...),
		Balancer: &kafkago.LeastBytes{},
	}
	return &KafkaSink{writer: w, topic: topic}, nil
}

func (k *KafkaSink) Emit(ctx context.Context, event string, measurements map[string]float64, metadata map[string]string) {
	env := Envelope{Event: event, Measurements: measurements, Metadata: metadata, EmittedAt: time.Now()}
	payload, err := json.Marshal(env)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("telemetry_encode_failed")
		return
	}
	if err := k.writer.WriteMessages(ctx, kafkago.Message{Topic: k.topic, Key: []byte(event), Value: payload}); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("telemetry_publish_failed")
	}
}

// Close releases the underlying Kafka writer, if the concrete type supports it.
func (k *KafkaSink) Close() error {
	if closer, ok := k.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
