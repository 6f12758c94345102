// Package events publishes finished session outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speakwell/internal/domain"
	"speakwell/internal/observability/logging"
	"speakwell/internal/observability/metrics"
)

const (
	DefaultExerciseTopic = "speakwell.exercise.result"
	DefaultPhysioTopic   = "speakwell.physio.session"

	eventTypeExercise = "exercise.result"
	eventTypePhysio   = "physio.session"
)

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends exercise and physio outcomes to separate Kafka topics.
type Publisher struct {
	exerciseWriter messageWriter
	physioWriter   messageWriter
	exerciseTopic  string
	physioTopic    string
	client         string
	enabled        bool
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	ExerciseTopic string
	PhysioTopic   string
	// Client is sent as a header so consumers can tell installations apart.
	Client  string
	Enabled bool
	Metrics *metrics.Metrics
}

// New creates a publisher. Without brokers, or when disabled, outcomes are only logged.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Publisher{
		exerciseTopic: firstNonEmpty(cfg.ExerciseTopic, DefaultExerciseTopic),
		physioTopic:   firstNonEmpty(cfg.PhysioTopic, DefaultPhysioTopic),
		client:        cfg.Client,
		metrics:       cfg.Metrics,
		log:           logging.WithComponent("events"),
	}
	if p.metrics == nil {
		p.metrics = metrics.DefaultMetrics
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.log.Info().Msg("kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	p.exerciseWriter = newWriter(cfg.Brokers, p.exerciseTopic, transport)
	p.physioWriter = newWriter(cfg.Brokers, p.physioTopic, transport)
	p.enabled = true

	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("exerciseTopic", p.exerciseTopic).
		Str("physioTopic", p.physioTopic).
		Msg("kafka publisher initialized")
	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishExerciseOutcome publishes a scored recording keyed by user.
func (p *Publisher) PublishExerciseOutcome(ctx context.Context, outcome domain.ExerciseOutcome) error {
	key := firstNonEmpty(outcome.UserID, outcome.AttemptID)
	return p.publish(ctx, p.exerciseWriter, p.exerciseTopic, eventTypeExercise, key, outcome)
}

// PublishPhysioOutcome publishes an ended streaming session keyed by user.
func (p *Publisher) PublishPhysioOutcome(ctx context.Context, outcome domain.PhysioOutcome) error {
	key := firstNonEmpty(outcome.UserID, outcome.SessionID)
	return p.publish(ctx, p.physioWriter, p.physioTopic, eventTypePhysio, key, outcome)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("failed to marshal outcome")
		return err
	}

	p.log.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("publishing outcome")

	if !p.enabled || writer == nil {
		p.metrics.RecordPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "client", Value: []byte(p.client)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("failed to write to kafka")
		p.metrics.RecordPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	if p.exerciseWriter != nil {
		if e := p.exerciseWriter.Close(); e != nil {
			p.log.Error().Err(e).Msg("error closing exercise writer")
			err = e
		}
	}
	if p.physioWriter != nil {
		if e := p.physioWriter.Close(); e != nil {
			p.log.Error().Err(e).Msg("error closing physio writer")
			err = e
		}
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
