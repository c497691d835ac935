// Package report publishes run events to an external broker so the
// outcome of an unattended run can be picked up elsewhere.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/devcheck/internal/lg"
	dm "github.com/andrej220/devcheck/pkg/shared-models"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

const (
	DefaultTopic      = "devcheck-runs"
	EventTypeFailure  = "failure"
	EventTypeSummary  = "summary"
	defaultMaxElapsed = 10 * time.Second
)

type Config struct {
	Brokers []string `yaml:"brokers,omitempty" json:"brokers,omitempty" bson:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty" json:"topic,omitempty" bson:"topic,omitempty"`
}

// Publisher receives run events. Implementations must be safe for
// concurrent use, failures are published from many tasks.
type Publisher interface {
	PublishFailure(ctx context.Context, ev dm.FailureEvent) error
	PublishSummary(ctx context.Context, ev dm.SummaryEvent) error
	Close() error
}

// New returns a Kafka publisher, or Noop when no brokers are configured.
func New(cfg Config, logger lg.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		Async:                  false,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	logger.Info("Report publisher configured", lg.Any("brokers", cfg.Brokers), lg.String("topic", cfg.Topic))
	return newKafka(w, cfg.Topic, DefaultResilience(defaultMaxElapsed), logger)
}

type Noop struct{}

func (Noop) PublishFailure(context.Context, dm.FailureEvent) error { return nil }
func (Noop) PublishSummary(context.Context, dm.SummaryEvent) error { return nil }
func (Noop) Close() error                                          { return nil }

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer messageWriter
	topic  string
	res    *ResilienceConfig
	lg     lg.Logger
}

func newKafka(w messageWriter, topic string, res *ResilienceConfig, logger lg.Logger) *Kafka {
	return &Kafka{writer: w, topic: topic, res: res, lg: logger}
}

func (k *Kafka) PublishFailure(ctx context.Context, ev dm.FailureEvent) error {
	return k.publish(ctx, EventTypeFailure, ev.RunID[:], ev)
}

func (k *Kafka) PublishSummary(ctx context.Context, ev dm.SummaryEvent) error {
	return k.publish(ctx, EventTypeSummary, ev.RunID[:], ev)
}

func (k *Kafka) publish(ctx context.Context, eventType string, key []byte, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "type", Value: []byte(eventType)}},
	}

	operation := func() error {
		_, err := k.res.CircuitBreaker.Execute(func() (any, error) {
			return nil, k.writer.WriteMessages(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(k.res.newBackOff(), ctx)); err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			k.lg.Error("Kafka topic does not exist",
				lg.String("topic", k.topic),
				lg.String("action", "Create the topic manually or enable auto-creation"))
		}
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
