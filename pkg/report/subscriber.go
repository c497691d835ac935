package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andrej220/devcheck/internal/lg"
	dm "github.com/andrej220/devcheck/pkg/shared-models"
	"github.com/segmentio/kafka-go"
)

// Event is one decoded run event. Exactly one of Failure and Summary is set.
type Event struct {
	Type    string
	Failure *dm.FailureEvent
	Summary *dm.SummaryEvent
}

type messageReader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Subscriber follows the run events of a topic, e.g. to watch unattended
// runs from another host.
type Subscriber struct {
	reader messageReader
	lg     lg.Logger
}

type SubscriberConfig struct {
	Config  `yaml:",inline"`
	GroupID string `yaml:"groupID" json:"groupID"`
}

func NewSubscriber(cfg SubscriberConfig, logger lg.Logger) (*Subscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("subscriber: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return &Subscriber{reader: r, lg: logger}, nil
}

// Next blocks for the next event. Every fetched message is committed;
// messages of unknown type or with an undecodable payload are skipped, so
// one bad message cannot stall the consumer group.
func (s *Subscriber) Next(ctx context.Context) (Event, error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return Event{}, err
		}
		ev, known, derr := decode(msg)
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			return Event{}, err
		}
		if derr != nil {
			s.logger().Warn("Run event skipped",
				lg.String("topic", msg.Topic), lg.Int("partition", msg.Partition),
				lg.Int64("offset", msg.Offset), lg.Err(derr))
			continue
		}
		if known {
			return ev, nil
		}
	}
}

func (s *Subscriber) logger() lg.Logger {
	if s.lg == nil {
		return lg.Discard
	}
	return s.lg
}

func decode(msg kafka.Message) (Event, bool, error) {
	ev := Event{Type: eventType(msg)}
	var target any
	switch ev.Type {
	case EventTypeFailure:
		ev.Failure = &dm.FailureEvent{}
		target = ev.Failure
	case EventTypeSummary:
		ev.Summary = &dm.SummaryEvent{}
		target = ev.Summary
	default:
		return Event{}, false, nil
	}
	if err := json.Unmarshal(msg.Value, target); err != nil {
		return Event{}, false, fmt.Errorf("decode %s event: %w", ev.Type, err)
	}
	return ev, true, nil
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "type" {
			return string(h.Value)
		}
	}
	return ""
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}
