package report

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/andrej220/devcheck/internal/lg"
	dm "github.com/andrej220/devcheck/pkg/shared-models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback hands published messages back to a subscriber.
type loopback struct {
	mockWriter
	next      int
	committed int
}

func (l *loopback) FetchMessage(context.Context) (kafka.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.next >= len(l.messages) {
		return kafka.Message{}, io.EOF
	}
	msg := l.messages[l.next]
	l.next++
	return msg, nil
}

func (l *loopback) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.committed += len(msgs)
	return nil
}

func TestSubscriberReadsPublishedEvents(t *testing.T) {
	bus := &loopback{}
	pub := newKafka(bus, DefaultTopic, testResilience(), lg.Discard)
	runID := uuid.New()
	ctx := context.Background()

	require.NoError(t, pub.PublishFailure(ctx, dm.FailureEvent{RunID: runID, Host: "host2", Reason: "refused the connection request!"}))
	bus.messages = append(bus.messages, kafka.Message{Value: []byte("{}"), Headers: []kafka.Header{{Key: "type", Value: []byte("other")}}})
	require.NoError(t, pub.PublishSummary(ctx, dm.SummaryEvent{RunID: runID, Devices: 2, Failures: 1}))

	sub := &Subscriber{reader: bus}
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventTypeFailure, ev.Type)
	require.NotNil(t, ev.Failure)
	assert.Equal(t, "host2", ev.Failure.Host)
	assert.Nil(t, ev.Summary)

	ev, err = sub.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, runID, ev.Summary.RunID)
	assert.Equal(t, 1, ev.Summary.Failures)
	assert.Equal(t, 3, bus.committed)

	_, err = sub.Next(ctx)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSubscriberSkipsBadPayload(t *testing.T) {
	bus := &loopback{}
	bus.messages = []kafka.Message{{Value: []byte("not json"), Headers: []kafka.Header{{Key: "type", Value: []byte(EventTypeSummary)}}}}
	pub := newKafka(bus, DefaultTopic, testResilience(), lg.Discard)
	require.NoError(t, pub.PublishSummary(context.Background(), dm.SummaryEvent{RunID: uuid.New(), Devices: 3}))

	ev, err := (&Subscriber{reader: bus, lg: lg.Discard}).Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, 3, ev.Summary.Devices)
	// the bad message was committed as well, a restart does not fetch it again
	assert.Equal(t, 2, bus.committed)
}

func TestNewSubscriberNeedsBrokers(t *testing.T) {
	_, err := NewSubscriber(SubscriberConfig{}, lg.Discard)
	assert.Error(t, err)
}
