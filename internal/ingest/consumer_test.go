package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/config"
	"notifier/pkg/types"
)

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	fetchErr  error
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		if r.fetchErr != nil {
			return kafka.Message{}, r.fetchErr
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*types.Broadcast
	fail      func(b *types.Broadcast) error
}

func (p *fakePublisher) Publish(ctx context.Context, b *types.Broadcast) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		if err := p.fail(b); err != nil {
			return err
		}
	}
	if err := b.Validate(); err != nil {
		return err
	}
	p.published = append(p.published, b)
	return nil
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func TestConsumer_PublishesAndCommits(t *testing.T) {
	reader := &fakeReader{
		messages: []kafka.Message{
			message(1, `{"type":"student.registered","action":"created","entity":"student","entity_id":42}`),
			message(2, `not json`),
			message(3, `{"type":"x","groups":["bad group"]}`),
			message(4, `{"type":"notice","groups":["assembly"],"payload":{"message":"early dismissal"}}`),
		},
		fetchErr: errors.New("broker gone"),
	}
	publisher := &fakePublisher{}
	c := newConsumer(reader, publisher, nil)

	err := c.Run(context.Background())
	assert.EqualError(t, err, "broker gone")

	require.Len(t, publisher.published, 3)
	assert.Equal(t, "admins", publisher.published[0].Group)
	assert.Equal(t, "student:42", publisher.published[1].Group)
	assert.Equal(t, "early dismissal", publisher.published[2].Payload.Message())
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestConsumer_TransientFailureIsNotCommitted(t *testing.T) {
	reader := &fakeReader{
		messages: []kafka.Message{message(7, `{"type":"notice","groups":["admins"]}`)},
		fetchErr: errors.New("stop"),
	}
	publisher := &fakePublisher{fail: func(*types.Broadcast) error { return errors.New("hub not running") }}

	_ = newConsumer(reader, publisher, nil).Run(context.Background())
	assert.Empty(t, reader.committed)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	reader := &fakeReader{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newConsumer(reader, &fakePublisher{}, nil).Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{Topic: "school.events"}, &fakePublisher{}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewProducer(config.KafkaConfig{Topic: "school.events"})
	assert.ErrorIs(t, err, ErrNoBrokers)
}

type fakeWriter struct {
	written []kafka.Message
	closed  bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_Emit(t *testing.T) {
	writer := &fakeWriter{}
	p := &Producer{writer: writer}

	require.NoError(t, p.Emit(context.Background(), Event{Type: "teacher.updated", Action: ActionUpdated, Entity: "teacher", EntityID: 5}))
	require.Len(t, writer.written, 1)
	assert.Equal(t, "teacher:5", string(writer.written[0].Key))

	evt, err := DecodeEvent(writer.written[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "teacher.updated", evt.Type)

	err = p.Emit(context.Background(), Event{Action: "archived"})
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Len(t, writer.written, 1)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}
