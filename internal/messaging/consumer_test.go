package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"pathpatrol/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acks, nacks int
	requeued    bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acks++; return nil }

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}

func (f *fakeAck) Reject(uint64, bool) error { return nil }

type memoryDeduper map[string]bool

func (m memoryDeduper) FirstDelivery(_ context.Context, id string) (bool, error) {
	if m[id] {
		return false, nil
	}
	m[id] = true
	return true, nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, id string, msg StatusUpdateMessage) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, MessageId: id, Body: body}
}

func newTestConsumer(handler StatusHandler, d Deduper) *StatusConsumer {
	c := NewStatusConsumer(nil, handler, d)
	c.delay = time.Millisecond
	return c
}

func TestStatusMessageRoundTrip(t *testing.T) {
	change := model.StatusChange{
		ComplaintID: 9,
		Location:    "Main St",
		OldStatus:   model.StatusPending,
		NewStatus:   model.StatusResolved,
		NotifyEmail: "a@example.com",
		ChangedAt:   time.Unix(1700000000, 0),
	}

	assert.Equal(t, change.ChangedAt.Unix(), NewStatusUpdateMessage(change).StatusChange().ChangedAt.Unix())
	got := NewStatusUpdateMessage(change).StatusChange()
	assert.Equal(t, change.ComplaintID, got.ComplaintID)
	assert.Equal(t, change.NewStatus, got.NewStatus)
	assert.Equal(t, change.NotifyEmail, got.NotifyEmail)
}

func TestProcessAcksOnSuccess(t *testing.T) {
	var received model.StatusChange
	c := newTestConsumer(func(_ context.Context, ch model.StatusChange) error {
		received = ch
		return nil
	}, nil)
	ack := &fakeAck{}

	c.process(delivery(t, ack, "m1", StatusUpdateMessage{ComplaintID: 3, NewStatus: "resolved"}))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Equal(t, int64(3), received.ComplaintID)
}

func TestProcessRetriesThenDeadLetters(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, model.StatusChange) error {
		calls++
		return errors.New("smtp unavailable")
	}, nil)
	ack := &fakeAck{}

	c.process(delivery(t, ack, "m1", StatusUpdateMessage{ComplaintID: 3}))

	assert.Equal(t, maxRetryAttempts, calls)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeued)
}

func TestProcessRecoversOnLaterAttempt(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, model.StatusChange) error {
		calls++
		if calls < 2 {
			return errors.New("temporary")
		}
		return nil
	}, nil)
	ack := &fakeAck{}

	c.process(delivery(t, ack, "m1", StatusUpdateMessage{ComplaintID: 3}))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, ack.acks)
}

func TestProcessDoesNotRetryValidationErrors(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, model.StatusChange) error {
		calls++
		return fmt.Errorf("%w: bad address", model.ErrValidation)
	}, nil)
	ack := &fakeAck{}

	c.process(delivery(t, ack, "m1", StatusUpdateMessage{ComplaintID: 3}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, ack.nacks)
}

func TestProcessMalformedBodyGoesToDLQ(t *testing.T) {
	c := newTestConsumer(func(context.Context, model.StatusChange) error {
		t.Fatal("handler must not run")
		return nil
	}, nil)
	ack := &fakeAck{}

	c.process(amqp.Delivery{Acknowledger: ack, Body: []byte("{")})

	assert.Equal(t, 1, ack.nacks)
}

func TestProcessSkipsDuplicates(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, model.StatusChange) error {
		calls++
		return nil
	}, memoryDeduper{})
	ack := &fakeAck{}
	msg := StatusUpdateMessage{ComplaintID: 3}

	c.process(delivery(t, ack, "same", msg))
	c.process(delivery(t, ack, "same", msg))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, ack.acks)
}
