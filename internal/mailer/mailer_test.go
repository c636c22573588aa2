package mailer

import (
	"context"
	"errors"
	"testing"

	"pathpatrol/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	to, subject, body string
	err               error
	calls             int
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	r.calls++
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func TestStatusChangeEmail(t *testing.T) {
	subject, body, err := StatusChangeEmail(model.StatusChange{
		ComplaintID: 12,
		Location:    "Main St <north>",
		OldStatus:   model.StatusPending,
		NewStatus:   model.StatusInProgress,
	})

	require.NoError(t, err)
	assert.Equal(t, "PathPatrol: Complaint #12 - Status Updated to In Progress", subject)
	assert.Contains(t, body, "<strong>Pending</strong>")
	assert.Contains(t, body, "<strong>In Progress</strong>")
	assert.Contains(t, body, "Main St &lt;north&gt;")
}

func TestNotifierSendsWhenAddressGiven(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender)

	err := n.NotifyStatusChange(context.Background(), model.StatusChange{
		ComplaintID: 1, OldStatus: model.StatusPending, NewStatus: model.StatusResolved, NotifyEmail: "a@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "a@example.com", sender.to)
	assert.Contains(t, sender.subject, "Resolved")
}

func TestNotifierSkipsWithoutAddress(t *testing.T) {
	sender := &recordingSender{}

	err := NewNotifier(sender).NotifyStatusChange(context.Background(), model.StatusChange{ComplaintID: 1})

	require.NoError(t, err)
	assert.Zero(t, sender.calls)
}

func TestNotifierPropagatesSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}

	err := NewNotifier(sender).NotifyStatusChange(context.Background(), model.StatusChange{ComplaintID: 1, NotifyEmail: "a@example.com"})

	assert.Error(t, err)
}

func TestSMTPSenderDisabledWithoutPassword(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Server: "smtp.example.com", Port: 587, From: "noreply@example.com"})

	assert.False(t, s.Enabled())
	err := s.Send(context.Background(), "a@example.com", "s", "b")
	assert.True(t, errors.Is(err, model.ErrExternalService))
}
