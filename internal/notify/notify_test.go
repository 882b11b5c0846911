package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp-solwed/formaciones/internal/apierr"
	"github.com/erp-solwed/formaciones/internal/models"
	"github.com/erp-solwed/formaciones/pkg/queue"
)

type mockSender struct{ mock.Mock }

func (m *mockSender) DeliverConfirmation(ctx context.Context, msg models.ConfirmationEmail) error {
	return m.Called(msg).Error(0)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) Record(ctx context.Context, el *models.EmailLog) error {
	return m.Called(el).Error(0)
}

type fixedMeeting struct{ start time.Time }

func (f fixedMeeting) NextMeetingStart(context.Context) (time.Time, bool) {
	return f.start, !f.start.IsZero()
}

func confirmation() models.ConfirmationEmail {
	return models.ConfirmationEmail{
		RegistrantID: "reg-1",
		Nombre:       "Ana García",
		Email:        "ana@example.com",
		JoinURL:      "https://zoom.us/w/1",
	}
}

func TestDelivery_RecordsSent(t *testing.T) {
	start := time.Date(2026, 11, 18, 17, 0, 0, 0, time.UTC)
	sender := &mockSender{}
	sender.On("DeliverConfirmation", mock.MatchedBy(func(m models.ConfirmationEmail) bool {
		return m.MeetingStart.Equal(start)
	})).Return(nil).Once()
	recorder := &mockRecorder{}
	recorder.On("Record", mock.MatchedBy(func(el *models.EmailLog) bool {
		return el.Status == models.EmailLogStatusSent && el.SentAt != nil &&
			el.RecipientEmail == "ana@example.com" && el.RegistrantID == "reg-1" &&
			el.EmailType == models.EmailTypeRegistrationConfirmation
	})).Return(nil).Once()

	d := NewDelivery(sender, recorder, fixedMeeting{start: start}, time.Second, nil)
	require.NoError(t, d.Deliver(context.Background(), confirmation()))

	sender.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestDelivery_KeepsKnownMeetingStart(t *testing.T) {
	known := time.Date(2026, 12, 16, 17, 0, 0, 0, time.UTC)
	sender := &mockSender{}
	sender.On("DeliverConfirmation", mock.MatchedBy(func(m models.ConfirmationEmail) bool {
		return m.MeetingStart.Equal(known)
	})).Return(nil).Once()

	msg := confirmation()
	msg.MeetingStart = known
	d := NewDelivery(sender, nil, fixedMeeting{start: known.AddDate(0, 1, 0)}, time.Second, nil)
	require.NoError(t, d.Deliver(context.Background(), msg))
	sender.AssertExpectations(t)
}

func TestDelivery_RecordsFailure(t *testing.T) {
	sendErr := &apierr.RemoteAPIError{Provider: "Brevo", StatusCode: 429, Message: "rate limited"}
	sender := &mockSender{}
	sender.On("DeliverConfirmation", mock.Anything).Return(sendErr)
	recorder := &mockRecorder{}
	recorder.On("Record", mock.MatchedBy(func(el *models.EmailLog) bool {
		return el.Status == models.EmailLogStatusFailed && el.SentAt == nil && el.ErrorMessage == sendErr.Error()
	})).Return(errors.New("db down"))

	d := NewDelivery(sender, recorder, nil, time.Second, nil)
	err := d.Deliver(context.Background(), confirmation())

	assert.ErrorIs(t, err, sendErr, "record failures do not mask the send error")
	recorder.AssertExpectations(t)
}

func TestDelivery_SurvivesCanceledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	d := NewDelivery(&ctxSender{err: &seen}, nil, nil, time.Second, nil)
	require.NoError(t, d.Deliver(ctx, confirmation()))
	assert.NoError(t, seen)
}

// ctxSender captures the context error seen at send time.
type ctxSender struct{ err *error }

func (s *ctxSender) DeliverConfirmation(ctx context.Context, _ models.ConfirmationEmail) error {
	*s.err = ctx.Err()
	return nil
}

// countingDeliverer records delivered emails.
type countingDeliverer struct {
	mu      sync.Mutex
	emails  []string
	release chan struct{}
}

func (c *countingDeliverer) Deliver(ctx context.Context, msg models.ConfirmationEmail) error {
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append(c.emails, msg.Email)
	return nil
}

func (c *countingDeliverer) delivered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.emails...)
}

func TestPool_StopDrainsQueued(t *testing.T) {
	d := &countingDeliverer{}
	pool := NewPool(d, 2, 10, nil)
	pool.Start(context.Background())

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, pool.Dispatch(context.Background(), models.ConfirmationEmail{Email: email}))
	}

	require.NoError(t, pool.Stop(context.Background()))
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, d.delivered())
	assert.ErrorIs(t, pool.Dispatch(context.Background(), confirmation()), ErrStopped)
}

func TestPool_FullBufferDrops(t *testing.T) {
	pool := NewPool(&countingDeliverer{}, 1, 1, nil)

	require.NoError(t, pool.Dispatch(context.Background(), confirmation()))
	assert.ErrorIs(t, pool.Dispatch(context.Background(), confirmation()), ErrQueueFull)
}

func TestPool_StopHonorsDeadline(t *testing.T) {
	d := &countingDeliverer{release: make(chan struct{})}
	pool := NewPool(d, 1, 1, nil)
	pool.Start(context.Background())
	require.NoError(t, pool.Dispatch(context.Background(), confirmation()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)

	close(d.release)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Len(t, d.delivered(), 1)
}

type fakeEnqueuer struct {
	msgs []models.ConfirmationEmail
	err  error
}

func (f *fakeEnqueuer) EnqueueConfirmation(ctx context.Context, msg models.ConfirmationEmail) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &queue.Job{ID: "job-1", Type: queue.JobTypeConfirmationEmail}, nil
}

func TestQueueDispatcher(t *testing.T) {
	q := &fakeEnqueuer{}
	require.NoError(t, NewQueueDispatcher(q, nil).Dispatch(context.Background(), confirmation()))
	require.Len(t, q.msgs, 1)
	assert.Equal(t, "ana@example.com", q.msgs[0].Email)

	failing := &fakeEnqueuer{err: errors.New("redis down")}
	err := NewQueueDispatcher(failing, nil).Dispatch(context.Background(), confirmation())
	assert.ErrorContains(t, err, "enqueue confirmation: redis down")
}
