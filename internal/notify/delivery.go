// Package notify sends registration confirmation emails off the request path.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/brevo"
	"github.com/erp-solwed/formaciones/internal/metrics"
	"github.com/erp-solwed/formaciones/internal/models"
)

// Sender delivers one confirmation email.
type Sender interface {
	DeliverConfirmation(ctx context.Context, msg models.ConfirmationEmail) error
}

// Recorder persists the outcome of a delivery attempt.
type Recorder interface {
	Record(ctx context.Context, el *models.EmailLog) error
}

// MeetingLookup resolves the next session start when the registrant result had none.
type MeetingLookup interface {
	NextMeetingStart(ctx context.Context) (time.Time, bool)
}

// NopRecorder discards email logs. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.EmailLog) error { return nil }

// Delivery sends a confirmation and records what happened. Failures are
// returned to the caller but never retried.
type Delivery struct {
	sender   Sender
	recorder Recorder
	meetings MeetingLookup
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDelivery creates a Delivery. recorder and meetings may be nil.
func NewDelivery(sender Sender, recorder Recorder, meetings MeetingLookup, timeout time.Duration, logger *zap.Logger) *Delivery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Delivery{
		sender:   sender,
		recorder: recorder,
		meetings: meetings,
		timeout:  timeout,
		logger:   logger.Named("notify"),
		now:      time.Now,
	}
}

// Deliver sends msg, then logs, counts and records the outcome.
func (d *Delivery) Deliver(ctx context.Context, msg models.ConfirmationEmail) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if msg.MeetingStart.IsZero() && d.meetings != nil {
		if start, ok := d.meetings.NextMeetingStart(ctx); ok {
			msg.MeetingStart = start
		}
	}

	err := d.sender.DeliverConfirmation(ctx, msg)

	el := &models.EmailLog{
		RegistrantID:   msg.RegistrantID,
		EmailType:      models.EmailTypeRegistrationConfirmation,
		RecipientEmail: msg.Email,
		Subject:        brevo.ConfirmationSubject,
	}
	if err != nil {
		el.Status = models.EmailLogStatusFailed
		el.ErrorMessage = err.Error()
		metrics.Notifications.WithLabelValues(models.EmailLogStatusFailed).Inc()
		d.logger.Error("confirmation email failed",
			zap.String("email", msg.Email), zap.String("registrant_id", msg.RegistrantID), zap.Error(err))
	} else {
		sentAt := d.now().UTC()
		el.Status = models.EmailLogStatusSent
		el.SentAt = &sentAt
		metrics.Notifications.WithLabelValues(models.EmailLogStatusSent).Inc()
		d.logger.Info("confirmation email sent",
			zap.String("email", msg.Email), zap.String("registrant_id", msg.RegistrantID))
	}

	if rerr := d.recorder.Record(ctx, el); rerr != nil {
		d.logger.Warn("record email log failed", zap.Error(rerr))
	}
	return err
}
