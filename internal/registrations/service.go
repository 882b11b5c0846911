// Package registrations implements POST /api/formaciones: validate the form,
// sync the CRM contact and register the webinar seat concurrently, then
// hand the confirmation email off to the background dispatcher.
package registrations

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/metrics"
	"github.com/erp-solwed/formaciones/internal/models"
	"github.com/erp-solwed/formaciones/internal/notify"
	"github.com/erp-solwed/formaciones/internal/zoom"
	"github.com/erp-solwed/formaciones/pkg/fanout"
)

const successMessage = "¡Registro completado con éxito! Revisa tu email para más información."

// DefaultTimeout bounds each outbound provider call.
const DefaultTimeout = 15 * time.Second

var errNoRegistrant = errors.New("zoom: empty registrant response")

// CRM is implemented by *brevo.Client.
type CRM interface {
	UpsertContact(ctx context.Context, r *models.RegistrationRequest) (int64, error)
}

// Webinar is implemented by *zoom.Client.
type Webinar interface {
	RegisterRegistrant(ctx context.Context, r *models.RegistrationRequest) (*zoom.RegistrantResult, error)
}

// Service registers a validated signup with both providers.
type Service struct {
	crm        CRM
	webinar    Webinar
	dispatcher notify.Dispatcher
	timeout    time.Duration
	logger     *zap.Logger
}

// NewService creates a registration service. dispatcher may be nil to skip confirmations.
func NewService(crm CRM, webinar Webinar, dispatcher notify.Dispatcher, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{crm: crm, webinar: webinar, dispatcher: dispatcher, timeout: timeout, logger: logger}
}

// Register upserts the CRM contact and registers the webinar seat concurrently,
// waiting for both. Only the webinar result decides the outcome: a CRM failure
// is logged and leaves CRMContactID unset, a webinar failure is returned as is.
func (s *Service) Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationOutcome, error) {
	// A client hanging up must not abort provider calls already in flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	crmRes, webRes := fanout.Pair(ctx,
		func(ctx context.Context) (int64, error) { return s.crm.UpsertContact(ctx, req) },
		func(ctx context.Context) (*zoom.RegistrantResult, error) { return s.webinar.RegisterRegistrant(ctx, req) },
	)

	data := &models.RegistrationData{}
	if crmRes.Err != nil {
		metrics.Registrations.WithLabelValues("crm_failed").Inc()
		s.logger.Warn("crm contact sync failed", zap.String("email", req.Email), zap.Error(crmRes.Err))
	} else {
		id := crmRes.Value
		data.CRMContactID = &id
	}

	if webRes.Err == nil && webRes.Value == nil {
		webRes.Err = errNoRegistrant
	}
	if webRes.Err != nil {
		metrics.Registrations.WithLabelValues("failed").Inc()
		s.logger.Error("webinar registration failed", zap.String("email", req.Email), zap.Error(webRes.Err))
		return nil, webRes.Err
	}

	registrant := webRes.Value
	data.WebinarRegistrantID = registrant.RegistrantID
	data.WebinarJoinURL = registrant.JoinURL
	metrics.Registrations.WithLabelValues("success").Inc()
	s.logger.Info("registration completed",
		zap.String("email", req.Email),
		zap.String("registrant_id", registrant.RegistrantID),
		zap.Bool("crm_synced", data.CRMContactID != nil),
	)

	if registrant.JoinURL != "" {
		s.confirm(ctx, models.ConfirmationEmail{
			RegistrantID: registrant.RegistrantID,
			Nombre:       req.Nombre,
			Email:        req.Email,
			JoinURL:      registrant.JoinURL,
			MeetingStart: registrant.Start(),
		})
	}

	return &models.RegistrationOutcome{Success: true, Message: successMessage, Data: data}, nil
}

// confirm hands the email off without waiting. Errors are logged only.
func (s *Service) confirm(ctx context.Context, msg models.ConfirmationEmail) {
	if s.dispatcher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.logger.Warn("confirmation email not dispatched", zap.String("email", msg.Email), zap.Error(err))
		}
	}()
}
