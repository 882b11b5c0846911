package brevo

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/aymerick/raymond"
	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/models"
)

const (
	brand    = "ERP SOLWED"
	siteURL  = "https://erpsolwed.es"
	siteHost = "erpsolwed.es"

	// ConfirmationSubject is the subject line of the registration confirmation.
	ConfirmationSubject = "✅ Confirmación de registro - Formación ERP SOLWED"

	DefaultSenderName  = "ERP SOLWED Formaciones"
	DefaultSenderEmail = "solwed.es@gmail.com"
)

//go:embed templates/confirmation.hbs
var confirmationSource string

var confirmationTemplate = raymond.MustParse(confirmationSource)

var (
	weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	months   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// Madrid is where the trainings are scheduled; fall back to UTC without tzdata.
var madrid = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		return time.UTC
	}
	return loc
}()

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendEmailRequest struct {
	Sender      emailAddress   `json:"sender"`
	To          []emailAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// FormatMeetingDate renders a start time in Spanish, e.g. "miércoles, 18 de noviembre de 2026, 18:00".
func FormatMeetingDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = madrid
	}
	t = t.In(loc)
	return fmt.Sprintf("%s, %d de %s de %d, %s",
		weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Year(), t.Format("15:04"))
}

// RenderConfirmation renders the HTML body of the confirmation email.
func RenderConfirmation(msg models.ConfirmationEmail) (string, error) {
	ctx := map[string]any{
		"brand":    brand,
		"nombre":   msg.Nombre,
		"joinUrl":  msg.JoinURL,
		"siteUrl":  siteURL,
		"siteHost": siteHost,
	}
	if !msg.MeetingStart.IsZero() {
		ctx["meetingDate"] = FormatMeetingDate(msg.MeetingStart, nil)
	}
	html, err := confirmationTemplate.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return html, nil
}

// DeliverConfirmation renders and sends the confirmation email, returning any failure.
func (c *Client) DeliverConfirmation(ctx context.Context, msg models.ConfirmationEmail) error {
	html, err := RenderConfirmation(msg)
	if err != nil {
		return err
	}

	sender := emailAddress{Name: c.cfg.SenderName, Email: c.cfg.SenderEmail}
	if sender.Name == "" {
		sender.Name = DefaultSenderName
	}
	if sender.Email == "" {
		sender.Email = DefaultSenderEmail
	}

	resp, err := c.do(ctx, "send_email", http.MethodPost, "/smtp/email", sendEmailRequest{
		Sender:      sender,
		To:          []emailAddress{{Email: msg.Email, Name: msg.Nombre}},
		Subject:     ConfirmationSubject,
		HTMLContent: html,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp).remote(resp.StatusCode, "Error al enviar email de confirmación")
	}
	return nil
}

// SendConfirmationEmail sends the confirmation email and reports whether it was accepted.
// It never fails the caller: a lost confirmation must not undo a registration.
func (c *Client) SendConfirmationEmail(ctx context.Context, r *models.RegistrationRequest, joinURL string) bool {
	err := c.DeliverConfirmation(ctx, models.ConfirmationEmail{
		Nombre:  r.Nombre,
		Email:   r.Email,
		JoinURL: joinURL,
	})
	if err != nil {
		c.logger.Error("send confirmation email failed", zap.String("email", r.Email), zap.Error(err))
		return false
	}
	return true
}
