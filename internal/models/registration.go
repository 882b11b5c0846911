package models

import "time"

// RegistrationInput is the raw body of POST /api/formaciones.
type RegistrationInput struct {
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Empresa  string `json:"empresa,omitempty"`
	Mensaje  string `json:"mensaje,omitempty"`
}

// RegistrationRequest is a validated and normalized signup.
// Telefono is always in +34XXXXXXXXX form; Empresa and Mensaje are empty when absent.
type RegistrationRequest struct {
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Empresa  string `json:"empresa,omitempty"`
	Mensaje  string `json:"mensaje,omitempty"`
}

// RegistrationOutcome is the result of a registration attempt.
type RegistrationOutcome struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    *RegistrationData `json:"data,omitempty"`
}

// RegistrationData carries whichever provider ids are available.
// CRMContactID is nil when the CRM sync failed.
type RegistrationData struct {
	CRMContactID        *int64 `json:"crmContactId,omitempty"`
	WebinarRegistrantID string `json:"webinarRegistrantId,omitempty"`
	WebinarJoinURL      string `json:"webinarJoinUrl,omitempty"`
}

// ConfirmationEmail is the work item for the confirmation email sent after a webinar registration.
type ConfirmationEmail struct {
	RegistrantID string    `json:"registrant_id"`
	Nombre       string    `json:"nombre"`
	Email        string    `json:"email"`
	JoinURL      string    `json:"join_url"`
	MeetingStart time.Time `json:"meeting_start,omitempty"`
}
