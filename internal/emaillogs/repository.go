package emaillogs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/erp-solwed/formaciones/internal/models"
)

// DB is the part of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository handles email_logs persistence.
type Repository struct {
	db  DB
	now func() time.Time
}

// NewRepository creates an email logs repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Record inserts one email attempt. ID and CreatedAt are filled in when zero.
func (r *Repository) Record(ctx context.Context, el *models.EmailLog) error {
	if el.ID == uuid.Nil {
		el.ID = uuid.New()
	}
	if el.CreatedAt.IsZero() {
		el.CreatedAt = r.now().UTC()
	}
	const q = `INSERT INTO email_logs (id, registrant_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, q,
		el.ID, nullable(el.RegistrantID), el.EmailType, el.RecipientEmail, nullable(el.Subject),
		el.Status, el.SentAt, nullable(el.ErrorMessage), el.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
