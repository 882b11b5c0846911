// Package brevo keeps training registrants in sync with the Brevo CRM
// and sends their transactional confirmation email.
package brevo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/apierr"
	"github.com/erp-solwed/formaciones/internal/metrics"
	"github.com/erp-solwed/formaciones/internal/models"
)

const (
	provider = "Brevo"

	DefaultBaseURL = "https://api.brevo.com/v3"

	// Error code Brevo returns on POST /contacts when the email already exists.
	codeDuplicate = "duplicate_parameter"

	maxErrorBody = 4 << 10
)

// Config holds the Brevo API credentials and the target contact list.
type Config struct {
	APIKey      string
	ListID      string
	BaseURL     string
	SenderName  string
	SenderEmail string
}

type contactAttributes struct {
	Nombre  string `json:"NOMBRE"`
	SMS     string `json:"SMS"`
	Empresa string `json:"EMPRESA"`
}

type createContactRequest struct {
	Email         string            `json:"email"`
	Attributes    contactAttributes `json:"attributes"`
	ListIDs       []int64           `json:"listIds"`
	UpdateEnabled bool              `json:"updateEnabled"`
}

type updateContactRequest struct {
	Attributes contactAttributes `json:"attributes"`
	ListIDs    []int64           `json:"listIds"`
}

type contactResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the Brevo v3 REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a Brevo client.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, logger: logger.Named("brevo")}
}

func (c *Client) apiKey() (string, error) {
	if c.cfg.APIKey == "" {
		return "", &apierr.ConfigurationError{Provider: provider, Missing: []string{"BREVO_API_KEY"}}
	}
	return c.cfg.APIKey, nil
}

func (c *Client) listID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.cfg.ListID), 10, 64)
	if err != nil || id <= 0 {
		return 0, &apierr.ConfigurationError{Provider: provider, Missing: []string{"BREVO_LIST_ID"}}
	}
	return id, nil
}

func attributesOf(r *models.RegistrationRequest) contactAttributes {
	return contactAttributes{Nombre: r.Nombre, SMS: r.Telefono, Empresa: r.Empresa}
}

// UpsertContact creates the contact in the training list, or updates it when
// Brevo reports it already exists, and returns the contact id.
func (c *Client) UpsertContact(ctx context.Context, r *models.RegistrationRequest) (int64, error) {
	if _, err := c.apiKey(); err != nil {
		return 0, err
	}
	listID, err := c.listID()
	if err != nil {
		return 0, err
	}

	resp, err := c.do(ctx, "create_contact", http.MethodPost, "/contacts", createContactRequest{
		Email:         r.Email,
		Attributes:    attributesOf(r),
		ListIDs:       []int64{listID},
		UpdateEnabled: true,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		// updateEnabled matched an existing contact; Brevo answers without a body.
		return c.readContactID(ctx, r.Email)
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		var created contactResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return 0, fmt.Errorf("brevo: decode create contact response: %w", err)
		}
		c.logger.Info("brevo contact created", zap.Int64("contact_id", created.ID), zap.Int64("list_id", listID))
		return created.ID, nil
	}

	body := readError(resp)
	if resp.StatusCode == http.StatusBadRequest && body.Code == codeDuplicate {
		c.logger.Debug("brevo contact exists, updating")
		return c.updateContact(ctx, r, listID)
	}
	return 0, body.remote(resp.StatusCode, "Error de Brevo")
}

func (c *Client) updateContact(ctx context.Context, r *models.RegistrationRequest, listID int64) (int64, error) {
	resp, err := c.do(ctx, "update_contact", http.MethodPut, "/contacts/"+url.PathEscape(r.Email), updateContactRequest{
		Attributes: attributesOf(r),
		ListIDs:    []int64{listID},
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, readError(resp).remote(resp.StatusCode, "Error al actualizar contacto en Brevo")
	}
	// The update does not return the contact; read it back for its id.
	return c.readContactID(ctx, r.Email)
}

func (c *Client) readContactID(ctx context.Context, email string) (int64, error) {
	resp, err := c.do(ctx, "get_contact", http.MethodGet, "/contacts/"+url.PathEscape(email), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, readError(resp).remote(resp.StatusCode, "Error al obtener información del contacto actualizado")
	}
	var contact contactResponse
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return 0, fmt.Errorf("brevo: decode contact: %w", err)
	}
	c.logger.Info("brevo contact updated", zap.Int64("contact_id", contact.ID))
	return contact.ID, nil
}

// do sends a JSON request. body may be nil.
func (c *Client) do(ctx context.Context, operation, method, path string, body any) (*http.Response, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("brevo: marshal %s: %w", operation, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("brevo: create %s request: %w", operation, err)
	}
	req.Header.Set("api-key", key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProviderCall(provider, operation, 0)
		return nil, fmt.Errorf("brevo: %s: %w", operation, err)
	}
	metrics.ObserveProviderCall(provider, operation, resp.StatusCode)
	return resp, nil
}

func readError(resp *http.Response) errorResponse {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorResponse
	if json.Unmarshal(raw, &body) != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return body
}

func (e errorResponse) remote(status int, prefix string) *apierr.RemoteAPIError {
	return &apierr.RemoteAPIError{Provider: provider, StatusCode: status, Message: prefix + ": " + e.Message}
}
