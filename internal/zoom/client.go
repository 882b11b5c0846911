// Package zoom registers training attendees against a recurring Zoom meeting
// using Server-to-Server OAuth.
package zoom

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/apierr"
	"github.com/erp-solwed/formaciones/internal/metrics"
	"github.com/erp-solwed/formaciones/internal/models"
)

const (
	provider = "Zoom"

	DefaultAPIURL   = "https://api.zoom.us/v2"
	DefaultOAuthURL = "https://zoom.us/oauth/token"

	// Tokens are issued for an hour; keep them five minutes less to absorb clock skew.
	tokenLifetime = 55 * time.Minute
	tokenSkew     = 5 * time.Minute

	maxErrorBody = 4 << 10
)

// Config holds the Server-to-Server OAuth app credentials and the target meeting.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	MeetingID    string
	APIURL       string
	OAuthURL     string
}

// RegistrantResult is the subset of the registrant creation response we use.
type RegistrantResult struct {
	RegistrantID string `json:"registrant_id"`
	Topic        string `json:"topic"`
	StartTime    string `json:"start_time"`
	JoinURL      string `json:"join_url"`
}

// Start parses StartTime. Zero when absent or unparsable.
func (r *RegistrantResult) Start() time.Time {
	t, err := time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Occurrence is one instance of a recurring meeting.
type Occurrence struct {
	OccurrenceID string `json:"occurrence_id"`
	StartTime    string `json:"start_time"`
	Duration     int    `json:"duration"`
	Status       string `json:"status"`
}

// Meeting is the subset of GET /meetings/{id} we use.
type Meeting struct {
	ID          int64        `json:"id"`
	Topic       string       `json:"topic"`
	StartTime   string       `json:"start_time"`
	Duration    int          `json:"duration"`
	Timezone    string       `json:"timezone"`
	JoinURL     string       `json:"join_url"`
	Occurrences []Occurrence `json:"occurrences"`
}

// NextStart returns the first available occurrence starting after now,
// falling back to the meeting start time.
func (m *Meeting) NextStart(now time.Time) (time.Time, bool) {
	for _, o := range m.Occurrences {
		if o.Status != "" && o.Status != "available" {
			continue
		}
		t, err := time.Parse(time.RFC3339, o.StartTime)
		if err == nil && t.After(now) {
			return t, true
		}
	}
	t, err := time.Parse(time.RFC3339, m.StartTime)
	if err != nil || !t.After(now) {
		return time.Time{}, false
	}
	return t, true
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

type registrantRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Org       string `json:"org,omitempty"`
	Comments  string `json:"comments,omitempty"`
}

// Client talks to the Zoom REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *TokenCache
	logger *zap.Logger
}

// NewClient creates a Zoom client. tokens must be shared by every caller that uses the same credentials.
func NewClient(cfg Config, tokens *TokenCache, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tokens == nil {
		tokens = NewTokenCache(nil)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultOAuthURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{cfg: cfg, http: httpClient, tokens: tokens, logger: logger.Named("zoom")}
}

func (c *Client) checkCredentials() error {
	var missing []string
	if c.cfg.AccountID == "" {
		missing = append(missing, "ZOOM_ACCOUNT_ID")
	}
	if c.cfg.ClientID == "" {
		missing = append(missing, "ZOOM_CLIENT_ID")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "ZOOM_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return &apierr.ConfigurationError{Provider: provider, Missing: missing}
	}
	return nil
}

// AccessToken returns a cached token or performs an account_credentials exchange.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(); ok {
		return tok, nil
	}
	if err := c.checkCredentials(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", c.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("zoom: create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProviderCall(provider, "token", 0)
		return "", fmt.Errorf("zoom: token request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveProviderCall(provider, "token", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", remoteError(resp, "Error al obtener token de Zoom")
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("zoom: decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", &apierr.RemoteAPIError{Provider: provider, StatusCode: http.StatusBadGateway, Message: "Zoom no devolvió un token de acceso"}
	}

	ttl := tokenLifetime
	if body.ExpiresIn > 0 {
		if d := time.Duration(body.ExpiresIn)*time.Second - tokenSkew; d < ttl {
			ttl = d
		}
	}
	t := c.tokens.Store(body.AccessToken, ttl)
	c.logger.Debug("zoom access token refreshed", zap.Time("expires_at", t.ExpiresAt))
	return body.AccessToken, nil
}

// SplitName splits a full name into first name (first token) and last name (the rest).
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return full, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// RegisterRegistrant adds the person to the configured recurring meeting.
func (c *Client) RegisterRegistrant(ctx context.Context, r *models.RegistrationRequest) (*RegistrantResult, error) {
	if c.cfg.MeetingID == "" {
		return nil, &apierr.ConfigurationError{Provider: provider, Missing: []string{"ZOOM_MEETING_ID"}}
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	first, last := SplitName(r.Nombre)
	payload, err := json.Marshal(registrantRequest{
		Email:     r.Email,
		FirstName: first,
		LastName:  last,
		Phone:     r.Telefono,
		Org:       r.Empresa,
		Comments:  r.Mensaje,
	})
	if err != nil {
		return nil, fmt.Errorf("zoom: marshal registrant: %w", err)
	}

	endpoint := fmt.Sprintf("%s/meetings/%s/registrants", c.cfg.APIURL, url.PathEscape(c.cfg.MeetingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("zoom: create registrant request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProviderCall(provider, "register", 0)
		return nil, fmt.Errorf("zoom: register registrant: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveProviderCall(provider, "register", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(resp, "Error al registrar en Zoom meeting")
	}

	var result RegistrantResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("zoom: decode registrant response: %w", err)
	}
	c.logger.Info("zoom registrant created",
		zap.String("meeting_id", c.cfg.MeetingID),
		zap.String("registrant_id", result.RegistrantID),
	)
	return &result, nil
}

// MeetingInfo returns details of the configured meeting, or nil when unavailable.
// Failures are logged and never returned; callers only use it to enrich messages.
func (c *Client) MeetingInfo(ctx context.Context) *Meeting {
	if c.cfg.MeetingID == "" {
		return nil
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		c.logger.Warn("zoom meeting info: token", zap.Error(err))
		return nil
	}

	endpoint := fmt.Sprintf("%s/meetings/%s", c.cfg.APIURL, url.PathEscape(c.cfg.MeetingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("zoom meeting info: create request", zap.Error(err))
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProviderCall(provider, "meeting", 0)
		c.logger.Warn("zoom meeting info: request", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	metrics.ObserveProviderCall(provider, "meeting", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("zoom meeting info: unexpected status", zap.Error(remoteError(resp, "Error al obtener info del meeting")))
		return nil
	}
	var m Meeting
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		c.logger.Warn("zoom meeting info: decode", zap.Error(err))
		return nil
	}
	return &m
}

// NextMeetingStart implements the lookup used to date confirmation emails.
func (c *Client) NextMeetingStart(ctx context.Context) (time.Time, bool) {
	m := c.MeetingInfo(ctx)
	if m == nil {
		return time.Time{}, false
	}
	return m.NextStart(c.tokens.Now())
}

func remoteError(resp *http.Response, prefix string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Message != "":
			detail = body.Message
		case body.Reason != "":
			detail = body.Reason
		}
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &apierr.RemoteAPIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    prefix + ": " + detail,
	}
}
