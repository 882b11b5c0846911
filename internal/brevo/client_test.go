package brevo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-solwed/formaciones/internal/apierr"
	"github.com/erp-solwed/formaciones/internal/models"
)

type recordedCall struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]any
}

// fakeBrevo serves scripted responses keyed by "METHOD path" and records every call.
type fakeBrevo struct {
	*httptest.Server

	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]func(w http.ResponseWriter)
}

func newFakeBrevo(t *testing.T) *fakeBrevo {
	t.Helper()
	f := &fakeBrevo{responses: map[string]func(w http.ResponseWriter){}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{Method: r.Method, Path: r.URL.EscapedPath(), APIKey: r.Header.Get("api-key"), Body: body})
		respond, ok := f.responses[r.Method+" "+r.URL.EscapedPath()]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"document_not_found","message":"not scripted"}`))
			return
		}
		respond(w)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeBrevo) on(key string, status int, body string) {
	f.responses[key] = func(w http.ResponseWriter) {
		w.WriteHeader(status)
		if body != "" {
			_, _ = w.Write([]byte(body))
		}
	}
}

func (f *fakeBrevo) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeBrevo) client(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = f.URL
	}
	return NewClient(cfg, f.Client(), nil)
}

func validConfig() Config {
	return Config{APIKey: "xkeysib-test", ListID: "7"}
}

func registrant() *models.RegistrationRequest {
	return &models.RegistrationRequest{
		Nombre:   "Ana García",
		Email:    "ana+erp@example.com",
		Telefono: "+34612345678",
		Empresa:  "Acme SL",
	}
}

func TestUpsertContact_Created(t *testing.T) {
	fb := newFakeBrevo(t)
	fb.on("POST /contacts", http.StatusCreated, `{"id":42}`)

	id, err := fb.client(validConfig()).UpsertContact(context.Background(), registrant())

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	calls := fb.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "xkeysib-test", calls[0].APIKey)
	assert.Equal(t, "ana+erp@example.com", calls[0].Body["email"])
	assert.Equal(t, []any{float64(7)}, calls[0].Body["listIds"])
	assert.Equal(t, true, calls[0].Body["updateEnabled"])
	assert.Equal(t, map[string]any{"NOMBRE": "Ana García", "SMS": "+34612345678", "EMPRESA": "Acme SL"}, calls[0].Body["attributes"])
}

func TestUpsertContact_DuplicateUpdatesAndReadsBack(t *testing.T) {
	fb := newFakeBrevo(t)
	fb.on("POST /contacts", http.StatusBadRequest, `{"code":"duplicate_parameter","message":"Contact already exist"}`)
	fb.on("PUT /contacts/ana+erp@example.com", http.StatusNoContent, "")
	fb.on("GET /contacts/ana+erp@example.com", http.StatusOK, `{"id":1337,"email":"ana+erp@example.com"}`)

	id, err := fb.client(validConfig()).UpsertContact(context.Background(), registrant())

	require.NoError(t, err)
	assert.Equal(t, int64(1337), id, "id of the pre-existing contact")

	calls := fb.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "PUT", calls[1].Method)
	assert.Equal(t, []any{float64(7)}, calls[1].Body["listIds"])
	assert.NotContains(t, calls[1].Body, "email")
	assert.Equal(t, "GET", calls[2].Method)
}

func TestUpsertContact_NoContentReadsBack(t *testing.T) {
	fb := newFakeBrevo(t)
	fb.on("POST /contacts", http.StatusNoContent, "")
	fb.on("GET /contacts/ana+erp@example.com", http.StatusOK, `{"id":9}`)

	id, err := fb.client(validConfig()).UpsertContact(context.Background(), registrant())

	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestUpsertContact_Errors(t *testing.T) {
	tests := []struct {
		name       string
		script     func(fb *fakeBrevo)
		wantStatus int
		wantMsg    string
	}{
		{
			name: "other bad request",
			script: func(fb *fakeBrevo) {
				fb.on("POST /contacts", http.StatusBadRequest, `{"code":"invalid_parameter","message":"email is not valid"}`)
			},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Error de Brevo: email is not valid",
		},
		{
			name: "unauthorized",
			script: func(fb *fakeBrevo) {
				fb.on("POST /contacts", http.StatusUnauthorized, `{"code":"unauthorized","message":"Key not found"}`)
			},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Error de Brevo: Key not found",
		},
		{
			name: "update fails",
			script: func(fb *fakeBrevo) {
				fb.on("POST /contacts", http.StatusBadRequest, `{"code":"duplicate_parameter","message":"Contact already exist"}`)
				fb.on("PUT /contacts/ana+erp@example.com", http.StatusInternalServerError, `oops`)
			},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Error al actualizar contacto en Brevo: oops",
		},
		{
			name: "read back fails",
			script: func(fb *fakeBrevo) {
				fb.on("POST /contacts", http.StatusBadRequest, `{"code":"duplicate_parameter","message":"Contact already exist"}`)
				fb.on("PUT /contacts/ana+erp@example.com", http.StatusNoContent, "")
			},
			wantStatus: http.StatusNotFound,
			wantMsg:    "Error al obtener información del contacto actualizado: not scripted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBrevo(t)
			tt.script(fb)

			_, err := fb.client(validConfig()).UpsertContact(context.Background(), registrant())

			var remote *apierr.RemoteAPIError
			require.True(t, errors.As(err, &remote), "got %v", err)
			assert.Equal(t, "Brevo", remote.Provider)
			assert.Equal(t, tt.wantStatus, remote.StatusCode)
			assert.Equal(t, tt.wantMsg, remote.Message)
		})
	}
}

func TestUpsertContact_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		missing string
	}{
		{"api key", Config{ListID: "7"}, "BREVO_API_KEY"},
		{"list id", Config{APIKey: "k"}, "BREVO_LIST_ID"},
		{"list id not numeric", Config{APIKey: "k", ListID: "formaciones"}, "BREVO_LIST_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBrevo(t)

			_, err := fb.client(tt.cfg).UpsertContact(context.Background(), registrant())

			var cerr *apierr.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, []string{tt.missing}, cerr.Missing)
			assert.Empty(t, fb.recorded(), "no network call when misconfigured")
		})
	}
}

func TestSendConfirmationEmail(t *testing.T) {
	fb := newFakeBrevo(t)
	fb.on("POST /smtp/email", http.StatusCreated, `{"messageId":"<abc@smtp-relay>"}`)

	ok := fb.client(validConfig()).SendConfirmationEmail(context.Background(), registrant(), "https://zoom.us/w/123")

	require.True(t, ok)
	calls := fb.recorded()
	require.Len(t, calls, 1)
	body := calls[0].Body
	assert.Equal(t, ConfirmationSubject, body["subject"])
	assert.Equal(t, map[string]any{"name": DefaultSenderName, "email": DefaultSenderEmail}, body["sender"])
	assert.Equal(t, []any{map[string]any{"email": "ana+erp@example.com", "name": "Ana García"}}, body["to"])
	html, _ := body["htmlContent"].(string)
	assert.Contains(t, html, "Hola <strong>Ana García</strong>")
	assert.Contains(t, html, `href="https://zoom.us/w/123"`)
	assert.NotContains(t, html, "Próxima fecha")
}

func TestSendConfirmationEmail_FailureIsSwallowed(t *testing.T) {
	fb := newFakeBrevo(t)
	fb.on("POST /smtp/email", http.StatusBadRequest, `{"code":"invalid_parameter","message":"sender is not valid"}`)

	assert.False(t, fb.client(validConfig()).SendConfirmationEmail(context.Background(), registrant(), "https://zoom.us/w/1"))

	down := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, nil, nil)
	assert.False(t, down.SendConfirmationEmail(context.Background(), registrant(), "https://zoom.us/w/1"))

	unconfigured := NewClient(Config{}, nil, nil)
	assert.False(t, unconfigured.SendConfirmationEmail(context.Background(), registrant(), "https://zoom.us/w/1"))
}

func TestDeliverConfirmation_ReturnsRemoteError(t *testing.T) {
	fb := newFakeBrevo(t)
	fb.on("POST /smtp/email", http.StatusTooManyRequests, `{"code":"too_many_requests","message":"rate limited"}`)

	err := fb.client(validConfig()).DeliverConfirmation(context.Background(), models.ConfirmationEmail{Nombre: "Ana", Email: "a@example.com", JoinURL: "https://zoom.us/w/1"})

	var remote *apierr.RemoteAPIError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusTooManyRequests, remote.StatusCode)
}

func TestRenderConfirmation(t *testing.T) {
	start := time.Date(2026, 11, 18, 17, 0, 0, 0, time.UTC)

	html, err := RenderConfirmation(models.ConfirmationEmail{
		Nombre:       "<script>alert(1)</script>",
		JoinURL:      "https://zoom.us/w/1",
		MeetingStart: start,
	})

	require.NoError(t, err)
	assert.NotContains(t, html, "<script>", "names are HTML-escaped")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "Próxima fecha:</strong> "+FormatMeetingDate(start, nil))
	assert.Equal(t, 2, strings.Count(html, `href="https://zoom.us/w/1"`))
}

func TestFormatMeetingDate(t *testing.T) {
	start := time.Date(2026, 11, 18, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "miércoles, 18 de noviembre de 2026, 17:00", FormatMeetingDate(start, time.UTC))

	cet := time.FixedZone("CET", 3600)
	assert.Equal(t, "miércoles, 18 de noviembre de 2026, 18:00", FormatMeetingDate(start, cet))
}
