package registrations

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/apierr"
	"github.com/erp-solwed/formaciones/internal/models"
	"github.com/erp-solwed/formaciones/internal/validation"
	"github.com/erp-solwed/formaciones/pkg/response"
)

// Route is the public path of the registration endpoint.
const Route = "/api/formaciones"

const (
	msgMalformed      = "Datos inválidos. El cuerpo de la petición debe ser JSON válido."
	msgInvalidForm    = "Datos del formulario inválidos: "
	msgWebinarPrefix  = "Error al registrarte en la formación: "
	msgWebinarGeneric = "Error al registrarte en la formación. Por favor, inténtalo de nuevo."
	msgInternal       = "Error interno del servidor. Por favor, inténtalo de nuevo más tarde."
	msgMethod         = "Método no permitido. Usa POST para registrarte en una formación."

	maxBodyBytes = 64 << 10
)

// Registrar is implemented by *Service.
type Registrar interface {
	Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationOutcome, error)
}

// Handler handles the registration HTTP endpoint.
type Handler struct {
	svc       Registrar
	validator *validation.Validator
	logger    *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc Registrar, v *validation.Validator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if v == nil {
		v = validation.New()
	}
	return &Handler{svc: svc, validator: v, logger: logger}
}

// Mount registers POST plus the 405 responses for every other method.
func (h *Handler) Mount(r gin.IRoutes, middleware ...gin.HandlerFunc) {
	r.POST(Route, append(middleware, h.Register)...)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead} {
		r.Handle(method, Route, h.MethodNotAllowed)
	}
}

// Register handles POST /api/formaciones.
func (h *Handler) Register(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(c, msgMalformed)
		return
	}

	req, err := h.validator.Parse(body)
	if err != nil {
		var verr *apierr.ValidationError
		switch {
		case errors.Is(err, validation.ErrMalformed):
			response.BadRequest(c, msgMalformed)
		case errors.As(err, &verr):
			response.BadRequest(c, msgInvalidForm+verr.Error())
		default:
			h.logger.Error("validate registration", zap.Error(err))
			response.Internal(c, msgInternal)
		}
		return
	}

	outcome, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, outcome.Message, outcome.Data)
}

// fail maps a webinar registration error to the response the form shows.
func (h *Handler) fail(c *gin.Context, err error) {
	var remote *apierr.RemoteAPIError
	var cfg *apierr.ConfigurationError
	switch {
	case errors.As(err, &remote):
		response.Error(c, apierr.HTTPStatus(err), msgWebinarPrefix+remote.Message)
	case errors.As(err, &cfg):
		h.logger.Error("provider misconfigured", zap.String("provider", cfg.Provider), zap.Strings("missing", cfg.Missing))
		response.Internal(c, msgWebinarPrefix+cfg.Error())
	default:
		response.Internal(c, msgWebinarGeneric)
	}
}

// MethodNotAllowed answers every non-POST method with 405 and Allow: POST.
func (h *Handler) MethodNotAllowed(c *gin.Context) {
	response.MethodNotAllowed(c, http.MethodPost, msgMethod)
}
