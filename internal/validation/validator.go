// Package validation parses and normalizes training signup payloads.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/erp-solwed/formaciones/internal/apierr"
	"github.com/erp-solwed/formaciones/internal/models"
)

// ErrMalformed is returned when the body is not a JSON object.
var ErrMalformed = errors.New("malformed registration payload")

// Spanish mobile: optional +34/0034/34 prefix, then 6-9 and eight more digits.
var spanishMobile = regexp.MustCompile(`^(\+34|0034|34)?([6789]\d{8})$`)

// Only spaces are tolerated inside a number; dashes and dots are rejected.
var phoneSeparators = strings.NewReplacer(" ", "")

// Field messages keyed by "<json field>.<tag>".
var messages = map[string]string{
	"nombre.required":   "El nombre es obligatorio",
	"nombre.min":        "El nombre debe tener al menos 2 caracteres",
	"nombre.max":        "El nombre es demasiado largo",
	"email.required":    "El email es obligatorio",
	"email.email":       "Email inválido",
	"telefono.required": "El teléfono es obligatorio",
	"telefono.esmobile": "Teléfono inválido. Formato: 612345678 o +34612345678",
	"empresa.min":       "El nombre de la empresa debe tener al menos 2 caracteres",
	"empresa.max":       "El nombre de la empresa es demasiado largo",
	"mensaje.max":       "El mensaje es demasiado largo (máximo 500 caracteres)",
}

// signup mirrors models.RegistrationInput with the schema rules attached.
type signup struct {
	Nombre   string `json:"nombre" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Telefono string `json:"telefono" validate:"required,esmobile"`
	Empresa  string `json:"empresa" validate:"omitempty,min=2,max=100"`
	Mensaje  string `json:"mensaje" validate:"omitempty,max=500"`
}

// Validator checks signup payloads. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the Spanish mobile rule registered.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("esmobile", func(fl validator.FieldLevel) bool {
		return spanishMobile.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Parse decodes a JSON body and validates it.
// Returns ErrMalformed for non-JSON bodies and *apierr.ValidationError for schema violations.
func (v *Validator) Parse(body []byte) (*models.RegistrationRequest, error) {
	var in models.RegistrationInput
	err := json.Unmarshal(body, &in)
	if err == nil {
		return v.Validate(in)
	}

	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) || typeErr.Field == "" {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// A field of the wrong type is a schema violation, not a malformed body.
	// Validate the rest so the caller still sees every failing field.
	_, verr := v.Validate(in)
	fields := []apierr.FieldError{{Field: typeErr.Field, Message: "Debe ser un texto"}}
	var agg *apierr.ValidationError
	if errors.As(verr, &agg) {
		for _, f := range agg.Fields {
			if f.Field != typeErr.Field {
				fields = append(fields, f)
			}
		}
	}
	return nil, &apierr.ValidationError{Fields: fields}
}

// Validate normalizes and checks an already decoded payload.
func (v *Validator) Validate(in models.RegistrationInput) (*models.RegistrationRequest, error) {
	s := signup{
		Nombre:   strings.TrimSpace(in.Nombre),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Telefono: phoneSeparators.Replace(strings.TrimSpace(in.Telefono)),
		Empresa:  strings.TrimSpace(in.Empresa),
		Mensaje:  strings.TrimSpace(in.Mensaje),
	}

	if err := v.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate signup: %w", err)
		}
		out := &apierr.ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, apierr.FieldError{Field: fe.Field(), Message: message(fe)})
		}
		return nil, out
	}

	phone, _ := NormalizePhone(s.Telefono)
	return &models.RegistrationRequest{
		Nombre:   s.Nombre,
		Email:    s.Email,
		Telefono: phone,
		Empresa:  s.Empresa,
		Mensaje:  s.Mensaje,
	}, nil
}

// NormalizePhone returns the canonical +34XXXXXXXXX form of a Spanish mobile number.
// Normalizing an already canonical number returns it unchanged.
func NormalizePhone(raw string) (string, bool) {
	m := spanishMobile.FindStringSubmatch(phoneSeparators.Replace(strings.TrimSpace(raw)))
	if m == nil {
		return "", false
	}
	return "+34" + m[2], true
}

func message(fe validator.FieldError) string {
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return "Valor inválido"
}
