// Package http provides the JSON API over the transaction store.
//
// This file implements a small fluent builder for JSON responses and the
// mapping from domain errors to status codes and user-facing messages.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finanzas/internal/advisor"
	"finanzas/internal/core"
	"finanzas/internal/importer"
	"finanzas/internal/store"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// StatusCode returns the status the response will be written with.
func (b *JSONResponseBuilder) StatusCode() int {
	return b.statusCode
}

// Write sends the built response. A nil body writes no content.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Error interno del servidor"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// ErrorResponse creates an error response with a user-facing message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// badRequest marks malformed input that never reached the domain.
type badRequest struct {
	message string
}

func (e *badRequest) Error() string {
	return e.message
}

func newBadRequest(message string) error {
	return &badRequest{message: message}
}

var (
	errBodyTooLarge       = errors.New("request body too large")
	errAdvisorUnavailable = errors.New("advisor not configured")
	errSessionNotFound    = errors.New("import session not found")
)

var validationMessages = map[string]string{
	"type":        "El tipo debe ser ingreso o gasto",
	"amount":      "El monto debe ser un número mayor que cero",
	"date":        "La fecha no es válida",
	"category":    "La categoría no corresponde al tipo de transacción",
	"description": "La descripción es obligatoria",
}

// ErrorFor maps an error from the domain packages to a response. Unknown
// errors become a 500 without leaking their text.
func ErrorFor(err error) *JSONResponseBuilder {
	var (
		bad         *badRequest
		validation  *core.ValidationError
		missing     *importer.MissingMappingError
		persistence *store.PersistenceError
		gateway     *advisor.GatewayError
	)

	switch {
	case errors.As(err, &bad):
		return BadRequestError(bad.message)
	case errors.Is(err, errBodyTooLarge):
		return ErrorResponse(http.StatusRequestEntityTooLarge, "El archivo o la petición superan el tamaño permitido")
	case errors.As(err, &validation):
		msg, ok := validationMessages[validation.Field]
		if !ok {
			msg = "Datos no válidos"
		}
		return NewJSONResponse().Status(http.StatusUnprocessableEntity).
			Body(ErrorBody{Error: msg, Field: validation.Field})
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError("Transacción no encontrada")
	case errors.Is(err, errSessionNotFound):
		return NotFoundError("La importación no existe o ha caducado")
	case errors.As(err, &missing):
		fields := make([]string, len(missing.Fields))
		for i, f := range missing.Fields {
			fields[i] = string(f)
		}
		return NewJSONResponse().Status(http.StatusUnprocessableEntity).
			Body(ErrorBody{Error: "Faltan columnas por asignar", Missing: fields})
	case errors.Is(err, importer.ErrImportFailed):
		return UnprocessableEntityError("El archivo no contiene filas válidas para importar")
	case errors.Is(err, importer.ErrEmptyFile):
		return UnprocessableEntityError("El archivo está vacío")
	case errors.Is(err, importer.ErrUnreadableFile):
		return UnprocessableEntityError("No se pudo leer el archivo")
	case errors.Is(err, importer.ErrUnknownHeader):
		return UnprocessableEntityError("La columna indicada no existe en el archivo")
	case errors.Is(err, importer.ErrUnknownField):
		return UnprocessableEntityError("Campo de transacción desconocido")
	case errors.Is(err, importer.ErrNoFile):
		return ErrorResponse(http.StatusConflict, "No hay ningún archivo cargado")
	case errors.Is(err, advisor.ErrEmptyDescription):
		return UnprocessableEntityError("La descripción es obligatoria")
	case errors.Is(err, errAdvisorUnavailable):
		return ErrorResponse(http.StatusServiceUnavailable, "El asistente no está configurado")
	case errors.As(err, &persistence):
		return ErrorResponse(http.StatusServiceUnavailable, "No se pudo guardar. Inténtalo de nuevo.")
	case errors.As(err, &gateway):
		return ErrorResponse(http.StatusBadGateway, "El asistente no respondió. Inténtalo de nuevo.")
	case errors.Is(err, advisor.ErrUnknownCategory):
		return ErrorResponse(http.StatusBadGateway, "El asistente sugirió una categoría desconocida")
	default:
		return InternalServerError("Error interno del servidor")
	}
}
