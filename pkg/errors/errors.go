package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so callers can compare against the predefined values
// even after Clone replaced the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios. Messages are user-facing.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "usuario o contraseña incorrectos")
	ErrAccountRejected    = New("ACCOUNT_REJECTED", http.StatusForbidden, "tu solicitud de cuenta fue rechazada")
	ErrAccountPending     = New("ACCOUNT_PENDING", http.StatusForbidden, "tu cuenta está pendiente de aprobación")
	ErrUserNotFound       = New("USER_NOT_FOUND", http.StatusNotFound, "usuario no encontrado")
	ErrIncidentNotFound   = New("INCIDENT_NOT_FOUND", http.StatusNotFound, "incidencia no encontrada")
	ErrDuplicateUsername  = New("DUPLICATE_USERNAME", http.StatusConflict, "el nombre de usuario ya está en uso")
	ErrDuplicateEmail     = New("DUPLICATE_EMAIL", http.StatusConflict, "el correo electrónico ya está registrado")
	ErrMissingField       = New("MISSING_REQUIRED_FIELD", http.StatusBadRequest, "faltan campos obligatorios")
	ErrCapacity           = New("CAPACITY_EXCEEDED", http.StatusInsufficientStorage, "no hay espacio suficiente para guardar los adjuntos; reduce el tamaño o el número de archivos")
	ErrStorage            = New("STORAGE_ERROR", http.StatusInternalServerError, "no se pudieron guardar los datos, inténtalo de nuevo")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "recurso no encontrado")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "no tienes permiso para esta acción")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "debes iniciar sesión")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflicto con el estado actual")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "datos no válidos")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "error interno del servidor")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Err = nil
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// CloneWrap is Clone that keeps the underlying cause for logs.
func CloneWrap(err *Error, cause error, message string) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Err = cause
	}
	return clone
}
