package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// AppError is an error that knows which HTTP status it maps to.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap keeps the cause for errors.Is while exposing only message to clients.
func Wrap(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

var (
	ErrInvalidRequest = New(http.StatusBadRequest, "Invalid request parameters")
	ErrUnauthorized   = New(http.StatusUnauthorized, "Unauthorized access")
	ErrNotFound       = New(http.StatusNotFound, "Resource not found")
	ErrInternalServer = New(http.StatusInternalServerError, "Internal server error")
	ErrRateLimit      = New(http.StatusTooManyRequests, "Rate limit exceeded")
	ErrBodyTooLarge   = New(http.StatusRequestEntityTooLarge, "Request body too large")
)

// DefaultBodyLimit caps JSON bodies that carry no media.
const DefaultBodyLimit = 1 << 20

func BadRequest(msg string) *AppError {
	return New(http.StatusBadRequest, msg)
}

func NotFound(msg string) *AppError {
	return New(http.StatusNotFound, msg)
}

func Unauthorized(msg string) *AppError {
	return New(http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *AppError {
	return New(http.StatusForbidden, msg)
}

func Conflict(msg string) *AppError {
	return New(http.StatusConflict, msg)
}

func Internal(msg string) *AppError {
	return New(http.StatusInternalServerError, msg)
}

// Unavailable is used when an upstream (AI service, storage) failed.
func Unavailable(msg string, err error) *AppError {
	return Wrap(http.StatusBadGateway, msg, err)
}

// StatusOf returns the HTTP status for err. Non-AppErrors are 500.
func StatusOf(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return http.StatusInternalServerError
}

// Write renders err as a JSON error body. Unknown errors never leak their text.
func Write(w http.ResponseWriter, err error) {
	var ae *AppError
	if !errors.As(err, &ae) {
		ae = ErrInternalServer
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Code)
	json.NewEncoder(w).Encode(map[string]string{"error": ae.Message})
}

// DecodeJSON reads one JSON value of at most limit bytes from the request
// body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Wrap(ErrBodyTooLarge.Code, ErrBodyTooLarge.Message, err)
		}
		return Wrap(ErrInvalidRequest.Code, ErrInvalidRequest.Message, err)
	}
	return nil
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
