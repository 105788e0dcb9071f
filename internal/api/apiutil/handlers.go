package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/booking"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[booking.Kind]int{
	booking.KindValidation:          http.StatusBadRequest,
	booking.KindConflict:            http.StatusConflict,
	booking.KindPaymentPrecondition: http.StatusPaymentRequired,
	booking.KindAuthorization:       http.StatusForbidden,
	booking.KindState:               http.StatusConflict,
	booking.KindDownstream:          http.StatusBadGateway,
	booking.KindNotFound:            http.StatusNotFound,
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// BadRequest wraps a client input error.
func BadRequest(err error) error {
	return HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
}

// WriteError renders err as a JSON error body. Booking errors keep their kind,
// handler errors keep their status, and anything else is logged and hidden
// behind a 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	status, body := http.StatusInternalServerError, ErrorBody{Error: "internal", Message: "Internal Server Error"}

	var bookingErr *booking.Error
	var handlerErr HandlerError
	var fieldErr FieldError
	switch {
	case errors.As(err, &bookingErr):
		status = kindStatus[bookingErr.Kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body = ErrorBody{Error: string(bookingErr.Kind), Message: bookingErr.Message}
		if bookingErr.Kind == booking.KindDownstream {
			logger.Error().Err(err).Msg("Downstream failure")
		}
	case errors.Is(err, authz.ErrUnauthenticated):
		status, body = http.StatusUnauthorized, ErrorBody{Error: "unauthenticated", Message: "Unauthorized"}
	case errors.Is(err, authz.ErrForbidden):
		status, body = http.StatusForbidden, ErrorBody{Error: string(booking.KindAuthorization), Message: "Forbidden"}
	case errors.As(err, &fieldErr):
		status, body = http.StatusBadRequest, ErrorBody{Error: string(booking.KindValidation), Message: fieldErr.Error()}
	case errors.As(err, &handlerErr):
		status = handlerErr.Status
		body = ErrorBody{Error: errorCode(status), Message: handlerErr.Message}
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Msg("Request failed")
		}
	default:
		logger.Error().Err(err).Msg("Unhandled request error")
	}

	if writeErr := WriteJSON(w, status, body); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(booking.KindValidation)
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return string(booking.KindAuthorization)
	case http.StatusNotFound:
		return string(booking.KindNotFound)
	case http.StatusConflict:
		return string(booking.KindConflict)
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	if status >= http.StatusInternalServerError {
		return "internal"
	}
	return "error"
}
