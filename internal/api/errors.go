package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/pretrained"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, ErrorBody{Error: APIError{Message: msg, Type: errType}})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

// writeGenerationError maps domain errors onto HTTP statuses.
func writeGenerationError(c *echo.Context, err error) error {
	switch {
	// Collaborator failures may wrap ErrInvalidInput; they are still server-side.
	case errors.Is(err, inference.ErrInference),
		errors.Is(err, inference.ErrTokenize),
		errors.Is(err, inference.ErrDetokenize):
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, inference.ErrInvalidInput):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, pretrained.ErrNetwork):
		return writeError(c, http.StatusBadGateway, "upstream_error", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return writeError(c, http.StatusGatewayTimeout, "timeout_error", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}
