package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Schema mismatches surface the column detail to the uploader.
	var se *domain.SchemaError
	if errors.As(err, &se) {
		return http.StatusBadRequest, se.Error()
	}

	// Remote-call classification from the directory client: application-level
	// rejections surface verbatim, transport failures read as a bad gateway.
	var ae *ports.AppError
	if errors.As(err, &ae) {
		return http.StatusBadRequest, ae.Error()
	}
	var te *ports.TransportError
	if errors.As(err, &te) {
		return http.StatusBadGateway, te.Error()
	}

	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, "unknown job"
	case errors.Is(err, domain.ErrEmptyBatch):
		return http.StatusBadRequest, "invalid or empty 'rows'"
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusBadRequest, err.Error()
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
