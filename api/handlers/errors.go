package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/tracing"
)

// statusForError maps the error taxonomy to HTTP status codes so handlers
// stay thin. Unknown errors are reported as 500 without leaking detail.
func statusForError(err error) int {
	switch {
	case errors.Is(err, er.ErrDomainNotFound),
		errors.Is(err, er.ErrDkimKeyNotFound),
		errors.Is(err, er.ErrProviderNotFound),
		errors.Is(err, er.ErrMtaStsWorkerNotFound),
		errors.Is(err, er.ErrZoneNotFound):
		return http.StatusNotFound
	case errors.Is(err, er.ErrDomainExists),
		errors.Is(err, er.ErrProviderInUse),
		errors.Is(err, er.ErrRotationInProgress):
		return http.StatusConflict
	case errors.Is(err, er.ErrInvalidDomain),
		errors.Is(err, er.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, er.ErrNoActiveDkimKey),
		errors.Is(err, er.ErrProviderNotConfigured),
		errors.Is(err, er.ErrProviderNotSupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, er.ErrUpstreamUnavailable),
		errors.Is(err, er.ErrConnectionTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": message})
}
