package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/robinmail/dnsguard/interfaces"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/tracing"
)

type UpdateCredentialsRequest struct {
	Credentials string `json:"credentials" binding:"required"`
}

type ProviderHandler struct {
	providerService interfaces.ProviderService
}

func NewProviderHandler(providerService interfaces.ProviderService) *ProviderHandler {
	return &ProviderHandler{
		providerService: providerService,
	}
}

func (h *ProviderHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CreateDnsProvider")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req interfaces.CreateProviderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}

		provider, err := h.providerService.CreateProvider(ctx, req)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, provider)
	}
}

func (h *ProviderHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListDnsProviders")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		providers, err := h.providerService.ListProviders(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"providers": providers})
	}
}

func (h *ProviderHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetDnsProvider")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		provider, err := h.providerService.GetProvider(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, provider)
	}
}

func (h *ProviderHandler) UpdateCredentials() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "UpdateDnsProviderCredentials")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		var req UpdateCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}

		if err := h.providerService.UpdateCredentials(ctx, id, req.Credentials); err != nil {
			respondError(c, span, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Delete refuses to remove a provider that domains still reference,
// answering Conflict instead.
func (h *ProviderHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeleteDnsProvider")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		if err := h.providerService.DeleteProvider(ctx, id); err != nil {
			respondError(c, span, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
