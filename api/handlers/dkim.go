package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/tracing"
)

type GenerateDkimKeyRequest struct {
	Algorithm enum.DkimAlgorithm `json:"algorithm" binding:"required"`
	Selector  string             `json:"selector"`
}

type DkimHandler struct {
	dkimService interfaces.DkimService
}

func NewDkimHandler(dkimService interfaces.DkimService) *DkimHandler {
	return &DkimHandler{
		dkimService: dkimService,
	}
}

func (h *DkimHandler) Generate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GenerateDkimKey")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domainID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		var req GenerateDkimKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}

		result, err := h.dkimService.GenerateKeyPair(ctx, domainID, req.Algorithm, req.Selector)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func (h *DkimHandler) Rotate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RotateDkimKey")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domainID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		result, err := h.dkimService.InitiateRotation(ctx, domainID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *DkimHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListDkimKeys")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domainID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		keys, err := h.dkimService.ListKeys(ctx, domainID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"keys": keys})
	}
}

func (h *DkimHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetDkimKey")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		keyID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		key, err := h.dkimService.GetKey(ctx, keyID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, key)
	}
}

func (h *DkimHandler) Retire() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RetireDkimKey")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		keyID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		key, err := h.dkimService.RetireKey(ctx, keyID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, key)
	}
}

// Republish replays the DNS publication and MTA signing callback for an
// existing key, for retrying after a failed best-effort side effect.
func (h *DkimHandler) Republish() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RepublishDkimKey")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		keyID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		result, err := h.dkimService.RepublishKey(ctx, keyID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
