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

type MtaStsRequest struct {
	Mode enum.MtaStsPolicyMode `json:"mode" binding:"required"`
}

type MtaStsHandler struct {
	mtaStsService interfaces.MtaStsService
}

func NewMtaStsHandler(mtaStsService interfaces.MtaStsService) *MtaStsHandler {
	return &MtaStsHandler{
		mtaStsService: mtaStsService,
	}
}

func (h *MtaStsHandler) Deploy() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeployMtaSts")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domainID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		var req MtaStsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}
		if err := validatePolicyMode(req.Mode); err != nil {
			respondError(c, span, err)
			return
		}

		worker, err := h.mtaStsService.Deploy(ctx, domainID, req.Mode)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, worker)
	}
}

func (h *MtaStsHandler) UpdateMode() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "UpdateMtaStsMode")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domainID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		var req MtaStsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}
		if err := validatePolicyMode(req.Mode); err != nil {
			respondError(c, span, err)
			return
		}

		worker, err := h.mtaStsService.UpdateMode(ctx, domainID, req.Mode)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, worker)
	}
}

func (h *MtaStsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetMtaSts")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domainID, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		worker, err := h.mtaStsService.Get(ctx, domainID)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, worker)
	}
}

func validatePolicyMode(mode enum.MtaStsPolicyMode) error {
	switch mode {
	case enum.MtaStsPolicyTesting, enum.MtaStsPolicyEnforce, enum.MtaStsPolicyNone:
		return nil
	default:
		return errors.Wrapf(er.ErrInvalidInput, "unknown policy mode %q", mode)
	}
}
