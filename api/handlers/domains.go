package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/robinmail/dnsguard/interfaces"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/internal/tracing"
)

type RegisterDomainRequest struct {
	Domain         string                        `json:"domain" binding:"required"`
	DnsProviderID  *uint64                       `json:"dnsProviderId"`
	NsProviderID   *uint64                       `json:"nsProviderId"`
	InitialRecords []interfaces.InitialDnsRecord `json:"initialRecords"`
}

type SetProvidersRequest struct {
	DnsProviderID *uint64 `json:"dnsProviderId"`
	NsProviderID  *uint64 `json:"nsProviderId"`
}

type DomainHandler struct {
	domainService       interfaces.DomainService
	verificationService interfaces.VerificationService
	discoveryService    interfaces.DiscoveryService
	recordRepository    repository.DomainDnsRecordRepository
}

func NewDomainHandler(
	domainService interfaces.DomainService,
	verificationService interfaces.VerificationService,
	discoveryService interfaces.DiscoveryService,
	repos *repository.Repositories,
) *DomainHandler {
	return &DomainHandler{
		domainService:       domainService,
		verificationService: verificationService,
		discoveryService:    discoveryService,
		recordRepository:    repos.DomainDnsRecordRepository,
	}
}

func (h *DomainHandler) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RegisterDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req RegisterDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}

		domain, err := h.domainService.RegisterDomain(ctx, interfaces.RegisterDomainRequest{
			Domain:         req.Domain,
			DnsProviderID:  req.DnsProviderID,
			NsProviderID:   req.NsProviderID,
			InitialRecords: req.InitialRecords,
		})
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusCreated, domain)
	}
}

func (h *DomainHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListDomains")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domains, err := h.domainService.ListDomains(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"domains": domains})
	}
}

func (h *DomainHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		domain, err := h.domainService.GetDomainByID(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, domain)
	}
}

func (h *DomainHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DeleteDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		if err := h.domainService.DeleteDomain(ctx, id); err != nil {
			respondError(c, span, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *DomainHandler) SetProviders() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SetDomainProviders")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		var req SetProvidersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, err.Error()))
			return
		}

		if err := h.domainService.SetProviders(ctx, id, req.DnsProviderID, req.NsProviderID); err != nil {
			respondError(c, span, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Verify runs the six authentication checks on demand.
func (h *DomainHandler) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "VerifyDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		result, err := h.verificationService.VerifyDomain(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Health returns the stored per-check results from the last verification run.
func (h *DomainHandler) Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GetDomainHealth")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		checks, err := h.verificationService.GetDomainHealth(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"checks": checks})
	}
}

// Records lists the DNS records this system tracks for a domain.
func (h *DomainHandler) Records() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ListDomainRecords")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id, err := pathID(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		records, err := h.recordRepository.GetByDomain(ctx, id)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

// Discover runs the pre-onboarding DNS census for a domain that may not be
// registered yet.
func (h *DomainHandler) Discover() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DiscoverDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain := c.Query("domain")
		if domain == "" {
			respondError(c, span, errors.Wrap(er.ErrInvalidInput, "domain query parameter is required"))
			return
		}

		result, err := h.discoveryService.ScanDomain(ctx, domain)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func pathID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(er.ErrInvalidInput, "invalid id %q", c.Param("id"))
	}
	return id, nil
}
