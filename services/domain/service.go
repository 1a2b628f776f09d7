package domain

import (
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/robinmail/dnsguard/interfaces"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/internal/utils"
)

type domainService struct {
	log      logger.Logger
	postgres *repository.Repositories
}

func NewDomainService(log logger.Logger, postgres *repository.Repositories) interfaces.DomainService {
	return &domainService{
		log:      log,
		postgres: postgres,
	}
}

func (s *domainService) RegisterDomain(ctx context.Context, request interfaces.RegisterDomainRequest) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.RegisterDomain")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domain", request.Domain)

	domain := utils.NormalizeDomainName(request.Domain)
	if !utils.IsValidHostname(domain) {
		return nil, errors.Wrap(er.ErrInvalidDomain, domain)
	}

	existing, err := s.postgres.DomainRepository.GetDomain(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrap(er.ErrDomainExists, domain)
	}

	if err := s.validateProviders(ctx, request.DnsProviderID, request.NsProviderID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	record, err := s.postgres.DomainRepository.RegisterDomain(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if request.DnsProviderID != nil || request.NsProviderID != nil {
		if err := s.postgres.DomainRepository.SetProviders(ctx, record.ID, request.DnsProviderID, request.NsProviderID); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		record.DnsProviderID = request.DnsProviderID
		record.NsProviderID = request.NsProviderID
	}

	s.saveInitialRecords(ctx, record.ID, domain, request.InitialRecords)

	s.log.Infof("registered domain %s", domain)
	return record, nil
}

// saveInitialRecords persists a pre-flight snapshot as unmanaged rows. The
// snapshot is advisory, so an individual save failure does not fail the
// registration.
func (s *domainService) saveInitialRecords(ctx context.Context, domainID uint64, domain string, records []interfaces.InitialDnsRecord) {
	saved := 0
	for _, r := range records {
		err := s.postgres.DomainDnsRecordRepository.Save(ctx, &models.DomainDnsRecord{
			DomainID:   domainID,
			RecordType: r.RecordType,
			Name:       r.Name,
			Value:      r.Value,
			TTL:        r.TTL,
			Priority:   r.Priority,
			Managed:    false,
		})
		if err != nil {
			s.log.Warnf("failed to save initial DNS record %s %s for %s: %v", r.RecordType, r.Name, domain, err)
			continue
		}
		saved++
	}
	if saved > 0 {
		s.log.Infof("saved %d initial DNS records for domain %s", saved, domain)
	}
}

func (s *domainService) GetDomain(ctx context.Context, domain string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetDomain")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, err := s.postgres.DomainRepository.GetDomain(ctx, utils.NormalizeDomainName(domain))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if record == nil {
		return nil, errors.Wrap(er.ErrDomainNotFound, domain)
	}
	return record, nil
}

func (s *domainService) GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetDomainByID")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, err := s.postgres.DomainRepository.GetDomainByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if record == nil {
		return nil, errors.Wrapf(er.ErrDomainNotFound, "id %d", id)
	}
	return record, nil
}

func (s *domainService) ListDomains(ctx context.Context) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ListDomains")
	defer span.Finish()
	tracing.TagComponentService(span)

	domains, err := s.postgres.DomainRepository.GetAllDomains(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return domains, nil
}

func (s *domainService) SetProviders(ctx context.Context, id uint64, dnsProviderID, nsProviderID *uint64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.SetProviders")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", id)

	record, err := s.postgres.DomainRepository.GetDomainByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if record == nil {
		return errors.Wrapf(er.ErrDomainNotFound, "id %d", id)
	}

	if err := s.validateProviders(ctx, dnsProviderID, nsProviderID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return s.postgres.DomainRepository.SetProviders(ctx, id, dnsProviderID, nsProviderID)
}

// DeleteDomain removes the domain together with its health rows and tracked
// DNS records. DKIM keys are kept for audit; published DNS records at the
// provider are left in place for operators to clean up.
func (s *domainService) DeleteDomain(ctx context.Context, id uint64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.DeleteDomain")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", id)

	record, err := s.postgres.DomainRepository.GetDomainByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if record == nil {
		return errors.Wrapf(er.ErrDomainNotFound, "id %d", id)
	}

	if err := s.postgres.DomainHealthRepository.DeleteByDomain(ctx, id); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.postgres.DomainDnsRecordRepository.DeleteByDomain(ctx, id); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.postgres.DomainRepository.DeleteDomain(ctx, id); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("deleted domain %s", record.Domain)
	return nil
}

func (s *domainService) validateProviders(ctx context.Context, providerIDs ...*uint64) error {
	for _, providerID := range providerIDs {
		if providerID == nil {
			continue
		}
		provider, err := s.postgres.DnsProviderRepository.GetByID(ctx, *providerID)
		if err != nil {
			return err
		}
		if provider == nil {
			return errors.Wrapf(er.ErrProviderNotFound, "id %d", *providerID)
		}
	}
	return nil
}
