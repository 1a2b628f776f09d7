package health

import (
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/internal/tracing"
)

type verificationService struct {
	log      logger.Logger
	postgres *repository.Repositories
	resolver interfaces.DnsResolver
}

func NewVerificationService(
	log logger.Logger,
	postgres *repository.Repositories,
	resolver interfaces.DnsResolver,
) interfaces.VerificationService {
	return &verificationService{
		log:      log,
		postgres: postgres,
		resolver: resolver,
	}
}

// VerifyDomain runs all six checks. Each check is resolved and upserted on
// its own; one failing check never blocks the rest.
func (s *verificationService) VerifyDomain(ctx context.Context, domainID uint64) (*interfaces.VerificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VerificationService.VerifyDomain")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", domainID)

	domain, err := s.postgres.DomainRepository.GetDomainByID(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if domain == nil {
		return nil, errors.Wrapf(er.ErrDomainNotFound, "id %d", domainID)
	}

	results := make([]interfaces.CheckResult, 0, len(enum.AllDomainCheckTypes()))
	anyError := false

	for _, checkType := range enum.AllDomainCheckTypes() {
		status, detail := s.runCheck(ctx, domain, checkType)
		if status == enum.HealthStatusError {
			anyError = true
		}
		if upsertErr := s.postgres.DomainHealthRepository.UpsertCheck(ctx, domainID, checkType, status, detail); upsertErr != nil {
			s.log.Errorf("failed to persist %s check for domain %s: %v", checkType, domain.Domain, upsertErr)
		}
		results = append(results, interfaces.CheckResult{
			CheckType: checkType,
			Status:    status,
			Detail:    detail,
		})
	}

	domainStatus := enum.DomainStatusActive
	if anyError {
		domainStatus = enum.DomainStatusError
	}
	if err := s.postgres.DomainRepository.UpdateStatus(ctx, domainID, domainStatus); err != nil {
		s.log.Errorf("failed to update status for domain %s: %v", domain.Domain, err)
	}
	if err := s.postgres.DomainRepository.MarkHealthChecked(ctx, domainID); err != nil {
		s.log.Errorf("failed to stamp health check for domain %s: %v", domain.Domain, err)
	}

	s.log.Infof("completed health checks for domain %s", domain.Domain)
	return &interfaces.VerificationResult{
		Domain:       domain.Domain,
		DomainStatus: domainStatus,
		Checks:       results,
	}, nil
}

// VerifyAllDomains re-verifies every known domain, one at a time. A failure
// on one domain is logged and the loop moves on.
func (s *verificationService) VerifyAllDomains(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VerificationService.VerifyAllDomains")
	defer span.Finish()
	tracing.TagComponentService(span)

	domains, err := s.postgres.DomainRepository.GetAllDomains(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	for _, domain := range domains {
		if _, err := s.VerifyDomain(ctx, domain.ID); err != nil {
			s.log.Errorf("scheduled health check failed for domain %s: %v", domain.Domain, err)
		}
	}
	return nil
}

func (s *verificationService) GetDomainHealth(ctx context.Context, domainID uint64) ([]models.DomainHealth, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VerificationService.GetDomainHealth")
	defer span.Finish()
	tracing.TagComponentService(span)

	return s.postgres.DomainHealthRepository.GetByDomain(ctx, domainID)
}

// runCheck never lets a single check take the engine down: a panic is
// converted to an ERROR result carrying the panic message.
func (s *verificationService) runCheck(ctx context.Context, domain *models.Domain, checkType enum.DomainCheckType) (status enum.HealthStatus, detail string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic during %s check for domain %s: %v", checkType, domain.Domain, r)
			status = enum.HealthStatusError
			detail = fmt.Sprintf("Error executing check: %v", r)
		}
	}()

	switch checkType {
	case enum.DomainCheckMX:
		return s.checkMX(ctx, domain.Domain)
	case enum.DomainCheckSPF:
		return s.checkSPF(ctx, domain.Domain)
	case enum.DomainCheckDKIM:
		return s.checkDKIM(ctx, domain)
	case enum.DomainCheckDMARC:
		return s.checkDMARC(ctx, domain.Domain)
	case enum.DomainCheckMTASTS:
		return s.checkMTASTS(ctx, domain.Domain)
	case enum.DomainCheckNS:
		return s.checkNS(ctx, domain.Domain)
	default:
		return enum.HealthStatusUnknown, "Check failed to execute"
	}
}

func (s *verificationService) checkMX(ctx context.Context, domainName string) (enum.HealthStatus, string) {
	records := s.resolver.LookupMX(ctx, domainName)
	if len(records) == 0 {
		return enum.HealthStatusError, "No MX records found for " + domainName
	}
	return enum.HealthStatusOK, fmt.Sprintf("Found %d MX records", len(records))
}

func (s *verificationService) checkSPF(ctx context.Context, domainName string) (enum.HealthStatus, string) {
	for _, txt := range s.resolver.LookupTXT(ctx, domainName) {
		if strings.HasPrefix(txt, "v=spf1") {
			return enum.HealthStatusOK, "SPF record is valid: " + txt
		}
	}
	return enum.HealthStatusError, "No SPF record found"
}

// checkDKIM verifies every ACTIVE key's selector resolves a v=DKIM1 TXT
// record. Zero active keys is a WARN, not an ERROR.
func (s *verificationService) checkDKIM(ctx context.Context, domain *models.Domain) (enum.HealthStatus, string) {
	activeKeys, err := s.postgres.DkimKeyRepository.GetActiveByDomain(ctx, domain.ID)
	if err != nil {
		return enum.HealthStatusError, "Error executing check: " + err.Error()
	}
	if len(activeKeys) == 0 {
		return enum.HealthStatusWarn, "No active DKIM key configured in the system"
	}

	var missing []string
	for _, key := range activeKeys {
		name := key.Selector + "._domainkey." + domain.Domain
		found := false
		for _, txt := range s.resolver.LookupTXT(ctx, name) {
			if strings.HasPrefix(txt, "v=DKIM1") {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, fmt.Sprintf("Selector %s is missing or invalid.", key.Selector))
		}
	}
	if len(missing) > 0 {
		return enum.HealthStatusError, strings.Join(missing, " ")
	}
	return enum.HealthStatusOK, "All active DKIM keys have valid DNS records"
}

func (s *verificationService) checkDMARC(ctx context.Context, domainName string) (enum.HealthStatus, string) {
	name := "_dmarc." + domainName
	for _, txt := range s.resolver.LookupTXT(ctx, name) {
		if strings.HasPrefix(txt, "v=DMARC1") {
			return enum.HealthStatusOK, "DMARC record is valid: " + txt
		}
	}
	return enum.HealthStatusError, "No DMARC record found at " + name
}

func (s *verificationService) checkMTASTS(ctx context.Context, domainName string) (enum.HealthStatus, string) {
	name := "_mta-sts." + domainName
	for _, txt := range s.resolver.LookupTXT(ctx, name) {
		if strings.HasPrefix(txt, "v=STSv1") {
			return enum.HealthStatusOK, "MTA-STS TXT record is valid: " + txt
		}
	}
	return enum.HealthStatusError, "No MTA-STS TXT record found at " + name
}

func (s *verificationService) checkNS(ctx context.Context, domainName string) (enum.HealthStatus, string) {
	records := s.resolver.LookupNS(ctx, domainName)
	if len(records) == 0 {
		return enum.HealthStatusError, "No NS records found for " + domainName
	}
	return enum.HealthStatusOK, fmt.Sprintf("Found %d NS records", len(records))
}
