package mtasts

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
	"github.com/robinmail/dnsguard/internal/utils"
)

const kvBinding = "POLICY_KV"
const kvPolicyKey = "policy"

// workerScript serves the policy text straight from the bound KV namespace.
const workerScript = `export default {
  async fetch(request, env) {
    const policy = await env.POLICY_KV.get('policy');
    return new Response(policy, {
      headers: { 'Content-Type': 'text/plain', 'Cache-Control': 'max-age=3600' }
    });
  }
}
`

type mtaStsService struct {
	log             logger.Logger
	postgres        *repository.Repositories
	providerService interfaces.ProviderService
	resolver        interfaces.DnsResolver
}

func NewMtaStsService(
	log logger.Logger,
	postgres *repository.Repositories,
	providerService interfaces.ProviderService,
	resolver interfaces.DnsResolver,
) interfaces.MtaStsService {
	return &mtaStsService{
		log:             log,
		postgres:        postgres,
		providerService: providerService,
		resolver:        resolver,
	}
}

// Deploy provisions the full MTA-STS stack for a domain: a KV-backed worker
// serving the policy text, a route on mta-sts.<domain>, and the _mta-sts TXT
// record announcing the policy version. The steps are individual round trips
// with no rollback; a failed deploy is recorded on the worker row and can be
// retried, every step being idempotent.
func (s *mtaStsService) Deploy(ctx context.Context, domainID uint64, mode enum.MtaStsPolicyMode) (*models.MtaStsWorker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MtaStsService.Deploy")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", domainID, "mode", mode.String())

	domain, provider, err := s.cloudflareBackedDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	worker, err := s.ensureWorkerRow(ctx, domain, mode)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	policyID, err := s.deployStack(ctx, domain, provider, worker, mode)
	if err != nil {
		tracing.TraceErr(span, err)
		if markErr := s.postgres.MtaStsWorkerRepository.MarkError(ctx, worker.ID, err.Error()); markErr != nil {
			s.log.Errorf("failed to record deploy error for domain %s: %v", domain.Domain, markErr)
		}
		return nil, err
	}

	if err := s.postgres.MtaStsWorkerRepository.MarkDeployed(ctx, worker.ID, policyID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.log.Infof("deployed MTA-STS worker for %s with policy id %s", domain.Domain, policyID)

	return s.postgres.MtaStsWorkerRepository.GetByDomain(ctx, domainID)
}

// UpdateMode rewrites the policy text for an already deployed worker and
// publishes a fresh policy id so receivers refetch it.
func (s *mtaStsService) UpdateMode(ctx context.Context, domainID uint64, mode enum.MtaStsPolicyMode) (*models.MtaStsWorker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MtaStsService.UpdateMode")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", domainID, "mode", mode.String())

	worker, err := s.postgres.MtaStsWorkerRepository.GetByDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if worker == nil {
		return nil, errors.Wrapf(er.ErrMtaStsWorkerNotFound, "domain id %d", domainID)
	}

	domain, provider, err := s.cloudflareBackedDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	worker.Mode = mode
	if err := s.postgres.MtaStsWorkerRepository.Update(ctx, worker); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	policyID, err := s.publishPolicy(ctx, domain, provider, worker, mode)
	if err != nil {
		tracing.TraceErr(span, err)
		if markErr := s.postgres.MtaStsWorkerRepository.MarkError(ctx, worker.ID, err.Error()); markErr != nil {
			s.log.Errorf("failed to record policy update error for domain %s: %v", domain.Domain, markErr)
		}
		return nil, err
	}

	if err := s.postgres.MtaStsWorkerRepository.MarkDeployed(ctx, worker.ID, policyID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return s.postgres.MtaStsWorkerRepository.GetByDomain(ctx, domainID)
}

func (s *mtaStsService) Get(ctx context.Context, domainID uint64) (*models.MtaStsWorker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MtaStsService.Get")
	defer span.Finish()
	tracing.TagComponentService(span)

	worker, err := s.postgres.MtaStsWorkerRepository.GetByDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if worker == nil {
		return nil, errors.Wrapf(er.ErrMtaStsWorkerNotFound, "domain id %d", domainID)
	}
	return worker, nil
}

func (s *mtaStsService) cloudflareBackedDomain(ctx context.Context, domainID uint64) (*models.Domain, *models.DnsProvider, error) {
	domain, err := s.postgres.DomainRepository.GetDomainByID(ctx, domainID)
	if err != nil {
		return nil, nil, err
	}
	if domain == nil {
		return nil, nil, errors.Wrapf(er.ErrDomainNotFound, "id %d", domainID)
	}
	if domain.DnsProviderID == nil {
		return nil, nil, errors.Wrapf(er.ErrProviderNotConfigured, "domain %s has no dns provider", domain.Domain)
	}

	provider, err := s.postgres.DnsProviderRepository.GetByID(ctx, *domain.DnsProviderID)
	if err != nil {
		return nil, nil, err
	}
	if provider == nil {
		return nil, nil, errors.Wrapf(er.ErrProviderNotFound, "id %d", *domain.DnsProviderID)
	}
	if provider.ProviderType != enum.DnsProviderCloudflare {
		return nil, nil, errors.Wrapf(er.ErrProviderNotSupported, "mta-sts workers require cloudflare, provider %s is %s", provider.Name, provider.ProviderType)
	}
	return domain, provider, nil
}

func (s *mtaStsService) ensureWorkerRow(ctx context.Context, domain *models.Domain, mode enum.MtaStsPolicyMode) (*models.MtaStsWorker, error) {
	worker, err := s.postgres.MtaStsWorkerRepository.GetByDomain(ctx, domain.ID)
	if err != nil {
		return nil, err
	}
	scriptName := workerScriptName(domain.Domain)
	if worker == nil {
		worker = &models.MtaStsWorker{
			DomainID:   domain.ID,
			Mode:       mode,
			ScriptName: scriptName,
			Status:     enum.MtaStsWorkerPending,
		}
		if err := s.postgres.MtaStsWorkerRepository.Create(ctx, worker); err != nil {
			return nil, err
		}
		return worker, nil
	}

	worker.Mode = mode
	worker.ScriptName = scriptName
	worker.Status = enum.MtaStsWorkerPending
	if err := s.postgres.MtaStsWorkerRepository.Update(ctx, worker); err != nil {
		return nil, err
	}
	return worker, nil
}

func (s *mtaStsService) deployStack(ctx context.Context, domain *models.Domain, provider *models.DnsProvider, worker *models.MtaStsWorker, mode enum.MtaStsPolicyMode) (string, error) {
	workerHost, err := s.providerService.WorkerHostFor(ctx, provider.ID)
	if err != nil {
		return "", err
	}

	namespaceID, err := workerHost.EnsureKVNamespace(ctx, "mta-sts-"+domain.Domain)
	if err != nil {
		return "", errors.Wrap(err, "kv namespace")
	}

	policy := s.generatePolicy(ctx, domain.Domain, mode)
	if err := workerHost.WriteKVValue(ctx, namespaceID, kvPolicyKey, policy); err != nil {
		return "", errors.Wrap(err, "kv write")
	}

	if err := workerHost.UploadWorkerScript(ctx, worker.ScriptName, workerScript, namespaceID, kvBinding); err != nil {
		return "", errors.Wrap(err, "worker upload")
	}

	routePattern := "mta-sts." + domain.Domain + "/.well-known/mta-sts.txt"
	if err := workerHost.EnsureWorkerRoute(ctx, domain.Domain, routePattern, worker.ScriptName); err != nil {
		return "", errors.Wrap(err, "worker route")
	}

	return s.publishDnsRecords(ctx, domain, provider)
}

// publishPolicy rewrites the policy KV value and bumps the published id
// without re-uploading the worker script.
func (s *mtaStsService) publishPolicy(ctx context.Context, domain *models.Domain, provider *models.DnsProvider, worker *models.MtaStsWorker, mode enum.MtaStsPolicyMode) (string, error) {
	workerHost, err := s.providerService.WorkerHostFor(ctx, provider.ID)
	if err != nil {
		return "", err
	}

	namespaceID, err := workerHost.EnsureKVNamespace(ctx, "mta-sts-"+domain.Domain)
	if err != nil {
		return "", errors.Wrap(err, "kv namespace")
	}

	policy := s.generatePolicy(ctx, domain.Domain, mode)
	if err := workerHost.WriteKVValue(ctx, namespaceID, kvPolicyKey, policy); err != nil {
		return "", errors.Wrap(err, "kv write")
	}

	return s.publishDnsRecords(ctx, domain, provider)
}

// publishDnsRecords upserts the _mta-sts TXT announcement with a fresh policy
// id and, best-effort, an A record so mta-sts.<domain> resolves even before
// the worker route is hit. Returns the policy id.
func (s *mtaStsService) publishDnsRecords(ctx context.Context, domain *models.Domain, provider *models.DnsProvider) (string, error) {
	gateway, err := s.providerService.GatewayFor(ctx, provider.ID)
	if err != nil {
		return "", err
	}
	zoneID, err := gateway.ResolveZoneID(ctx, domain.Domain)
	if err != nil {
		return "", err
	}

	policyID := fmt.Sprintf("%d", utils.Now().Unix())
	txtName := "_mta-sts." + domain.Domain
	txtValue := "v=STSv1; id=" + policyID

	externalID, err := gateway.UpsertRecord(ctx, zoneID, interfaces.DnsRecordSpec{
		Type:  "TXT",
		Name:  txtName,
		Value: txtValue,
		TTL:   3600,
	})
	if err != nil {
		return "", errors.Wrap(err, "mta-sts txt record")
	}
	s.saveLocalRecord(ctx, domain.ID, "TXT", txtName, txtValue, externalID)

	aName := "mta-sts." + domain.Domain
	aExternalID, err := gateway.UpsertRecord(ctx, zoneID, interfaces.DnsRecordSpec{
		Type:  "A",
		Name:  aName,
		Value: "192.0.2.1",
		TTL:   3600,
	})
	if err != nil {
		s.log.Warnf("failed to publish A record for %s: %v", aName, err)
	} else {
		s.saveLocalRecord(ctx, domain.ID, "A", aName, "192.0.2.1", aExternalID)
	}

	return policyID, nil
}

func (s *mtaStsService) saveLocalRecord(ctx context.Context, domainID uint64, recordType, name, value, externalID string) {
	err := s.postgres.DomainDnsRecordRepository.Save(ctx, &models.DomainDnsRecord{
		DomainID:   domainID,
		RecordType: recordType,
		Name:       name,
		Value:      value,
		TTL:        3600,
		ExternalID: externalID,
		Managed:    true,
	})
	if err != nil {
		s.log.Warnf("failed to save local dns record %s %s: %v", recordType, name, err)
	}
}

// generatePolicy renders the policy text served by the worker. MX hosts come
// from live DNS; when the domain has none published yet, mx.<domain> is
// assumed so a deploy before MX setup still yields a valid policy.
func (s *mtaStsService) generatePolicy(ctx context.Context, domain string, mode enum.MtaStsPolicyMode) string {
	var b strings.Builder
	b.WriteString("version: STSv1\n")
	b.WriteString("mode: " + mode.String() + "\n")
	b.WriteString("max_age: 86400\n")

	mxRecords := s.resolver.LookupMX(ctx, domain)
	if len(mxRecords) == 0 {
		b.WriteString("mx: mx." + domain + "\n")
		return b.String()
	}
	for _, mx := range mxRecords {
		b.WriteString("mx: " + mx.Host + "\n")
	}
	return b.String()
}

func workerScriptName(domain string) string {
	return "mta-sts-" + strings.ReplaceAll(domain, ".", "-")
}
