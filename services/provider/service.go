package provider

import (
	"encoding/json"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/robinmail/dnsguard/config"
	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/services/provider/cloudflare"
	"github.com/robinmail/dnsguard/services/provider/route53"
)

// CredentialMask replaces stored credentials on every read.
const CredentialMask = "****"

type cloudflareCredentials struct {
	ApiToken  string `json:"apiToken"`
	AccountID string `json:"accountId"`
}

type route53Credentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
}

type providerService struct {
	cfg      *config.CloudflareConfig
	log      logger.Logger
	postgres *repository.Repositories
	vault    interfaces.SecretVault
	resolver interfaces.DnsResolver
}

func NewProviderService(
	cfg *config.CloudflareConfig,
	log logger.Logger,
	postgres *repository.Repositories,
	vault interfaces.SecretVault,
	resolver interfaces.DnsResolver,
) interfaces.ProviderService {
	return &providerService{
		cfg:      cfg,
		log:      log,
		postgres: postgres,
		vault:    vault,
		resolver: resolver,
	}
}

func (s *providerService) CreateProvider(ctx context.Context, request interfaces.CreateProviderRequest) (*models.DnsProvider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.CreateProvider")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("name", request.Name, "providerType", request.ProviderType)

	if request.Name == "" || request.Credentials == "" {
		return nil, errors.Wrap(er.ErrInvalidInput, "name and credentials are required")
	}
	if request.ProviderType != enum.DnsProviderCloudflare && request.ProviderType != enum.DnsProviderRoute53 {
		return nil, errors.Wrapf(er.ErrProviderNotSupported, "type %s", request.ProviderType)
	}
	if err := validateCredentials(request.ProviderType, request.Credentials); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	encrypted, err := s.vault.Encrypt(request.Credentials)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	record := &models.DnsProvider{
		Name:         request.Name,
		ProviderType: request.ProviderType,
		Credentials:  encrypted,
	}
	if err := s.postgres.DnsProviderRepository.Create(ctx, record); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	masked := *record
	masked.Credentials = CredentialMask
	return &masked, nil
}

func validateCredentials(providerType enum.DnsProviderType, raw string) error {
	switch providerType {
	case enum.DnsProviderCloudflare:
		var creds cloudflareCredentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil || creds.ApiToken == "" {
			return errors.Wrap(er.ErrInvalidInput, "cloudflare credentials require apiToken")
		}
	case enum.DnsProviderRoute53:
		var creds route53Credentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil || creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
			return errors.Wrap(er.ErrInvalidInput, "route53 credentials require accessKeyId and secretAccessKey")
		}
	}
	return nil
}

func (s *providerService) GetProvider(ctx context.Context, id uint64) (*models.DnsProvider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.GetProvider")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, err := s.postgres.DnsProviderRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if record == nil {
		return nil, er.ErrProviderNotFound
	}

	masked := *record
	masked.Credentials = CredentialMask
	return &masked, nil
}

func (s *providerService) ListProviders(ctx context.Context) ([]models.DnsProvider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.ListProviders")
	defer span.Finish()
	tracing.TagComponentService(span)

	records, err := s.postgres.DnsProviderRepository.GetAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	for i := range records {
		records[i].Credentials = CredentialMask
	}
	return records, nil
}

func (s *providerService) UpdateCredentials(ctx context.Context, id uint64, credentials string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.UpdateCredentials")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, err := s.postgres.DnsProviderRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if record == nil {
		return er.ErrProviderNotFound
	}
	if err := validateCredentials(record.ProviderType, credentials); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	encrypted, err := s.vault.Encrypt(credentials)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return s.postgres.DnsProviderRepository.UpdateCredentials(ctx, id, encrypted)
}

// DeleteProvider refuses to remove a provider still referenced by a domain.
func (s *providerService) DeleteProvider(ctx context.Context, id uint64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.DeleteProvider")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, err := s.postgres.DnsProviderRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if record == nil {
		return er.ErrProviderNotFound
	}

	count, err := s.postgres.DomainRepository.CountByProvider(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if count > 0 {
		return errors.Wrapf(er.ErrProviderInUse, "%d domain(s) reference provider %d", count, id)
	}

	return s.postgres.DnsProviderRepository.Delete(ctx, id)
}

func (s *providerService) GatewayFor(ctx context.Context, providerID uint64) (interfaces.DnsProviderGateway, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.GatewayFor")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, raw, err := s.decryptedCredentials(ctx, providerID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	switch record.ProviderType {
	case enum.DnsProviderCloudflare:
		var creds cloudflareCredentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			return nil, errors.Wrap(er.ErrProviderNotConfigured, "invalid cloudflare credentials")
		}
		return cloudflare.NewClient(s.cfg.Url, creds.ApiToken, creds.AccountID, s.log), nil
	case enum.DnsProviderRoute53:
		var creds route53Credentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			return nil, errors.Wrap(er.ErrProviderNotConfigured, "invalid route53 credentials")
		}
		return route53.NewClient(creds.AccessKeyID, creds.SecretAccessKey, creds.Region, s.log)
	default:
		return nil, errors.Wrapf(er.ErrProviderNotSupported, "type %s", record.ProviderType)
	}
}

// WorkerHostFor hands out the Cloudflare-only worker surface. The account id
// comes from the provider credentials, falling back to the configured one.
func (s *providerService) WorkerHostFor(ctx context.Context, providerID uint64) (interfaces.WorkerHost, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.WorkerHostFor")
	defer span.Finish()
	tracing.TagComponentService(span)

	record, raw, err := s.decryptedCredentials(ctx, providerID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if record.ProviderType != enum.DnsProviderCloudflare {
		return nil, errors.Wrapf(er.ErrProviderNotSupported, "worker deployment requires cloudflare, got %s", record.ProviderType)
	}

	var creds cloudflareCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, errors.Wrap(er.ErrProviderNotConfigured, "invalid cloudflare credentials")
	}
	accountID := creds.AccountID
	if accountID == "" {
		accountID = s.cfg.AccountID
	}
	if accountID == "" {
		return nil, errors.Wrap(er.ErrProviderNotConfigured, "cloudflare accountId is required for worker deployment")
	}
	return cloudflare.NewClient(s.cfg.Url, creds.ApiToken, accountID, s.log), nil
}

func (s *providerService) decryptedCredentials(ctx context.Context, providerID uint64) (*models.DnsProvider, string, error) {
	record, err := s.postgres.DnsProviderRepository.GetByID(ctx, providerID)
	if err != nil {
		return nil, "", err
	}
	if record == nil {
		return nil, "", er.ErrProviderNotFound
	}
	raw, err := s.vault.Decrypt(record.Credentials)
	if err != nil {
		return nil, "", err
	}
	return record, raw, nil
}

// DetectProviderType fingerprints the domain's NS records against known
// vendor name patterns.
func (s *providerService) DetectProviderType(ctx context.Context, domain string) enum.DnsProviderType {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderService.DetectProviderType")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domain", domain)

	for _, ns := range s.resolver.LookupNS(ctx, domain) {
		host := strings.ToLower(strings.TrimSuffix(ns, "."))
		switch {
		case strings.HasSuffix(host, ".ns.cloudflare.com"):
			return enum.DnsProviderCloudflare
		case strings.Contains(host, ".awsdns-"):
			return enum.DnsProviderRoute53
		}
	}
	return enum.DnsProviderUnknown
}
