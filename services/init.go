package services

import (
	"time"

	"github.com/robinmail/dnsguard/config"
	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/services/crypto"
	"github.com/robinmail/dnsguard/services/discovery"
	"github.com/robinmail/dnsguard/services/dkim"
	"github.com/robinmail/dnsguard/services/dns"
	"github.com/robinmail/dnsguard/services/domain"
	"github.com/robinmail/dnsguard/services/health"
	"github.com/robinmail/dnsguard/services/mta"
	"github.com/robinmail/dnsguard/services/mtasts"
	"github.com/robinmail/dnsguard/services/provider"
)

type Services struct {
	Vault               interfaces.SecretVault
	Resolver            interfaces.DnsResolver
	MtaClient           interfaces.MtaClient
	ProviderService     interfaces.ProviderService
	DomainService       interfaces.DomainService
	DkimService         interfaces.DkimService
	VerificationService interfaces.VerificationService
	DiscoveryService    interfaces.DiscoveryService
	MtaStsService       interfaces.MtaStsService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	vault, err := crypto.NewSecretVault(cfg.VaultConfig.EncryptionKey)
	if err != nil {
		return nil, err
	}

	resolver := dns.NewResolver(dns.ResolverConfig{
		Nameservers: cfg.ResolverConfig.Nameservers,
		Timeout:     time.Duration(cfg.ResolverConfig.TimeoutSeconds) * time.Second,
	}, log)

	mtaClient := mta.NewMtaClient(cfg.MtaConfig, log)
	providerService := provider.NewProviderService(cfg.CloudflareConfig, log, repos, vault, resolver)

	services := Services{
		Vault:               vault,
		Resolver:            resolver,
		MtaClient:           mtaClient,
		ProviderService:     providerService,
		DomainService:       domain.NewDomainService(log, repos),
		DkimService:         dkim.NewDkimService(log, repos, vault, providerService, mtaClient),
		VerificationService: health.NewVerificationService(log, repos, resolver),
		DiscoveryService:    discovery.NewDiscoveryService(log, repos, resolver),
		MtaStsService:       mtasts.NewMtaStsService(log, repos, providerService, resolver),
	}

	return &services, nil
}
