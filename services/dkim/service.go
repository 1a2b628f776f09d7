package dkim

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"

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

const (
	dkimRecordTTL     = 3600
	selectorRandChars = 6
)

type dkimService struct {
	log             logger.Logger
	postgres        *repository.Repositories
	vault           interfaces.SecretVault
	providerService interfaces.ProviderService
	mtaClient       interfaces.MtaClient
}

func NewDkimService(
	log logger.Logger,
	postgres *repository.Repositories,
	vault interfaces.SecretVault,
	providerService interfaces.ProviderService,
	mtaClient interfaces.MtaClient,
) interfaces.DkimService {
	return &dkimService{
		log:             log,
		postgres:        postgres,
		vault:           vault,
		providerService: providerService,
		mtaClient:       mtaClient,
	}
}

func (s *dkimService) GenerateKeyPair(ctx context.Context, domainID uint64, algorithm enum.DkimAlgorithm, selectorOverride string) (*interfaces.DkimGenerateResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.GenerateKeyPair")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", domainID, "algorithm", algorithm)

	return s.generateKey(ctx, domainID, algorithm, selectorOverride, nil)
}

// generateKey is the shared path for generation and rotation. cnameSelector,
// when set, records the selector the new key supersedes.
func (s *dkimService) generateKey(ctx context.Context, domainID uint64, algorithm enum.DkimAlgorithm, selectorOverride string, cnameSelector *string) (*interfaces.DkimGenerateResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.generateKey")
	defer span.Finish()

	if algorithm != enum.DkimAlgorithmRSA2048 && algorithm != enum.DkimAlgorithmEd25519 {
		return nil, errors.Wrapf(er.ErrInvalidInput, "unknown dkim algorithm %q", algorithm)
	}

	domain, err := s.postgres.DomainRepository.GetDomainByID(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if domain == nil {
		return nil, errors.Wrapf(er.ErrDomainNotFound, "id %d", domainID)
	}

	selector := selectorOverride
	if selector == "" {
		selector = buildAutoSelector(algorithm)
	}

	privateKeyB64, publicKeyB64, err := generateKeyPairForAlgorithm(algorithm)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	encryptedPrivateKey, err := s.vault.Encrypt(privateKeyB64)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	key := &models.DkimKey{
		DomainID:      domainID,
		Selector:      selector,
		Algorithm:     algorithm,
		PrivateKey:    encryptedPrivateKey,
		PublicKey:     publicKeyB64,
		CnameSelector: cnameSelector,
		Status:        enum.DkimKeyStatusActive,
	}
	if err := s.postgres.DkimKeyRepository.Create(ctx, key); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.log.Infof("generated DKIM key for domain %s with selector %s and algorithm %s", domain.Domain, selector, algorithm)

	// the key record is the durable source of truth; DNS publication and MTA
	// signing run best-effort and independently
	sideEffects := interfaces.DkimSideEffects{}

	if err := s.publishToDns(ctx, domain, key); err != nil {
		s.log.Warnf("DNS publish failed for key %d (domain %s), key saved but DNS record may be missing: %v", key.ID, domain.Domain, err)
		sideEffects.DnsPublishError = err.Error()
	} else {
		sideEffects.DnsPublished = true
	}

	if err := s.configureMtaSigning(ctx, domain, key, privateKeyB64); err != nil {
		s.log.Warnf("MTA signing config failed for key %d (domain %s), key saved but MTA may not sign yet: %v", key.ID, domain.Domain, err)
		sideEffects.MtaConfigureError = err.Error()
	} else {
		sideEffects.MtaConfigured = true
	}

	return &interfaces.DkimGenerateResult{
		Key:         key.WithMaskedPrivateKey(),
		SideEffects: sideEffects,
	}, nil
}

func (s *dkimService) InitiateRotation(ctx context.Context, domainID uint64) (*interfaces.DkimGenerateResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.InitiateRotation")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domainId", domainID)

	activeKeys, err := s.postgres.DkimKeyRepository.GetActiveByDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(activeKeys) == 0 {
		return nil, errors.Wrapf(er.ErrNoActiveDkimKey, "domain %d", domainID)
	}

	currentKey := activeKeys[0]
	oldSelector := currentKey.Selector

	// status-guarded flip so a concurrent rotation loses instead of
	// producing two overlapping rotations
	flipped, err := s.postgres.DkimKeyRepository.UpdateStatusIf(ctx, currentKey.ID, enum.DkimKeyStatusActive, enum.DkimKeyStatusRotating)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !flipped {
		return nil, errors.Wrapf(er.ErrRotationInProgress, "selector %s", oldSelector)
	}
	s.log.Infof("set DKIM key %s to rotating for domain %d", oldSelector, domainID)

	result, err := s.generateKey(ctx, domainID, currentKey.Algorithm, "", &oldSelector)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.log.Infof("DKIM rotation initiated for domain %d; new selector %s points back to old selector %s",
		domainID, result.Key.Selector, oldSelector)
	return result, nil
}

func (s *dkimService) RetireKey(ctx context.Context, keyID uint64) (*models.DkimKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.RetireKey")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("keyId", keyID)

	key, err := s.postgres.DkimKeyRepository.GetByID(ctx, keyID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if key == nil {
		return nil, errors.Wrapf(er.ErrDkimKeyNotFound, "id %d", keyID)
	}

	if err := s.postgres.DkimKeyRepository.MarkRetired(ctx, keyID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.log.Infof("retired DKIM key %d (selector %s)", keyID, key.Selector)

	key.Status = enum.DkimKeyStatusRetired
	key.RetiredAt = utils.NowPtr()
	masked := key.WithMaskedPrivateKey()
	return &masked, nil
}

func (s *dkimService) GetKey(ctx context.Context, keyID uint64) (*models.DkimKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.GetKey")
	defer span.Finish()
	tracing.TagComponentService(span)

	key, err := s.postgres.DkimKeyRepository.GetByID(ctx, keyID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if key == nil {
		return nil, errors.Wrapf(er.ErrDkimKeyNotFound, "id %d", keyID)
	}
	masked := key.WithMaskedPrivateKey()
	return &masked, nil
}

func (s *dkimService) ListKeys(ctx context.Context, domainID uint64) ([]models.DkimKey, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.ListKeys")
	defer span.Finish()
	tracing.TagComponentService(span)

	keys, err := s.postgres.DkimKeyRepository.GetByDomain(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	for i := range keys {
		keys[i].PrivateKey = models.PrivateKeyMask
	}
	return keys, nil
}

func (s *dkimService) RepublishKey(ctx context.Context, keyID uint64) (*interfaces.DkimSideEffects, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.RepublishKey")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("keyId", keyID)

	key, err := s.postgres.DkimKeyRepository.GetByID(ctx, keyID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if key == nil {
		return nil, errors.Wrapf(er.ErrDkimKeyNotFound, "id %d", keyID)
	}

	domain, err := s.postgres.DomainRepository.GetDomainByID(ctx, key.DomainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if domain == nil {
		return nil, errors.Wrapf(er.ErrDomainNotFound, "id %d", key.DomainID)
	}

	sideEffects := &interfaces.DkimSideEffects{}
	if err := s.publishToDns(ctx, domain, key); err != nil {
		sideEffects.DnsPublishError = err.Error()
	} else {
		sideEffects.DnsPublished = true
	}
	return sideEffects, nil
}

func (s *dkimService) publishToDns(ctx context.Context, domain *models.Domain, key *models.DkimKey) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.publishToDns")
	defer span.Finish()
	span.LogKV("domain", domain.Domain, "selector", key.Selector)

	if domain.DnsProviderID == nil {
		s.log.Infof("no DNS provider configured for domain %s, skipping DNS publish", domain.Domain)
		return errors.Wrapf(er.ErrProviderNotConfigured, "domain %s", domain.Domain)
	}

	gateway, err := s.providerService.GatewayFor(ctx, *domain.DnsProviderID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	zoneID, err := gateway.ResolveZoneID(ctx, domain.Domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	recordName := fmt.Sprintf("%s._domainkey.%s", key.Selector, domain.Domain)
	recordValue := DnsRecordValue(key)

	providerRecordID, err := gateway.UpsertRecord(ctx, zoneID, interfaces.DnsRecordSpec{
		Type:  "TXT",
		Name:  recordName,
		Value: recordValue,
		TTL:   dkimRecordTTL,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	localRecord := &models.DomainDnsRecord{
		DomainID:   domain.ID,
		RecordType: "TXT",
		Name:       recordName,
		Value:      recordValue,
		TTL:        dkimRecordTTL,
		ExternalID: providerRecordID,
		Managed:    true,
	}
	if err := s.postgres.DomainDnsRecordRepository.Save(ctx, localRecord); err != nil {
		// the provider has the record; local bookkeeping failure is not fatal
		s.log.Warnf("failed to track published DKIM record locally: %v", err)
	}
	return nil
}

func (s *dkimService) configureMtaSigning(ctx context.Context, domain *models.Domain, key *models.DkimKey, privateKeyB64 string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DkimService.configureMtaSigning")
	defer span.Finish()
	span.LogKV("domain", domain.Domain, "selector", key.Selector)

	return s.mtaClient.ConfigureSigning(ctx, domain.Domain, key.Selector, privateKeyB64, key.Algorithm)
}

// DnsRecordValue renders the DKIM TXT record for a key.
func DnsRecordValue(key *models.DkimKey) string {
	return fmt.Sprintf("v=DKIM1; k=%s; p=%s", key.Algorithm.DnsTag(), key.PublicKey)
}

// buildAutoSelector names a key yyyyMM, an algorithm marker and a short
// random disambiguator, e.g. 202503r8k2nf0.
func buildAutoSelector(algorithm enum.DkimAlgorithm) string {
	yearMonth := utils.Now().Format("200601")
	return yearMonth + algorithm.SelectorSuffix() + utils.GenerateLowerAlphanumericId(selectorRandChars)
}

func generateKeyPairForAlgorithm(algorithm enum.DkimAlgorithm) (privateKeyB64, publicKeyB64 string, err error) {
	switch algorithm {
	case enum.DkimAlgorithmEd25519:
		publicKey, privateKey, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return "", "", errors.Wrap(genErr, "failed to generate ed25519 key")
		}
		privateDER, marshalErr := x509.MarshalPKCS8PrivateKey(privateKey)
		if marshalErr != nil {
			return "", "", errors.Wrap(marshalErr, "failed to encode private key")
		}
		publicDER, marshalErr := x509.MarshalPKIXPublicKey(publicKey)
		if marshalErr != nil {
			return "", "", errors.Wrap(marshalErr, "failed to encode public key")
		}
		return base64.StdEncoding.EncodeToString(privateDER), base64.StdEncoding.EncodeToString(publicDER), nil
	default:
		privateKey, genErr := rsa.GenerateKey(rand.Reader, 2048)
		if genErr != nil {
			return "", "", errors.Wrap(genErr, "failed to generate rsa key")
		}
		privateDER, marshalErr := x509.MarshalPKCS8PrivateKey(privateKey)
		if marshalErr != nil {
			return "", "", errors.Wrap(marshalErr, "failed to encode private key")
		}
		publicDER, marshalErr := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
		if marshalErr != nil {
			return "", "", errors.Wrap(marshalErr, "failed to encode public key")
		}
		return base64.StdEncoding.EncodeToString(privateDER), base64.StdEncoding.EncodeToString(publicDER), nil
	}
}
