package discovery

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
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

// baseSelectors is the phase-1 probe list. Hits add their alphabetic prefix
// to the hot set so phase 2 can walk the numbered family.
var baseSelectors = []string{
	"default", "google", "mail", "selector1", "selector2",
	"k1", "k2", "k3", "dkim", "dkim1", "dkim2",
	"smtp", "s1", "s2", "key1", "key2",
	"mta", "mta1", "mta2",
	"robin", "robin1", "robin2", "robin3", "robin4", "robin5",
	"email", "outbound", "primary", "main", "a", "b",
}

// maxSelectorIndex bounds the phase-2 walk per prefix family.
const maxSelectorIndex = 20

// cnameSubdomains are conventional mail-related hosts worth a CNAME probe.
var cnameSubdomains = []string{
	"autoconfig", "autodiscover", "_mta-sts", "mail", "smtp", "imap", "pop", "webmail",
}

type discoveryService struct {
	log      logger.Logger
	postgres *repository.Repositories
	resolver interfaces.DnsResolver
}

func NewDiscoveryService(
	log logger.Logger,
	postgres *repository.Repositories,
	resolver interfaces.DnsResolver,
) interfaces.DiscoveryService {
	return &discoveryService{
		log:      log,
		postgres: postgres,
		resolver: resolver,
	}
}

// ScanDomain snapshots the public DNS state of a domain before onboarding.
// Apart from remembering detected DKIM selectors it never writes anything.
func (s *discoveryService) ScanDomain(ctx context.Context, domain string) (*interfaces.DiscoveryResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DiscoveryService.ScanDomain")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("domain", domain)

	domain = utils.NormalizeDomainName(domain)
	if !utils.IsValidHostname(domain) {
		return nil, errors.Wrap(er.ErrInvalidDomain, domain)
	}

	result := &interfaces.DiscoveryResult{
		Domain:            domain,
		Records:           []interfaces.DiscoveredRecord{},
		DkimSelectors:     []interfaces.DiscoveredDkimSelector{},
		SuggestedProvider: enum.DnsProviderUnknown,
	}

	nsRecords := s.resolver.LookupNS(ctx, domain)
	for _, ns := range nsRecords {
		result.Records = append(result.Records, interfaces.DiscoveredRecord{
			RecordType: "NS", Name: domain, Value: ns,
		})
	}

	for _, host := range []string{domain, "mail." + domain} {
		for _, addr := range s.resolver.LookupA(ctx, host) {
			result.Records = append(result.Records, interfaces.DiscoveredRecord{
				RecordType: "A", Name: host, Value: addr,
			})
		}
	}

	for _, mx := range s.resolver.LookupMX(ctx, domain) {
		priority := int(mx.Priority)
		result.Records = append(result.Records, interfaces.DiscoveredRecord{
			RecordType: "MX", Name: domain, Value: mx.Host, Priority: &priority,
		})
	}

	txtHosts := []string{domain, "_dmarc." + domain, "_mta-sts." + domain, "_smtp._tls." + domain}
	for _, host := range txtHosts {
		for _, txt := range s.resolver.LookupTXT(ctx, host) {
			result.Records = append(result.Records, interfaces.DiscoveredRecord{
				RecordType: "TXT", Name: host, Value: txt,
			})
		}
	}

	s.probeDkimSelectors(ctx, domain, result)

	for _, sub := range cnameSubdomains {
		host := sub + "." + domain
		if target := s.resolver.LookupCNAME(ctx, host); target != "" {
			result.Records = append(result.Records, interfaces.DiscoveredRecord{
				RecordType: "CNAME", Name: host, Value: target,
			})
		}
	}

	result.SuggestedProvider = detectNsProviderType(nsRecords)

	return result, nil
}

// probeDkimSelectors runs the two-phase adaptive selector census. Phase 1
// hits seed prefix families; phase 2 walks <prefix>1..<prefix>20 and stops a
// family at its first gap, since selectors are contiguously numbered in
// practice. Worst case is len(baseSelectors) + 20 lookups per family.
func (s *discoveryService) probeDkimSelectors(ctx context.Context, domain string, result *interfaces.DiscoveryResult) {
	probed := make(map[string]bool)
	hotPrefixes := make(map[string]bool)

	for _, selector := range baseSelectors {
		probed[selector] = true
		if s.probeSelector(ctx, domain, selector, result) {
			hotPrefixes[strings.TrimRight(selector, "0123456789")] = true
		}
	}

	for prefix := range hotPrefixes {
		for i := 1; i <= maxSelectorIndex; i++ {
			selector := fmt.Sprintf("%s%d", prefix, i)
			if probed[selector] {
				continue
			}
			if !s.probeSelector(ctx, domain, selector, result) {
				break
			}
		}
	}
}

// probeSelector resolves one DKIM TXT host and reports whether anything was
// published there. Parsed selectors are upserted best-effort; a failed save
// is logged and never aborts the scan.
func (s *discoveryService) probeSelector(ctx context.Context, domain, selector string, result *interfaces.DiscoveryResult) bool {
	host := selector + "._domainkey." + domain
	values := s.resolver.LookupTXT(ctx, host)
	if len(values) == 0 {
		return false
	}

	for _, value := range values {
		result.Records = append(result.Records, interfaces.DiscoveredRecord{
			RecordType: "TXT", Name: host, Value: value,
		})

		detected, ok := parseDkimRecord(selector, value)
		if !ok {
			continue
		}
		result.DkimSelectors = append(result.DkimSelectors, detected)

		err := s.postgres.DkimDetectedSelectorRepository.Upsert(ctx, &models.DkimDetectedSelector{
			Domain:       domain,
			Selector:     selector,
			KeyType:      detected.KeyType,
			PublicKeyDns: detected.PublicKeyDns,
			KeyBits:      detected.KeyBits,
			TestMode:     detected.TestMode,
			Revoked:      detected.Revoked,
		})
		if err != nil {
			s.log.Warnf("failed to save detected DKIM selector %s for %s: %v", selector, domain, err)
		}
	}
	return true
}

// parseDkimRecord interprets a TXT value as semicolon-separated tag=value
// pairs. A record without a p tag is not a DKIM key record and is dropped; an
// empty p marks the selector revoked.
func parseDkimRecord(selector, rdata string) (interfaces.DiscoveredDkimSelector, bool) {
	tags := make(map[string]string)
	for _, part := range strings.Split(rdata, ";") {
		eq := strings.Index(part, "=")
		if eq <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		tags[key] = strings.TrimSpace(part[eq+1:])
	}

	publicKey, hasP := tags["p"]
	if !hasP {
		return interfaces.DiscoveredDkimSelector{}, false
	}

	keyType := tags["k"]
	if keyType == "" {
		keyType = "rsa"
	}

	return interfaces.DiscoveredDkimSelector{
		Selector:     selector,
		KeyType:      keyType,
		PublicKeyDns: publicKey,
		KeyBits:      publicKeyBits(publicKey),
		TestMode:     strings.Contains(tags["t"], "y"),
		Revoked:      publicKey == "",
	}, true
}

// publicKeyBits decodes the published key and reports its size, or 0 when the
// key is absent or unparseable.
func publicKeyBits(publicKeyBase64 string) int {
	if publicKeyBase64 == "" {
		return 0
	}
	der, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return 0
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return 0
	}
	switch key := parsed.(type) {
	case *rsa.PublicKey:
		return key.N.BitLen()
	case ed25519.PublicKey:
		return len(key) * 8
	default:
		return 0
	}
}

func detectNsProviderType(nsRecords []string) enum.DnsProviderType {
	for _, ns := range nsRecords {
		lower := strings.ToLower(ns)
		if strings.HasSuffix(lower, ".ns.cloudflare.com") {
			return enum.DnsProviderCloudflare
		}
		if strings.Contains(lower, ".awsdns-") {
			return enum.DnsProviderRoute53
		}
	}
	return enum.DnsProviderUnknown
}
