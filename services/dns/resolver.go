package dns

import (
	"context"
	"strings"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/logger"
)

// ResolverConfig configures the DNS resolver.
type ResolverConfig struct {
	// Nameservers to query, e.g. "8.8.8.8:53". When empty the servers from
	// /etc/resolv.conf are used, falling back to public resolvers.
	Nameservers []string

	// Timeout per query. Default 5 seconds.
	Timeout time.Duration
}

type dnsResolver struct {
	config ResolverConfig
	client *mdns.Client
	log    logger.Logger
}

// NewResolver returns a resolver that swallows transport failures. Lookups
// yield empty results on NXDOMAIN, timeout or malformed responses so callers
// decide what an empty answer means for their check.
func NewResolver(config ResolverConfig, log logger.Logger) interfaces.DnsResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = systemNameservers()
	}

	return &dnsResolver{
		config: config,
		client: &mdns.Client{
			Timeout: config.Timeout,
		},
		log: log,
	}
}

func systemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		if !strings.Contains(s, ":") {
			s = s + ":53"
		}
		servers = append(servers, s)
	}
	return servers
}

func (r *dnsResolver) query(ctx context.Context, name string, qtype uint16) []mdns.RR {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	for _, server := range r.config.Nameservers {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			r.log.Debugf("dns query %s %s via %s failed: %v", name, mdns.TypeToString[qtype], server, err)
			continue
		}
		if resp.Rcode != mdns.RcodeSuccess {
			r.log.Debugf("dns query %s %s returned %s", name, mdns.TypeToString[qtype], mdns.RcodeToString[resp.Rcode])
			return nil
		}
		return resp.Answer
	}
	return nil
}

func (r *dnsResolver) LookupTXT(ctx context.Context, name string) []string {
	var values []string
	for _, rr := range r.query(ctx, name, mdns.TypeTXT) {
		if txt, ok := rr.(*mdns.TXT); ok {
			// character-string fragments are one logical value
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values
}

func (r *dnsResolver) LookupMX(ctx context.Context, name string) []interfaces.MXRecord {
	var records []interfaces.MXRecord
	for _, rr := range r.query(ctx, name, mdns.TypeMX) {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, interfaces.MXRecord{
				Host:     strings.TrimSuffix(mx.Mx, "."),
				Priority: mx.Preference,
			})
		}
	}
	return records
}

func (r *dnsResolver) LookupNS(ctx context.Context, name string) []string {
	var hosts []string
	for _, rr := range r.query(ctx, name, mdns.TypeNS) {
		if ns, ok := rr.(*mdns.NS); ok {
			hosts = append(hosts, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	return hosts
}

func (r *dnsResolver) LookupCNAME(ctx context.Context, name string) string {
	for _, rr := range r.query(ctx, name, mdns.TypeCNAME) {
		if cname, ok := rr.(*mdns.CNAME); ok {
			return strings.TrimSuffix(cname.Target, ".")
		}
	}
	return ""
}

func (r *dnsResolver) LookupA(ctx context.Context, name string) []string {
	var addrs []string
	for _, rr := range r.query(ctx, name, mdns.TypeA) {
		if a, ok := rr.(*mdns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	return addrs
}
