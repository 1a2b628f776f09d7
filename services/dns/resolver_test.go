package dns

import (
	"context"
	"net"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinmail/dnsguard/internal/logger"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

// startTestDNS runs a UDP DNS server with canned answers on a random port.
func startTestDNS(t *testing.T, records map[uint16]map[string][]mdns.RR) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
		resp := new(mdns.Msg)
		resp.SetReply(req)
		q := req.Question[0]
		if byName, ok := records[q.Qtype]; ok {
			resp.Answer = byName[q.Name]
		}
		if resp.Answer == nil {
			resp.Rcode = mdns.RcodeNameError
		}
		_ = w.WriteMsg(resp)
	})

	server := &mdns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func mustRR(t *testing.T, s string) mdns.RR {
	t.Helper()
	rr, err := mdns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func TestResolver_TypedLookups(t *testing.T) {
	records := map[uint16]map[string][]mdns.RR{
		mdns.TypeTXT: {
			"example.com.": {mustRR(t, `example.com. 300 IN TXT "v=spf1 " "include:_spf.example.net ~all"`)},
		},
		mdns.TypeMX: {
			"example.com.": {
				mustRR(t, "example.com. 300 IN MX 10 mx1.example.com."),
				mustRR(t, "example.com. 300 IN MX 20 mx2.example.com."),
			},
		},
		mdns.TypeNS: {
			"example.com.": {mustRR(t, "example.com. 300 IN NS dora.ns.cloudflare.com.")},
		},
		mdns.TypeCNAME: {
			"mail.example.com.": {mustRR(t, "mail.example.com. 300 IN CNAME ghs.example.net.")},
		},
		mdns.TypeA: {
			"example.com.": {mustRR(t, "example.com. 300 IN A 192.0.2.10")},
		},
	}
	addr := startTestDNS(t, records)

	resolver := NewResolver(ResolverConfig{
		Nameservers: []string{addr},
		Timeout:     2 * time.Second,
	}, testLogger())
	ctx := context.Background()

	txt := resolver.LookupTXT(ctx, "example.com")
	require.Len(t, txt, 1)
	// fragments concatenated into one logical value
	assert.Equal(t, "v=spf1 include:_spf.example.net ~all", txt[0])

	mx := resolver.LookupMX(ctx, "example.com")
	require.Len(t, mx, 2)
	assert.Equal(t, "mx1.example.com", mx[0].Host)
	assert.Equal(t, uint16(10), mx[0].Priority)

	ns := resolver.LookupNS(ctx, "example.com")
	require.Len(t, ns, 1)
	assert.Equal(t, "dora.ns.cloudflare.com", ns[0])

	assert.Equal(t, "ghs.example.net", resolver.LookupCNAME(ctx, "mail.example.com"))

	a := resolver.LookupA(ctx, "example.com")
	require.Len(t, a, 1)
	assert.Equal(t, "192.0.2.10", a[0])
}

func TestResolver_NxdomainIsEmpty(t *testing.T) {
	addr := startTestDNS(t, nil)

	resolver := NewResolver(ResolverConfig{
		Nameservers: []string{addr},
		Timeout:     2 * time.Second,
	}, testLogger())
	ctx := context.Background()

	assert.Empty(t, resolver.LookupTXT(ctx, "missing.example.com"))
	assert.Empty(t, resolver.LookupMX(ctx, "missing.example.com"))
	assert.Empty(t, resolver.LookupNS(ctx, "missing.example.com"))
	assert.Empty(t, resolver.LookupCNAME(ctx, "missing.example.com"))
}

func TestResolver_UnreachableServerIsEmpty(t *testing.T) {
	resolver := NewResolver(ResolverConfig{
		Nameservers: []string{"127.0.0.1:1"},
		Timeout:     200 * time.Millisecond,
	}, testLogger())

	assert.Empty(t, resolver.LookupTXT(context.Background(), "example.com"))
}
