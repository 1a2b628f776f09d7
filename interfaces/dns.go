package interfaces

import "context"

// DnsResolver wraps the DNS lookups the verification and discovery services
// depend on. Lookups never fail hard: a resolution problem yields an empty
// result so callers treat it the same as an absent record.
type DnsResolver interface {
	LookupTXT(ctx context.Context, name string) []string
	LookupMX(ctx context.Context, name string) []MXRecord
	LookupNS(ctx context.Context, name string) []string
	LookupCNAME(ctx context.Context, name string) string
	LookupA(ctx context.Context, name string) []string
}

type MXRecord struct {
	Host     string
	Priority uint16
}
