package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/models"
)

// InitialDnsRecord is a pre-flight record captured before onboarding, usually
// from a discovery scan. Stored as an unmanaged snapshot, never written back
// to a provider.
type InitialDnsRecord struct {
	RecordType string `json:"recordType"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	TTL        int    `json:"ttl"`
	Priority   *int   `json:"priority,omitempty"`
}

type RegisterDomainRequest struct {
	Domain         string
	DnsProviderID  *uint64
	NsProviderID   *uint64
	InitialRecords []InitialDnsRecord
}

type DomainService interface {
	RegisterDomain(ctx context.Context, request RegisterDomainRequest) (*models.Domain, error)
	GetDomain(ctx context.Context, domain string) (*models.Domain, error)
	GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error)
	ListDomains(ctx context.Context) ([]models.Domain, error)
	SetProviders(ctx context.Context, id uint64, dnsProviderID, nsProviderID *uint64) error
	DeleteDomain(ctx context.Context, id uint64) error
}
