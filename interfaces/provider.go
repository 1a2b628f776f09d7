package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/models"
)

// DnsRecordSpec describes a record to publish through a provider backend.
type DnsRecordSpec struct {
	Type     string
	Name     string
	Value    string
	TTL      int
	Priority *int
}

// ProviderRecord is a record as reported by a provider backend.
type ProviderRecord struct {
	ID    string
	Type  string
	Name  string
	Value string
	TTL   int
}

// DnsProviderGateway is the provider-neutral zone and record surface.
// Mutations are single round trips with no local transaction.
type DnsProviderGateway interface {
	ResolveZoneID(ctx context.Context, domain string) (string, error)
	UpsertRecord(ctx context.Context, zoneID string, record DnsRecordSpec) (string, error)
	DeleteRecord(ctx context.Context, zoneID, providerRecordID string) error
	ListRecords(ctx context.Context, zoneID string) ([]ProviderRecord, error)
}

// WorkerHost covers the Cloudflare-only capabilities needed to serve an
// MTA-STS policy from the edge. Backends without worker support do not
// implement it.
type WorkerHost interface {
	EnsureKVNamespace(ctx context.Context, title string) (string, error)
	WriteKVValue(ctx context.Context, namespaceID, key, value string) error
	UploadWorkerScript(ctx context.Context, scriptName, script, kvNamespaceID, kvBinding string) error
	EnsureWorkerRoute(ctx context.Context, domain, pattern, scriptName string) error
}

type CreateProviderRequest struct {
	Name         string               `json:"name"`
	ProviderType enum.DnsProviderType `json:"providerType"`
	// Credentials is the raw credential blob. Cloudflare: API token.
	// Route53: JSON with accessKeyId, secretAccessKey, region.
	Credentials string `json:"credentials"`
}

// ProviderService manages provider credentials and hands out configured
// gateway clients.
type ProviderService interface {
	CreateProvider(ctx context.Context, request CreateProviderRequest) (*models.DnsProvider, error)
	GetProvider(ctx context.Context, id uint64) (*models.DnsProvider, error)
	ListProviders(ctx context.Context) ([]models.DnsProvider, error)
	UpdateCredentials(ctx context.Context, id uint64, credentials string) error
	DeleteProvider(ctx context.Context, id uint64) error
	GatewayFor(ctx context.Context, providerID uint64) (DnsProviderGateway, error)
	// WorkerHostFor returns ErrProviderNotSupported for backends without
	// worker capabilities.
	WorkerHostFor(ctx context.Context, providerID uint64) (WorkerHost, error)
	DetectProviderType(ctx context.Context, domain string) enum.DnsProviderType
}
