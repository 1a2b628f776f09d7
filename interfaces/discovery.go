package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/enum"
)

type DiscoveredRecord struct {
	RecordType string `json:"recordType"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	Priority   *int   `json:"priority,omitempty"`
}

type DiscoveredDkimSelector struct {
	Selector     string `json:"selector"`
	KeyType      string `json:"keyType"`
	PublicKeyDns string `json:"publicKeyDns"`
	KeyBits      int    `json:"keyBits"`
	TestMode     bool   `json:"testMode"`
	Revoked      bool   `json:"revoked"`
}

type DiscoveryResult struct {
	Domain            string                   `json:"domain"`
	Records           []DiscoveredRecord       `json:"records"`
	DkimSelectors     []DiscoveredDkimSelector `json:"dkimSelectors"`
	SuggestedProvider enum.DnsProviderType     `json:"suggestedProvider"`
}

// DiscoveryService snapshots a domain's public DNS state before onboarding.
// Read-only apart from the best-effort detected-selector upsert.
type DiscoveryService interface {
	ScanDomain(ctx context.Context, domain string) (*DiscoveryResult, error)
}
