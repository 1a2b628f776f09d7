package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/models"
)

// DkimSideEffects reports the outcome of the best-effort steps that follow a
// successful key generation. The key record itself is durable regardless.
type DkimSideEffects struct {
	DnsPublished      bool   `json:"dnsPublished"`
	DnsPublishError   string `json:"dnsPublishError,omitempty"`
	MtaConfigured     bool   `json:"mtaConfigured"`
	MtaConfigureError string `json:"mtaConfigureError,omitempty"`
}

type DkimGenerateResult struct {
	Key         models.DkimKey  `json:"key"`
	SideEffects DkimSideEffects `json:"sideEffects"`
}

type DkimService interface {
	// GenerateKeyPair creates and persists a new ACTIVE key. An empty
	// selector gets an auto-built name. DNS publication and the MTA signing
	// callback run best-effort; their outcome lands in SideEffects.
	GenerateKeyPair(ctx context.Context, domainID uint64, algorithm enum.DkimAlgorithm, selectorOverride string) (*DkimGenerateResult, error)
	// InitiateRotation flips the current ACTIVE key to ROTATING and generates
	// a replacement whose cnameSelector points at the old selector.
	InitiateRotation(ctx context.Context, domainID uint64) (*DkimGenerateResult, error)
	RetireKey(ctx context.Context, keyID uint64) (*models.DkimKey, error)
	GetKey(ctx context.Context, keyID uint64) (*models.DkimKey, error)
	ListKeys(ctx context.Context, domainID uint64) ([]models.DkimKey, error)
	// RepublishKey replays the DNS TXT publication for an existing key.
	RepublishKey(ctx context.Context, keyID uint64) (*DkimSideEffects, error)
}
