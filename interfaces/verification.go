package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/models"
)

type CheckResult struct {
	CheckType enum.DomainCheckType `json:"checkType"`
	Status    enum.HealthStatus    `json:"status"`
	Detail    string               `json:"detail,omitempty"`
}

type VerificationResult struct {
	Domain       string            `json:"domain"`
	DomainStatus enum.DomainStatus `json:"domainStatus"`
	Checks       []CheckResult     `json:"checks"`
}

// VerificationService runs the six authentication checks for a domain, upserts
// each result and sets the domain aggregate status.
type VerificationService interface {
	VerifyDomain(ctx context.Context, domainID uint64) (*VerificationResult, error)
	VerifyAllDomains(ctx context.Context) error
	GetDomainHealth(ctx context.Context, domainID uint64) ([]models.DomainHealth, error)
}
