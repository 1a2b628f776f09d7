package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/models"
)

// MtaStsService deploys and maintains an MTA-STS policy served from a
// Cloudflare worker. Only Cloudflare-backed domains are supported.
type MtaStsService interface {
	Deploy(ctx context.Context, domainID uint64, mode enum.MtaStsPolicyMode) (*models.MtaStsWorker, error)
	UpdateMode(ctx context.Context, domainID uint64, mode enum.MtaStsPolicyMode) (*models.MtaStsWorker, error)
	Get(ctx context.Context, domainID uint64) (*models.MtaStsWorker, error)
}
