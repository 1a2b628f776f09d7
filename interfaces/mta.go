package interfaces

import (
	"context"

	"github.com/robinmail/dnsguard/internal/enum"
)

// MtaClient talks to the external mail-transfer-agent's configuration
// endpoint. Both calls are fire-once; retries are up to the caller.
type MtaClient interface {
	ConfigureSigning(ctx context.Context, domain, selector, privateKeyBase64 string, algorithm enum.DkimAlgorithm) error
	ReloadConfig(ctx context.Context) error
}
