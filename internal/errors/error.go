package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrConnectionTimeout   = errors.New("connection timeout")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrInvalidInput        = errors.New("invalid input")

	// domain errors
	ErrDomainNotFound = errors.New("domain not found")
	ErrDomainExists   = errors.New("domain already exists")
	ErrInvalidDomain  = errors.New("invalid domain name")

	// dkim errors
	ErrDkimKeyNotFound    = errors.New("dkim key not found")
	ErrNoActiveDkimKey    = errors.New("no active dkim key found for domain")
	ErrRotationInProgress = errors.New("dkim key rotation already in progress")

	// dns provider errors
	ErrProviderNotFound      = errors.New("dns provider not found")
	ErrProviderInUse         = errors.New("dns provider is in use by one or more domains and cannot be deleted")
	ErrProviderNotConfigured = errors.New("no dns provider configured for domain")
	ErrProviderNotSupported  = errors.New("operation not supported by dns provider")
	ErrZoneNotFound          = errors.New("dns zone not found for domain")

	// crypto errors
	ErrInvalidEnvelope      = errors.New("encrypted envelope is invalid or corrupted")
	ErrEncryptionKeyMissing = errors.New("encryption key is not configured")

	// mta-sts errors
	ErrMtaStsWorkerNotFound = errors.New("mta-sts worker not found for domain")
)
