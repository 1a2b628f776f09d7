package enum

type DomainStatus string

const (
	DomainStatusPending             DomainStatus = "pending"
	DomainStatusPendingVerification DomainStatus = "pending_verification"
	DomainStatusActive              DomainStatus = "active"
	DomainStatusError               DomainStatus = "error"
)

func (t DomainStatus) String() string {
	return string(t)
}

type DomainCheckType string

const (
	DomainCheckMX     DomainCheckType = "mx"
	DomainCheckSPF    DomainCheckType = "spf"
	DomainCheckDKIM   DomainCheckType = "dkim"
	DomainCheckDMARC  DomainCheckType = "dmarc"
	DomainCheckMTASTS DomainCheckType = "mta_sts"
	DomainCheckNS     DomainCheckType = "ns"
)

func (t DomainCheckType) String() string {
	return string(t)
}

// AllDomainCheckTypes lists every check the verification engine runs, in order.
func AllDomainCheckTypes() []DomainCheckType {
	return []DomainCheckType{
		DomainCheckMX,
		DomainCheckSPF,
		DomainCheckDKIM,
		DomainCheckDMARC,
		DomainCheckMTASTS,
		DomainCheckNS,
	}
}

type HealthStatus string

const (
	HealthStatusOK      HealthStatus = "ok"
	HealthStatusWarn    HealthStatus = "warn"
	HealthStatusError   HealthStatus = "error"
	HealthStatusUnknown HealthStatus = "unknown"
)

func (t HealthStatus) String() string {
	return string(t)
}
