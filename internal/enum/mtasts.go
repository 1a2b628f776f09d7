package enum

type MtaStsPolicyMode string

const (
	MtaStsPolicyTesting MtaStsPolicyMode = "testing"
	MtaStsPolicyEnforce MtaStsPolicyMode = "enforce"
	MtaStsPolicyNone    MtaStsPolicyMode = "none"
)

func (t MtaStsPolicyMode) String() string {
	return string(t)
}

type MtaStsWorkerStatus string

const (
	MtaStsWorkerPending  MtaStsWorkerStatus = "pending"
	MtaStsWorkerDeployed MtaStsWorkerStatus = "deployed"
	MtaStsWorkerError    MtaStsWorkerStatus = "error"
)

func (t MtaStsWorkerStatus) String() string {
	return string(t)
}
