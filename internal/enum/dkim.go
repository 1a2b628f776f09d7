package enum

type DkimAlgorithm string

const (
	DkimAlgorithmRSA2048 DkimAlgorithm = "rsa_2048"
	DkimAlgorithmEd25519 DkimAlgorithm = "ed25519"
)

func (t DkimAlgorithm) String() string {
	return string(t)
}

// DnsTag returns the value used in the DKIM record k= tag.
func (t DkimAlgorithm) DnsTag() string {
	if t == DkimAlgorithmEd25519 {
		return "ed25519"
	}
	return "rsa"
}

// SelectorSuffix returns the algorithm marker embedded in auto-generated selectors.
func (t DkimAlgorithm) SelectorSuffix() string {
	if t == DkimAlgorithmEd25519 {
		return "e"
	}
	return "r"
}

func DecodeDkimAlgorithm(s string) DkimAlgorithm {
	switch s {
	case "rsa_2048", "RSA_2048", "rsa":
		return DkimAlgorithmRSA2048
	case "ed25519", "ED25519":
		return DkimAlgorithmEd25519
	default:
		return ""
	}
}

type DkimKeyStatus string

const (
	DkimKeyStatusActive   DkimKeyStatus = "active"
	DkimKeyStatusRotating DkimKeyStatus = "rotating"
	DkimKeyStatusRetired  DkimKeyStatus = "retired"
)

func (t DkimKeyStatus) String() string {
	return string(t)
}
