package enum

type DnsProviderType string

const (
	DnsProviderCloudflare DnsProviderType = "cloudflare"
	DnsProviderRoute53    DnsProviderType = "aws_route53"
	DnsProviderUnknown    DnsProviderType = "unknown"
)

func (t DnsProviderType) String() string {
	return string(t)
}

func DecodeDnsProviderType(s string) DnsProviderType {
	switch s {
	case "cloudflare", "CLOUDFLARE":
		return DnsProviderCloudflare
	case "aws_route53", "AWS_ROUTE53", "route53":
		return DnsProviderRoute53
	default:
		return DnsProviderUnknown
	}
}
