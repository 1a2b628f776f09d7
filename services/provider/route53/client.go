package route53

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awsroute53 "github.com/aws/aws-sdk-go/service/route53"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/robinmail/dnsguard/interfaces"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/tracing"
)

const defaultTTL = 300

// Client implements the DNS gateway on AWS Route53. Route53 has no
// per-record ids, so provider record ids take the form "<type>:<name>".
type Client struct {
	api *awsroute53.Route53
	log logger.Logger
}

func NewClient(accessKeyID, secretAccessKey, region string, log logger.Logger) (*Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKeyID, secretAccessKey, ""),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create aws session")
	}
	return &Client{
		api: awsroute53.New(sess),
		log: log,
	}, nil
}

// ResolveZoneID locates the hosted zone by name. The raw zone id is returned
// without the /hostedzone/ prefix.
func (c *Client) ResolveZoneID(ctx context.Context, domain string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Route53Client.ResolveZoneID")
	defer span.Finish()
	span.LogKV("domain", domain)

	domain = strings.TrimSuffix(domain, ".")

	out, err := c.api.ListHostedZonesByNameWithContext(ctx, &awsroute53.ListHostedZonesByNameInput{
		DNSName:  aws.String(domain),
		MaxItems: aws.String("1"),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to list hosted zones")
	}

	for _, zone := range out.HostedZones {
		name := strings.TrimSuffix(aws.StringValue(zone.Name), ".")
		if strings.EqualFold(name, domain) {
			return stripZonePrefix(aws.StringValue(zone.Id)), nil
		}
	}

	tracing.TraceErr(span, er.ErrZoneNotFound)
	return "", errors.Wrapf(er.ErrZoneNotFound, "domain %s", domain)
}

func stripZonePrefix(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// UpsertRecord issues a single UPSERT change. TXT values are quoted the way
// Route53 expects.
func (c *Client) UpsertRecord(ctx context.Context, zoneID string, record interfaces.DnsRecordSpec) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Route53Client.UpsertRecord")
	defer span.Finish()
	span.LogKV("zoneId", zoneID, "type", record.Type, "name", record.Name)

	ttl := record.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}

	_, err := c.api.ChangeResourceRecordSetsWithContext(ctx, &awsroute53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &awsroute53.ChangeBatch{
			Changes: []*awsroute53.Change{
				{
					Action: aws.String(awsroute53.ChangeActionUpsert),
					ResourceRecordSet: &awsroute53.ResourceRecordSet{
						Name: aws.String(record.Name),
						Type: aws.String(record.Type),
						TTL:  aws.Int64(int64(ttl)),
						ResourceRecords: []*awsroute53.ResourceRecord{
							{Value: aws.String(formatValue(record.Type, record.Value))},
						},
					},
				},
			},
		},
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to upsert record")
	}
	return recordID(record.Type, record.Name), nil
}

func recordID(recordType, name string) string {
	return fmt.Sprintf("%s:%s", recordType, strings.TrimSuffix(name, "."))
}

func formatValue(recordType, value string) string {
	if recordType == "TXT" && !strings.HasPrefix(value, `"`) {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func unquoteValue(recordType, value string) string {
	if recordType == "TXT" {
		return strings.Trim(value, `"`)
	}
	return value
}

// DeleteRecord removes the record set identified by "<type>:<name>". Route53
// requires the full record set in a DELETE change, so it is looked up first.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, providerRecordID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Route53Client.DeleteRecord")
	defer span.Finish()
	span.LogKV("zoneId", zoneID, "recordId", providerRecordID)

	parts := strings.SplitN(providerRecordID, ":", 2)
	if len(parts) != 2 {
		err := errors.Errorf("invalid route53 record id %q", providerRecordID)
		tracing.TraceErr(span, err)
		return err
	}
	recordType, name := parts[0], parts[1]

	out, err := c.api.ListResourceRecordSetsWithContext(ctx, &awsroute53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to list record sets")
	}

	for _, set := range out.ResourceRecordSets {
		setName := strings.TrimSuffix(aws.StringValue(set.Name), ".")
		if aws.StringValue(set.Type) == recordType && strings.EqualFold(setName, name) {
			_, err = c.api.ChangeResourceRecordSetsWithContext(ctx, &awsroute53.ChangeResourceRecordSetsInput{
				HostedZoneId: aws.String(zoneID),
				ChangeBatch: &awsroute53.ChangeBatch{
					Changes: []*awsroute53.Change{
						{
							Action:            aws.String(awsroute53.ChangeActionDelete),
							ResourceRecordSet: set,
						},
					},
				},
			})
			if err != nil {
				tracing.TraceErr(span, err)
				return errors.Wrap(err, "failed to delete record")
			}
			return nil
		}
	}
	return nil
}

func (c *Client) ListRecords(ctx context.Context, zoneID string) ([]interfaces.ProviderRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Route53Client.ListRecords")
	defer span.Finish()
	span.LogKV("zoneId", zoneID)

	out, err := c.api.ListResourceRecordSetsWithContext(ctx, &awsroute53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list record sets")
	}

	var records []interfaces.ProviderRecord
	for _, set := range out.ResourceRecordSets {
		recordType := aws.StringValue(set.Type)
		name := strings.TrimSuffix(aws.StringValue(set.Name), ".")
		for _, rr := range set.ResourceRecords {
			records = append(records, interfaces.ProviderRecord{
				ID:    recordID(recordType, name),
				Type:  recordType,
				Name:  name,
				Value: unquoteValue(recordType, aws.StringValue(rr.Value)),
				TTL:   int(aws.Int64Value(set.TTL)),
			})
		}
	}
	return records, nil
}
