package models

import "time"

// DomainDnsRecord tracks DNS records for a domain. Managed records were
// published by this system through a provider, so re-publishing can update in
// place and teardown knows what to remove. Unmanaged records are a read-only
// snapshot captured before onboarding.
type DomainDnsRecord struct {
	ID         uint64    `gorm:"primary_key;autoIncrement" json:"id"`
	DomainID   uint64    `gorm:"column:domain_id;NOT NULL;index" json:"domainId"`
	RecordType string    `gorm:"column:record_type;type:varchar(10);NOT NULL" json:"recordType"`
	Name       string    `gorm:"column:name;type:varchar(255);NOT NULL" json:"name"`
	Value      string    `gorm:"column:value;type:text;NOT NULL" json:"value"`
	TTL        int       `gorm:"column:ttl;DEFAULT:3600" json:"ttl"`
	Priority   *int      `gorm:"column:priority" json:"priority,omitempty"`
	ExternalID string    `gorm:"column:external_id;type:varchar(255)" json:"externalId"`
	Managed    bool      `gorm:"column:managed;DEFAULT:false" json:"managed"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (DomainDnsRecord) TableName() string {
	return "domain_dns_records"
}
