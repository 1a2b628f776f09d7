package models

import (
	"time"

	"github.com/robinmail/dnsguard/internal/enum"
)

type DnsProvider struct {
	ID           uint64               `gorm:"primary_key;autoIncrement" json:"id"`
	Name         string               `gorm:"column:name;type:varchar(255);NOT NULL;unique" json:"name"`
	ProviderType enum.DnsProviderType `gorm:"column:provider_type;type:varchar(20);NOT NULL" json:"providerType"`
	// Credentials is the provider credential blob stored as an encrypted
	// envelope. Cloudflare stores the API token, Route53 a JSON document
	// with access key, secret key and region.
	Credentials string    `gorm:"column:credentials;type:text;NOT NULL" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (DnsProvider) TableName() string {
	return "dns_providers"
}
