package models

import (
	"time"

	"github.com/robinmail/dnsguard/internal/enum"
)

type Domain struct {
	ID              uint64            `gorm:"primary_key;autoIncrement" json:"id"`
	Domain          string            `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex" json:"domain"`
	DnsProviderID   *uint64           `gorm:"column:dns_provider_id" json:"dnsProviderId"`
	NsProviderID    *uint64           `gorm:"column:ns_provider_id" json:"nsProviderId"`
	Status          enum.DomainStatus `gorm:"column:status;type:varchar(50);NOT NULL;DEFAULT:'pending'" json:"status"`
	LastHealthCheck *time.Time        `gorm:"column:last_health_check;type:timestamp" json:"lastHealthCheck"`
	CreatedAt       time.Time         `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (Domain) TableName() string {
	return "domains"
}
