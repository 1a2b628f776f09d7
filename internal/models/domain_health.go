package models

import (
	"time"

	"github.com/robinmail/dnsguard/internal/enum"
)

type DomainHealth struct {
	ID        uint64               `gorm:"primary_key;autoIncrement" json:"id"`
	DomainID  uint64               `gorm:"column:domain_id;NOT NULL;uniqueIndex:idx_health_domain_check" json:"domainId"`
	CheckType enum.DomainCheckType `gorm:"column:check_type;type:varchar(20);NOT NULL;uniqueIndex:idx_health_domain_check" json:"checkType"`
	Status    enum.HealthStatus    `gorm:"column:status;type:varchar(20);NOT NULL;DEFAULT:'unknown'" json:"status"`
	Detail    string               `gorm:"column:detail;type:text" json:"detail"`
	CheckedAt time.Time            `gorm:"column:checked_at;type:timestamp;DEFAULT:current_timestamp" json:"checkedAt"`
}

func (DomainHealth) TableName() string {
	return "domain_health"
}
