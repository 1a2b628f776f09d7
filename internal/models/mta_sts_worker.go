package models

import (
	"time"

	"github.com/robinmail/dnsguard/internal/enum"
)

type MtaStsWorker struct {
	ID         uint64                  `gorm:"primary_key;autoIncrement" json:"id"`
	DomainID   uint64                  `gorm:"column:domain_id;NOT NULL;unique" json:"domainId"`
	Mode       enum.MtaStsPolicyMode   `gorm:"column:mode;type:varchar(20);NOT NULL;DEFAULT:'testing'" json:"mode"`
	PolicyID   string                  `gorm:"column:policy_id;type:varchar(64)" json:"policyId"`
	ScriptName string                  `gorm:"column:script_name;type:varchar(255)" json:"scriptName"`
	Status     enum.MtaStsWorkerStatus `gorm:"column:status;type:varchar(20);NOT NULL;DEFAULT:'pending'" json:"status"`
	LastError  string                  `gorm:"column:last_error;type:text" json:"lastError"`
	CreatedAt  time.Time               `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (MtaStsWorker) TableName() string {
	return "mta_sts_workers"
}
