package models

import (
	"time"

	"github.com/robinmail/dnsguard/internal/enum"
)

// PrivateKeyMask replaces the encrypted private key on every read that leaves
// the DKIM subsystem.
const PrivateKeyMask = "****"

type DkimKey struct {
	ID            uint64             `gorm:"primary_key;autoIncrement" json:"id"`
	DomainID      uint64             `gorm:"column:domain_id;NOT NULL;uniqueIndex:idx_dkim_domain_selector" json:"domainId"`
	Selector      string             `gorm:"column:selector;type:varchar(63);NOT NULL;uniqueIndex:idx_dkim_domain_selector" json:"selector"`
	Algorithm     enum.DkimAlgorithm `gorm:"column:algorithm;type:varchar(20);NOT NULL" json:"algorithm"`
	PrivateKey    string             `gorm:"column:private_key;type:text;NOT NULL" json:"privateKey"` // encrypted envelope
	PublicKey     string             `gorm:"column:public_key;type:text;NOT NULL" json:"publicKey"`
	CnameSelector *string            `gorm:"column:cname_selector;type:varchar(63)" json:"cnameSelector"`
	Status        enum.DkimKeyStatus `gorm:"column:status;type:varchar(20);NOT NULL;DEFAULT:'active'" json:"status"`
	CreatedAt     time.Time          `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	RetiredAt     *time.Time         `gorm:"column:retired_at;type:timestamp" json:"retiredAt"`
}

func (DkimKey) TableName() string {
	return "dkim_keys"
}

// WithMaskedPrivateKey returns a copy safe to hand outside the dkim service.
func (k DkimKey) WithMaskedPrivateKey() DkimKey {
	masked := k
	masked.PrivateKey = PrivateKeyMask
	return masked
}
