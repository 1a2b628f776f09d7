package models

import "time"

// DkimDetectedSelector records a DKIM selector found in public DNS by the
// discovery scanner. These are observations, not managed keys.
type DkimDetectedSelector struct {
	ID       uint64 `gorm:"primary_key;autoIncrement" json:"id"`
	Domain   string `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex:idx_detected_domain_selector" json:"domain"`
	Selector string `gorm:"column:selector;type:varchar(63);NOT NULL;uniqueIndex:idx_detected_domain_selector" json:"selector"`
	KeyType  string `gorm:"column:key_type;type:varchar(20)" json:"keyType"`
	// PublicKeyDns is the published p= value as seen in DNS, kept verbatim so
	// a later scan can detect key changes.
	PublicKeyDns string    `gorm:"column:public_key_dns;type:text" json:"publicKeyDns"`
	KeyBits      int       `gorm:"column:key_bits" json:"keyBits"`
	TestMode     bool      `gorm:"column:test_mode;DEFAULT:false" json:"testMode"`
	Revoked      bool      `gorm:"column:revoked;DEFAULT:false" json:"revoked"`
	FirstSeen    time.Time `gorm:"column:first_seen;type:timestamp;DEFAULT:current_timestamp" json:"firstSeen"`
	LastSeen     time.Time `gorm:"column:last_seen;type:timestamp;DEFAULT:current_timestamp" json:"lastSeen"`
}

func (DkimDetectedSelector) TableName() string {
	return "dkim_detected_selectors"
}
