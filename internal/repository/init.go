package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/robinmail/dnsguard/internal/database"
	"github.com/robinmail/dnsguard/internal/models"
)

type Repositories struct {
	DomainRepository               DomainRepository
	DkimKeyRepository              DkimKeyRepository
	DomainHealthRepository         DomainHealthRepository
	DnsProviderRepository          DnsProviderRepository
	DomainDnsRecordRepository      DomainDnsRecordRepository
	DkimDetectedSelectorRepository DkimDetectedSelectorRepository
	MtaStsWorkerRepository         MtaStsWorkerRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:               NewDomainRepository(db),
		DkimKeyRepository:              NewDkimKeyRepository(db),
		DomainHealthRepository:         NewDomainHealthRepository(db),
		DnsProviderRepository:          NewDnsProviderRepository(db),
		DomainDnsRecordRepository:      NewDomainDnsRecordRepository(db),
		DkimDetectedSelectorRepository: NewDkimDetectedSelectorRepository(db),
		MtaStsWorkerRepository:         NewMtaStsWorkerRepository(db),
	}
}

func MigrateDnsguardDB(dbConfig *database.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Domain{},
		&models.DkimKey{},
		&models.DomainHealth{},
		&models.DnsProvider{},
		&models.DomainDnsRecord{},
		&models.DkimDetectedSelector{},
		&models.MtaStsWorker{},
	)
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return nil
}
