package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/internal/utils"
)

type DomainDnsRecordRepository interface {
	Save(ctx context.Context, record *models.DomainDnsRecord) error
	GetByDomain(ctx context.Context, domainID uint64) ([]models.DomainDnsRecord, error)
	GetByDomainAndName(ctx context.Context, domainID uint64, recordType, name string) (*models.DomainDnsRecord, error)
	Delete(ctx context.Context, id uint64) error
	DeleteByDomain(ctx context.Context, domainID uint64) error
}

type domainDnsRecordRepository struct {
	db *gorm.DB
}

func NewDomainDnsRecordRepository(db *gorm.DB) DomainDnsRecordRepository {
	return &domainDnsRecordRepository{
		db: db,
	}
}

// Save creates the record or updates the existing row for the same
// domain, record type and name.
func (r *domainDnsRecordRepository) Save(ctx context.Context, record *models.DomainDnsRecord) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainDnsRecordRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("recordType", record.RecordType)
	span.SetTag("name", record.Name)

	existing, err := r.GetByDomainAndName(ctx, record.DomainID, record.RecordType, record.Name)
	if err != nil {
		return err
	}

	now := utils.Now()
	if existing == nil {
		record.CreatedAt = now
		record.UpdatedAt = now
		err = r.db.WithContext(ctx).Create(record).Error
	} else {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		record.UpdatedAt = now
		err = r.db.WithContext(ctx).Save(record).Error
	}
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainDnsRecordRepository) GetByDomain(ctx context.Context, domainID uint64) ([]models.DomainDnsRecord, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainDnsRecordRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DomainDnsRecord
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("record_type asc, name asc").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *domainDnsRecordRepository) GetByDomainAndName(ctx context.Context, domainID uint64, recordType, name string) (*models.DomainDnsRecord, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainDnsRecordRepository.GetByDomainAndName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.DomainDnsRecord
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND record_type = ? AND name = ?", domainID, recordType, name).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

func (r *domainDnsRecordRepository) Delete(ctx context.Context, id uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainDnsRecordRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Delete(&models.DomainDnsRecord{}, id).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainDnsRecordRepository) DeleteByDomain(ctx context.Context, domainID uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainDnsRecordRepository.DeleteByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Delete(&models.DomainDnsRecord{}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
