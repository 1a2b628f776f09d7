package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/internal/utils"
)

type DomainRepository interface {
	RegisterDomain(ctx context.Context, domain string) (*models.Domain, error)
	GetDomain(ctx context.Context, domain string) (*models.Domain, error)
	GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error)
	GetAllDomains(ctx context.Context) ([]models.Domain, error)
	GetActiveDomains(ctx context.Context) ([]models.Domain, error)
	UpdateStatus(ctx context.Context, id uint64, status enum.DomainStatus) error
	SetProviders(ctx context.Context, id uint64, dnsProviderID, nsProviderID *uint64) error
	MarkHealthChecked(ctx context.Context, id uint64) error
	CountByProvider(ctx context.Context, providerID uint64) (int64, error)
	DeleteDomain(ctx context.Context, id uint64) error
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) RegisterDomain(ctx context.Context, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.RegisterDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("domain", domain)

	now := utils.Now()
	record := models.Domain{
		Domain:    domain,
		Status:    enum.DomainStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).Create(&record).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

func (r *domainRepository) GetDomain(ctx context.Context, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("domain", domain)

	var record models.Domain
	err := r.db.WithContext(ctx).Where("domain = ?", domain).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

func (r *domainRepository) GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomainByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.Domain
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

func (r *domainRepository) GetAllDomains(ctx context.Context) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetAllDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.Domain
	err := r.db.WithContext(ctx).Order("domain asc").Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *domainRepository) GetActiveDomains(ctx context.Context) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetActiveDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.Domain
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enum.DomainStatus{enum.DomainStatusActive, enum.DomainStatusPendingVerification}).
		Order("domain asc").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *domainRepository) UpdateStatus(ctx context.Context, id uint64, status enum.DomainStatus) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("status", status)

	err := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainRepository) SetProviders(ctx context.Context, id uint64, dnsProviderID, nsProviderID *uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetProviders")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"dns_provider_id": dnsProviderID,
			"ns_provider_id":  nsProviderID,
			"updated_at":      utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainRepository) MarkHealthChecked(ctx context.Context, id uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.MarkHealthChecked")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_health_check": utils.NowPtr(),
			"updated_at":        utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainRepository) CountByProvider(ctx context.Context, providerID uint64) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.CountByProvider")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("dns_provider_id = ? OR ns_provider_id = ?", providerID, providerID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return 0, err
	}
	return count, nil
}

func (r *domainRepository) DeleteDomain(ctx context.Context, id uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.DeleteDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Delete(&models.Domain{}, id).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
