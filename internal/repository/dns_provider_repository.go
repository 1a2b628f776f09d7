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

type DnsProviderRepository interface {
	Create(ctx context.Context, provider *models.DnsProvider) error
	GetByID(ctx context.Context, id uint64) (*models.DnsProvider, error)
	GetByName(ctx context.Context, name string) (*models.DnsProvider, error)
	GetAll(ctx context.Context) ([]models.DnsProvider, error)
	UpdateCredentials(ctx context.Context, id uint64, credentials string) error
	Delete(ctx context.Context, id uint64) error
}

type dnsProviderRepository struct {
	db *gorm.DB
}

func NewDnsProviderRepository(db *gorm.DB) DnsProviderRepository {
	return &dnsProviderRepository{
		db: db,
	}
}

func (r *dnsProviderRepository) Create(ctx context.Context, provider *models.DnsProvider) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DnsProviderRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("providerType", provider.ProviderType)

	now := utils.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	err := r.db.WithContext(ctx).Create(provider).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *dnsProviderRepository) GetByID(ctx context.Context, id uint64) (*models.DnsProvider, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DnsProviderRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.DnsProvider
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

func (r *dnsProviderRepository) GetByName(ctx context.Context, name string) (*models.DnsProvider, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DnsProviderRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.DnsProvider
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

func (r *dnsProviderRepository) GetAll(ctx context.Context) ([]models.DnsProvider, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DnsProviderRepository.GetAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DnsProvider
	err := r.db.WithContext(ctx).Order("name asc").Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *dnsProviderRepository) UpdateCredentials(ctx context.Context, id uint64, credentials string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DnsProviderRepository.UpdateCredentials")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.DnsProvider{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credentials": credentials,
			"updated_at":  utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *dnsProviderRepository) Delete(ctx context.Context, id uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DnsProviderRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Delete(&models.DnsProvider{}, id).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
