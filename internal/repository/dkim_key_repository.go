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

type DkimKeyRepository interface {
	Create(ctx context.Context, key *models.DkimKey) error
	GetByID(ctx context.Context, id uint64) (*models.DkimKey, error)
	GetByDomainAndSelector(ctx context.Context, domainID uint64, selector string) (*models.DkimKey, error)
	GetByDomain(ctx context.Context, domainID uint64) ([]models.DkimKey, error)
	GetActiveByDomain(ctx context.Context, domainID uint64) ([]models.DkimKey, error)
	// UpdateStatusIf flips status only when the row still carries the expected
	// status. Returns false when another writer got there first.
	UpdateStatusIf(ctx context.Context, id uint64, expected, next enum.DkimKeyStatus) (bool, error)
	MarkRetired(ctx context.Context, id uint64) error
}

type dkimKeyRepository struct {
	db *gorm.DB
}

func NewDkimKeyRepository(db *gorm.DB) DkimKeyRepository {
	return &dkimKeyRepository{
		db: db,
	}
}

func (r *dkimKeyRepository) Create(ctx context.Context, key *models.DkimKey) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("selector", key.Selector)

	if key.CreatedAt.IsZero() {
		key.CreatedAt = utils.Now()
	}

	err := r.db.WithContext(ctx).Create(key).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *dkimKeyRepository) GetByID(ctx context.Context, id uint64) (*models.DkimKey, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.DkimKey
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

func (r *dkimKeyRepository) GetByDomainAndSelector(ctx context.Context, domainID uint64, selector string) (*models.DkimKey, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.GetByDomainAndSelector")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("selector", selector)

	var record models.DkimKey
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND selector = ?", domainID, selector).
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

func (r *dkimKeyRepository) GetByDomain(ctx context.Context, domainID uint64) ([]models.DkimKey, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DkimKey
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("created_at desc").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *dkimKeyRepository) GetActiveByDomain(ctx context.Context, domainID uint64) ([]models.DkimKey, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.GetActiveByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DkimKey
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND status = ?", domainID, enum.DkimKeyStatusActive).
		Order("created_at desc").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *dkimKeyRepository) UpdateStatusIf(ctx context.Context, id uint64, expected, next enum.DkimKeyStatus) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.UpdateStatusIf")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("expected", expected)
	span.SetTag("next", next)

	result := r.db.WithContext(ctx).Model(&models.DkimKey{}).
		Where("id = ? AND status = ?", id, expected).
		Update("status", next)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *dkimKeyRepository) MarkRetired(ctx context.Context, id uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimKeyRepository.MarkRetired")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.DkimKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     enum.DkimKeyStatusRetired,
			"retired_at": utils.NowPtr(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
