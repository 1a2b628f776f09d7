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

type MtaStsWorkerRepository interface {
	Create(ctx context.Context, worker *models.MtaStsWorker) error
	GetByDomain(ctx context.Context, domainID uint64) (*models.MtaStsWorker, error)
	Update(ctx context.Context, worker *models.MtaStsWorker) error
	MarkDeployed(ctx context.Context, id uint64, policyID string) error
	MarkError(ctx context.Context, id uint64, deployErr string) error
	Delete(ctx context.Context, id uint64) error
}

type mtaStsWorkerRepository struct {
	db *gorm.DB
}

func NewMtaStsWorkerRepository(db *gorm.DB) MtaStsWorkerRepository {
	return &mtaStsWorkerRepository{
		db: db,
	}
}

func (r *mtaStsWorkerRepository) Create(ctx context.Context, worker *models.MtaStsWorker) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaStsWorkerRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	now := utils.Now()
	worker.CreatedAt = now
	worker.UpdatedAt = now

	err := r.db.WithContext(ctx).Create(worker).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *mtaStsWorkerRepository) GetByDomain(ctx context.Context, domainID uint64) (*models.MtaStsWorker, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaStsWorkerRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.MtaStsWorker
	err := r.db.WithContext(ctx).Where("domain_id = ?", domainID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &record, nil
}

func (r *mtaStsWorkerRepository) Update(ctx context.Context, worker *models.MtaStsWorker) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaStsWorkerRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	worker.UpdatedAt = utils.Now()

	err := r.db.WithContext(ctx).Save(worker).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *mtaStsWorkerRepository) MarkDeployed(ctx context.Context, id uint64, policyID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaStsWorkerRepository.MarkDeployed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.MtaStsWorker{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     enum.MtaStsWorkerDeployed,
			"policy_id":  policyID,
			"last_error": "",
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *mtaStsWorkerRepository) MarkError(ctx context.Context, id uint64, deployErr string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaStsWorkerRepository.MarkError")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Model(&models.MtaStsWorker{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     enum.MtaStsWorkerError,
			"last_error": deployErr,
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *mtaStsWorkerRepository) Delete(ctx context.Context, id uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaStsWorkerRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Delete(&models.MtaStsWorker{}, id).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
