package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/internal/utils"
)

type DomainHealthRepository interface {
	UpsertCheck(ctx context.Context, domainID uint64, checkType enum.DomainCheckType, status enum.HealthStatus, detail string) error
	GetByDomain(ctx context.Context, domainID uint64) ([]models.DomainHealth, error)
	DeleteByDomain(ctx context.Context, domainID uint64) error
}

type domainHealthRepository struct {
	db *gorm.DB
}

func NewDomainHealthRepository(db *gorm.DB) DomainHealthRepository {
	return &domainHealthRepository{
		db: db,
	}
}

func (r *domainHealthRepository) UpsertCheck(ctx context.Context, domainID uint64, checkType enum.DomainCheckType, status enum.HealthStatus, detail string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainHealthRepository.UpsertCheck")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("checkType", checkType)
	span.SetTag("status", status)

	record := models.DomainHealth{
		DomainID:  domainID,
		CheckType: checkType,
		Status:    status,
		Detail:    detail,
		CheckedAt: utils.Now(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain_id"}, {Name: "check_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "detail", "checked_at"}),
	}).Create(&record).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainHealthRepository) GetByDomain(ctx context.Context, domainID uint64) ([]models.DomainHealth, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainHealthRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.DomainHealth
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("check_type asc").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}

func (r *domainHealthRepository) DeleteByDomain(ctx context.Context, domainID uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainHealthRepository.DeleteByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Delete(&models.DomainHealth{}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
