package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/tracing"
	"github.com/robinmail/dnsguard/internal/utils"
)

type DkimDetectedSelectorRepository interface {
	Upsert(ctx context.Context, record *models.DkimDetectedSelector) error
	GetByDomain(ctx context.Context, domain string) ([]models.DkimDetectedSelector, error)
}

type dkimDetectedSelectorRepository struct {
	db *gorm.DB
}

func NewDkimDetectedSelectorRepository(db *gorm.DB) DkimDetectedSelectorRepository {
	return &dkimDetectedSelectorRepository{
		db: db,
	}
}

func (r *dkimDetectedSelectorRepository) Upsert(ctx context.Context, record *models.DkimDetectedSelector) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimDetectedSelectorRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("domain", record.Domain)
	span.SetTag("selector", record.Selector)

	now := utils.Now()
	record.FirstSeen = now
	record.LastSeen = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}, {Name: "selector"}},
		DoUpdates: clause.AssignmentColumns([]string{"key_type", "public_key_dns", "key_bits", "test_mode", "revoked", "last_seen"}),
	}).Create(record).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *dkimDetectedSelectorRepository) GetByDomain(ctx context.Context, domain string) ([]models.DkimDetectedSelector, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DkimDetectedSelectorRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("domain", domain)

	var records []models.DkimDetectedSelector
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		Order("selector asc").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return records, nil
}
