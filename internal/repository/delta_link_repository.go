package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

// DeltaLinkRepository persists Outlook/Graph delta-query continuation
// tokens.
type DeltaLinkRepository struct {
	db *gorm.DB
}

func NewDeltaLinkRepository(db *gorm.DB) *DeltaLinkRepository {
	return &DeltaLinkRepository{db: db}
}

func (r *DeltaLinkRepository) Get(ctx context.Context, accountID, folderID string) (*models.OutlookDeltaLink, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DeltaLinkRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var link models.OutlookDeltaLink
	err := r.db.First(&link, "account_id = ? AND folder_id = ?", accountID, folderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &link, nil
}

func (r *DeltaLinkRepository) Upsert(ctx context.Context, accountID, folderID, link string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DeltaLinkRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	row := &models.OutlookDeltaLink{
		AccountID:    accountID,
		FolderID:     folderID,
		Link:         link,
		LastSyncedAt: time.Now(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder_id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// MarkResyncRequired clears the stored link and flags the folder for a
// rebuild, as Graph's "resync required" response demands.
func (r *DeltaLinkRepository) MarkResyncRequired(ctx context.Context, accountID, folderID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DeltaLinkRepository.MarkResyncRequired")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.OutlookDeltaLink{}).
		Where("account_id = ? AND folder_id = ?", accountID, folderID).
		Updates(map[string]interface{}{"delta_link": "", "resync_required": true}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *DeltaLinkRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DeltaLinkRepository.DeleteByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Delete(&models.OutlookDeltaLink{}, "account_id = ?", accountID).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
