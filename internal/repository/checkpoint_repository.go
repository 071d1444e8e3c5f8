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

// CheckpointRepository persists Gmail history-id resumption cursors.
type CheckpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Get(ctx context.Context, accountID, folderID string) (*models.GmailCheckpoint, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CheckpointRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var cp models.GmailCheckpoint
	err := r.db.First(&cp, "account_id = ? AND folder_id = ?", accountID, folderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &cp, nil
}

func (r *CheckpointRepository) Upsert(ctx context.Context, accountID, folderID, historyID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CheckpointRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	cp := &models.GmailCheckpoint{
		AccountID:    accountID,
		FolderID:     folderID,
		HistoryID:    historyID,
		LastSyncedAt: time.Now(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder_id"}},
		UpdateAll: true,
	}).Create(cp).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// MarkExpired flags a checkpoint's history id as expired, forcing the next
// tick's reconciler to fall back to a full rebuild of that folder.
func (r *CheckpointRepository) MarkExpired(ctx context.Context, accountID, folderID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CheckpointRepository.MarkExpired")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.GmailCheckpoint{}).
		Where("account_id = ? AND folder_id = ?", accountID, folderID).
		Update("history_expired", true).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *CheckpointRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CheckpointRepository.DeleteByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Delete(&models.GmailCheckpoint{}, "account_id = ?", accountID).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
