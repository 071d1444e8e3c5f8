package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) FindByID(ctx context.Context, threadID string) (*models.Thread, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ThreadRepository.FindByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var thread models.Thread
	if err := r.db.First(&thread, "thread_id = ?", threadID).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &thread, nil
}

func (r *ThreadRepository) ListByFolder(ctx context.Context, accountID, folderID string, offset, limit int) ([]*models.Thread, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ThreadRepository.ListByFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var threads []*models.Thread
	err := r.db.Where("account_id = ? AND folder_id = ?", accountID, folderID).
		Order("newest_internal_date_ms DESC").Offset(offset).Limit(limit).Find(&threads).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return threads, nil
}

func (r *ThreadRepository) CleanByAccount(ctx context.Context, accountID string, batchSize int) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ThreadRepository.CleanByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.Limit(batchSize).Delete(&models.Thread{}, "account_id = ?", accountID)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
