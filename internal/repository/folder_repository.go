package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

type FolderRepository struct {
	db *gorm.DB
}

func NewFolderRepository(db *gorm.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Upsert(ctx context.Context, folder *models.Folder) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if folder.ID == "" {
		folder.ID = models.FolderID(folder.AccountID, folder.RemoteName)
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(folder).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *FolderRepository) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.FindByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var folder models.Folder
	if err := r.db.First(&folder, "id = ?", id).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &folder, nil
}

// ListByAccount returns every known folder for the account, used to compare
// against the remote folder listing for creation/deletion detection.
func (r *FolderRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Folder, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var folders []*models.Folder
	if err := r.db.Where("account_id = ?", accountID).Find(&folders).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return folders, nil
}

func (r *FolderRepository) Delete(ctx context.Context, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.Delete(&models.Folder{}, "id = ?", id).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateUIDValidity resets a folder's UIDVALIDITY marker; callers must
// follow this with a full rebuild of that folder's envelopes.
func (r *FolderRepository) UpdateUIDValidity(ctx context.Context, id string, uidValidity, uidNext uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.UpdateUIDValidity")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.Folder{}).Where("id = ?", id).Updates(map[string]interface{}{
		"uid_validity": uidValidity,
		"uid_next":     uidNext,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateMetadata persists UIDNEXT, HIGHESTMODSEQ, and the exists count
// observed by a reconciliation pass. Callers must only call this after the
// reconciliation it describes has fully committed; writing it earlier would
// let a crash mid-reconcile skip UIDs on the next incremental pass.
func (r *FolderRepository) UpdateMetadata(ctx context.Context, id string, uidNext uint32, highestModSeq uint64, exists uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.UpdateMetadata")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.Folder{}).Where("id = ?", id).Updates(map[string]interface{}{
		"uid_next":        uidNext,
		"highest_mod_seq": highestModSeq,
		"exists_count":    exists,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// CleanByAccount deletes a single batch (at most batchSize rows) of folders
// belonging to the account; callers loop until zero rows are affected,
// keeping each call resumable.
func (r *FolderRepository) CleanByAccount(ctx context.Context, accountID string, batchSize int) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "FolderRepository.CleanByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ids []string
	if err := r.db.Model(&models.Folder{}).
		Where("account_id = ?", accountID).
		Limit(batchSize).Pluck("id", &ids).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Delete(&models.Folder{}, "id IN ?", ids)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
