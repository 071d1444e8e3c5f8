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

type RunningStateRepository struct {
	db *gorm.DB
}

func NewRunningStateRepository(db *gorm.DB) *RunningStateRepository {
	return &RunningStateRepository{db: db}
}

func (r *RunningStateRepository) Get(ctx context.Context, accountID string) (*models.AccountRunningState, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var state models.AccountRunningState
	err := r.db.First(&state, "account_id = ?", accountID).Error
	if err == gorm.ErrRecordNotFound {
		return &models.AccountRunningState{AccountID: accountID}, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &state, nil
}

func (r *RunningStateRepository) Upsert(ctx context.Context, state *models.AccountRunningState) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	state.UpdatedAt = time.Now()
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		UpdateAll: true,
	}).Create(state).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// RecordFullSyncStart stamps the beginning of a full-sync pass, used by the
// scheduler before dispatching a Full reconciliation.
func (r *RunningStateRepository) RecordFullSyncStart(ctx context.Context, accountID string, at time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.RecordFullSyncStart")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.touch(accountID, map[string]interface{}{"last_full_sync_start": at}, span)
}

func (r *RunningStateRepository) RecordFullSyncEnd(ctx context.Context, accountID string, at time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.RecordFullSyncEnd")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.touch(accountID, map[string]interface{}{"last_full_sync_end": at}, span)
}

func (r *RunningStateRepository) RecordIncrementalSyncStart(ctx context.Context, accountID string, at time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.RecordIncrementalSyncStart")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.touch(accountID, map[string]interface{}{"last_incremental_sync_start": at}, span)
}

func (r *RunningStateRepository) RecordIncrementalSyncEnd(ctx context.Context, accountID string, at time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.RecordIncrementalSyncEnd")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.touch(accountID, map[string]interface{}{"last_incremental_sync_end": at}, span)
}

// PushError appends one entry to the account's bounded rolling error
// buffer, trimming the oldest entries once capacity is exceeded.
func (r *RunningStateRepository) PushError(ctx context.Context, accountID string, entry models.RunningStateError, capacity int) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "RunningStateRepository.PushError")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	state, err := r.Get(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	var errs []models.RunningStateError
	if state.RecentErrors != nil {
		if raw, ok := state.RecentErrors["entries"]; ok {
			_ = decodeInto(raw, &errs)
		}
	}
	errs = append(errs, entry)
	if len(errs) > capacity {
		errs = errs[len(errs)-capacity:]
	}

	state.RecentErrors = models.JSONMap{"entries": errs}
	return r.Upsert(ctx, state)
}

func (r *RunningStateRepository) touch(accountID string, fields map[string]interface{}, span opentracing.Span) error {
	err := r.db.Model(&models.AccountRunningState{}).
		Where("account_id = ?", accountID).
		Updates(fields).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
