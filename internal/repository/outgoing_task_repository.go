package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

// OutgoingTaskRepository is the durable send queue keyed by scheduled fire
// time.
type OutgoingTaskRepository struct {
	db *gorm.DB
}

func NewOutgoingTaskRepository(db *gorm.DB) *OutgoingTaskRepository {
	return &OutgoingTaskRepository{db: db}
}

// Submit inserts a task with fire_at = now + delay.
func (r *OutgoingTaskRepository) Submit(ctx context.Context, task *models.OutgoingTask, delay time.Duration) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.Submit")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	task.FireAt = time.Now().Add(delay)
	if err := r.db.Create(task).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// PullDue claims up to limit pending tasks whose fire_at has passed,
// marking them Sending so concurrent workers don't double-pick the same
// row.
func (r *OutgoingTaskRepository) PullDue(ctx context.Context, limit int) ([]*models.OutgoingTask, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.PullDue")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var tasks []*models.OutgoingTask
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND fire_at <= ?", models.OutgoingTaskPending, time.Now()).
			Order("fire_at ASC").Limit(limit).Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		ids := make([]string, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
			t.Status = models.OutgoingTaskSending
		}
		return tx.Model(&models.OutgoingTask{}).Where("id IN ?", ids).
			Update("status", models.OutgoingTaskSending).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return tasks, nil
}

// Reschedule reverts a task to Pending at a new fire time after a transient
// failure, recording the attempt count and last error.
func (r *OutgoingTaskRepository) Reschedule(ctx context.Context, id string, fireAt time.Time, attempts int, lastErr string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.Reschedule")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.OutgoingTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     models.OutgoingTaskPending,
		"fire_at":    fireAt,
		"attempts":   attempts,
		"last_error": lastErr,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *OutgoingTaskRepository) MarkSent(ctx context.Context, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.MarkSent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.OutgoingTask{}).Where("id = ?", id).
		Update("status", models.OutgoingTaskSent).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *OutgoingTaskRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.MarkFailed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.OutgoingTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     models.OutgoingTaskFailed,
		"last_error": lastErr,
	}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *OutgoingTaskRepository) FindByID(ctx context.Context, id string) (*models.OutgoingTask, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.FindByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var task models.OutgoingTask
	if err := r.db.First(&task, "id = ?", id).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &task, nil
}

func (r *OutgoingTaskRepository) Cancel(ctx context.Context, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "OutgoingTaskRepository.Cancel")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.OutgoingTask{}).
		Where("id = ? AND status = ?", id, models.OutgoingTaskPending).
		Update("status", models.OutgoingTaskCancelled).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
