package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

func TestValidateOutgoingTaskRejectsInvalidFromAddress(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "not-an-address", To: []string{"bob@example.com"}}
	err := ValidateOutgoingTask(task, models.TaskControl{}, time.Now(), 14)
	assert.True(t, mailerrors.IsConfig(err))
}

func TestValidateOutgoingTaskRequiresAtLeastOneRecipient(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "alice@example.com"}
	err := ValidateOutgoingTask(task, models.TaskControl{}, time.Now(), 14)
	assert.True(t, mailerrors.IsConfig(err))
}

func TestValidateOutgoingTaskRejectsInvalidRecipient(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "alice@example.com", To: []string{"not-an-address"}}
	err := ValidateOutgoingTask(task, models.TaskControl{}, time.Now(), 14)
	assert.True(t, mailerrors.IsConfig(err))
}

func TestValidateOutgoingTaskAcceptsValidImmediateSend(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "alice@example.com", To: []string{"bob@example.com"}, Cc: []string{"carol@example.com"}}
	err := ValidateOutgoingTask(task, models.TaskControl{}, time.Now(), 14)
	assert.NoError(t, err)
}

func TestValidateOutgoingTaskRejectsPastScheduledAt(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "alice@example.com", To: []string{"bob@example.com"}}
	past := time.Now().Add(-time.Hour)
	err := ValidateOutgoingTask(task, models.TaskControl{ScheduledAt: &past}, time.Now(), 14)
	assert.True(t, mailerrors.IsConfig(err))
}

func TestValidateOutgoingTaskRejectsScheduledTooFarAhead(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "alice@example.com", To: []string{"bob@example.com"}}
	tooFar := time.Now().Add(20 * 24 * time.Hour)
	err := ValidateOutgoingTask(task, models.TaskControl{ScheduledAt: &tooFar}, time.Now(), 14)
	assert.True(t, mailerrors.IsConfig(err))
}

func TestValidateOutgoingTaskAcceptsScheduledWithinWindow(t *testing.T) {
	task := &models.OutgoingTask{FromAddress: "alice@example.com", To: []string{"bob@example.com"}}
	soon := time.Now().Add(2 * time.Hour)
	err := ValidateOutgoingTask(task, models.TaskControl{ScheduledAt: &soon}, time.Now(), 14)
	assert.NoError(t, err)
}
