package scheduler

import (
	"fmt"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// ValidateOutgoingTask checks a task's addressing and scheduling before it
// is submitted to the queue: every address must be syntactically valid, at
// least one recipient is required, and a caller-supplied send_at must fall
// strictly in the future and no further ahead than maxScheduleAheadDays.
func ValidateOutgoingTask(task *models.OutgoingTask, control models.TaskControl, now time.Time, maxScheduleAheadDays int) error {
	if task.FromAddress == "" || !mailvalidate.ValidateEmailSyntax(task.FromAddress).IsValid {
		return mailerrors.NewConfigError("outgoing_task.validate", fmt.Errorf("invalid from address %q", task.FromAddress))
	}
	if len(task.To) == 0 {
		return mailerrors.NewConfigError("outgoing_task.validate", fmt.Errorf("at least one recipient is required"))
	}
	for _, group := range [][]string{task.To, task.Cc, task.Bcc} {
		for _, addr := range group {
			if !mailvalidate.ValidateEmailSyntax(addr).IsValid {
				return mailerrors.NewConfigError("outgoing_task.validate", fmt.Errorf("invalid address %q", addr))
			}
		}
	}

	if control.ScheduledAt == nil {
		return nil
	}
	sendAt := *control.ScheduledAt
	if !sendAt.After(now) {
		return mailerrors.NewConfigError("outgoing_task.validate", fmt.Errorf("send_at %s must be in the future", sendAt))
	}
	if maxScheduleAheadDays > 0 {
		if max := now.Add(time.Duration(maxScheduleAheadDays) * 24 * time.Hour); sendAt.After(max) {
			return mailerrors.NewConfigError("outgoing_task.validate", fmt.Errorf("send_at %s is more than %d days ahead", sendAt, maxScheduleAheadDays))
		}
	}
	return nil
}
