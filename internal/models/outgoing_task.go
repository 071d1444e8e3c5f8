package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/utils"
)

// DSNParams carries RFC 3461 delivery-status-notification request
// parameters applied to the MAIL/RCPT command of an outgoing send.
type DSNParams struct {
	RET    string `json:"ret,omitempty"`    // "FULL" | "HDRS"
	ENVID  string `json:"envid,omitempty"`
	NOTIFY string `json:"notify,omitempty"` // "NEVER" | "SUCCESS,FAILURE,DELAY" combination
	ORCPT  string `json:"orcpt,omitempty"`
}

// RetryConfig selects the backoff curve applied on transient send failure.
type RetryConfig struct {
	Policy      enum.RetryPolicy `json:"policy"`
	BaseSeconds int              `json:"baseSeconds"`
	MaxAttempts int              `json:"maxAttempts"`
}

// NextRetryAt computes the fire time of the next attempt given the number
// of attempts already made (0-indexed).
func (r RetryConfig) NextRetryAt(now time.Time, attempt int) time.Time {
	switch r.Policy {
	case enum.RetryExponential:
		backoff := r.BaseSeconds
		for i := 0; i < attempt; i++ {
			backoff *= 2
		}
		return now.Add(time.Duration(backoff) * time.Second)
	default: // RetryLinear
		return now.Add(time.Duration(r.BaseSeconds) * time.Second)
	}
}

// AnswerReference requests a post-send flag update on the message this
// outgoing task replies to or forwards.
type AnswerReference struct {
	MailboxID      string `json:"mailboxId"`
	UID            uint32 `json:"uid"`
	ReplyOrForward string `json:"replyOrForward"` // "reply" | "forward"
}

// TaskControl carries every non-addressing option of an outgoing task.
type TaskControl struct {
	DryRun        bool             `json:"dryRun"`
	SaveToSent    bool             `json:"saveToSent"`
	SentFolderID  string           `json:"sentFolderId,omitempty"`
	ScheduledAt   *time.Time       `json:"scheduledAt,omitempty"`
	Retry         RetryConfig      `json:"retry"`
	DSN           DSNParams        `json:"dsn"`
	MTAID         string           `json:"mtaId,omitempty"`
	CampaignID    string           `json:"campaignId,omitempty"`
	TrackingOn    bool             `json:"trackingOn"`
	AnswerEmail   *AnswerReference `json:"answerEmail,omitempty"`
}

// OutgoingTaskStatus is the lifecycle state of a queued send.
type OutgoingTaskStatus string

const (
	OutgoingTaskPending   OutgoingTaskStatus = "pending"
	OutgoingTaskSending   OutgoingTaskStatus = "sending"
	OutgoingTaskSent      OutgoingTaskStatus = "sent"
	OutgoingTaskFailed    OutgoingTaskStatus = "failed"
	OutgoingTaskCancelled OutgoingTaskStatus = "cancelled"
)

// OutgoingTask is a persisted send job, keyed by scheduled fire time so the
// worker pool can pull due work with an index range scan.
type OutgoingTask struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`

	FromAddress string         `gorm:"column:from_address;type:varchar(320);not null" json:"from"`
	To          pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"to"`
	Cc          pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"cc"`
	Bcc         pq.StringArray `gorm:"column:bcc_addresses;type:text[]" json:"bcc"`
	Subject     string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	MessageID   string         `gorm:"column:message_id;type:varchar(998)" json:"messageId"`
	BodyBlobKey string         `gorm:"column:body_blob_key;type:varchar(500);not null" json:"bodyBlobKey"`

	Control JSONMap `gorm:"column:control;type:jsonb" json:"control"`

	Status      OutgoingTaskStatus `gorm:"column:status;type:varchar(20);index;not null;default:pending" json:"status"`
	FireAt      time.Time          `gorm:"column:fire_at;index;not null" json:"fireAt"`
	Attempts    int                `gorm:"column:attempts;default:0" json:"attempts"`
	LastError   string             `gorm:"column:last_error;type:text" json:"lastError,omitempty"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (OutgoingTask) TableName() string {
	return "sync_outgoing_tasks"
}

func (t *OutgoingTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("otask", 21)
	}
	if t.Status == "" {
		t.Status = OutgoingTaskPending
	}
	return nil
}

// SetControl re-encodes a typed TaskControl into the stored JSONMap column.
func (t *OutgoingTask) SetControl(c TaskControl) error {
	raw, err := marshalToMap(c)
	if err != nil {
		return err
	}
	t.Control = raw
	return nil
}

// GetControl decodes the stored JSONMap column into a typed TaskControl.
func (t *OutgoingTask) GetControl() (TaskControl, error) {
	var c TaskControl
	if err := unmarshalFromMap(t.Control, &c); err != nil {
		return TaskControl{}, err
	}
	return c, nil
}
