package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/executors"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/internal/tracing"
	"github.com/mailforge/mailforge/interfaces"
)

// OutgoingWorkerPool pulls due rows from the outgoing task queue and drives
// each one through body retrieval, SMTP delivery (with DSN parameters and
// the task's own retry policy), and the post-send save-to-sent/answer-email
// actions.
type OutgoingWorkerPool struct {
	cfg       config.SyncConfig
	log       logger.Logger
	executors *executors.Executors
	accounts  *repository.AccountRepository
	folders   *repository.FolderRepository
	envelopes *repository.EnvelopeRepository
	tasks     *repository.OutgoingTaskRepository
	blobs     interfaces.BlobCache
	events    interfaces.EventSink
	hooks     interfaces.HookSubscriptions

	wg sync.WaitGroup
}

// NewOutgoingWorkerPool wires the worker pool to the task queue, the shared
// connection pools, and the external hook channel. events and hooks may be
// nil: a nil events skips event emission, and a nil hooks treats every event
// kind as subscribed. blobs is read for every task that is not a dry run;
// only the body cleanup step tolerates a nil blobs.
func NewOutgoingWorkerPool(
	cfg config.SyncConfig,
	log logger.Logger,
	execs *executors.Executors,
	accounts *repository.AccountRepository,
	folders *repository.FolderRepository,
	envelopes *repository.EnvelopeRepository,
	tasks *repository.OutgoingTaskRepository,
	blobs interfaces.BlobCache,
	events interfaces.EventSink,
	hooks interfaces.HookSubscriptions,
) *OutgoingWorkerPool {
	return &OutgoingWorkerPool{
		cfg:       cfg,
		log:       log,
		executors: execs,
		accounts:  accounts,
		folders:   folders,
		envelopes: envelopes,
		tasks:     tasks,
		blobs:     blobs,
		events:    events,
		hooks:     hooks,
	}
}

// Run starts the configured number of worker goroutines, each polling
// PullDue at a fixed interval until ctx is cancelled.
func (p *OutgoingWorkerPool) Run(ctx context.Context) {
	workers := p.cfg.OutgoingWorkerCount
	if workers <= 0 {
		workers = 4
	}
	interval := time.Duration(p.cfg.OutgoingPullIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := p.cfg.OutgoingPullBatchSize
	if batch <= 0 {
		batch = 20
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(ctx, interval, batch)
	}
}

// Wait blocks until every worker goroutine has returned; call after
// cancelling the context Run was given.
func (p *OutgoingWorkerPool) Wait() {
	p.wg.Wait()
}

func (p *OutgoingWorkerPool) worker(ctx context.Context, interval time.Duration, batch int) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tasks, err := p.tasks.PullDue(ctx, batch)
			if err != nil {
				p.log.Errorf("outgoing: failed to pull due tasks: %v", err)
				continue
			}
			for _, task := range tasks {
				p.process(ctx, task)
			}
		}
	}
}

// process runs one task through decode, body retrieval, delivery, and the
// post-send actions its control requested. Every failure path marks the
// task Failed or reschedules it rather than leaving it stuck Sending.
func (p *OutgoingWorkerPool) process(ctx context.Context, task *models.OutgoingTask) {
	span, ctx := tracing.StartTracerSpan(ctx, "OutgoingWorkerPool.process")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagEntity(span, task.ID)

	control, err := task.GetControl()
	if err != nil {
		p.fail(ctx, task, fmt.Errorf("decode control: %w", err))
		return
	}

	account, err := p.accounts.FindByID(ctx, task.AccountID)
	if err != nil {
		p.fail(ctx, task, fmt.Errorf("load account: %w", err))
		return
	}

	if control.DryRun {
		if err := p.tasks.MarkSent(ctx, task.ID); err != nil {
			p.log.Errorf("outgoing: failed to mark dry-run task %s sent: %v", task.ID, err)
		}
		p.deleteBody(ctx, task)
		return
	}

	body, err := p.blobs.Download(ctx, task.BodyBlobKey)
	if err != nil {
		p.retryOrFail(ctx, task, control, mailerrors.NewStorageError("outgoing.body_download", err))
		return
	}

	pool, err := p.resolveSMTP(ctx, account, control)
	if err != nil {
		p.retryOrFail(ctx, task, control, err)
		return
	}

	recipients := make([]string, 0, len(task.To)+len(task.Cc)+len(task.Bcc))
	recipients = append(recipients, task.To...)
	recipients = append(recipients, task.Cc...)
	recipients = append(recipients, task.Bcc...)

	if err := pool.SendWithDSN(task.FromAddress, recipients, body, control.DSN); err != nil {
		p.retryOrFail(ctx, task, control, err)
		return
	}

	if err := p.tasks.MarkSent(ctx, task.ID); err != nil {
		p.log.Errorf("outgoing: failed to mark task %s sent: %v", task.ID, err)
	}
	p.emit(ctx, account, enum.EventEmailSentSuccess, map[string]interface{}{
		"taskId":    task.ID,
		"messageId": task.MessageID,
		"to":        []string(task.To),
	})

	if control.SaveToSent && control.SentFolderID != "" {
		if err := p.saveToSent(ctx, account, control, body); err != nil {
			p.log.Warnf("outgoing: save-to-sent failed for task %s: %v", task.ID, err)
		}
	}
	if control.AnswerEmail != nil {
		if err := p.markAnswered(ctx, account, control.AnswerEmail); err != nil {
			p.log.Warnf("outgoing: answer-email flag update failed for task %s: %v", task.ID, err)
		}
	}

	p.deleteBody(ctx, task)
}

// retryOrFail reschedules task at the control's next retry time when err is
// transient and attempts remain, otherwise marks it permanently Failed.
func (p *OutgoingWorkerPool) retryOrFail(ctx context.Context, task *models.OutgoingTask, control models.TaskControl, err error) {
	maxAttempts := control.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if mailerrors.IsTransient(err) && task.Attempts+1 < maxAttempts {
		next := control.Retry.NextRetryAt(time.Now(), task.Attempts)
		if rerr := p.tasks.Reschedule(ctx, task.ID, next, task.Attempts+1, err.Error()); rerr != nil {
			p.log.Errorf("outgoing: failed to reschedule task %s: %v", task.ID, rerr)
		}
		return
	}
	p.fail(ctx, task, err)
}

func (p *OutgoingWorkerPool) fail(ctx context.Context, task *models.OutgoingTask, err error) {
	if ferr := p.tasks.MarkFailed(ctx, task.ID, err.Error()); ferr != nil {
		p.log.Errorf("outgoing: failed to mark task %s failed: %v", task.ID, ferr)
	}
	if account, accErr := p.accounts.FindByID(ctx, task.AccountID); accErr == nil {
		p.emit(ctx, account, enum.EventEmailSendingError, map[string]interface{}{
			"taskId": task.ID,
			"error":  err.Error(),
		})
	}
	p.deleteBody(ctx, task)
}

// resolveSMTP prefers an explicit MTA override (control.mta) over the
// account's own SMTP pool.
func (p *OutgoingWorkerPool) resolveSMTP(ctx context.Context, account *models.Account, control models.TaskControl) (*executors.SMTPPool, error) {
	if control.MTAID != "" {
		return p.executors.MTA(ctx, control.MTAID)
	}
	return p.executors.SMTP(ctx, account.ID)
}

// saveToSent appends the sent message to the mailbox control.sentFolderId
// names, the IMAP analogue of Gmail/Graph automatically filing a sent copy.
func (p *OutgoingWorkerPool) saveToSent(ctx context.Context, account *models.Account, control models.TaskControl, body []byte) error {
	folder, err := p.folders.FindByID(ctx, control.SentFolderID)
	if err != nil {
		return fmt.Errorf("load sent folder: %w", err)
	}
	imapPool, err := p.executors.IMAP(ctx, account.ID)
	if err != nil {
		return err
	}
	c, err := imapPool.Client()
	if err != nil {
		return err
	}
	if err := c.Append(folder.RemoteName, []string{goimap.SeenFlag}, time.Now(), bytes.NewReader(body)); err != nil {
		return mailerrors.NewProtocolError("imap.append", err)
	}
	return nil
}

// markAnswered flags the replied-to/forwarded message \Answered on the
// server and keeps the local envelope mirror's flag column consistent with
// that write, the same way the IMAP reconciler's incremental flag sync does.
func (p *OutgoingWorkerPool) markAnswered(ctx context.Context, account *models.Account, ref *models.AnswerReference) error {
	folder, err := p.folders.FindByID(ctx, ref.MailboxID)
	if err != nil {
		return fmt.Errorf("load answer-email folder: %w", err)
	}
	imapPool, err := p.executors.IMAP(ctx, account.ID)
	if err != nil {
		return err
	}
	c, err := imapPool.Client()
	if err != nil {
		return err
	}
	if _, err := c.Select(folder.RemoteName, false); err != nil {
		return mailerrors.NewProtocolError("imap.select", err)
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(ref.UID)
	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{goimap.AnsweredFlag}, nil); err != nil {
		return mailerrors.NewProtocolError("imap.uidstore", err)
	}

	uidKey := strconv.FormatUint(uint64(ref.UID), 10)
	env, err := p.envelopes.FindByKey(ctx, account.ID, folder.ID, uidKey)
	if err != nil || env == nil {
		return nil
	}
	if hasFlag(env.Flags, goimap.AnsweredFlag) {
		return nil
	}
	newFlags := append(append([]string{}, env.Flags...), goimap.AnsweredFlag)
	update := repository.FlagUpdate{UID: ref.UID, Flags: newFlags, FlagsHash: models.FlagsHash(newFlags)}
	return p.envelopes.ApplyFlagUpdates(ctx, account.ID, folder.ID, []repository.FlagUpdate{update})
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// deleteBody removes the cached outgoing body now that task has reached a
// terminal state (sent or permanently failed), so the blob store doesn't
// accumulate orphaned payloads.
func (p *OutgoingWorkerPool) deleteBody(ctx context.Context, task *models.OutgoingTask) {
	if p.blobs == nil || task.BodyBlobKey == "" {
		return
	}
	if err := p.blobs.Delete(ctx, task.BodyBlobKey); err != nil {
		p.log.Warnf("outgoing: failed to delete cached body %s for task %s: %v", task.BodyBlobKey, task.ID, err)
	}
}

// emit publishes eventType to the hook channel, skipping the call outright
// when nothing downstream is subscribed to it.
func (p *OutgoingWorkerPool) emit(ctx context.Context, account *models.Account, eventType enum.EventType, payload interface{}) {
	if p.events == nil {
		return
	}
	if p.hooks != nil {
		ok, err := p.hooks.IsSubscribed(ctx, account.ID, eventType)
		if err != nil {
			p.log.Warnf("outgoing: hook subscription check failed for account %s event %s: %v", account.ID, eventType, err)
		} else if !ok {
			return
		}
	}
	if err := p.events.Emit(ctx, interfaces.SyncEvent{
		AccountID:    account.ID,
		AccountEmail: account.EmailAddress,
		EventType:    eventType,
		Payload:      payload,
	}); err != nil {
		p.log.Warnf("outgoing: failed to emit %s for account %s: %v", eventType, account.ID, err)
	}
}
