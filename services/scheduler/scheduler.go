// Package scheduler drives the per-account sync cadence: one tick goroutine
// per enabled account decides, every SyncConfig.TickIntervalSeconds, whether
// this pass runs a full reconciliation, an incremental one, or nothing, then
// dispatches to the matching provider reconciler. A leader-election gate
// mirrors internal/cron's CronManager so only one replica of a multi-pod
// deployment drives sync traffic at a time.
package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/internal/tracing"
)

const (
	leaseDuration = 15 * time.Second
	renewDeadline = 10 * time.Second
	retryPeriod   = 2 * time.Second
	leaseName     = "mailforge-sync-leader"
)

// Reconciler is the narrow surface every provider reconciler (IMAP, Gmail,
// Outlook) exposes to the scheduler: one sync pass for one account. syncType
// is the scheduler's decision for this tick; the IMAP reconciler uses it to
// pick between its fast/new-mail/full-walk paths per folder, while Gmail and
// Outlook drive their own per-label/per-folder decision from checkpoint
// state and only use it to decide whether an expired checkpoint still forces
// a rebuild.
type Reconciler interface {
	Sync(ctx context.Context, account *models.Account, syncType enum.SyncType) error
}

// controlMessage is a trigger_start or stop request delivered over a
// bounded channel; a caller whose send would block instead drops the
// request and logs it rather than stalling.
type controlMessage struct {
	accountID string
	start     bool
}

// accountError is one entry destined for an account's rolling error buffer,
// queued so the PushError write (which blocks on the database) never runs
// on a tick goroutine's hot path.
type accountError struct {
	accountID string
	entry     models.RunningStateError
}

// Scheduler owns one tick goroutine per running account plus the control
// and error-buffer drain loops. Construct with NewScheduler and call Start
// once after every dependency is wired.
type Scheduler struct {
	cfg          config.SyncConfig
	log          logger.Logger
	accounts     *repository.AccountRepository
	runningState *repository.RunningStateRepository
	reconcilers  map[enum.MailerType]Reconciler
	k8s          kubernetes.Interface

	control  chan controlMessage
	errorsCh chan accountError
	throttle *logThrottle

	mu         sync.Mutex
	cancels    map[string]context.CancelFunc
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler wires the scheduler to the account/running-state stores and
// the per-MailerType reconciler table. k8s may be nil, in which case Start
// always runs in local (non-elected) mode regardless of LOCAL_DEV.
func NewScheduler(
	cfg config.SyncConfig,
	log logger.Logger,
	accounts *repository.AccountRepository,
	runningState *repository.RunningStateRepository,
	reconcilers map[enum.MailerType]Reconciler,
	k8s kubernetes.Interface,
) *Scheduler {
	controlCap := cfg.ControlChannelCapacity
	if controlCap <= 0 {
		controlCap = 100
	}
	errCap := cfg.ErrorBufferCapacity
	if errCap <= 0 {
		errCap = 100
	}

	return &Scheduler{
		cfg:          cfg,
		log:          log,
		accounts:     accounts,
		runningState: runningState,
		reconcilers:  reconcilers,
		k8s:          k8s,
		control:      make(chan controlMessage, controlCap),
		errorsCh:     make(chan accountError, errCap),
		throttle:     newLogThrottle(),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Start seeds a tick goroutine for every currently enabled account and
// begins serving TriggerStart/StopAccount requests. If k8s is nil or
// LOCAL_DEV=true it runs immediately in local mode; otherwise it only runs
// while holding the leader lease, falling back to local mode if leader
// election itself fails to initialize within 5 seconds.
func (s *Scheduler) Start(podName, namespace string) error {
	if s.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		s.log.Info("scheduler: starting in local mode (no leader election)")
		return s.startLocal()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      leaseName,
			Namespace: namespace,
		},
		Client: s.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)
	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   leaseDuration,
			RenewDeadline:   renewDeadline,
			RetryPeriod:     retryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := s.startLocal(); err != nil {
						s.log.Errorf("scheduler: failed to start sync loops after winning leadership: %v", err)
					}
				},
				OnStoppedLeading: func() {
					s.log.Info("scheduler: leadership lost, stopping sync loops")
					s.Stop()
				},
				OnNewLeader: func(identity string) {
					s.log.Infof("scheduler: new leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}
		le.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		s.log.Warnf("scheduler: leader election failed, falling back to local mode: %v", err)
		return s.startLocal()
	case <-time.After(5 * time.Second):
	}
	return nil
}

// Stop cancels every running tick goroutine and blocks until they return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.rootCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// TriggerStart requests accountID's tick loop start immediately — used when
// an account is created or re-enabled rather than waiting for the next
// process restart to pick it up.
func (s *Scheduler) TriggerStart(accountID string) {
	select {
	case s.control <- controlMessage{accountID: accountID, start: true}:
	default:
		s.log.Warnf("scheduler: control channel full, dropped trigger_start for account %s", accountID)
	}
}

// StopAccount requests accountID's tick loop stop at its next suspension
// point — used on soft-disable ahead of the purge pass.
func (s *Scheduler) StopAccount(accountID string) {
	select {
	case s.control <- controlMessage{accountID: accountID, start: false}:
	default:
		s.log.Warnf("scheduler: control channel full, dropped stop for account %s", accountID)
	}
}

func (s *Scheduler) startLocal() error {
	s.mu.Lock()
	rootCtx, cancel := context.WithCancel(context.Background())
	s.rootCancel = cancel
	s.mu.Unlock()

	accounts, err := s.accounts.FindEnabled(rootCtx)
	if err != nil {
		return err
	}

	s.wg.Add(2)
	go s.runControlLoop(rootCtx)
	go s.runErrorLoop(rootCtx)

	for _, account := range accounts {
		s.startAccount(rootCtx, account.ID)
	}
	return nil
}

func (s *Scheduler) startAccount(parent context.Context, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.cancels[accountID]; running {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancels[accountID] = cancel
	s.wg.Add(1)
	go s.runAccountLoop(ctx, accountID)
}

func (s *Scheduler) stopAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[accountID]; ok {
		cancel()
		delete(s.cancels, accountID)
	}
}

func (s *Scheduler) runControlLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.control:
			if msg.start {
				s.startAccount(ctx, msg.accountID)
			} else {
				s.stopAccount(msg.accountID)
			}
		}
	}
}

func (s *Scheduler) runErrorLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ae := <-s.errorsCh:
			if err := s.runningState.PushError(context.Background(), ae.accountID, ae.entry, s.cfg.ErrorBufferCapacity); err != nil {
				s.log.Errorf("scheduler: failed to persist running-state error for account %s: %v", ae.accountID, err)
			}
		}
	}
}

func (s *Scheduler) runAccountLoop(ctx context.Context, accountID string) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, accountID)
		}
	}
}

// tick runs the disabled/oauth-missing skip checks, decides this pass's
// sync type, and dispatches to the matching reconciler. A skip decision, a
// missing reconciler, or a reconcile failure never cancels the account's
// loop — the next tick tries again.
func (s *Scheduler) tick(ctx context.Context, accountID string) {
	span, ctx := tracing.StartTracerSpan(ctx, "Scheduler.tick")
	defer span.Finish()
	tracing.TagComponentCronJob(span)
	tracing.TagEntity(span, accountID)

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		s.log.Warnf("scheduler: tick for unknown account %s: %v", accountID, err)
		return
	}

	if !account.Enabled {
		s.throttle.logf(accountID, "disabled", s.skipLogInterval(), func() {
			s.log.Infof("scheduler: skipping disabled account %s", accountID)
		})
		return
	}

	if requiresOAuth2(account) && account.OAuthAccessToken == "" {
		s.throttle.logf(accountID, "no_oauth_token", s.skipLogInterval(), func() {
			s.log.Warnf("scheduler: skipping account %s, no OAuth token on file", accountID)
		})
		return
	}

	state, err := s.runningState.Get(ctx, accountID)
	if err != nil {
		s.log.Errorf("scheduler: failed to load running state for account %s: %v", accountID, err)
		return
	}

	syncType := decideSyncType(state, account, time.Now())
	if syncType == enum.SyncSkip {
		return
	}

	if err := s.runSync(ctx, account, syncType); err != nil {
		s.log.Warnf("scheduler: %s sync failed for account %s: %v", syncType, accountID, err)
		s.pushError(accountID, "sync", err)
	}
}

func (s *Scheduler) pushError(accountID, kind string, err error) {
	entry := models.RunningStateError{At: time.Now(), Kind: kind, Message: err.Error()}
	select {
	case s.errorsCh <- accountError{accountID: accountID, entry: entry}:
	default:
		s.log.Warnf("scheduler: error buffer full, dropped error entry for account %s: %v", accountID, err)
	}
}

func (s *Scheduler) skipLogInterval() time.Duration {
	minutes := s.cfg.DisabledAccountLogEveryMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// logThrottle suppresses a repeated log line for the same (accountID,
// reason) pair until the configured interval has elapsed.
type logThrottle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newLogThrottle() *logThrottle {
	return &logThrottle{last: make(map[string]time.Time)}
}

func (t *logThrottle) logf(accountID, reason string, every time.Duration, emit func()) {
	key := accountID + ":" + reason
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[key]; ok && time.Since(last) < every {
		return
	}
	t.last[key] = time.Now()
	emit()
}
