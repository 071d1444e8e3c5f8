package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	k8srest "k8s.io/client-go/rest"
	"k8s.io/client-go/kubernetes"
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/interfaces"
	"github.com/mailforge/mailforge/internal/database"
	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/executors"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/internal/tracing"
	"github.com/mailforge/mailforge/services"
	"github.com/mailforge/mailforge/services/events"
	"github.com/mailforge/mailforge/services/scheduler"
	"github.com/mailforge/mailforge/services/storage"
	gmailsync "github.com/mailforge/mailforge/services/sync/gmail"
	imapsync "github.com/mailforge/mailforge/services/sync/imap"
	outlooksync "github.com/mailforge/mailforge/services/sync/outlook"
)

type Server struct {
	config       *config.Config
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	executors    *executors.Executors
	scheduler    *scheduler.Scheduler
	outgoingPool *scheduler.OutgoingWorkerPool
	tracerCloser io.Closer
	rootCancel   context.CancelFunc

	// metaDB and snapshot fields are only meaningful in
	// DatabaseConfig.MemoryOnly mode; snapshotStop is nil otherwise.
	metaDB       *gorm.DB
	snapshotDir  string
	snapshotEvry time.Duration
	snapshotStop chan struct{}
	snapshotDone chan struct{}
}

// buildK8sClient returns an in-cluster Kubernetes client for the scheduler's
// leader election, or nil when no in-cluster config is available (local
// development, or LOCAL_DEV=true), in which case the scheduler runs every
// replica in local mode instead of electing a single leader.
func buildK8sClient(log logger.Logger) kubernetes.Interface {
	if os.Getenv("LOCAL_DEV") == "true" {
		return nil
	}
	restCfg, err := k8srest.InClusterConfig()
	if err != nil {
		log.Infof("scheduler: no in-cluster config available, running without leader election: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		log.Warnf("scheduler: failed to build kubernetes client, running without leader election: %v", err)
		return nil
	}
	return client
}

func NewServer(cfg *config.Config, mailstackDB *gorm.DB, metaDB *gorm.DB) (*Server, error) {
	// Initialize logger
	logger := logger.NewAppLogger(cfg.Logger)
	logger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, logger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(mailstackDB, metaDB, cfg.BlobStorageConfig, logger)

	// Initialize the connection executor pools shared by the reconcilers
	// and the outgoing-task workers.
	execs := executors.NewExecutors(repos.AccountRepository, repos.RunningStateRepository, logger, cfg.SyncConfig.ErrorBufferCapacity)

	// Initialize services
	svcs, err := services.InitServices(cfg.RabbitConfig.URL, logger)
	if err != nil {
		return nil, err
	}

	// Sync engine wiring: one EventSink shared by every reconciler and the
	// outgoing worker pool, one blob cache bucket for outgoing bodies
	// (inline attachments use their own bucket, wired in InitRepositories),
	// and a reconciler per mailer type dispatched to by the scheduler.
	syncEvents := events.NewSyncEventSink(svcs.EventsService.Publisher)
	outgoingBodies := storage.NewR2StorageService(
		cfg.BlobStorageConfig.AccountID,
		cfg.BlobStorageConfig.AccessKeyID,
		cfg.BlobStorageConfig.AccessKeySecret,
		cfg.BlobStorageConfig.OutgoingBodyBucket,
		false,
	)

	var hooks interfaces.HookSubscriptions // nil: every event kind is treated as subscribed
	syncCfg := *cfg.SyncConfig

	reconcilers := map[enum.MailerType]scheduler.Reconciler{
		enum.MailerImapSmtp: imapsync.NewReconciler(
			execs, repos.AccountRepository, repos.FolderRepository, repos.EnvelopeRepository,
			repos.FlagIndex, repos.RunningStateRepository, hooks, syncEvents, outgoingBodies, logger, syncCfg,
		),
		enum.MailerGmailApi: gmailsync.NewReconciler(
			execs, repos.FolderRepository, repos.EnvelopeRepository, repos.CheckpointRepository,
			hooks, syncEvents, outgoingBodies, logger, syncCfg,
		),
		enum.MailerGraphApi: outlooksync.NewReconciler(
			execs, repos.FolderRepository, repos.EnvelopeRepository, repos.DeltaLinkRepository,
			hooks, syncEvents, outgoingBodies, logger, syncCfg,
		),
	}

	sched := scheduler.NewScheduler(syncCfg, logger, repos.AccountRepository, repos.RunningStateRepository, reconcilers, buildK8sClient(logger))
	outgoingPool := scheduler.NewOutgoingWorkerPool(
		syncCfg, logger, execs, repos.AccountRepository, repos.FolderRepository, repos.EnvelopeRepository,
		repos.OutgoingTaskRepository, outgoingBodies, syncEvents, hooks,
	)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	snapshotEvery := time.Duration(cfg.DatabaseConfig.SnapshotEvery) * time.Minute
	if snapshotEvery <= 0 {
		snapshotEvery = 10 * time.Minute
	}

	return &Server{
		config:       cfg,
		router:       router,
		services:     svcs,
		repositories: repos,
		executors:    execs,
		scheduler:    sched,
		outgoingPool: outgoingPool,
		tracerCloser: closer,
		metaDB:       metaDB,
		snapshotDir:  cfg.DatabaseConfig.SnapshotDir,
		snapshotEvry: snapshotEvery,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		// Log panic details
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	// Create root context for the application. Ownership of cancel moves to
	// waitForShutdown, which must cancel it before waiting on components
	// (the outgoing worker pool) that only stop in response to ctx.Done.
	ctx, cancel := context.WithCancel(context.Background())
	s.rootCancel = cancel

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Start the sync scheduler and the outgoing-task worker pool.
	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	namespace := os.Getenv("POD_NAMESPACE")
	if namespace == "" {
		namespace = "default"
	}
	log.Println("Starting sync scheduler...")
	s.wrapGoroutine("sync_scheduler", func() {
		if err := s.scheduler.Start(podName, namespace); err != nil {
			log.Printf("❌ sync scheduler error: %v", err)
		}
	})
	log.Println("✅ sync scheduler started successfully")

	log.Println("Starting outgoing-task worker pool...")
	s.wrapGoroutine("outgoing_worker_pool", func() {
		s.outgoingPool.Run(ctx)
	})
	log.Println("✅ outgoing-task worker pool started successfully")

	if s.config.DatabaseConfig.MemoryOnly {
		log.Println("Starting metadata snapshot loop...")
		s.snapshotStop = make(chan struct{})
		s.snapshotDone = make(chan struct{})
		go s.wrapGoroutine("metadata_snapshot", s.runSnapshotLoop)
		log.Println("✅ metadata snapshot loop started successfully")
	}

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})
	log.Println("✅ HTTP server started successfully")
	log.Println("MailStack is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

// runSnapshotLoop periodically writes metaDB out to snapshotDir until
// snapshotStop is closed. It only runs in DatabaseConfig.MemoryOnly mode,
// where metaDB is an in-RAM store with nothing else persisting its rows.
func (s *Server) runSnapshotLoop() {
	defer close(s.snapshotDone)

	ticker := time.NewTicker(s.snapshotEvry)
	defer ticker.Stop()

	for {
		select {
		case <-s.snapshotStop:
			return
		case <-ticker.C:
			if err := database.Snapshot(s.metaDB, s.snapshotDir); err != nil {
				log.Printf("❌ metadata snapshot error: %v", err)
			}
		}
	}
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Wait for termination signal
	<-stop
	log.Println("Shutting down...")

	// Cancel the root context first so the outgoing worker pool's workers
	// notice ctx.Done and return; everything below waits on that.
	if s.rootCancel != nil {
		s.rootCancel()
	}

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Shut down HTTP server
	log.Println("Shutting down HTTP server...")
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	// Stop the sync scheduler and let in-flight outgoing sends drain.
	log.Println("Stopping sync scheduler...")
	s.scheduler.Stop()
	log.Println("✅ sync scheduler stopped successfully")

	if s.snapshotStop != nil {
		log.Println("Stopping metadata snapshot loop...")
		close(s.snapshotStop)
		<-s.snapshotDone
		if err := database.Snapshot(s.metaDB, s.snapshotDir); err != nil {
			log.Printf("❌ final metadata snapshot error: %v", err)
		}
		log.Println("✅ metadata snapshot loop stopped successfully")
	}

	outgoingDone := make(chan struct{})
	go s.wrapGoroutine("outgoing_worker_pool_shutdown", func() {
		defer close(outgoingDone)
		s.outgoingPool.Wait()
	})
	select {
	case <-outgoingDone:
		log.Println("✅ outgoing-task worker pool stopped successfully")
	case <-time.After(10 * time.Second):
		log.Println("⚠️ outgoing-task worker pool stop timed out, forcing exit")
	}

	return nil
}
