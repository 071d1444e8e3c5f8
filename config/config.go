package config

import (
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/tracing"
)

type AppConfig struct {
	APIPort           string `env:"PORT,required" envDefault:"12222"`
	APIKey            string `env:"API_KEY,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	TrackingPublicUrl string `env:"TRACKING_PUBLIC_URL" envDefault:"https://custosmetrics.com"`
	Logger            *logger.Config
	Tracing           *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE"`
	// MemoryOnly holds the metadata and task stores (accounts, checkpoints,
	// delta links, running state, outgoing tasks) in RAM instead of Postgres,
	// backed by periodic snapshot files. The envelope store (folders,
	// envelopes, threads, address rows) always stays on Postgres: it is
	// rebuildable by re-running sync against the mail server and holding a
	// full mailbox body cache in RAM has no resiliency upside.
	MemoryOnly    bool   `env:"DB_MEMORY_ONLY" envDefault:"false"`
	SnapshotDir   string `env:"DB_SNAPSHOT_DIR" envDefault:"./data/snapshots"`
	SnapshotEvery int    `env:"DB_SNAPSHOT_EVERY_MINUTES" envDefault:"10"`
}

// BlobStorageConfig configures the R2-compatible object store used as the
// disk cache for outgoing bodies and resolved inline-attachment payloads.
type BlobStorageConfig struct {
	AccountID           string `env:"CLOUDFLARE_R2_ACCOUNT_ID,required"`
	AccessKeyID         string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID,required"`
	AccessKeySecret     string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET,required"`
	OutgoingBodyBucket  string `env:"BUCKET_NAME_OUTGOING_BODY" envDefault:"outgoing-bodies"`
	InlineAttachBucket  string `env:"BUCKET_NAME_INLINE_ATTACHMENTS" envDefault:"inline-attachments"`
}

// SyncConfig carries the sync engine's tunables: fan-out semaphore sizes,
// the incremental fast-path threshold, and batch sizes used across
// rebuild/reconcile.
type SyncConfig struct {
	TickIntervalSeconds    int `env:"SYNC_TICK_INTERVAL_SECONDS" envDefault:"10"`
	FetchConcurrency       int `env:"SYNC_FETCH_CONCURRENCY" envDefault:"5"`
	FastPathWindow         int `env:"SYNC_FAST_PATH_WINDOW" envDefault:"200"`
	RebuildBatchSize       int `env:"SYNC_REBUILD_BATCH_SIZE" envDefault:"1000"`
	ReconcileWindowSize    int `env:"SYNC_RECONCILE_WINDOW_SIZE" envDefault:"10000"`
	CleanupBatchSize       int `env:"SYNC_CLEANUP_BATCH_SIZE" envDefault:"200"`
	MinFolderLimit         int `env:"SYNC_MIN_FOLDER_LIMIT" envDefault:"100"`
	MaxConcurrentLoads     int `env:"SYNC_MAX_CONCURRENT_LOADS" envDefault:"10"`
	ErrorBufferCapacity    int `env:"SYNC_ERROR_BUFFER_CAPACITY" envDefault:"100"`
	ControlChannelCapacity int `env:"SYNC_CONTROL_CHANNEL_CAPACITY" envDefault:"100"`
	// MaxBodyContentBytes bounds how much of a message's body parts the
	// EmailAddedToFolder hook payload fetches, per-part, when the hook is
	// subscribed.
	MaxBodyContentBytes int `env:"SYNC_MAX_BODY_CONTENT_BYTES" envDefault:"2000000"`

	// FullSyncIntervalMinutes and IncrementalSyncIntervalSeconds are read
	// from the environment, but the scheduler does not use them:
	// decideSyncType takes the intervals from the account's own
	// FullSyncIntervalMinutes and IncrementalSyncIntervalSeconds fields,
	// falling back to 24 hours and 60 seconds when those are zero.
	FullSyncIntervalMinutes        int `env:"SYNC_FULL_SYNC_INTERVAL_MINUTES" envDefault:"360"`
	IncrementalSyncIntervalSeconds int `env:"SYNC_INCREMENTAL_SYNC_INTERVAL_SECONDS" envDefault:"30"`
	// DisabledAccountLogEveryMinutes throttles the repeated skip-log lines
	// emitted for a disabled account or one missing an OAuth token.
	DisabledAccountLogEveryMinutes int `env:"SYNC_DISABLED_LOG_EVERY_MINUTES" envDefault:"10"`

	// OutgoingWorkerCount is how many goroutines pull and send due outgoing
	// tasks concurrently.
	OutgoingWorkerCount int `env:"SYNC_OUTGOING_WORKER_COUNT" envDefault:"4"`
	// OutgoingPullBatchSize is how many due tasks a single PullDue call
	// claims at once.
	OutgoingPullBatchSize int `env:"SYNC_OUTGOING_PULL_BATCH_SIZE" envDefault:"20"`
	// OutgoingPullIntervalSeconds is how often an idle worker polls for newly
	// due tasks.
	OutgoingPullIntervalSeconds int `env:"SYNC_OUTGOING_PULL_INTERVAL_SECONDS" envDefault:"5"`
	// MaxScheduleAheadDays is a bound on how far in the future an outgoing
	// task's send_at may lie. No package reads this field;
	// ValidateOutgoingTask takes the bound as an argument from its caller.
	MaxScheduleAheadDays int `env:"SYNC_MAX_SCHEDULE_AHEAD_DAYS" envDefault:"14"`
}

// RabbitConfig configures the AMQP connection the event publisher/subscriber
// use as the external hook channel's transport.
type RabbitConfig struct {
	URL                 string `env:"RABBITMQ_URL"`
	DirectExchange      string `env:"RABBITMQ_DIRECT_EXCHANGE" envDefault:"mailstack-direct"`
	FanoutExchange      string `env:"RABBITMQ_FANOUT_EXCHANGE" envDefault:"mailstack"`
	DeadLetterExchange  string `env:"RABBITMQ_DEAD_LETTER_EXCHANGE" envDefault:"dead-letter"`
}
