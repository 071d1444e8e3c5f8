package repository

import (
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/interfaces"
	"github.com/mailforge/mailforge/internal/flagindex"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/services/storage"
)

type Repositories struct {
	EmailRepository           interfaces.EmailRepository
	EmailAttachmentRepository interfaces.EmailAttachmentRepository
	EmailThreadRepository     interfaces.EmailThreadRepository
	MailboxRepository         interfaces.MailboxRepository
	MailboxSyncRepository     interfaces.MailboxSyncRepository
	DomainRepository          DomainRepository

	// Synchronization engine stores: folder/envelope store, metadata
	// store, task store.
	AccountRepository      *AccountRepository
	FolderRepository       *FolderRepository
	EnvelopeRepository     *EnvelopeRepository
	ThreadRepository       *ThreadRepository
	AddressRepository      *AddressRepository
	CheckpointRepository   *CheckpointRepository
	DeltaLinkRepository    *DeltaLinkRepository
	RunningStateRepository *RunningStateRepository
	OutgoingTaskRepository *OutgoingTaskRepository

	// FlagIndex is the in-memory flag-state index; EnvelopeRepository
	// keeps it in sync on every SaveEnvelopes call.
	FlagIndex *flagindex.Index
}

// InitRepositories wires every repository to db, except the five
// metadata/task-store repositories (account, checkpoint, delta-link,
// running-state, outgoing-task), which go to metaDB. In normal operation
// metaDB is the same Postgres handle as db; in DatabaseConfig.MemoryOnly
// mode the caller passes an in-memory SQLite handle instead (see
// internal/database.OpenMemoryStore), so those five tables live in RAM and
// get periodically snapshotted while the envelope store (folders,
// envelopes, threads, address rows) stays on Postgres regardless.
func InitRepositories(db *gorm.DB, metaDB *gorm.DB, blobCfg *config.BlobStorageConfig, log logger.Logger) *Repositories {
	inlineAttachmentStorage := storage.NewR2StorageService(
		blobCfg.AccountID,
		blobCfg.AccessKeyID,
		blobCfg.AccessKeySecret,
		blobCfg.InlineAttachBucket,
		false, // private access
	)

	flagIndex := flagindex.New(log)
	envelopeRepository := NewEnvelopeRepository(db).WithFlagIndex(flagIndex)

	return &Repositories{
		EmailRepository:           NewEmailRepository(db),
		EmailAttachmentRepository: NewEmailAttachmentRepository(db, inlineAttachmentStorage),
		EmailThreadRepository:     NewEmailThreadRepository(db),
		MailboxRepository:         NewMailboxRepository(db),
		MailboxSyncRepository:     NewMailboxSyncRepository(db),
		DomainRepository:          NewDomainRepository(db),
		AccountRepository:         NewAccountRepository(metaDB),
		FolderRepository:          NewFolderRepository(db),
		EnvelopeRepository:        envelopeRepository,
		ThreadRepository:          NewThreadRepository(db),
		AddressRepository:         NewAddressRepository(db),
		CheckpointRepository:      NewCheckpointRepository(metaDB),
		DeltaLinkRepository:       NewDeltaLinkRepository(metaDB),
		RunningStateRepository:    NewRunningStateRepository(metaDB),
		OutgoingTaskRepository:    NewOutgoingTaskRepository(metaDB),
		FlagIndex:                 flagIndex,
	}
}

// MigrateDB migrates every table that always lives on the primary
// (Postgres) connection: the legacy CRM tables and the envelope store.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Domain{},
		&models.DMARCMonitoring{},
		&models.Email{},
		&models.EmailAttachment{},
		&models.EmailThread{},
		&models.Mailbox{},
		&models.MailboxSyncState{},
		&models.MailstackReputationEntity{},
		&models.Folder{},
		&models.Envelope{},
		&models.EnvelopeMinimal{},
		&models.Thread{},
		&models.AddressRow{},
	)
}

// MigrateMetaDB migrates the metadata/task-store tables against metaDB,
// which is either the same Postgres connection MigrateDB ran against or the
// DatabaseConfig.MemoryOnly in-memory store.
func MigrateMetaDB(metaDB *gorm.DB) error {
	return metaDB.AutoMigrate(
		&models.Account{},
		&models.GmailCheckpoint{},
		&models.OutlookDeltaLink{},
		&models.AccountRunningState{},
		&models.OutgoingTask{},
	)
}
