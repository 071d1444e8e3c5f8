package repository

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailforge/mailforge/internal/flagindex"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

// FlagIndexUpdater is the subset of the in-memory flag-state index that the
// envelope store touches while persisting a batch; satisfied by
// internal/flagindex.Index. Kept as a narrow local interface so the store
// doesn't depend on the index's concrete type.
type FlagIndexUpdater interface {
	Update(accountID, folderID string, uid uint32, flagsHash uint64)
	Delete(accountID, folderID string, uid uint32)
}

type EnvelopeRepository struct {
	db        *gorm.DB
	flagIndex FlagIndexUpdater
}

func NewEnvelopeRepository(db *gorm.DB) *EnvelopeRepository {
	return &EnvelopeRepository{db: db}
}

// WithFlagIndex binds the in-memory flag index SaveEnvelopes keeps in
// sync; called once during service wiring.
func (r *EnvelopeRepository) WithFlagIndex(idx FlagIndexUpdater) *EnvelopeRepository {
	r.flagIndex = idx
	return r
}

func (r *EnvelopeRepository) FindByKey(ctx context.Context, accountID, folderID, uidOrMessageID string) (*models.Envelope, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.FindByKey")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var env models.Envelope
	err := r.db.First(&env, "account_id = ? AND folder_id = ? AND uid_or_message_id = ?",
		accountID, folderID, uidOrMessageID).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &env, nil
}

// PaginateByFolder offset-pages envelopes of one folder ordered by the
// internal_date_ms column (ascending, or descending when asked).
func (r *EnvelopeRepository) PaginateByFolder(ctx context.Context, accountID, folderID string, offset, limit int, descending bool) ([]*models.Envelope, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.PaginateByFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	order := "internal_date_ms ASC"
	if descending {
		order = "internal_date_ms DESC"
	}

	var envs []*models.Envelope
	err := r.db.Where("account_id = ? AND folder_id = ?", accountID, folderID).
		Order(order).Offset(offset).Limit(limit).Find(&envs).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return envs, nil
}

// SaveEnvelopes is the compound save transaction: for every rich
// envelope it writes the rich row, the matching minimal row, updates the
// flag index (for numeric IMAP UIDs only), extracts address rows, and upserts the envelope's thread row
// only if the new envelope is newer than the currently stored
// representative. The whole batch commits atomically.
func (r *EnvelopeRepository) SaveEnvelopes(ctx context.Context, envelopes []*models.Envelope) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.SaveEnvelopes")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(envelopes) == 0 {
		return nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, env := range envelopes {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder_id"}, {Name: "uid_or_message_id"}},
				UpdateAll: true,
			}).Create(env).Error; err != nil {
				return err
			}

			minimal := &models.EnvelopeMinimal{
				AccountID: env.AccountID,
				FolderID:  env.FolderID,
				FlagsHash: env.FlagsHash,
			}
			uid, isNumericUID := parseUID(env.UIDOrMessageID)
			if isNumericUID {
				minimal.UID = uid
			} else {
				// Gmail/Graph message ids aren't numeric; the minimal row's
				// uid column still needs a value unique per (account,
				// folder) so two messages in the same folder don't collide
				// on the same primary key.
				minimal.UID = pseudoUID(env.UIDOrMessageID)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder_id"}, {Name: "uid"}},
				UpdateAll: true,
			}).Create(minimal).Error; err != nil {
				return err
			}

			if r.flagIndex != nil && isNumericUID {
				r.flagIndex.Update(env.AccountID, env.FolderID, minimal.UID, env.FlagsHash)
			}

			for _, addr := range collectAddresses(env) {
				row := &models.AddressRow{
					AccountID:         env.AccountID,
					FolderID:          env.FolderID,
					NormalizedAddress: addr,
					EnvelopeID:        env.UIDOrMessageID,
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
					return err
				}
			}

			threadID := models.ThreadIDFor(env.References, env.MessageID)
			var existing models.Thread
			err := tx.First(&existing, "thread_id = ?", threadID).Error
			switch {
			case err == gorm.ErrRecordNotFound:
				if err := tx.Create(&models.Thread{
					ThreadID:                 threadID,
					RepresentativeEnvelopeID: env.UIDOrMessageID,
					AccountID:                env.AccountID,
					FolderID:                 env.FolderID,
					NewestInternalDateMs:     env.InternalDateMs,
					NewestDateMs:             env.DateMs,
				}).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			case env.InternalDateMs > existing.NewestInternalDateMs:
				existing.RepresentativeEnvelopeID = env.UIDOrMessageID
				existing.NewestInternalDateMs = env.InternalDateMs
				existing.NewestDateMs = env.DateMs
				if err := tx.Save(&existing).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// FlagUpdate is one (uid, new flags) pair the incremental reconciler pushes
// after diffing against the flag index.
type FlagUpdate struct {
	UID       uint32
	Flags     []string
	FlagsHash uint64
}

// ApplyFlagUpdates writes the new flag set for a batch of UIDs already
// known in the folder, updating both the rich and minimal rows and the flag
// index, without touching any other column.
func (r *EnvelopeRepository) ApplyFlagUpdates(ctx context.Context, accountID, folderID string, updates []FlagUpdate) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.ApplyFlagUpdates")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(updates) == 0 {
		return nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			uidKey := formatUID(u.UID)
			if err := tx.Model(&models.Envelope{}).
				Where("account_id = ? AND folder_id = ? AND uid_or_message_id = ?", accountID, folderID, uidKey).
				Updates(map[string]interface{}{"flags": pq.StringArray(u.Flags), "flags_hash": u.FlagsHash}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.EnvelopeMinimal{}).
				Where("account_id = ? AND folder_id = ? AND uid = ?", accountID, folderID, u.UID).
				Update("flags_hash", u.FlagsHash).Error; err != nil {
				return err
			}
			if r.flagIndex != nil {
				r.flagIndex.Update(accountID, folderID, u.UID, u.FlagsHash)
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// DeleteMissing removes the rich and minimal rows for UIDs the server no
// longer reports (a full-sync window walk found them locally but not in any
// window's seen-UID union).
func (r *EnvelopeRepository) DeleteMissing(ctx context.Context, accountID, folderID string, uids []uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.DeleteMissing")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(uids) == 0 {
		return nil
	}

	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = formatUID(uid)
	}

	if err := r.db.Delete(&models.Envelope{}, "account_id = ? AND folder_id = ? AND uid_or_message_id IN ?", accountID, folderID, keys).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := r.db.Delete(&models.EnvelopeMinimal{}, "account_id = ? AND folder_id = ? AND uid IN ?", accountID, folderID, uids).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if r.flagIndex != nil {
		for _, uid := range uids {
			r.flagIndex.Delete(accountID, folderID, uid)
		}
	}
	return nil
}

// DeleteByMessageIDs removes the rich and minimal rows addressed by a
// provider message id directly, for the Gmail/Outlook reconcilers: those
// providers report deletions by id via their own change feed (History API,
// delta query) rather than requiring a local UID-space walk, so there is no
// flag index entry to retract. The minimal rows are located by the uid
// SaveEnvelopes derived for each id (parsed if numeric, else pseudoUID).
func (r *EnvelopeRepository) DeleteByMessageIDs(ctx context.Context, accountID, folderID string, messageIDs []string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.DeleteByMessageIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(messageIDs) == 0 {
		return nil
	}

	if err := r.db.Delete(&models.Envelope{}, "account_id = ? AND folder_id = ? AND uid_or_message_id IN ?", accountID, folderID, messageIDs).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	uids := make([]uint32, len(messageIDs))
	for i, id := range messageIDs {
		if uid, ok := parseUID(id); ok {
			uids[i] = uid
		} else {
			uids[i] = pseudoUID(id)
		}
	}
	if err := r.db.Delete(&models.EnvelopeMinimal{}, "account_id = ? AND folder_id = ? AND uid IN ?", accountID, folderID, uids).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateFlagsByMessageID writes a new flag set for one Gmail/Graph message
// addressed by its provider id, for the label/category changes those
// providers report by id rather than by UID range. It updates the same two
// columns ApplyFlagUpdates does, keyed by uid_or_message_id instead of a
// converted UID.
func (r *EnvelopeRepository) UpdateFlagsByMessageID(ctx context.Context, accountID, folderID, messageID string, flags []string, flagsHash uint64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.UpdateFlagsByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.Model(&models.Envelope{}).
		Where("account_id = ? AND folder_id = ? AND uid_or_message_id = ?", accountID, folderID, messageID).
		Updates(map[string]interface{}{"flags": pq.StringArray(flags), "flags_hash": flagsHash}).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := r.db.Model(&models.EnvelopeMinimal{}).
		Where("account_id = ? AND folder_id = ? AND uid = ?", accountID, folderID, pseudoUID(messageID)).
		Update("flags_hash", flagsHash).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// ScanMinimal returns every minimal envelope row for the account, used by
// the flag index's startup load to rebuild the in-memory map.
func (r *EnvelopeRepository) ScanMinimal(ctx context.Context, accountID string) ([]flagindex.MinimalEnvelope, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.ScanMinimal")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var rows []*models.EnvelopeMinimal
	if err := r.db.Where("account_id = ?", accountID).Find(&rows).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	out := make([]flagindex.MinimalEnvelope, len(rows))
	for i, row := range rows {
		out[i] = flagindex.MinimalEnvelope{FolderID: row.FolderID, UID: row.UID, FlagsHash: row.FlagsHash}
	}
	return out, nil
}

// CleanByFolder deletes one batch of envelopes (rich + minimal) for a
// folder; callers loop until zero rows are affected.
func (r *EnvelopeRepository) CleanByFolder(ctx context.Context, accountID, folderID string, batchSize int) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.CleanByFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var keys []string
	if err := r.db.Model(&models.Envelope{}).
		Where("account_id = ? AND folder_id = ?", accountID, folderID).
		Limit(batchSize).Pluck("uid_or_message_id", &keys).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	result := r.db.Delete(&models.Envelope{}, "account_id = ? AND folder_id = ? AND uid_or_message_id IN ?", accountID, folderID, keys)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	r.db.Delete(&models.EnvelopeMinimal{}, "account_id = ? AND folder_id = ? AND uid IN ?", accountID, folderID, minimalUIDs(keys))
	return result.RowsAffected, nil
}

// CleanByAccount deletes one batch of envelopes across every folder of the
// account.
func (r *EnvelopeRepository) CleanByAccount(ctx context.Context, accountID string, batchSize int) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "EnvelopeRepository.CleanByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.Limit(batchSize).Delete(&models.Envelope{}, "account_id = ?", accountID)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		r.db.Limit(batchSize).Delete(&models.EnvelopeMinimal{}, "account_id = ?", accountID)
	}
	return result.RowsAffected, nil
}

func parseUID(uidOrMessageID string) (uint32, bool) {
	var uid uint32
	n := 0
	for _, c := range uidOrMessageID {
		if c < '0' || c > '9' {
			return 0, false
		}
		uid = uid*10 + uint32(c-'0')
		n++
	}
	return uid, n > 0
}

func formatUID(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}

func minimalUIDs(uidOrMessageIDs []string) []uint32 {
	uids := make([]uint32, 0, len(uidOrMessageIDs))
	for _, k := range uidOrMessageIDs {
		if uid, ok := parseUID(k); ok {
			uids = append(uids, uid)
		}
	}
	return uids
}

// pseudoUID derives a stable, folder-local uid substitute from a
// non-numeric provider message id (Gmail/Graph), so EnvelopeMinimal's
// (account_id, folder_id, uid) key stays unique per message the way it
// naturally is for IMAP's integer UIDs.
func pseudoUID(messageID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(messageID))
	return h.Sum32()
}

func collectAddresses(env *models.Envelope) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addrs []string) {
		for _, a := range addrs {
			if _, ok := seen[a]; ok || a == "" {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	add(env.FromAddresses)
	add(env.ToAddresses)
	add(env.CcAddresses)
	add(env.BccAddresses)
	add(env.ReplyToAddresses)
	add(env.SenderAddresses)
	return out
}
