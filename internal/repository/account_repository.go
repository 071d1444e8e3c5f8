package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Insert(ctx context.Context, account *models.Account) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.Insert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.Create(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.FindByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.Account
	if err := r.db.First(&account, "id = ?", id).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	account.ConvertToLatest()
	return &account, nil
}

// FindEnabled lists every enabled account; used by the scheduler's account
// roster refresh and the flag index's startup state load.
func (r *AccountRepository) FindEnabled(ctx context.Context) ([]*models.Account, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.FindEnabled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.Account
	if err := r.db.Where("enabled = ?", true).Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	for _, a := range accounts {
		a.ConvertToLatest()
	}
	return accounts, nil
}

// ListEnabledAccountIDs returns the id of every enabled account, used by
// the flag index's startup load to bound its concurrent-scan fan-out by
// account rather than by row.
func (r *AccountRepository) ListEnabledAccountIDs(ctx context.Context) ([]string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.ListEnabledAccountIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ids []string
	err := r.db.Model(&models.Account{}).Where("enabled = ?", true).Pluck("id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ids, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	account.ConvertToLatest()
	if err := r.db.Save(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// SetEnabled flips the soft-disable flag; the first phase of the two-phase
// account deletion lifecycle.
func (r *AccountRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.SetEnabled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.Account{}).Where("id = ?", id).Update("enabled", enabled).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Purge hard-deletes the account row itself; callers must first tear down
// folder/envelope state, the flag index, credentials, and hook
// subscriptions for the account.
func (r *AccountRepository) Purge(ctx context.Context, id string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.Purge")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Unscoped().Delete(&models.Account{}, "id = ?", id).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateKnownFolders persists the remote folder-name set observed on the
// most recent enumeration, the baseline the reconciler diffs the next
// enumeration against to detect creation/deletion.
func (r *AccountRepository) UpdateKnownFolders(ctx context.Context, id string, known []string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.UpdateKnownFolders")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.Account{}).Where("id = ?", id).
		Update("known_folders", known).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateSubscribedFolders persists a freshly-computed default subscription
// list (INBOX plus any \Sent mailbox) when the account had none configured.
func (r *AccountRepository) UpdateSubscribedFolders(ctx context.Context, id string, subscribed []string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.UpdateSubscribedFolders")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.Account{}).Where("id = ?", id).
		Update("subscribed_folders", subscribed).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *AccountRepository) UpdateCachedCapabilities(ctx context.Context, id string, capabilities []string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AccountRepository.UpdateCachedCapabilities")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Model(&models.Account{}).Where("id = ?", id).
		Update("cached_capabilities", capabilities).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
