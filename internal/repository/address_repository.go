package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/tracing"
)

type AddressRepository struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

func (r *AddressRepository) Insert(ctx context.Context, row *models.AddressRow) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AddressRepository.Insert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Search finds address rows whose normalized address contains the query,
// scoped to one account's mirrored mail.
func (r *AddressRepository) Search(ctx context.Context, accountID, query string, limit int) ([]*models.AddressRow, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AddressRepository.Search")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var rows []*models.AddressRow
	err := r.db.Where("account_id = ? AND normalized_address ILIKE ?", accountID, "%"+query+"%").
		Limit(limit).Find(&rows).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return rows, nil
}

func (r *AddressRepository) CleanByAccount(ctx context.Context, accountID string, batchSize int) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AddressRepository.CleanByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.Limit(batchSize).Delete(&models.AddressRow{}, "account_id = ?", accountID)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
