package notices

import (
	"context"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists overdue notices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notice *models.OverdueNotice) error
	ListByRental(ctx context.Context, rentalID uuid.UUID) ([]models.OverdueNotice, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, notice *models.OverdueNotice) error {
	return r.db.WithContext(ctx).Create(notice).Error
}

func (r *repository) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]models.OverdueNotice, error) {
	var rows []models.OverdueNotice
	err := r.db.WithContext(ctx).
		Where("rental_id = ?", rentalID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteResolvedBefore removes notices created before cutoff whose rental has
// been returned or deleted. Notices of open rentals are kept regardless of age.
func (r *repository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	open := r.db.Model(&models.Rental{}).Select("id").Where("is_returned = ?", false)
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND rental_id NOT IN (?)", cutoff, open).
		Delete(&models.OverdueNotice{})
	return res.RowsAffected, res.Error
}
