package rentals

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/db"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter narrows ListRentals. Nil fields are not applied.
type ListFilter struct {
	IsReturned *bool
	BorrowerID *uuid.UUID
}

// ReturnUpdate is what settlement writes onto the rental row.
type ReturnUpdate struct {
	Damaged       bool
	Deducted      int64
	AfterImageURL string
}

// Repository manages persistence for rentals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rental *models.Rental) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	HasActiveForItem(ctx context.Context, itemID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Rental, error)
	Extend(ctx context.Context, id uuid.UUID, endTime time.Time, insured bool) error
	MarkReturned(ctx context.Context, id uuid.UUID, update ReturnUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByBorrower(ctx context.Context, borrowerID uuid.UUID) (total int64, returned int64, err error)
	ListOverdueUnreminded(ctx context.Context, now time.Time, limit int) ([]models.Rental, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a rentals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the rental. The partial unique index on active rentals turns
// a concurrent second rental of the same item into a state conflict.
func (r *repository) Create(ctx context.Context, rental *models.Rental) error {
	if err := r.db.WithContext(ctx).Create(rental).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "item has an unreturned rental").
				WithDetails(map[string]any{"item_id": rental.ItemID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert rental")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	if err := r.db.WithContext(ctx).First(&rental, "id = ?", id).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &rental, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rental, "id = ?", id).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &rental, nil
}

func (r *repository) HasActiveForItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("item_id = ? AND is_returned = ?", itemID, false).
		Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check active rental")
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Rental, error) {
	query := r.db.WithContext(ctx).Model(&models.Rental{})
	if filter.IsReturned != nil {
		query = query.Where("is_returned = ?", *filter.IsReturned)
	}
	if filter.BorrowerID != nil {
		query = query.Where("borrower_id = ?", *filter.BorrowerID)
	}
	var rows []models.Rental
	if err := query.Order("start_time DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list rentals")
	}
	return rows, nil
}

func (r *repository) Extend(ctx context.Context, id uuid.UUID, endTime time.Time, insured bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ? AND is_returned = ?", id, false).
		Updates(map[string]any{
			"end_time":         endTime,
			"has_insurance":    insured,
			"reminder_sent_at": nil,
		})
	return checkOpen(res, id, "extend rental")
}

func (r *repository) MarkReturned(ctx context.Context, id uuid.UUID, update ReturnUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ? AND is_returned = ?", id, false).
		Updates(map[string]any{
			"is_returned":     true,
			"damage_reported": update.Damaged,
			"deducted_amount": update.Deducted,
			"after_image_url": update.AfterImageURL,
		})
	return checkOpen(res, id, "mark rental returned")
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Rental{}, "id = ?", id)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "delete rental")
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, id)
	}
	return nil
}

func (r *repository) CountByBorrower(ctx context.Context, borrowerID uuid.UUID) (int64, int64, error) {
	var row struct {
		Total    int64
		Returned int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_returned THEN 1 ELSE 0 END), 0) AS returned").
		Where("borrower_id = ?", borrowerID).
		Scan(&row).Error; err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count rentals")
	}
	return row.Total, row.Returned, nil
}

// ListOverdueUnreminded returns open rentals past their end time whose
// borrower has not been reminded since the end time was last set.
func (r *repository) ListOverdueUnreminded(ctx context.Context, now time.Time, limit int) ([]models.Rental, error) {
	var rows []models.Rental
	if err := r.db.WithContext(ctx).
		Where("is_returned = ? AND end_time < ? AND reminder_sent_at IS NULL", false, now).
		Order("end_time ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue rentals")
	}
	return rows, nil
}

// MarkReminded stamps the reminder time. It reports false when another worker
// got there first or the rental was returned meanwhile.
func (r *repository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ? AND is_returned = ? AND reminder_sent_at IS NULL", id, false).
		UpdateColumn("reminder_sent_at", at)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "mark rental reminded")
	}
	return res.RowsAffected > 0, nil
}

func checkOpen(res *gorm.DB, id uuid.UUID, op string) error {
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, op)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "rental already returned").
			WithDetails(map[string]any{"rental_id": id.String()})
	}
	return nil
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "rental not found").WithDetails(map[string]any{"rental_id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rental")
}
