// Package items is the item half of the rental ledger store.
package items

import (
	"context"
	"errors"

	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	if !item.Unit.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item unit").WithDetails(map[string]any{"unit": string(item.Unit)})
	}
	if item.Status == "" {
		item.Status = enums.ItemStatusRegistered
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &item, nil
}

// FindByIDForUpdate locks the item row for the rest of the transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &item, nil
}

// UpdateStatus moves the item from one status to another. It fails with a
// state conflict when the stored status no longer matches from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ItemStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update item status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item status changed concurrently").
			WithDetails(map[string]any{"item_id": id.String(), "expected": string(from)})
	}
	return nil
}

// Settle records the outcome of a return inspection on the item.
func (r *Repository) Settle(ctx context.Context, id uuid.UUID, status enums.ItemStatus, damaged bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND status = ?", id, enums.ItemStatusRented).
		UpdateColumns(map[string]any{
			"status":          status,
			"damage_reported": damaged,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "settle item")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item is not rented").
			WithDetails(map[string]any{"item_id": id.String()})
	}
	return nil
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found").WithDetails(map[string]any{"item_id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
}

// FindByIDs loads items keyed by id. Missing ids are simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Item, error) {
	out := make(map[uuid.UUID]*models.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Item
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load items")
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}
