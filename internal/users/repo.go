package users

import (
	"context"
	"errors"

	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes user persistence, including the guarded balance debit.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &user, nil
}

// FindByIDForUpdate loads a user holding a row lock until the surrounding transaction ends.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &user, nil
}

// Debit subtracts amount from the user's balance and returns the new balance.
// The update only applies while the balance covers the amount, so a concurrent
// debit can never drive it negative.
func (r *Repository) Debit(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	if amount < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must not be negative")
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND point >= ?", id, amount).
		UpdateColumn("point", gorm.Expr("point - ?", amount))
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "debit user balance")
	}
	if res.RowsAffected == 0 {
		user, err := r.FindByID(ctx, id)
		if err != nil {
			return 0, err
		}
		return 0, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient points").
			WithDetails(map[string]any{"required": amount, "balance": user.Point})
	}
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.Point, nil
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found").WithDetails(map[string]any{"user_id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
}
