package messages

import (
	"context"

	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for messages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, message *models.Message) error
	List(ctx context.Context, params listMessagesParams) ([]models.Message, *pagination.Cursor, error)
	MarkRead(ctx context.Context, receiverID, messageID uuid.UUID) (messageMarkResult, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a messages repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listMessagesParams struct {
	ReceiverID uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type messageMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listMessagesParams) ([]models.Message, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Message{}).Where("receiver_id = ?", params.ReceiverID)
	if params.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Message
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Page(rows, params.Limit, func(m models.Message) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, receiverID, messageID uuid.UUID) (messageMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND receiver_id = ? AND is_read = ?", messageID, receiverID, false).
		UpdateColumn("is_read", true)
	if result.Error != nil {
		return messageMarkResult{}, result.Error
	}

	mark := messageMarkResult{Updated: result.RowsAffected > 0}
	if mark.Updated {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND receiver_id = ?", messageID, receiverID).
		Count(&count).Error; err != nil {
		return messageMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}
