package messages

import (
	"context"

	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Service defines message list/read operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, receiverID, messageID uuid.UUID) error
}

type service struct {
	repo  Repository
	clock clock.Clock
}

// ListParams configures pagination for a receiver's inbox.
type ListParams struct {
	ReceiverID uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned messages and the cursor for the next page.
type ListResult struct {
	Items  []models.Message `json:"items"`
	Cursor string           `json:"cursor"`
}

// NewService wires messages dependencies.
func NewService(repo Repository, clk clock.Clock) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "messages repository required")
	}
	if clk == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "clock required")
	}
	return &service{repo: repo, clock: clk}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ReceiverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listMessagesParams{
		ReceiverID: params.ReceiverID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		cursor.CreatedAt = clock.Normalize(s.clock, cursor.CreatedAt)
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}

	nextCursor := ""
	if next != nil {
		nextCursor = pagination.EncodeCursor(*next)
	}
	if rows == nil {
		rows = []models.Message{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: nextCursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, receiverID, messageID uuid.UUID) error {
	if receiverID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if messageID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message id required")
	}

	result, err := s.repo.MarkRead(ctx, receiverID, messageID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark message read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
	}
	return nil
}

// NewSystemMessage builds a sender-less notification stamped with the settlement clock.
func NewSystemMessage(clk clock.Clock, receiverID uuid.UUID, content string) *models.Message {
	return &models.Message{
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  clk.Now(),
	}
}
