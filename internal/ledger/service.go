package ledger

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records point debits and lists a user's history.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.LedgerEntry, error)
	ListByUser(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo  Repository
	clock clock.Clock
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	UserID       uuid.UUID             `json:"user_id"`
	RentalID     *uuid.UUID            `json:"rental_id"`
	Type         enums.LedgerEntryType `json:"type"`
	Amount       int64                 `json:"amount"`
	BalanceAfter int64                 `json:"balance_after"`
	Metadata     any                   `json:"metadata"`
}

type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

type ListResult struct {
	Items  []models.LedgerEntry `json:"items"`
	Cursor string               `json:"cursor"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, clk clock.Clock) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	}
	if clk == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "clock required")
	}
	return &service{repo: repo, clock: clk}, nil
}

// Record appends an entry inside tx so it commits or rolls back with the debit it describes.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.LedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger entry type").
			WithDetails(map[string]any{"type": string(input.Type)})
	}
	if input.Amount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger amount must not be negative")
	}

	var metadata json.RawMessage
	if input.Metadata != nil {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
		}
		metadata = raw
	}

	entry := &models.LedgerEntry{
		UserID:       input.UserID,
		RentalID:     input.RentalID,
		Type:         input.Type,
		Amount:       input.Amount,
		BalanceAfter: input.BalanceAfter,
		Metadata:     metadata,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record ledger entry")
	}
	return entry, nil
}

func (s *service) ListByUser(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		cursor.CreatedAt = clock.Normalize(s.clock, cursor.CreatedAt)
	}

	rows, next, err := s.repo.ListByUser(ctx, params.UserID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	if rows == nil {
		rows = []models.LedgerEntry{}
	}

	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}
