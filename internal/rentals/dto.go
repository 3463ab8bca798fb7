package rentals

import (
	"time"

	"github.com/angelmondragon/sheerent-backend/internal/pricing"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	"github.com/google/uuid"
)

// ItemSnapshot is the item view embedded in rental responses.
type ItemSnapshot struct {
	ID             uuid.UUID        `json:"id"`
	OwnerID        uuid.UUID        `json:"owner_id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	PricePerUnit   int64            `json:"price_per_unit"`
	Unit           enums.ItemUnit   `json:"unit"`
	Status         enums.ItemStatus `json:"status"`
	Images         []string         `json:"images"`
	DamageReported bool             `json:"damage_reported"`
}

// RentalDTO is the transport shape for a rental.
type RentalDTO struct {
	ID             uuid.UUID     `json:"id"`
	ItemID         uuid.UUID     `json:"item_id"`
	BorrowerID     uuid.UUID     `json:"borrower_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	IsReturned     bool          `json:"is_returned"`
	HasInsurance   bool          `json:"has_insurance"`
	DamageReported bool          `json:"damage_reported"`
	DeductedAmount int64         `json:"deducted_amount"`
	AfterImageURL  *string       `json:"after_image_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Item           *ItemSnapshot `json:"item,omitempty"`
}

// FeeBreakdown is a priced quote as returned to clients.
type FeeBreakdown struct {
	Hours        int64   `json:"hours"`
	PricePerHour float64 `json:"price_per_hour"`
	UsageFee     float64 `json:"usage_fee"`
	InsuranceFee int64   `json:"insurance_fee"`
	ServiceFee   int64   `json:"service_fee"`
	Total        float64 `json:"total"`
	Charge       int64   `json:"charge"`
}

type PreviewInput struct {
	ItemID       uuid.UUID
	EndTime      time.Time
	HasInsurance bool
}

type PreviewResult struct {
	ItemID   uuid.UUID `json:"item_id"`
	ItemName string    `json:"item_name"`
	FeeBreakdown
}

type CreateInput struct {
	ItemID       uuid.UUID
	BorrowerID   uuid.UUID
	EndTime      time.Time
	HasInsurance bool
}

type CreateResult struct {
	RentalDTO
	Fee       FeeBreakdown `json:"fee"`
	UserPoint int64        `json:"user_point"`
}

type ExtendInput struct {
	RentalID     uuid.UUID
	Hours        *int64
	Days         *int64
	HasInsurance bool
}

type ExtendResult struct {
	RentalID      uuid.UUID    `json:"rental_id"`
	ExtendedHours int64        `json:"extended_hours"`
	DeductedPoint int64        `json:"deducted_point"`
	UserPoint     int64        `json:"user_point"`
	NewEndTime    time.Time    `json:"new_end_time"`
	HasInsurance  bool         `json:"has_insurance"`
	Fee           FeeBreakdown `json:"fee"`
}

type PayLateFeeResult struct {
	RentalID       uuid.UUID `json:"rental_id"`
	DeductedPoints int64     `json:"deducted_points"`
	UserPoint      int64     `json:"user_point"`
	LateHours      int64     `json:"late_hours"`
}

type ReturnInput struct {
	RentalID     uuid.UUID
	UserID       uuid.UUID
	ItemID       uuid.UUID
	AfterImage   []byte
	HasInsurance bool
}

// ReturnResult is the settled rental plus the deduction breakdown.
type ReturnResult struct {
	RentalDTO
	DamageInfo     map[string]any `json:"damage_info"`
	LateHours      int64          `json:"late_hours"`
	LateFee        int64          `json:"late_fee"`
	DamageFee      int64          `json:"damage_fee"`
	TotalDeducted  int64          `json:"total_deducted"`
	UserPointAfter int64          `json:"user_point_after"`
}

type Stats struct {
	UserID       uuid.UUID `json:"user_id"`
	TotalRentals int64     `json:"total_rentals"`
	Returned     int64     `json:"returned"`
	NotReturned  int64     `json:"not_returned"`
}

func FromModel(r *models.Rental, item *models.Item) RentalDTO {
	dto := RentalDTO{
		ID:             r.ID,
		ItemID:         r.ItemID,
		BorrowerID:     r.BorrowerID,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		IsReturned:     r.IsReturned,
		HasInsurance:   r.HasInsurance,
		DamageReported: r.DamageReported,
		DeductedAmount: r.DeductedAmount,
		AfterImageURL:  r.AfterImageURL,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if item != nil {
		dto.Item = snapshot(item)
	}
	return dto
}

func snapshot(item *models.Item) *ItemSnapshot {
	return &ItemSnapshot{
		ID:             item.ID,
		OwnerID:        item.OwnerID,
		Name:           item.Name,
		Description:    item.Description,
		PricePerUnit:   item.PricePerUnit,
		Unit:           item.Unit,
		Status:         item.Status,
		Images:         append([]string{}, item.Images...),
		DamageReported: item.DamageReported,
	}
}

func breakdown(q pricing.Quote) FeeBreakdown {
	return FeeBreakdown{
		Hours:        q.Hours,
		PricePerHour: q.HourlyRate.InexactFloat64(),
		UsageFee:     q.UsageFee.InexactFloat64(),
		InsuranceFee: q.InsuranceFee,
		ServiceFee:   q.ServiceFee,
		Total:        q.Total.InexactFloat64(),
		Charge:       q.Charge(),
	}
}
