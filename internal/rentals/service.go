// Package rentals owns the rental lifecycle: pricing a request, opening a
// rental, extending it, settling its return and collecting late fees.
package rentals

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/angelmondragon/sheerent-backend/internal/items"
	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/internal/messages"
	"github.com/angelmondragon/sheerent-backend/internal/pricing"
	"github.com/angelmondragon/sheerent-backend/internal/users"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/detector"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/imagestore"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"github.com/angelmondragon/sheerent-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	opPreview    = "preview"
	opCreate     = "create"
	opExtend     = "extend"
	opReturn     = "return"
	opPayLateFee = "pay_late_fee"
	opDelete     = "delete"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the rental operations.
type Service interface {
	Preview(ctx context.Context, input PreviewInput) (*PreviewResult, error)
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	List(ctx context.Context, filter ListFilter) ([]RentalDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*RentalDTO, error)
	Extend(ctx context.Context, input ExtendInput) (*ExtendResult, error)
	Return(ctx context.Context, input ReturnInput) (*ReturnResult, error)
	PayLateFee(ctx context.Context, id uuid.UUID) (*PayLateFeeResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
}

// ServiceParams lists the collaborators of the rental service.
type ServiceParams struct {
	Tx         txRunner
	Rentals    Repository
	Users      *users.Repository
	Items      *items.Repository
	Messages   messages.Repository
	Ledger     ledger.Service
	Calculator *pricing.Calculator
	Clock      clock.Clock
	Images     imagestore.Store
	Detector   detector.Detector
	Logger     *logger.Logger
	Metrics    *metrics.RentalMetrics
}

type service struct {
	tx       txRunner
	rentals  Repository
	users    *users.Repository
	items    *items.Repository
	messages messages.Repository
	ledger   ledger.Service
	calc     *pricing.Calculator
	clock    clock.Clock
	images   imagestore.Store
	detector detector.Detector
	logg     *logger.Logger
	metrics  *metrics.RentalMetrics
}

// NewService builds the rental service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Rentals == nil:
		return nil, fmt.Errorf("rentals repository required")
	case p.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case p.Items == nil:
		return nil, fmt.Errorf("items repository required")
	case p.Messages == nil:
		return nil, fmt.Errorf("messages repository required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case p.Clock == nil:
		return nil, fmt.Errorf("clock required")
	case p.Images == nil:
		return nil, fmt.Errorf("image store required")
	case p.Detector == nil:
		return nil, fmt.Errorf("damage detector required")
	}
	if p.Calculator == nil {
		p.Calculator = pricing.NewCalculator(pricing.DefaultRates())
	}
	if p.Logger == nil {
		p.Logger = logger.New(logger.Options{ServiceName: "rentals", Output: io.Discard})
	}
	return &service{
		tx:       p.Tx,
		rentals:  p.Rentals,
		users:    p.Users,
		items:    p.Items,
		messages: p.Messages,
		ledger:   p.Ledger,
		calc:     p.Calculator,
		clock:    p.Clock,
		images:   p.Images,
		detector: p.Detector,
		logg:     p.Logger,
		metrics:  p.Metrics,
	}, nil
}

// Preview prices a rental that would start now and end at input.EndTime. Nothing is written.
func (s *service) Preview(ctx context.Context, input PreviewInput) (result *PreviewResult, err error) {
	defer s.observe(opPreview, s.clock.Now(), &err)

	item, err := s.items.FindByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	start := s.clock.Now()
	end, err := s.endAfter(start, input.EndTime)
	if err != nil {
		return nil, err
	}
	quote, err := s.calc.Quote(item.PricePerUnit, item.Unit, pricing.DurationHours(start, end), input.HasInsurance)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		ItemID:       item.ID,
		ItemName:     item.Name,
		FeeBreakdown: breakdown(quote),
	}, nil
}

// Create opens a rental: Available -> Rented.
func (s *service) Create(ctx context.Context, input CreateInput) (result *CreateResult, err error) {
	defer s.observe(opCreate, s.clock.Now(), &err)

	if input.ItemID == uuid.Nil || input.BorrowerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id and borrower id are required")
	}
	start := s.clock.Now()
	end, err := s.endAfter(start, input.EndTime)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithItemID(s.logg.WithUserID(ctx, input.BorrowerID.String()), input.ItemID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		itemRepo := s.items.WithTx(tx)
		userRepo := s.users.WithTx(tx)
		rentalRepo := s.rentals.WithTx(tx)

		item, err := itemRepo.FindByIDForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		active, err := rentalRepo.HasActiveForItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if err := CheckCreate(item, input.BorrowerID, active); err != nil {
			return err
		}

		borrower, err := userRepo.FindByIDForUpdate(ctx, input.BorrowerID)
		if err != nil {
			return err
		}
		quote, err := s.calc.Quote(item.PricePerUnit, item.Unit, pricing.DurationHours(start, end), input.HasInsurance)
		if err != nil {
			return err
		}
		if err := requireCovered(quote, borrower.Point); err != nil {
			return err
		}

		balance, err := userRepo.Debit(ctx, borrower.ID, quote.Charge())
		if err != nil {
			return err
		}
		if err := itemRepo.UpdateStatus(ctx, item.ID, enums.ItemStatusRegistered, enums.ItemStatusRented); err != nil {
			return err
		}
		item.Status = enums.ItemStatusRented

		rental := &models.Rental{
			ItemID:       item.ID,
			BorrowerID:   borrower.ID,
			StartTime:    start,
			EndTime:      end,
			HasInsurance: input.HasInsurance,
		}
		if err := rentalRepo.Create(ctx, rental); err != nil {
			return err
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			UserID:       borrower.ID,
			RentalID:     &rental.ID,
			Type:         enums.LedgerEntryTypeRentalCharge,
			Amount:       quote.Charge(),
			BalanceAfter: balance,
			Metadata:     breakdown(quote),
		}); err != nil {
			return err
		}

		result = &CreateResult{
			RentalDTO: FromModel(rental, item),
			Fee:       breakdown(quote),
			UserPoint: balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithRentalID(ctx, result.ID.String()), map[string]any{
		"charged": result.Fee.Charge,
		"hours":   result.Fee.Hours,
	}), "rental.created")
	return result, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]RentalDTO, error) {
	rows, err := s.rentals.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ItemID)
	}
	itemsByID, err := s.items.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]RentalDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i], itemsByID[rows[i].ItemID]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*RentalDTO, error) {
	rental, err := s.rentals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.items.FindByID(ctx, rental.ItemID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	dto := FromModel(rental, item)
	return &dto, nil
}

// Extend pushes the end time out and charges for the added hours: Rented -> Rented.
func (s *service) Extend(ctx context.Context, input ExtendInput) (result *ExtendResult, err error) {
	defer s.observe(opExtend, s.clock.Now(), &err)

	hours, err := ExtensionHours(input.Hours, input.Days)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithRentalID(ctx, input.RentalID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rentalRepo := s.rentals.WithTx(tx)
		userRepo := s.users.WithTx(tx)

		rental, err := rentalRepo.FindByIDForUpdate(ctx, input.RentalID)
		if err != nil {
			return err
		}
		if err := CheckExtend(rental); err != nil {
			return err
		}
		item, err := s.items.WithTx(tx).FindByID(ctx, rental.ItemID)
		if err != nil {
			return err
		}
		borrower, err := userRepo.FindByIDForUpdate(ctx, rental.BorrowerID)
		if err != nil {
			return err
		}

		quote, err := s.calc.Quote(item.PricePerUnit, item.Unit, hours, input.HasInsurance)
		if err != nil {
			return err
		}
		if err := requireCovered(quote, borrower.Point); err != nil {
			return err
		}
		balance, err := userRepo.Debit(ctx, borrower.ID, quote.Charge())
		if err != nil {
			return err
		}

		newEnd := clock.Normalize(s.clock, rental.EndTime).Add(time.Duration(hours) * time.Hour)
		if err := rentalRepo.Extend(ctx, rental.ID, newEnd, input.HasInsurance); err != nil {
			return err
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			UserID:       borrower.ID,
			RentalID:     &rental.ID,
			Type:         enums.LedgerEntryTypeExtensionCharge,
			Amount:       quote.Charge(),
			BalanceAfter: balance,
			Metadata:     breakdown(quote),
		}); err != nil {
			return err
		}

		result = &ExtendResult{
			RentalID:      rental.ID,
			ExtendedHours: hours,
			DeductedPoint: quote.Charge(),
			UserPoint:     balance,
			NewEndTime:    newEnd,
			HasInsurance:  input.HasInsurance,
			Fee:           breakdown(quote),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"extended_hours": result.ExtendedHours,
		"charged":        result.DeductedPoint,
	}), "rental.extended")
	return result, nil
}

// PayLateFee collects the discounted overdue charge on a closed rental. Not
// being overdue is a zero-point no-op.
func (s *service) PayLateFee(ctx context.Context, id uuid.UUID) (result *PayLateFeeResult, err error) {
	defer s.observe(opPayLateFee, s.clock.Now(), &err)

	ctx = s.logg.WithRentalID(ctx, id.String())
	now := s.clock.Now()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)

		rental, err := s.rentals.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckPayLateFee(rental); err != nil {
			return err
		}
		item, err := s.items.WithTx(tx).FindByID(ctx, rental.ItemID)
		if err != nil {
			return err
		}
		borrower, err := userRepo.FindByIDForUpdate(ctx, rental.BorrowerID)
		if err != nil {
			return err
		}

		lateHours := pricing.LateHours(clock.Normalize(s.clock, rental.EndTime), now)
		result = &PayLateFeeResult{RentalID: rental.ID, UserPoint: borrower.Point}
		if lateHours == 0 {
			return nil
		}

		fee, err := s.calc.PayLateFee(item.PricePerUnit, item.Unit, lateHours, rental.HasInsurance)
		if err != nil {
			return err
		}
		balance, err := userRepo.Debit(ctx, borrower.ID, fee)
		if err != nil {
			return err
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			UserID:       borrower.ID,
			RentalID:     &rental.ID,
			Type:         enums.LedgerEntryTypeLateFee,
			Amount:       fee,
			BalanceAfter: balance,
			Metadata:     map[string]any{"late_hours": lateHours, "insured": rental.HasInsurance},
		}); err != nil {
			return err
		}

		result.DeductedPoints = fee
		result.UserPoint = balance
		result.LateHours = lateHours
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"late_hours": result.LateHours,
		"charged":    result.DeductedPoints,
	}), "rental.late_fee_paid")
	return result, nil
}

// Delete hard-deletes a rental without refunding anything already charged.
// An item held by the deleted rental is released back to registered.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe(opDelete, s.clock.Now(), &err)

	ctx = s.logg.WithRentalID(ctx, id.String())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rentalRepo := s.rentals.WithTx(tx)
		rental, err := rentalRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := rentalRepo.Delete(ctx, rental.ID); err != nil {
			return err
		}
		if rental.IsReturned {
			return nil
		}
		err = s.items.WithTx(tx).UpdateStatus(ctx, rental.ItemID, enums.ItemStatusRented, enums.ItemStatusRegistered)
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			s.logg.Warn(s.logg.WithItemID(ctx, rental.ItemID.String()), "deleted active rental whose item was not rented")
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	s.logg.Info(ctx, "rental.deleted")
	return nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	total, returned, err := s.rentals.CountByBorrower(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		UserID:       userID,
		TotalRentals: total,
		Returned:     returned,
		NotReturned:  total - returned,
	}, nil
}

// endAfter normalizes end into the settlement zone and requires it to follow
// start by at most MaxRentalDays.
func (s *service) endAfter(start, end time.Time) (time.Time, error) {
	if end.IsZero() {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "end time is required")
	}
	end = clock.Normalize(s.clock, end)
	if !end.After(start) {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time").
			WithDetails(map[string]any{"start_time": start, "end_time": end})
	}
	if latest := start.Add(MaxRentalHours * time.Hour); end.After(latest) {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "end time is too far in the future").
			WithDetails(map[string]any{"end_time": end, "latest_end_time": latest, "max_days": MaxRentalDays})
	}
	return end, nil
}

// requireCovered compares the balance with the exact, unrounded total.
func requireCovered(quote pricing.Quote, balance int64) error {
	if quote.CoveredBy(balance) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient points").
		WithDetails(map[string]any{"required": quote.Total.String(), "balance": balance})
}

func (s *service) observe(op string, started time.Time, errp *error) {
	outcome := metrics.OutcomeSuccess
	if errp != nil && *errp != nil {
		outcome = metrics.OutcomeFailure
		if pkgerrors.MetadataFor(pkgerrors.As(*errp).Code()).HTTPStatus < 500 {
			outcome = metrics.OutcomeRejected
		}
	}
	s.metrics.ObserveOperation(op, outcome, s.clock.Now().Sub(started))
}
