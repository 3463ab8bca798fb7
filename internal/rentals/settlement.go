package rentals

import (
	"context"
	"fmt"

	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/internal/messages"
	"github.com/angelmondragon/sheerent-backend/internal/pricing"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/detector"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/imagestore"
	"gorm.io/gorm"
)

// Return settles a rental.
//
// The after image is stored and the detector is consulted before the
// transaction opens, so no row lock is held across the detector call. The
// transaction then re-reads the rental under lock and applies every mutation
// or none. A failure after the image write leaves an orphaned image file and
// no rental change.
func (s *service) Return(ctx context.Context, input ReturnInput) (result *ReturnResult, err error) {
	defer s.observe(opReturn, s.clock.Now(), &err)

	if len(input.AfterImage) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "after image is required")
	}
	ctx = s.logg.WithUserID(s.logg.WithRentalID(ctx, input.RentalID.String()), input.UserID.String())
	now := s.clock.Now()

	rental, err := s.rentals.FindByID(ctx, input.RentalID)
	if err != nil {
		return nil, err
	}
	if err := CheckReturn(rental, input.UserID, input.ItemID); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, rental.BorrowerID); err != nil {
		return nil, err
	}
	item, err := s.items.FindByID(ctx, rental.ItemID)
	if err != nil {
		return nil, err
	}

	before, err := s.beforeImage(ctx, item)
	if err != nil {
		return nil, err
	}
	start := clock.Normalize(s.clock, rental.StartTime)
	afterRef, err := s.images.Save(ctx, imagestore.AfterImageKey(item.ID, rental.ID, start), input.AfterImage)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "store after image")
	}

	verdict, err := s.detector.Detect(ctx, detector.Request{
		ItemID:   item.ID,
		RentalID: rental.ID,
		Before:   before,
		After:    input.AfterImage,
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDetectorUnavailable, err, "damage detection failed")
		}
		s.logg.Error(ctx, "damage detection failed", err)
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)
		itemRepo := s.items.WithTx(tx)
		rentalRepo := s.rentals.WithTx(tx)

		locked, err := rentalRepo.FindByIDForUpdate(ctx, rental.ID)
		if err != nil {
			return err
		}
		if err := CheckReturn(locked, input.UserID, input.ItemID); err != nil {
			return err
		}
		borrower, err := userRepo.FindByIDForUpdate(ctx, locked.BorrowerID)
		if err != nil {
			return err
		}
		lockedItem, err := itemRepo.FindByIDForUpdate(ctx, locked.ItemID)
		if err != nil {
			return err
		}

		lateHours := pricing.LateHours(clock.Normalize(s.clock, locked.EndTime), now)
		lateFee := s.calc.ReturnLateFee(lateHours)
		damageFee := s.calc.DamageFee(verdict.Damaged, input.HasInsurance)
		total := lateFee + damageFee

		if borrower.Point < total {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient points").
				WithDetails(map[string]any{"required": total, "balance": borrower.Point})
		}
		balance := borrower.Point
		if total > 0 {
			if balance, err = userRepo.Debit(ctx, borrower.ID, total); err != nil {
				return err
			}
		}

		if err := rentalRepo.MarkReturned(ctx, locked.ID, ReturnUpdate{
			Damaged:       verdict.Damaged,
			Deducted:      total,
			AfterImageURL: afterRef,
		}); err != nil {
			return err
		}
		status := StatusAfterReturn(verdict.Damaged)
		if err := itemRepo.Settle(ctx, lockedItem.ID, status, verdict.Damaged); err != nil {
			return err
		}

		if verdict.Damaged {
			msg := messages.NewSystemMessage(s.clock, lockedItem.OwnerID, damageNotice(lockedItem, input.HasInsurance))
			if err := s.messages.WithTx(tx).Create(ctx, msg); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create damage message")
			}
		}

		if total > 0 {
			if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
				UserID:       borrower.ID,
				RentalID:     &locked.ID,
				Type:         enums.LedgerEntryTypeSettlementDeduction,
				Amount:       total,
				BalanceAfter: balance,
				Metadata: map[string]any{
					"late_hours": lateHours,
					"late_fee":   lateFee,
					"damage_fee": damageFee,
					"damaged":    verdict.Damaged,
				},
			}); err != nil {
				return err
			}
		}

		locked.IsReturned = true
		locked.DamageReported = verdict.Damaged
		locked.DeductedAmount = total
		locked.AfterImageURL = &afterRef
		lockedItem.Status = status
		lockedItem.DamageReported = verdict.Damaged

		dto := FromModel(locked, lockedItem)
		dto.HasInsurance = input.HasInsurance
		result = &ReturnResult{
			RentalDTO:      dto,
			DamageInfo:     verdict.Info,
			LateHours:      lateHours,
			LateFee:        lateFee,
			DamageFee:      damageFee,
			TotalDeducted:  total,
			UserPointAfter: balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDeduction(result.TotalDeducted, result.DamageReported)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"late_hours": result.LateHours,
		"damaged":    result.DamageReported,
		"deducted":   result.TotalDeducted,
	}), "rental.returned")
	return result, nil
}

// beforeImage reads the item's canonical first image.
func (s *service) beforeImage(ctx context.Context, item *models.Item) ([]byte, error) {
	ref, ok := item.Images.First()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item has no stored image").
			WithDetails(map[string]any{"item_id": item.ID.String()})
	}
	data, err := s.images.Read(ctx, ref)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "before image is unreadable").
				WithDetails(map[string]any{"item_id": item.ID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read before image")
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "before image is unreadable").
			WithDetails(map[string]any{"item_id": item.ID.String(), "reason": "empty"})
	}
	return data, nil
}

func damageNotice(item *models.Item, insured bool) string {
	coverage := "not insured"
	if insured {
		coverage = "insured"
	}
	return fmt.Sprintf("[Damage detected] '%s' was returned damaged.\nInsurance: %s", item.Name, coverage)
}
