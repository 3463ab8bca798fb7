package rentals

import (
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
)

const (
	hoursPerDay = 24

	// MaxRentalDays bounds a single rental span and a single extension.
	MaxRentalDays  = 365
	MaxRentalHours = MaxRentalDays * hoursPerDay
)

// State is the lifecycle position of an item and its active rental.
type State string

const (
	StateAvailable       State = "available"
	StateRented          State = "rented"
	StateReturnedDamaged State = "returned_damaged"
)

// StateOf derives the lifecycle state from the stored item status.
func StateOf(item *models.Item) State {
	switch item.Status {
	case enums.ItemStatusRented:
		return StateRented
	case enums.ItemStatusReturned:
		return StateReturnedDamaged
	default:
		return StateAvailable
	}
}

// CheckCreate guards Available -> Rented.
func CheckCreate(item *models.Item, borrowerID uuid.UUID, hasActiveRental bool) error {
	if StateOf(item) != StateAvailable {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item is not available for rent").
			WithDetails(map[string]any{"item_id": item.ID.String(), "status": string(item.Status)})
	}
	if item.OwnerID == borrowerID {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "owners cannot rent their own item").
			WithDetails(map[string]any{"item_id": item.ID.String()})
	}
	if hasActiveRental {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "item has an unreturned rental").
			WithDetails(map[string]any{"item_id": item.ID.String()})
	}
	return nil
}

// CheckExtend guards Rented -> Rented.
func CheckExtend(rental *models.Rental) error {
	if rental.IsReturned {
		return alreadyReturned(rental)
	}
	return nil
}

// CheckReturn guards Rented -> Available | ReturnedDamaged.
func CheckReturn(rental *models.Rental, requesterID, itemID uuid.UUID) error {
	if rental.BorrowerID != requesterID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the borrower can return this rental").
			WithDetails(map[string]any{"rental_id": rental.ID.String()})
	}
	if rental.IsReturned {
		return alreadyReturned(rental)
	}
	if itemID != rental.ItemID {
		return pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to rental").
			WithDetails(map[string]any{"rental_id": rental.ID.String(), "item_id": itemID.String()})
	}
	return nil
}

// CheckPayLateFee allows late fee collection only once the rental is closed.
func CheckPayLateFee(rental *models.Rental) error {
	if !rental.IsReturned {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "rental has not been returned").
			WithDetails(map[string]any{"rental_id": rental.ID.String()})
	}
	return nil
}

// StatusAfterReturn is returned when damage was detected, registered otherwise.
func StatusAfterReturn(damaged bool) enums.ItemStatus {
	if damaged {
		return enums.ItemStatusReturned
	}
	return enums.ItemStatusRegistered
}

// ExtensionHours resolves the extension length. Exactly one of hours or days
// must be supplied, it must be positive, and it may not exceed MaxRentalDays.
func ExtensionHours(hours, days *int64) (int64, error) {
	switch {
	case hours != nil && days != nil:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "provide either hours or days, not both")
	case days != nil:
		if *days <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "days must be at least 1").
				WithDetails(map[string]any{"days": *days})
		}
		if *days > MaxRentalDays {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "days exceeds the maximum extension").
				WithDetails(map[string]any{"days": *days, "max_days": MaxRentalDays})
		}
		return *days * hoursPerDay, nil
	case hours != nil:
		if *hours <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "hours must be at least 1").
				WithDetails(map[string]any{"hours": *hours})
		}
		if *hours > MaxRentalHours {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "hours exceeds the maximum extension").
				WithDetails(map[string]any{"hours": *hours, "max_hours": MaxRentalHours})
		}
		return *hours, nil
	}
	return 0, pkgerrors.New(pkgerrors.CodeValidation, "either hours or days is required")
}

func alreadyReturned(rental *models.Rental) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "rental already returned").
		WithDetails(map[string]any{"rental_id": rental.ID.String()})
}
