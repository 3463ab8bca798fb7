package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/sheerent-backend/api/responses"
	"github.com/angelmondragon/sheerent-backend/api/validators"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	maxMultipartMemory = 8 << 20
	maxAfterImageBytes = 20 << 20
)

type previewRequest struct {
	ItemID       string `json:"item_id" validate:"required,uuid"`
	EndTime      string `json:"end_time" validate:"required"`
	HasInsurance *bool  `json:"has_insurance"`
}

type createRentalRequest struct {
	ItemID       string `json:"item_id" validate:"required,uuid"`
	BorrowerID   string `json:"borrower_id" validate:"required,uuid"`
	EndTime      string `json:"end_time" validate:"required"`
	HasInsurance bool   `json:"has_insurance"`
}

// PreviewRental prices a prospective rental. Insurance is included unless the
// caller opts out.
func PreviewRental(svc rentals.Service, clk clock.Clock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body previewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := parseUUID(body.ItemID, "item_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseTimestamp(clk, body.EndTime, "end_time")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Preview(r.Context(), rentals.PreviewInput{
			ItemID:       itemID,
			EndTime:      end,
			HasInsurance: boolOr(body.HasInsurance, true),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CreateRental(svc rentals.Service, clk clock.Clock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createRentalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := parseUUID(body.ItemID, "item_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		borrowerID, err := parseUUID(body.BorrowerID, "borrower_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseTimestamp(clk, body.EndTime, "end_time")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), rentals.CreateInput{
			ItemID:       itemID,
			BorrowerID:   borrowerID,
			EndTime:      end,
			HasInsurance: body.HasInsurance,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListRentals supports optional is_returned and borrower_id filters.
func ListRentals(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		isReturned, err := optionalBool(query.Get("is_returned"), "is_returned")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := rentals.ListFilter{IsReturned: isReturned}
		if raw := strings.TrimSpace(query.Get("borrower_id")); raw != "" {
			borrowerID, err := parseUUID(raw, "borrower_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filter.BorrowerID = &borrowerID
		}

		result, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ReturnRental reads a multipart form with user_id, item_id, has_insurance and
// the after_file photo.
func ReturnRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		input := rentals.ReturnInput{RentalID: id}
		if input.UserID, err = parseUUID(r.FormValue("user_id"), "user_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.ItemID, err = parseUUID(r.FormValue("item_id"), "item_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		insured, err := optionalBool(r.FormValue("has_insurance"), "has_insurance")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.HasInsurance = boolOr(insured, false)

		if input.AfterImage, err = readAfterImage(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Return(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func readAfterImage(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("after_file")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "after_file is required").
			WithDetails(map[string]any{"field": "after_file"})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAfterImageBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read after_file")
	}
	if len(data) > maxAfterImageBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "after_file is too large").
			WithDetails(map[string]any{"field": "after_file", "max_bytes": maxAfterImageBytes})
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "after_file is empty").
			WithDetails(map[string]any{"field": "after_file"})
	}
	return data, nil
}

// ExtendRental takes hours or days plus has_insurance from the query string.
func ExtendRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		hours, err := optionalInt64(query.Get("hours"), "hours")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		days, err := optionalInt64(query.Get("days"), "days")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		insured, err := optionalBool(query.Get("has_insurance"), "has_insurance")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Extend(r.Context(), rentals.ExtendInput{
			RentalID:     id,
			Hours:        hours,
			Days:         days,
			HasInsurance: boolOr(insured, false),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PayLateFee(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.PayLateFee(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DeleteRental(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "rentalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]uuid.UUID{"deleted": id})
	}
}

func RentalStats(svc rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Stats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
