package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/sheerent-backend/api/responses"
	"github.com/angelmondragon/sheerent-backend/api/validators"
	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"github.com/angelmondragon/sheerent-backend/pkg/pagination"
)

// ListLedgerEntries pages through a user's point debits, newest first.
func ListLedgerEntries(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.ListByUser(r.Context(), ledger.ListParams{
			UserID: userID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
