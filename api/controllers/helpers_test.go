package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/internal/messages"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, clock.Zone(clock.DefaultOffsetHours))

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.RouteContext(req.Context())
	if routeCtx == nil {
		routeCtx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	routeCtx.URLParams.Add(key, value)
	return req
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, resp.Body.String())
	}
	return env
}

type testRentalsService struct {
	previewFn    func(ctx context.Context, input rentals.PreviewInput) (*rentals.PreviewResult, error)
	createFn     func(ctx context.Context, input rentals.CreateInput) (*rentals.CreateResult, error)
	listFn       func(ctx context.Context, filter rentals.ListFilter) ([]rentals.RentalDTO, error)
	getFn        func(ctx context.Context, id uuid.UUID) (*rentals.RentalDTO, error)
	extendFn     func(ctx context.Context, input rentals.ExtendInput) (*rentals.ExtendResult, error)
	returnFn     func(ctx context.Context, input rentals.ReturnInput) (*rentals.ReturnResult, error)
	payLateFeeFn func(ctx context.Context, id uuid.UUID) (*rentals.PayLateFeeResult, error)
	deleteFn     func(ctx context.Context, id uuid.UUID) error
	statsFn      func(ctx context.Context, userID uuid.UUID) (*rentals.Stats, error)
}

func (s *testRentalsService) Preview(ctx context.Context, input rentals.PreviewInput) (*rentals.PreviewResult, error) {
	if s.previewFn != nil {
		return s.previewFn(ctx, input)
	}
	return &rentals.PreviewResult{}, nil
}

func (s *testRentalsService) Create(ctx context.Context, input rentals.CreateInput) (*rentals.CreateResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return &rentals.CreateResult{}, nil
}

func (s *testRentalsService) List(ctx context.Context, filter rentals.ListFilter) ([]rentals.RentalDTO, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return []rentals.RentalDTO{}, nil
}

func (s *testRentalsService) Get(ctx context.Context, id uuid.UUID) (*rentals.RentalDTO, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return &rentals.RentalDTO{ID: id}, nil
}

func (s *testRentalsService) Extend(ctx context.Context, input rentals.ExtendInput) (*rentals.ExtendResult, error) {
	if s.extendFn != nil {
		return s.extendFn(ctx, input)
	}
	return &rentals.ExtendResult{RentalID: input.RentalID}, nil
}

func (s *testRentalsService) Return(ctx context.Context, input rentals.ReturnInput) (*rentals.ReturnResult, error) {
	if s.returnFn != nil {
		return s.returnFn(ctx, input)
	}
	return &rentals.ReturnResult{}, nil
}

func (s *testRentalsService) PayLateFee(ctx context.Context, id uuid.UUID) (*rentals.PayLateFeeResult, error) {
	if s.payLateFeeFn != nil {
		return s.payLateFeeFn(ctx, id)
	}
	return &rentals.PayLateFeeResult{RentalID: id}, nil
}

func (s *testRentalsService) Delete(ctx context.Context, id uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *testRentalsService) Stats(ctx context.Context, userID uuid.UUID) (*rentals.Stats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, userID)
	}
	return &rentals.Stats{UserID: userID}, nil
}

type testMessagesService struct {
	listFn     func(ctx context.Context, params messages.ListParams) (*messages.ListResult, error)
	markReadFn func(ctx context.Context, receiverID, messageID uuid.UUID) error
}

func (s *testMessagesService) List(ctx context.Context, params messages.ListParams) (*messages.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &messages.ListResult{}, nil
}

func (s *testMessagesService) MarkRead(ctx context.Context, receiverID, messageID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, receiverID, messageID)
	}
	return nil
}

type testLedgerService struct {
	ledger.Service
	listFn func(ctx context.Context, params ledger.ListParams) (*ledger.ListResult, error)
}

func (s *testLedgerService) ListByUser(ctx context.Context, params ledger.ListParams) (*ledger.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &ledger.ListResult{}, nil
}
