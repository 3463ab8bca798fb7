package rentals

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/sheerent-backend/internal/items"
	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/internal/messages"
	"github.com/angelmondragon/sheerent-backend/internal/pricing"
	"github.com/angelmondragon/sheerent-backend/internal/users"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/sheerent-backend/pkg/db/types"
	"github.com/angelmondragon/sheerent-backend/pkg/detector"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, clock.Zone(clock.DefaultOffsetHours))

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Save(ctx context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	ref := "/results/" + key
	m.objects[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *memoryStore) Read(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "image not found")
	}
	return data, nil
}

func (m *memoryStore) has(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[ref]
	return ok
}

type stubDetector struct {
	mu     sync.Mutex
	result detector.Result
	err    error
	calls  int
	last   detector.Request
}

func (d *stubDetector) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.last = req
	if d.err != nil {
		return detector.Result{}, d.err
	}
	return d.result, nil
}

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	svc      Service
	clock    *clock.Fixed
	images   *memoryStore
	detector *stubDetector
	users    *users.Repository
	items    *items.Repository
	rentals  Repository
	ledger   ledger.Repository
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Rental{},
		&models.Message{},
		&models.LedgerEntry{},
	))

	f := &fixture{
		t:        t,
		db:       conn,
		clock:    &clock.Fixed{At: baseTime},
		images:   newMemoryStore(),
		detector: &stubDetector{result: detector.Result{Info: map[string]any{}}},
		users:    users.NewRepository(conn),
		items:    items.NewRepository(conn),
		rentals:  NewRepository(conn),
		ledger:   ledger.NewRepository(conn),
		registry: prometheus.NewRegistry(),
	}

	ledgerSvc, err := ledger.NewService(f.ledger, f.clock)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:         db.NewFromConn(conn),
		Rentals:    f.rentals,
		Users:      f.users,
		Items:      f.items,
		Messages:   messages.NewRepository(conn),
		Ledger:     ledgerSvc,
		Calculator: pricing.NewCalculator(pricing.DefaultRates()),
		Clock:      f.clock,
		Images:     f.images,
		Detector:   f.detector,
		Metrics:    metrics.NewRentalMetrics(f.registry),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seedUser(point int64) *models.User {
	f.t.Helper()
	user, err := f.users.Create(context.Background(), &models.User{
		Name:  "user",
		Email: uuid.NewString() + "@example.com",
		Point: point,
	})
	require.NoError(f.t, err)
	return user
}

// seedItem stores a before image for the item unless withImage is false.
func (f *fixture) seedItem(ownerID uuid.UUID, price int64, unit enums.ItemUnit, withImage bool) *models.Item {
	f.t.Helper()
	item := &models.Item{
		OwnerID:      ownerID,
		Name:         "Camping tent",
		PricePerUnit: price,
		Unit:         unit,
		Images:       dbtypes.StringList{},
	}
	if withImage {
		ref := "/results/items/" + uuid.NewString() + "/before.jpg"
		f.images.objects[ref] = []byte("before")
		item.Images = dbtypes.StringList{ref}
	}
	created, err := f.items.Create(context.Background(), item)
	require.NoError(f.t, err)
	return created
}

func (f *fixture) balance(userID uuid.UUID) int64 {
	f.t.Helper()
	user, err := f.users.FindByID(context.Background(), userID)
	require.NoError(f.t, err)
	return user.Point
}

func (f *fixture) item(id uuid.UUID) *models.Item {
	f.t.Helper()
	item, err := f.items.FindByID(context.Background(), id)
	require.NoError(f.t, err)
	return item
}

func (f *fixture) rental(id uuid.UUID) *models.Rental {
	f.t.Helper()
	rental, err := f.rentals.FindByID(context.Background(), id)
	require.NoError(f.t, err)
	return rental
}

func (f *fixture) count(model any, query string, args ...any) int64 {
	f.t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(f.t, q.Count(&n).Error)
	return n
}

// rent opens a 24 hour rental for a fresh borrower with the given balance.
func (f *fixture) rent(balance int64, insured bool) (*models.User, *models.User, *models.Item, *CreateResult) {
	f.t.Helper()
	owner := f.seedUser(0)
	borrower := f.seedUser(balance)
	item := f.seedItem(owner.ID, 2400, enums.ItemUnitPerDay, true)
	res, err := f.svc.Create(context.Background(), CreateInput{
		ItemID:       item.ID,
		BorrowerID:   borrower.ID,
		EndTime:      f.clock.Now().Add(24 * time.Hour),
		HasInsurance: insured,
	})
	require.NoError(f.t, err)
	return owner, borrower, item, res
}

func codeOf(err error) pkgerrors.Code {
	if err == nil {
		return ""
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Code("untyped: " + err.Error())
	}
	return typed.Code()
}

func int64Ptr(v int64) *int64 {
	return &v
}
