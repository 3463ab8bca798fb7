package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/sheerent-backend/internal/items"
	"github.com/angelmondragon/sheerent-backend/internal/notices"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
	"github.com/angelmondragon/sheerent-backend/pkg/migrate"
)

var jobNow = time.Date(2024, 5, 3, 12, 0, 0, 0, clock.Zone(clock.DefaultOffsetHours))

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(migrate.Models()...))
	return conn
}

func seedRental(t *testing.T, conn *gorm.DB, end time.Time, returned bool) (*models.User, *models.Item, *models.Rental) {
	t.Helper()
	ctx := context.Background()
	owner := &models.User{Name: "owner", Email: uuid.NewString() + "@example.com"}
	borrower := &models.User{Name: "borrower", Email: uuid.NewString() + "@example.com", Point: 50000}
	require.NoError(t, conn.WithContext(ctx).Create(owner).Error)
	require.NoError(t, conn.WithContext(ctx).Create(borrower).Error)

	item, err := items.NewRepository(conn).Create(ctx, &models.Item{
		OwnerID:      owner.ID,
		Name:         "Projector",
		PricePerUnit: 2400,
		Unit:         enums.ItemUnitPerDay,
		Status:       enums.ItemStatusRented,
	})
	require.NoError(t, err)

	rental := &models.Rental{
		ItemID:     item.ID,
		BorrowerID: borrower.ID,
		StartTime:  end.Add(-24 * time.Hour),
		EndTime:    end,
		IsReturned: returned,
	}
	require.NoError(t, conn.WithContext(ctx).Create(rental).Error)
	return borrower, item, rental
}

func newOverdueJob(t *testing.T, conn *gorm.DB, clk clock.Clock) Job {
	t.Helper()
	job, err := NewOverdueReminderJob(OverdueReminderJobParams{
		Logger:  testLogger(),
		DB:      db.NewFromConn(conn),
		Rentals: rentals.NewRepository(conn),
		Notices: notices.NewRepository(conn),
		Clock:   clk,
	})
	require.NoError(t, err)
	return job
}

func noticesFor(t *testing.T, conn *gorm.DB, rentalID uuid.UUID) []models.OverdueNotice {
	t.Helper()
	rows, err := notices.NewRepository(conn).ListByRental(context.Background(), rentalID)
	require.NoError(t, err)
	return rows
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestOverdueReminderJobRemindsOnce(t *testing.T) {
	conn := openTestDB(t)
	clk := &clock.Fixed{At: jobNow}
	overdueBorrower, item, overdue := seedRental(t, conn, jobNow.Add(-90*time.Minute), false)
	_, _, onTime := seedRental(t, conn, jobNow.Add(time.Hour), false)
	_, _, returned := seedRental(t, conn, jobNow.Add(-5*time.Hour), true)

	job := newOverdueJob(t, conn, clk)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	got := noticesFor(t, conn, overdue.ID)
	require.Len(t, got, 1)
	assert.Equal(t, overdueBorrower.ID, got[0].BorrowerID)
	assert.Equal(t, item.ID, got[0].ItemID)
	assert.True(t, got[0].DueAt.Equal(overdue.EndTime))
	assert.Equal(t, int64(2), got[0].LateHours)
	assert.Empty(t, noticesFor(t, conn, onTime.ID))
	assert.Empty(t, noticesFor(t, conn, returned.ID))
	assert.Equal(t, int64(0), countRows(t, conn, &models.Message{}), "reminders never create messages")

	var stored models.Rental
	require.NoError(t, conn.First(&stored, "id = ?", overdue.ID).Error)
	require.NotNil(t, stored.ReminderSentAt)

	clk.Advance(time.Hour)
	res, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Affected)
	assert.Len(t, noticesFor(t, conn, overdue.ID), 1)
}

func TestOverdueReminderJobRemindsAgainAfterExtension(t *testing.T) {
	conn := openTestDB(t)
	clk := &clock.Fixed{At: jobNow}
	_, _, rental := seedRental(t, conn, jobNow.Add(-time.Minute), false)
	job := newOverdueJob(t, conn, clk)

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	repo := rentals.NewRepository(conn)
	require.NoError(t, repo.Extend(context.Background(), rental.ID, jobNow.Add(2*time.Hour), false))

	_, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, noticesFor(t, conn, rental.ID), 1, "new deadline not yet passed")

	clk.Advance(3 * time.Hour)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	got := noticesFor(t, conn, rental.ID)
	require.Len(t, got, 2)
	assert.True(t, got[1].DueAt.Equal(jobNow.Add(2*time.Hour)))
}

func TestOverdueReminderJobRespectsBatchSize(t *testing.T) {
	conn := openTestDB(t)
	for i := 0; i < 3; i++ {
		seedRental(t, conn, jobNow.Add(-time.Duration(i+1)*time.Hour), false)
	}
	job, err := NewOverdueReminderJob(OverdueReminderJobParams{
		Logger:    testLogger(),
		DB:        db.NewFromConn(conn),
		Rentals:   rentals.NewRepository(conn),
		Notices:   notices.NewRepository(conn),
		Clock:     &clock.Fixed{At: jobNow},
		BatchSize: 2,
	})
	require.NoError(t, err)

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)

	res, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
}

func TestNewOverdueReminderJobValidates(t *testing.T) {
	_, err := NewOverdueReminderJob(OverdueReminderJobParams{Logger: testLogger()})
	assert.Error(t, err)
}

func seedNotice(t *testing.T, conn *gorm.DB, rental *models.Rental, created time.Time) {
	t.Helper()
	require.NoError(t, conn.Create(&models.OverdueNotice{
		RentalID:   rental.ID,
		BorrowerID: rental.BorrowerID,
		ItemID:     rental.ItemID,
		DueAt:      rental.EndTime,
		LateHours:  1,
		CreatedAt:  created,
	}).Error)
}

func TestNoticeRetentionJobDeletesOnlyOldResolvedNotices(t *testing.T) {
	conn := openTestDB(t)
	old := jobNow.Add(-100 * 24 * time.Hour)
	recent := jobNow.Add(-10 * 24 * time.Hour)
	borrower, _, closed := seedRental(t, conn, old, true)
	_, _, open := seedRental(t, conn, old, false)
	seedNotice(t, conn, closed, old)
	seedNotice(t, conn, closed, recent)
	seedNotice(t, conn, open, old)
	require.NoError(t, conn.Create(&models.Message{ReceiverID: borrower.ID, Content: "damage report", IsRead: true, CreatedAt: old}).Error)

	job, err := NewNoticeRetentionJob(NoticeRetentionJobParams{
		Logger:  testLogger(),
		Notices: notices.NewRepository(conn),
		Clock:   &clock.Fixed{At: jobNow},
	})
	require.NoError(t, err)

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	left := noticesFor(t, conn, closed.ID)
	require.Len(t, left, 1)
	assert.True(t, left[0].CreatedAt.Equal(recent))
	assert.Len(t, noticesFor(t, conn, open.ID), 1)
	assert.Equal(t, int64(1), countRows(t, conn, &models.Message{}))
}

func TestNoticeRetentionJobCustomWindow(t *testing.T) {
	conn := openTestDB(t)
	_, _, closed := seedRental(t, conn, jobNow.Add(-5*24*time.Hour), true)
	seedNotice(t, conn, closed, jobNow.Add(-3*24*time.Hour))

	job, err := NewNoticeRetentionJob(NoticeRetentionJobParams{
		Logger:        testLogger(),
		Notices:       notices.NewRepository(conn),
		Clock:         &clock.Fixed{At: jobNow},
		RetentionDays: 2,
	})
	require.NoError(t, err)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.Empty(t, noticesFor(t, conn, closed.ID))
}

func TestNewNoticeRetentionJobValidates(t *testing.T) {
	_, err := NewNoticeRetentionJob(NoticeRetentionJobParams{Logger: testLogger()})
	assert.Error(t, err)
}
