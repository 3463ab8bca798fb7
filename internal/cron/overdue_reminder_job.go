package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/sheerent-backend/internal/notices"
	"github.com/angelmondragon/sheerent-backend/internal/pricing"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
)

const defaultOverdueBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type OverdueReminderJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Rentals   rentals.Repository
	Notices   notices.Repository
	Clock     clock.Clock
	BatchSize int
}

// NewOverdueReminderJob records one overdue notice per rental past its end
// time. Extending a rental clears the stamp so a new deadline earns a new notice.
func NewOverdueReminderJob(params OverdueReminderJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Rentals == nil:
		return nil, fmt.Errorf("rentals repository required")
	case params.Notices == nil:
		return nil, fmt.Errorf("notices repository required")
	case params.Clock == nil:
		return nil, fmt.Errorf("clock required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOverdueBatchSize
	}
	return &overdueReminderJob{
		logg:    params.Logger,
		db:      params.DB,
		rentals: params.Rentals,
		notices: params.Notices,
		clock:   params.Clock,
		batch:   batch,
	}, nil
}

type overdueReminderJob struct {
	logg    *logger.Logger
	db      txRunner
	rentals rentals.Repository
	notices notices.Repository
	clock   clock.Clock
	batch   int
}

func (j *overdueReminderJob) Name() string { return "overdue-rental-reminder" }

func (j *overdueReminderJob) Run(ctx context.Context) (Result, error) {
	now := j.clock.Now()
	overdue, err := j.rentals.ListOverdueUnreminded(ctx, now, j.batch)
	if err != nil {
		return Result{}, err
	}
	if len(overdue) == 0 {
		return Result{}, nil
	}

	var sent int64
	for i := range overdue {
		rental := &overdue[i]
		ok, err := j.remind(ctx, rental, now)
		if err != nil {
			return Result{Affected: sent}, fmt.Errorf("remind rental %s: %w", rental.ID, err)
		}
		if ok {
			sent++
		}
	}
	return Result{Affected: sent}, nil
}

func (j *overdueReminderJob) remind(ctx context.Context, rental *models.Rental, now time.Time) (bool, error) {
	var sent bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.rentals.WithTx(tx).MarkReminded(ctx, rental.ID, now)
		if err != nil || !ok {
			return err
		}
		notice := &models.OverdueNotice{
			RentalID:   rental.ID,
			BorrowerID: rental.BorrowerID,
			ItemID:     rental.ItemID,
			DueAt:      rental.EndTime,
			LateHours:  pricing.LateHours(rental.EndTime, now),
			CreatedAt:  now,
		}
		if err := j.notices.WithTx(tx).Create(ctx, notice); err != nil {
			return err
		}
		sent = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if sent {
		logCtx := j.logg.WithRentalID(ctx, rental.ID.String())
		logCtx = j.logg.WithUserID(logCtx, rental.BorrowerID.String())
		j.logg.Info(logCtx, "rental.overdue_reminded")
	}
	return sent, nil
}
