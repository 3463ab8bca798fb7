package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
)

const defaultNoticeRetentionDays = 90

type resolvedNoticePurger interface {
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NoticeRetentionJobParams struct {
	Logger        *logger.Logger
	Notices       resolvedNoticePurger
	Clock         clock.Clock
	RetentionDays int
}

// NewNoticeRetentionJob purges overdue notices of closed rentals once they
// age past the retention window.
func NewNoticeRetentionJob(params NoticeRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Notices == nil {
		return nil, fmt.Errorf("notices repository required")
	}
	if params.Clock == nil {
		return nil, fmt.Errorf("clock required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultNoticeRetentionDays
	}
	return &noticeRetentionJob{
		logg:      params.Logger,
		notices:   params.Notices,
		clock:     params.Clock,
		retention: retention,
	}, nil
}

type noticeRetentionJob struct {
	logg      *logger.Logger
	notices   resolvedNoticePurger
	clock     clock.Clock
	retention int
}

func (j *noticeRetentionJob) Name() string { return "overdue-notice-retention" }

func (j *noticeRetentionJob) Run(ctx context.Context) (Result, error) {
	cutoff := j.clock.Now().AddDate(0, 0, -j.retention)
	deleted, err := j.notices.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("notice retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "overdue_notices.purged")
	return Result{Affected: deleted}, nil
}
