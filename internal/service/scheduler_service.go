package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron   *cron.Cron
	logger *log.Logger
}

func NewSchedulerService(loc *time.Location, logger *log.Logger) *SchedulerService {
	if logger == nil {
		logger = log.Default()
	}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		logger: logger,
	}
}

// Job is a scheduled unit of work bounded by its own timeout.
type Job func(ctx context.Context) error

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr, name string, timeout time.Duration, job Job) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.ScheduleSpec(spec, name, timeout, job)
}

// ScheduleSpec registers a job under a six-field cron spec (seconds first).
func (s *SchedulerService) ScheduleSpec(spec, name string, timeout time.Duration, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, s.wrap(name, timeout, job))
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	return id, nil
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, name string, timeout time.Duration, job Job) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.ScheduleSpec(fmt.Sprintf("@every %ds", seconds), name, timeout, job)
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SchedulerService) wrap(name string, timeout time.Duration, job Job) func() {
	return func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("[warn] job %s: %v", name, err)
		}
	}
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
