package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"group-decision/internal/config"
	"group-decision/internal/service"
)

// DueResolver resolves decisions whose collection deadline has passed
type DueResolver interface {
	ResolveDue(ctx context.Context, now time.Time, limit int) (service.DueSummary, error)
	ReleaseStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Scheduler handles periodic tasks
type Scheduler struct {
	resolver   DueResolver
	config     *config.SchedulerConfig
	staleAfter time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

// NewScheduler creates a new scheduler. Decisions left in processing for
// longer than staleAfter are returned to collecting before each sweep.
func NewScheduler(resolver DueResolver, cfg *config.SchedulerConfig, staleAfter time.Duration) *Scheduler {
	return &Scheduler{
		resolver:   resolver,
		config:     cfg,
		staleAfter: staleAfter,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start starts all scheduled tasks
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler", "deadline_resolver_enabled", s.config.EnableDeadlineResolver)

	if s.config.EnableDeadlineResolver {
		if err := s.startCronTask(s.config.DeadlineCron, "deadline_resolution", s.resolveDueDecisions); err != nil {
			slog.Error("Failed to start deadline resolution", "error", err)
		}
	}

	slog.Info("Scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		slog.Info("Stopping scheduler")
		close(s.stopChan)
	})
}

// startCronTask parses a cron expression and starts the task
// Supports simple cron format: "minute hour day month weekday"
// Examples: "0 9 * * 1" = Monday 9 AM, "0 8 * * *" = Daily 8 AM, "*/5 * * * *" = Every 5 minutes
func (s *Scheduler) startCronTask(cronExpr, taskName string, task func()) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return err
	}
	go s.run(sched, taskName, task)
	return nil
}

type scheduleKind int

const (
	everyMinutes scheduleKind = iota
	everyHours
	daily
	weekly
)

type schedule struct {
	kind     scheduleKind
	interval int
	minute   int
	hour     int
	weekday  time.Weekday
}

func parseCron(cronExpr string) (schedule, error) {
	parts := strings.Fields(cronExpr)
	if len(parts) != 5 {
		return schedule{}, fmt.Errorf("invalid cron expression: %s (expected 5 fields)", cronExpr)
	}

	if strings.HasPrefix(parts[0], "*/") {
		interval, err := strconv.Atoi(parts[0][2:])
		if err != nil || interval < 1 || interval > 59 {
			return schedule{}, fmt.Errorf("invalid minute interval in cron: %s", parts[0])
		}
		return schedule{kind: everyMinutes, interval: interval}, nil
	}

	minute, err := strconv.Atoi(parts[0])
	if err != nil || minute < 0 || minute > 59 {
		return schedule{}, fmt.Errorf("invalid minute in cron: %s", parts[0])
	}

	if strings.HasPrefix(parts[1], "*/") {
		interval, err := strconv.Atoi(parts[1][2:])
		if err != nil || interval < 1 || interval > 23 {
			return schedule{}, fmt.Errorf("invalid hour interval in cron: %s", parts[1])
		}
		return schedule{kind: everyHours, interval: interval, minute: minute}, nil
	}

	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return schedule{}, fmt.Errorf("invalid hour in cron: %s", parts[1])
	}

	if parts[4] == "*" {
		return schedule{kind: daily, minute: minute, hour: hour}, nil
	}

	weekday, err := strconv.Atoi(parts[4])
	if err != nil || weekday < 0 || weekday > 6 {
		return schedule{}, fmt.Errorf("invalid weekday in cron: %s (0-6, 0=Sunday)", parts[4])
	}
	return schedule{kind: weekly, minute: minute, hour: hour, weekday: time.Weekday(weekday)}, nil
}

// next returns the first run time strictly after from
func (sc schedule) next(from time.Time) time.Time {
	switch sc.kind {
	case everyMinutes:
		return from.Add(time.Duration(sc.interval) * time.Minute)
	case everyHours:
		return nextHourlyInterval(from, sc.interval, sc.minute)
	case daily:
		return nextDailyRun(from, sc.hour, sc.minute)
	default:
		return nextWeekday(from, sc.weekday, sc.hour, sc.minute)
	}
}

// run executes task on its schedule until Stop. Minute intervals also run once on start.
func (s *Scheduler) run(sc schedule, taskName string, task func()) {
	if sc.kind == everyMinutes {
		slog.Info("Running interval task", "task", taskName)
		task()
	}

	for {
		now := s.now()
		next := sc.next(now)

		slog.Debug("Next task scheduled", "task", taskName, "next_run", next.Format("2006-01-02 15:04:05"))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			task()
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextHourlyInterval calculates the next run time for hourly intervals
func nextHourlyInterval(from time.Time, hourInterval, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), minute, 0, 0, from.Location())

	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	for next.Hour()%hourInterval != 0 {
		next = next.Add(time.Hour)
	}

	return next
}

// nextWeekday calculates the next occurrence of a specific weekday and time
func nextWeekday(from time.Time, weekday time.Weekday, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())

	daysUntil := int(weekday - from.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}
	next = next.AddDate(0, 0, daysUntil)

	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}

	return next
}

// nextDailyRun calculates the next daily run time
func nextDailyRun(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())

	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// resolveDueDecisions releases stuck runs, then resolves one batch of overdue decisions
func (s *Scheduler) resolveDueDecisions() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.staleAfter > 0 {
		if _, err := s.resolver.ReleaseStale(ctx, s.staleAfter); err != nil {
			slog.Error("Failed to release stale decisions", "error", err)
		}
	}

	summary, err := s.resolver.ResolveDue(ctx, s.now(), s.config.BatchSize)
	if err != nil {
		slog.Error("Deadline resolution failed", "error", err)
		return
	}

	if summary.Resolved+summary.NoViable+summary.Failed > 0 {
		slog.Info("Deadline resolution completed",
			"resolved", summary.Resolved,
			"no_viable_option", summary.NoViable,
			"awaiting_constraints", summary.Insufficient,
			"failed", summary.Failed,
		)
	}
}
