package scheduler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/nanoclaw/internal/store"
)

// ValidateSchedule rejects a schedule before any row is written.
func ValidateSchedule(scheduleType store.ScheduleType, value string) error {
	switch scheduleType {
	case store.ScheduleCron:
		if _, err := cron.ParseStandard(value); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", value, err)
		}
	case store.ScheduleInterval:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid interval %q: not a number", value)
		}
		if ms <= 0 {
			return fmt.Errorf("invalid interval %q: must be positive", value)
		}
	case store.ScheduleOnce:
		if _, err := store.ParseTime(value); err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", value, err)
		}
	default:
		return fmt.Errorf("unknown schedule type %q", scheduleType)
	}
	return nil
}

// InitialNextRun computes a new task's first next_run. A once schedule
// fires at its own timestamp, cron and interval at their first occurrence
// after now.
func InitialNextRun(scheduleType store.ScheduleType, value string, now time.Time, tz *time.Location) (string, error) {
	switch scheduleType {
	case store.ScheduleCron:
		sched, err := cron.ParseStandard(value)
		if err != nil {
			return "", err
		}
		return store.FormatTime(sched.Next(now.In(tz))), nil
	case store.ScheduleInterval:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", err
		}
		return store.FormatTime(now.Add(time.Duration(ms) * time.Millisecond)), nil
	case store.ScheduleOnce:
		at, err := store.ParseTime(value)
		if err != nil {
			return "", err
		}
		return store.FormatTime(at), nil
	}
	return "", fmt.Errorf("unknown schedule type %q", scheduleType)
}

// nextRunAfter computes the occurrence after a completed run. A once
// schedule has none: the task is done.
func nextRunAfter(task *store.ScheduledTask, now time.Time, tz *time.Location) (*string, error) {
	switch task.ScheduleType {
	case store.ScheduleCron:
		sched, err := cron.ParseStandard(task.ScheduleValue)
		if err != nil {
			return nil, fmt.Errorf("cron expression stopped parsing: %w", err)
		}
		next := store.FormatTime(sched.Next(now.In(tz)))
		return &next, nil
	case store.ScheduleInterval:
		ms, err := strconv.ParseInt(task.ScheduleValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("interval stopped parsing: %w", err)
		}
		next := store.FormatTime(now.Add(time.Duration(ms) * time.Millisecond))
		return &next, nil
	}
	return nil, nil
}
