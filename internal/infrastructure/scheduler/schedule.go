package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalSchedule fires a fixed interval after the previous activation.
// Unlike cron descriptors it keeps sub-second intervals.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every builds an IntervalSchedule.
func Every(d time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: d}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time { return t.Add(s.Interval) }
func (s *IntervalSchedule) String() string             { return "@every " + s.Interval.String() }

// CronSchedule is a standard five-field cron expression or descriptor
// ("@every 2m", "@hourly") parsed by robfig/cron.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
}

// ParseSchedule parses expr into a Schedule.
func ParseSchedule(expr string) (*CronSchedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, schedule: s}, nil
}

func (s *CronSchedule) Next(t time.Time) time.Time { return s.schedule.Next(t) }
func (s *CronSchedule) String() string             { return s.expr }
