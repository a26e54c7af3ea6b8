package cron

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Job is one scheduled task. Run reports how many rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type entry struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Schedule holds jobs with their own intervals. Every job is due on the
// first check after it is added.
type Schedule struct {
	entries []*entry
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Add registers job to run every interval. Names must be unique because they
// key the job lock and the metrics.
func (s *Schedule) Add(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	for _, e := range s.entries {
		if e.job.Name() == job.Name() {
			return fmt.Errorf("job %s already scheduled", job.Name())
		}
	}
	s.entries = append(s.entries, &entry{job: job, every: every})
	return nil
}

// Names lists scheduled jobs sorted by name.
func (s *Schedule) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	sort.Strings(names)
	return names
}

// due returns the entries whose next run is at or before now and moves their
// next run one interval past now.
func (s *Schedule) due(now time.Time) []*entry {
	var out []*entry
	for _, e := range s.entries {
		if e.next.IsZero() || !now.Before(e.next) {
			e.next = now.Add(e.every)
			out = append(out, e)
		}
	}
	return out
}
