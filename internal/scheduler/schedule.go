package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/motorsales/vsms/internal/tasks"
	"github.com/motorsales/vsms/pkg/queue"
)

// Entry is one periodic job. Exactly one of Every or a daily time of day is set.
type Entry struct {
	Name    string
	JobType string
	Queue   string
	Every   time.Duration
	Daily   bool
	Hour    int
	Minute  int
}

type fileEntry struct {
	Name  string `yaml:"name"`
	Job   string `yaml:"job"`
	Every string `yaml:"every"`
	At    string `yaml:"at"`
	Queue string `yaml:"queue"`
}

type scheduleFile struct {
	Entries []fileEntry `yaml:"entries"`
}

// DefaultEntries is the schedule used when no file is configured.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: "payment-reminders", JobType: tasks.PaymentReminderSweep, Queue: queue.QueueLow, Daily: true, Hour: 6},
		{Name: "insurance-expiry", JobType: tasks.InsuranceExpirySweep, Queue: queue.QueueLow, Daily: true, Hour: 6, Minute: 30},
		{Name: "notification-cleanup", JobType: tasks.NotificationCleanup, Queue: queue.QueueLow, Daily: true, Hour: 3},
		{Name: "pending-notifications", JobType: tasks.PendingNotifications, Queue: queue.QueueDefault, Every: 5 * time.Minute},
	}
}

// LoadFile reads a YAML schedule.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML schedule:
//
//	entries:
//	  - name: payment-reminders
//	    job: payments.reminder_sweep
//	    at: "06:00"
//	  - name: cleanup
//	    job: notifications.cleanup
//	    every: 6h
//	    queue: low
func Parse(data []byte) ([]Entry, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	if len(f.Entries) == 0 {
		return nil, errors.New("schedule has no entries")
	}
	seen := make(map[string]bool, len(f.Entries))
	out := make([]Entry, 0, len(f.Entries))
	for i, fe := range f.Entries {
		e, err := fe.compile()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("entry %d: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out, nil
}

func (fe fileEntry) compile() (Entry, error) {
	e := Entry{Name: strings.TrimSpace(fe.Name), JobType: strings.TrimSpace(fe.Job), Queue: fe.Queue}
	if e.Name == "" || e.JobType == "" {
		return e, errors.New("name and job are required")
	}
	switch e.Queue {
	case "":
		e.Queue = queue.QueueLow
	case queue.QueueCritical, queue.QueueDefault, queue.QueueLow:
	default:
		return e, fmt.Errorf("unknown queue %q", e.Queue)
	}
	switch {
	case fe.Every != "" && fe.At != "":
		return e, errors.New("set either every or at, not both")
	case fe.Every != "":
		d, err := time.ParseDuration(fe.Every)
		if err != nil {
			return e, fmt.Errorf("every: %w", err)
		}
		if d < time.Minute {
			return e, fmt.Errorf("every must be at least 1m, got %s", d)
		}
		e.Every = d
	case fe.At != "":
		h, m, err := parseClock(fe.At)
		if err != nil {
			return e, err
		}
		e.Daily, e.Hour, e.Minute = true, h, m
	default:
		return e, errors.New("one of every or at is required")
	}
	return e, nil
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("at %q: want HH:MM", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("at %q: want HH:MM", s)
	}
	return h, m, nil
}

// slot returns the start of the period containing now and how long its lock must live.
// Daily slots are only reported while now is within grace of the slot start.
func (e Entry) slot(now time.Time, loc *time.Location, grace time.Duration) (time.Time, time.Duration, bool) {
	if !e.Daily {
		return now.Truncate(e.Every), e.Every + time.Minute, true
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), e.Hour, e.Minute, 0, 0, loc)
	if local.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	if local.Sub(start) > grace {
		return time.Time{}, 0, false
	}
	return start, 25 * time.Hour, true
}

func (e Entry) String() string {
	if e.Daily {
		return fmt.Sprintf("%s daily at %02d:%02d", e.JobType, e.Hour, e.Minute)
	}
	return fmt.Sprintf("%s every %s", e.JobType, e.Every)
}
