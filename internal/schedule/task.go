// Package schedule persists scheduled agent tasks and runs them on a cron
// timetable with bounded execution history.
package schedule

import (
	"fmt"
	"time"
)

// Task is one scheduled agent invocation.
type Task struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Agent     string     `json:"agent"`
	Prompt    string     `json:"prompt,omitempty"`
	Cron      string     `json:"cron"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// Validate checks the task's agent and cron expression.
func (t *Task) Validate() error {
	if t.Agent == "" {
		return fmt.Errorf("task: agent must not be empty")
	}
	if _, err := ParseCron(t.Cron); err != nil {
		return fmt.Errorf("task: %w", err)
	}
	return nil
}

// DefaultName is used when a task is created without an explicit name.
func (t *Task) DefaultName() string {
	return fmt.Sprintf("%s-task-%d", t.Agent, t.ID)
}

// IsDue reports whether the task should run at the given minute.
func (t *Task) IsDue(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	c, err := ParseCron(t.Cron)
	if err != nil {
		return false
	}
	return c.Matches(now)
}

// Describe renders the task's schedule in plain language.
func (t *Task) Describe() string {
	c, err := ParseCron(t.Cron)
	if err != nil {
		return t.Cron
	}
	return c.Describe()
}
