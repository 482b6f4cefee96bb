package schedule

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	// 2026-08-19 is a Wednesday.
	return time.Date(2026, 8, 19, hour, minute, 0, 0, time.UTC)
}

func TestCronEverySixHours(t *testing.T) {
	c, err := ParseCron("0 */6 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, h := range []int{0, 6, 12, 18} {
		if !c.Matches(at(h, 0)) {
			t.Errorf("hour %d minute 0 should match", h)
		}
	}
	if c.Matches(at(3, 0)) {
		t.Error("hour 3 should not match */6")
	}
	if c.Matches(at(6, 30)) {
		t.Error("minute 30 should not match minute field 0")
	}
}

func TestCronDaily(t *testing.T) {
	c, err := ParseCron("30 2 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !c.Matches(at(2, 30)) {
		t.Error("02:30 should match")
	}
	if c.Matches(at(2, 31)) || c.Matches(at(3, 30)) {
		t.Error("only 02:30 should match")
	}
}

func TestCronDayOfWeek(t *testing.T) {
	c, err := ParseCron("0 9 * * 3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !c.Matches(at(9, 0)) {
		t.Error("Wednesday 09:00 should match day-of-week 3")
	}
	thursday := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	if c.Matches(thursday) {
		t.Error("Thursday should not match day-of-week 3")
	}
}

func TestCronValidation(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"abc * * * *",
		"*/x * * * *",
		"-5 * * * *",
	} {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("%q: expected parse error", expr)
		}
	}
	for _, expr := range []string{
		"* * * * *",
		"0 0 1 1 0",
		"59 23 31 12 6",
		"*/15 * * * *",
		"0 */6 * * *",
	} {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("%q: unexpected error %v", expr, err)
		}
	}
}

func TestCronDescribe(t *testing.T) {
	cases := map[string]string{
		"*/5 * * * *":  "every 5 minutes",
		"* * * * *":    "every minute",
		"0 */6 * * *":  "every 6 hours at minute 0",
		"30 2 * * *":   "daily at 02:30",
		"0 9 * * 3":    "every Wednesday at 09:00",
		"0 9 15 * *":   "0 9 15 * *",
	}
	for expr, want := range cases {
		c, err := ParseCron(expr)
		if err != nil {
			t.Fatalf("%q: %v", expr, err)
		}
		if got := c.Describe(); got != want {
			t.Errorf("%q: Describe() = %q, want %q", expr, got, want)
		}
	}
}
