package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSpec bounds one position of a cron expression.
type fieldSpec struct {
	name string
	min  int
	max  int
}

// Fields in order: minute, hour, day of month, month, day of week.
var cronFields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 6},
}

// Cron is a validated 5-field schedule. Each field is either a wildcard, a
// single value, or a step (*/N).
type Cron struct {
	expr   string
	fields [5]cronField
}

type cronField struct {
	any   bool
	step  int // 0 when not a step
	value int // meaningful when !any && step == 0
}

// ParseCron validates an expression against the grammar: five
// space-separated fields, each `*`, a number within the field's range, or
// `*/N` with N a positive divisor step.
func ParseCron(expr string) (*Cron, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(parts))
	}
	c := &Cron{expr: expr}
	for i, part := range parts {
		f, err := parseCronField(part, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("cron %q: %w", expr, err)
		}
		c.fields[i] = f
	}
	return c, nil
}

func parseCronField(part string, spec fieldSpec) (cronField, error) {
	if part == "*" {
		return cronField{any: true}, nil
	}
	if step, ok := strings.CutPrefix(part, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("%s: invalid step %q", spec.name, part)
		}
		if n > spec.max {
			return cronField{}, fmt.Errorf("%s: step %d exceeds range %d-%d", spec.name, n, spec.min, spec.max)
		}
		return cronField{step: n}, nil
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return cronField{}, fmt.Errorf("%s: invalid value %q", spec.name, part)
	}
	if n < spec.min || n > spec.max {
		return cronField{}, fmt.Errorf("%s: %d outside range %d-%d", spec.name, n, spec.min, spec.max)
	}
	return cronField{value: n}, nil
}

// String returns the original expression.
func (c *Cron) String() string { return c.expr }

// Matches reports whether the given minute satisfies the schedule. Seconds
// are ignored; evaluation is at minute granularity.
func (c *Cron) Matches(t time.Time) bool {
	values := [5]int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, f := range c.fields {
		if !f.matches(values[i]) {
			return false
		}
	}
	return true
}

func (f cronField) matches(v int) bool {
	switch {
	case f.any:
		return true
	case f.step > 0:
		return v%f.step == 0
	default:
		return v == f.value
	}
}

// Describe renders the common schedule shapes in plain language; anything
// irregular falls back to the raw expression.
func (c *Cron) Describe() string {
	m, h, dom, mon, dow := c.fields[0], c.fields[1], c.fields[2], c.fields[3], c.fields[4]
	rest := dom.any && mon.any && dow.any

	switch {
	case m.step > 0 && h.any && rest:
		if m.step == 1 {
			return "every minute"
		}
		return fmt.Sprintf("every %d minutes", m.step)
	case m.any && h.any && rest:
		return "every minute"
	case !m.any && m.step == 0 && h.step > 0 && rest:
		return fmt.Sprintf("every %d hours at minute %d", h.step, m.value)
	case !m.any && m.step == 0 && !h.any && h.step == 0 && rest:
		return fmt.Sprintf("daily at %02d:%02d", h.value, m.value)
	case !m.any && m.step == 0 && !h.any && h.step == 0 && dom.any && mon.any && !dow.any && dow.step == 0:
		return fmt.Sprintf("every %s at %02d:%02d", time.Weekday(dow.value), h.value, m.value)
	default:
		return c.expr
	}
}
