package durable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronTrigger fires f every time the current UTC minute matches expr, a
// standard 5-field cron expression (minute hour day-of-month month
// day-of-week). Supports "*", exact values, comma-separated lists of exact
// values, and "*/N" step values per field — enough for the heartbeat's
// default "*/30 * * * *" and simple fixed-time schedules; ranges ("a-b")
// and stepped ranges are not supported.
//
// Ticks once per minute; the caller's f should be cheap (the heartbeat's own
// "should I distill" check is itself near-free, per §4.12).
func CronTrigger(expr string, f func(time.Time)) (stop func(), err error) {
	fields, err := parseCron(expr)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				now = now.UTC()
				if fields.matches(now) {
					f(now)
				}
			}
		}
	}()

	return func() { close(done) }, nil
}

type cronFields struct {
	minute, hour, dom, month, dow cronField
}

type cronField struct {
	any  bool
	step int // 0 means no step (exact-value match against values)
	vals map[int]bool
}

func (f cronField) matches(v int) bool {
	if f.any {
		if f.step > 0 {
			return v%f.step == 0
		}
		return true
	}
	return f.vals[v]
}

func (c cronFields) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

func parseCron(expr string) (cronFields, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return cronFields{}, fmt.Errorf("durable: cron expression %q must have 5 fields", expr)
	}
	fields := make([]cronField, 5)
	for i, p := range parts {
		f, err := parseCronField(p)
		if err != nil {
			return cronFields{}, fmt.Errorf("durable: cron field %d (%q): %w", i, p, err)
		}
		fields[i] = f
	}
	return cronFields{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4]}, nil
}

func parseCronField(s string) (cronField, error) {
	if s == "*" {
		return cronField{any: true}, nil
	}
	if rest, ok := strings.CutPrefix(s, "*/"); ok {
		step, err := strconv.Atoi(rest)
		if err != nil || step <= 0 {
			return cronField{}, fmt.Errorf("invalid step %q", s)
		}
		return cronField{any: true, step: step}, nil
	}
	vals := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid value %q", part)
		}
		vals[n] = true
	}
	return cronField{vals: vals}, nil
}
