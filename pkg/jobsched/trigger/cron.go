package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser parses the five-field standard (minute hour dom month dow), with no
// seconds field — the spec caps precision at one minute and this module
// excludes cron.Second on purpose. Day-of-week names beyond robfig's default
// mon..sun set are not added; that is the one named precision cap from the
// spec's Non-goals.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cron fires on a five-field cron expression interpreted in a fixed
// timezone. DST transitions are handled by Go's time.Date normalization:
// a nominal instant that falls in a spring-forward gap is rolled forward to
// the first valid instant past the gap (time.Date's usual behavior for
// out-of-range components); an instant that occurs twice during fall-back
// is produced once per robfig/cron's monotonic field-by-field search, so
// only the first occurrence fires.
type Cron struct {
	expr     string
	schedule cron.Schedule
	loc      *time.Location
}

// NewCron parses a five-field cron expression (lists, ranges, steps, and
// jan..dec / mon..sun names) in the given IANA timezone name. An empty
// timezone means UTC.
func NewCron(expr, timezone string) (*Cron, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("trigger: invalid timezone %q: %w", timezone, err)
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("trigger: invalid cron expression %q: %w", expr, err)
	}

	return &Cron{expr: expr, schedule: sched, loc: loc}, nil
}

// NextFireAfter returns the next instant the cron schedule fires at or
// after t, evaluated in the trigger's configured timezone.
func (c *Cron) NextFireAfter(t time.Time) (time.Time, bool) {
	// robfig's Next is strictly after its argument; stepping back one
	// nanosecond lets t itself match when it sits on a boundary.
	localized := t.In(c.loc).Add(-time.Nanosecond)
	next := c.schedule.Next(localized)
	return next, true
}

// Kind returns KindCron.
func (c *Cron) Kind() Kind { return KindCron }

// String renders the cron expression and timezone deterministically.
func (c *Cron) String() string {
	return fmt.Sprintf("cron(%s %s)", c.expr, c.loc.String())
}

func (c *Cron) serialize() Spec {
	return Spec{Kind: KindCron, Expression: c.expr, Timezone: c.loc.String()}
}
