package trigger

import (
	"fmt"
	"time"
)

// Date fires exactly once, at RunDate.
type Date struct {
	runDate time.Time
}

// NewDate builds a one-shot Date trigger. Callers that require the run date
// to be in the future (job creation) should check that separately — the
// trigger itself is a pure function and simply returns none once t has
// passed runDate.
func NewDate(runDate time.Time) *Date {
	return &Date{runDate: runDate}
}

// NextFireAfter returns runDate if t <= runDate, else none.
func (d *Date) NextFireAfter(t time.Time) (time.Time, bool) {
	if t.After(d.runDate) {
		return time.Time{}, false
	}
	return d.runDate, true
}

// Kind returns KindDate.
func (d *Date) Kind() Kind { return KindDate }

// RunDate returns the trigger's single fire instant.
func (d *Date) RunDate() time.Time { return d.runDate }

// String renders the run date deterministically.
func (d *Date) String() string {
	return fmt.Sprintf("date(%s)", d.runDate.UTC().Format(time.RFC3339))
}

func (d *Date) serialize() Spec {
	rd := d.runDate
	return Spec{Kind: KindDate, RunDate: &rd}
}
