// Package trigger implements the three firing models a job can use: Cron,
// Interval, and Date. Each is pure and immutable: nextFireAfter(t) is total
// (it always returns an instant >= t, or none) and monotonic in t.
package trigger

import (
	"fmt"
	"time"
)

// Trigger produces a job's next fire instant given the instant it was last
// considered from. Implementations must be safe for concurrent use — they
// hold no mutable state.
type Trigger interface {
	// NextFireAfter returns the first fire instant >= t, or ok=false if the
	// trigger will never fire again (an elapsed Date trigger).
	NextFireAfter(t time.Time) (next time.Time, ok bool)

	// Kind identifies the trigger variant for serialization.
	Kind() Kind

	// String renders a deterministic, human-readable form of the trigger,
	// used for job listings.
	String() string
}

// Kind identifies which trigger variant a Spec/Trigger is.
type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
	KindDate     Kind = "date"
)

// Spec is the serialized form of a Trigger, produced by Serialize and
// consumed by Deserialize. Internals of each trigger variant stay private;
// this is the sole export/import seam.
type Spec struct {
	Kind Kind `json:"kind"`

	// Cron fields.
	Expression string `json:"expression,omitempty"`
	Timezone   string `json:"timezone,omitempty"`

	// Interval fields.
	PeriodSeconds int64      `json:"period_seconds,omitempty"`
	Anchor        *time.Time `json:"anchor,omitempty"`

	// Date fields.
	RunDate *time.Time `json:"run_date,omitempty"`
}

// Serialize converts a Trigger to its Spec form.
func Serialize(t Trigger) (Spec, error) {
	switch tt := t.(type) {
	case *Cron:
		return tt.serialize(), nil
	case *Interval:
		return tt.serialize(), nil
	case *Date:
		return tt.serialize(), nil
	default:
		return Spec{}, fmt.Errorf("trigger: unknown implementation %T", t)
	}
}

// Deserialize reconstructs a Trigger from its Spec form.
func Deserialize(s Spec) (Trigger, error) {
	switch s.Kind {
	case KindCron:
		return NewCron(s.Expression, s.Timezone)
	case KindInterval:
		anchor := time.Time{}
		if s.Anchor != nil {
			anchor = *s.Anchor
		}
		return NewInterval(time.Duration(s.PeriodSeconds)*time.Second, anchor)
	case KindDate:
		if s.RunDate == nil {
			return nil, fmt.Errorf("trigger: date spec missing run_date")
		}
		return NewDate(*s.RunDate), nil
	default:
		return nil, fmt.Errorf("trigger: unknown kind %q", s.Kind)
	}
}
