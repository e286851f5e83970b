package trigger

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}

func TestCronDailyBoundary(t *testing.T) {
	c, err := NewCron("0 2 * * *", "UTC")
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}

	from := mustTime(t, "2025-06-23T01:59:59Z")
	next, ok := c.NextFireAfter(from)
	if !ok {
		t.Fatalf("expected a next fire time")
	}
	want := mustTime(t, "2025-06-23T02:00:00Z")
	if !next.Equal(want) {
		t.Fatalf("got %s, want %s", next, want)
	}

	// Jumping clock past the boundary must not produce a second firing for
	// the same day.
	from2 := mustTime(t, "2025-06-23T02:00:01Z")
	next2, _ := c.NextFireAfter(from2)
	wantNextDay := mustTime(t, "2025-06-24T02:00:00Z")
	if !next2.Equal(wantNextDay) {
		t.Fatalf("got %s, want %s", next2, wantNextDay)
	}
}

func TestCronMonotonic(t *testing.T) {
	c, err := NewCron("*/15 * * * *", "UTC")
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	t1 := mustTime(t, "2025-01-01T00:05:00Z")
	n1, _ := c.NextFireAfter(t1)
	n2, _ := c.NextFireAfter(n1.Add(time.Second))
	if !n2.After(n1) {
		t.Fatalf("expected monotonic progression, got n1=%s n2=%s", n1, n2)
	}
}

func TestCronInvalidExpression(t *testing.T) {
	if _, err := NewCron("not a cron expr", "UTC"); err == nil {
		t.Fatalf("expected error for invalid expression")
	}
}

func TestIntervalSequence(t *testing.T) {
	anchor := mustTime(t, "2025-01-01T00:00:00Z")
	iv, err := NewInterval(60*time.Second, anchor)
	if err != nil {
		t.Fatalf("NewInterval: %v", err)
	}

	cases := []struct {
		from time.Time
		want time.Time
	}{
		{anchor, anchor},
		{anchor.Add(30 * time.Second), anchor.Add(60 * time.Second)},
		{anchor.Add(60 * time.Second), anchor.Add(60 * time.Second)},
		{anchor.Add(61 * time.Second), anchor.Add(120 * time.Second)},
	}
	for _, c := range cases {
		got, ok := iv.NextFireAfter(c.from)
		if !ok {
			t.Fatalf("expected ok for %s", c.from)
		}
		if !got.Equal(c.want) {
			t.Errorf("NextFireAfter(%s) = %s, want %s", c.from, got, c.want)
		}
	}
}

func TestIntervalRejectsNonPositivePeriod(t *testing.T) {
	if _, err := NewInterval(0, time.Now()); err == nil {
		t.Fatalf("expected error for zero period")
	}
	if _, err := NewInterval(-time.Second, time.Now()); err == nil {
		t.Fatalf("expected error for negative period")
	}
}

func TestIntervalElevenBoundariesOverHundredSecondsInclusive(t *testing.T) {
	anchor := mustTime(t, "2025-01-01T00:00:00Z")
	iv, _ := NewInterval(10*time.Second, anchor)

	count := 0
	cursor := anchor
	for i := 0; i < 1000; i++ {
		next, ok := iv.NextFireAfter(cursor)
		if !ok || next.After(anchor.Add(100*time.Second)) {
			break
		}
		count++
		cursor = next.Add(time.Nanosecond)
	}
	if count != 11 { // t=0,10,...,100 inclusive
		t.Fatalf("got %d firings, want 11", count)
	}
}

func TestDateFutureThenElapsed(t *testing.T) {
	run := mustTime(t, "2030-01-01T00:00:00Z")
	d := NewDate(run)

	before := mustTime(t, "2029-12-31T23:59:59Z")
	next, ok := d.NextFireAfter(before)
	if !ok || !next.Equal(run) {
		t.Fatalf("expected %s before elapse, got %s ok=%v", run, next, ok)
	}

	after := run.Add(time.Second)
	_, ok = d.NextFireAfter(after)
	if ok {
		t.Fatalf("expected none once run date has elapsed")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	c, _ := NewCron("0 2 * * *", "America/Sao_Paulo")
	iv, _ := NewInterval(45*time.Second, mustTime(t, "2025-05-01T00:00:00Z"))
	d := NewDate(mustTime(t, "2030-01-01T00:00:00Z"))

	for _, orig := range []interface {
		Trigger
	}{c, iv, d} {
		spec, err := Serialize(orig)
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		back, err := Deserialize(spec)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if back.Kind() != orig.Kind() {
			t.Fatalf("kind mismatch: got %s want %s", back.Kind(), orig.Kind())
		}
		if back.String() != orig.String() {
			t.Fatalf("round trip changed rendering: got %q want %q", back.String(), orig.String())
		}
	}
}
