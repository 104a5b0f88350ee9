package availability

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// 2026-02-02 is a Monday.
var monday = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestOverlaps(t *testing.T) {
	a := Interval{Start: at(10, 0), End: at(10, 30)}
	cases := []struct {
		name string
		b    Interval
		want bool
	}{
		{"identical", a, true},
		{"inside", Interval{Start: at(10, 10), End: at(10, 20)}, true},
		{"straddles start", Interval{Start: at(9, 45), End: at(10, 15)}, true},
		{"touches end", Interval{Start: at(10, 30), End: at(11, 0)}, false},
		{"touches start", Interval{Start: at(9, 30), End: at(10, 0)}, false},
		{"disjoint", Interval{Start: at(12, 0), End: at(13, 0)}, false},
	}
	for _, tc := range cases {
		if got := Overlaps(a, tc.b); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
		if got := Overlaps(tc.b, a); got != tc.want {
			t.Fatalf("%s (swapped): expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestAvailableSlots_OpenDay(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(17, 0)}
	slots := AvailableSlots(window, 30*time.Minute, 30*time.Minute, 15*time.Minute, nil, at(8, 0))

	// 09:00 through 16:30 every 15 minutes.
	if len(slots) != 31 {
		t.Fatalf("expected 31 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(at(16, 30)) || !last.End.Equal(at(17, 0)) {
		t.Fatalf("expected last slot 16:30-17:00, got %s-%s", last.Start.Format(time.RFC3339), last.End.Format(time.RFC3339))
	}
	for i := 1; i < len(slots); i++ {
		if d := slots[i].Start.Sub(slots[i-1].Start); d != 15*time.Minute {
			t.Fatalf("expected 15m step at %d, got %s", i, d)
		}
	}
}

func TestAvailableSlots_TouchingAppointment(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(12, 0)}
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	slots := AvailableSlots(window, 30*time.Minute, 30*time.Minute, 15*time.Minute, busy, at(8, 0))

	starts := map[time.Time]bool{}
	for _, s := range slots {
		starts[s.Start] = true
	}
	for _, want := range []time.Time{at(9, 0), at(9, 15), at(9, 30), at(10, 30)} {
		if !starts[want] {
			t.Fatalf("expected slot at %s", want.Format("15:04"))
		}
	}
	for _, excluded := range []time.Time{at(9, 45), at(10, 0), at(10, 15)} {
		if starts[excluded] {
			t.Fatalf("unexpected slot at %s", excluded.Format("15:04"))
		}
	}
	// 11 candidates between 09:00 and 11:30, minus the three that intersect [10:00,10:30).
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
}

func TestAvailableSlots_BufferWidensReservation(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(12, 0)}
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	span := 45 * time.Minute
	slots := AvailableSlots(window, span, 30*time.Minute, 15*time.Minute, busy, at(8, 0))

	want := []Interval{
		{Start: at(9, 0), End: at(9, 30)},
		{Start: at(9, 15), End: at(9, 45)},
		{Start: at(10, 30), End: at(11, 0)},
		{Start: at(10, 45), End: at(11, 15)},
		{Start: at(11, 0), End: at(11, 30)},
		{Start: at(11, 15), End: at(11, 45)},
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
}

func TestAvailableSlots_StrictlyFuture(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(10, 0)}

	// A candidate starting exactly at now is not offered.
	slots := AvailableSlots(window, 15*time.Minute, 15*time.Minute, 15*time.Minute, nil, at(9, 30))
	want := []Interval{{Start: at(9, 45), End: at(10, 0)}}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
}

func TestAvailableSlots_Degenerate(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(9, 20)}
	if got := AvailableSlots(window, 30*time.Minute, 30*time.Minute, 15*time.Minute, nil, at(8, 0)); len(got) != 0 {
		t.Fatalf("expected no slots for a window shorter than the span, got %d", len(got))
	}
	if got := AvailableSlots(window, 10*time.Minute, 10*time.Minute, 0, nil, at(8, 0)); got != nil {
		t.Fatalf("expected nil for zero step, got %v", got)
	}
}

func TestAvailableSlots_SoundAndComplete(t *testing.T) {
	window := Interval{Start: at(8, 0), End: at(18, 0)}
	busy := []Interval{
		{Start: at(9, 10), End: at(9, 50)},
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(16, 55), End: at(17, 5)},
	}
	now := at(8, 20)
	span, duration, step := 25*time.Minute, 20*time.Minute, 5*time.Minute

	slots := AvailableSlots(window, span, duration, step, busy, now)
	got := map[time.Time]bool{}
	for _, s := range slots {
		if s.End.Sub(s.Start) != duration {
			t.Fatalf("slot %s has wrong length", s.Start.Format("15:04"))
		}
		got[s.Start] = true
	}

	for c := window.Start; !c.Add(span).After(window.End); c = c.Add(step) {
		reserve := Interval{Start: c, End: c.Add(span)}
		bookable := c.After(now) && !OverlapsAny(reserve, busy)
		if bookable != got[c] {
			t.Fatalf("candidate %s: bookable=%v offered=%v", c.Format("15:04"), bookable, got[c])
		}
	}
}

func TestAvailableSlots_Idempotent(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(17, 0)}
	busy := []Interval{{Start: at(11, 0), End: at(11, 45)}}
	first := AvailableSlots(window, 45*time.Minute, 30*time.Minute, 15*time.Minute, busy, at(8, 0))
	second := AvailableSlots(window, 45*time.Minute, 30*time.Minute, 15*time.Minute, busy, at(8, 0))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated listing differs:\n%s", diff)
	}
}

func TestEffectiveStep(t *testing.T) {
	if got := EffectiveStep(15*time.Minute, 10*time.Minute); got != 10*time.Minute {
		t.Fatalf("expected step capped at span, got %s", got)
	}
	if got := EffectiveStep(15*time.Minute, 45*time.Minute); got != 15*time.Minute {
		t.Fatalf("expected configured step, got %s", got)
	}
	if got := EffectiveStep(0, 30*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected span for unset step, got %s", got)
	}
}

func TestFits(t *testing.T) {
	windows := []Interval{{Start: at(9, 0), End: at(12, 0)}, {Start: at(13, 0), End: at(17, 0)}}
	if !Fits(Interval{Start: at(11, 30), End: at(12, 0)}, windows) {
		t.Fatal("expected interval ending at window close to fit")
	}
	if Fits(Interval{Start: at(11, 45), End: at(12, 15)}, windows) {
		t.Fatal("expected interval crossing lunch to not fit")
	}
}
