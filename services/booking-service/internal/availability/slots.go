package availability

import "time"

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func OverlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(iv, b) {
			return true
		}
	}
	return false
}

// AvailableSlots walks window in increments of step and returns every
// candidate whose reservation [c, c+span) fits the window, overlaps none of
// busy, and starts strictly after now. The returned intervals are [c, c+duration):
// span may include a trailing buffer that is reserved but never exposed.
func AvailableSlots(window Interval, span, duration, step time.Duration, busy []Interval, now time.Time) []Interval {
	if duration <= 0 || step <= 0 || span < duration {
		return nil
	}
	if !window.End.After(window.Start) {
		return nil
	}

	var slots []Interval
	for c := window.Start; !c.Add(span).After(window.End); c = c.Add(step) {
		if !c.After(now) {
			continue
		}
		if OverlapsAny(Interval{Start: c, End: c.Add(span)}, busy) {
			continue
		}
		slots = append(slots, Interval{Start: c, End: c.Add(duration)})
	}
	return slots
}

// EffectiveStep caps the configured step at span so no bookable start is skipped
// when the step is coarser than the reservation.
func EffectiveStep(configured, span time.Duration) time.Duration {
	if configured <= 0 || configured > span {
		return span
	}
	return configured
}

// Fits reports whether iv lies entirely inside one of windows.
func Fits(iv Interval, windows []Interval) bool {
	for _, w := range windows {
		if !iv.Start.Before(w.Start) && !iv.End.After(w.End) {
			return true
		}
	}
	return false
}
