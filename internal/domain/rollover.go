package domain

import "time"

// HasRolledOver reports whether the tracking week has rolled over
// between previous and now. The boundary is the ISO calendar week, with
// one extra case: attendance recorded on a Sunday must not leak past
// midnight, so a Sunday previous with a non-Sunday now also rolls over
// even when the week numbers agree (which they can across year
// boundaries, where the numbers wrap).
func HasRolledOver(previous, now time.Time) bool {
	_, prevWeek := previous.ISOWeek()
	_, curWeek := now.ISOWeek()
	if curWeek != prevWeek {
		return true
	}
	return previous.Weekday() == time.Sunday && now.Weekday() != time.Sunday
}
