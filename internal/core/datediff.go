package core

import "time"

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns the number of whole calendar days between a and b in
// the local time zone, ignoring time of day. It is symmetric and never negative.
func DaysBetween(a, b time.Time) int {
	return DaysBetweenIn(a, b, time.Local)
}

// DaysBetweenIn is DaysBetween with an explicit calendar location.
//
// Both instants are reduced to their civil date in loc and the dates are
// compared as UTC midnights, so days shortened or lengthened by a DST switch
// still count as one day.
func DaysBetweenIn(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	diff := civilMidnight(a.In(loc)).Unix() - civilMidnight(b.In(loc)).Unix()
	if diff < 0 {
		diff = -diff
	}
	return int(diff / secondsPerDay)
}

func civilMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
