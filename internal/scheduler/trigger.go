// Package scheduler decides when once-a-day actions fire.
//
// Every check compares the current minute against an action's trigger times
// and the action's watermark against today's date key. The watermark is
// advanced before the action runs, so an action fires at most once per
// calendar day no matter how often it is checked or whether it fails.
package scheduler

import (
	"time"
)

const (
	dateKeyLayout = "2006-01-02"
	minuteLayout  = "15:04"
)

// DateKey identifies a calendar day. It is compared, never parsed.
type DateKey string

// DateKeyOf returns the date key of t in t's own location.
func DateKeyOf(t time.Time) DateKey {
	return DateKey(t.Format(dateKeyLayout))
}

// MinuteOf returns the zero-padded 24-hour "HH:MM" string of t.
func MinuteOf(t time.Time) string {
	return t.Format(minuteLayout)
}

// Schedule is a named action with the trigger times it is eligible at.
// The times are a union: any one matching makes the action eligible.
type Schedule struct {
	Action string
	Times  []string
}

// Matches reports whether any trigger time equals minute.
func (s Schedule) Matches(minute string) bool {
	for _, t := range s.Times {
		if t == minute {
			return true
		}
	}
	return false
}

// CheckAndFire fires sideEffect when now's minute matches the schedule and
// the action has not fired on now's date. now must already be in the
// deployment's zone. The watermark is set before sideEffect is called and is
// never rolled back. It returns whether the action fired.
func CheckAndFire(now time.Time, s Schedule, w *Watermarks, sideEffect func()) bool {
	if !s.Matches(MinuteOf(now)) {
		return false
	}
	if !w.CompareAndSet(s.Action, DateKeyOf(now)) {
		return false
	}
	sideEffect()
	return true
}
