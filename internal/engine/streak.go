package engine

import "github.com/roach88/growth/internal/date"

// streakOutcome says how a streak moved on a given day.
type streakOutcome int

const (
	streakKept streakOutcome = iota
	streakExtended
	streakReset
)

// nextStreak applies the calendar-day continuity rule. baseline is the
// streak carried so far and last the day it was last active.
//
//	last absent     -> max(baseline, 1)
//	last == today   -> max(baseline, 1)
//	last == today-1 -> max(baseline, 1) + 1
//	otherwise       -> 1 (a gap of two or more days, or a future date)
func nextStreak(baseline int, last, today date.Date) (int, streakOutcome) {
	base := max(baseline, 1)
	switch {
	case last.IsZero(), last == today:
		return base, streakKept
	case last.Add(1) == today:
		return base + 1, streakExtended
	default:
		return 1, streakReset
	}
}

// pickLastActive chooses the last-active date to continue from when the two
// copies disagree. The most recent date not after today wins; if both are
// after today the remote one is used.
func pickLastActive(remote, local, today date.Date) date.Date {
	switch {
	case remote.IsZero():
		return local
	case local.IsZero(), remote == local:
		return remote
	}

	remoteOK := !remote.After(today)
	localOK := !local.After(today)
	switch {
	case remoteOK && localOK:
		return date.Max(remote, local)
	case remoteOK:
		return remote
	case localOK:
		return local
	default:
		return remote
	}
}
