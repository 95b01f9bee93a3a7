package course

import "time"

// ApplyLessonXP applies one lesson completion at now to s. XP is always
// added. The streak is unchanged for a second lesson on the same UTC day,
// continues when the last lesson was yesterday, and restarts at 1 otherwise.
func ApplyLessonXP(s Stats, xp int, now time.Time) Stats {
	today := utcDay(now)
	next := Stats{
		TotalXP:        s.TotalXP + xp,
		StreakDays:     1,
		LastLessonDate: &today,
	}

	if s.LastLessonDate == nil {
		return next
	}
	last := utcDay(*s.LastLessonDate)
	switch {
	case !last.Before(today):
		// Same day, or a stored date ahead of this clock, which is kept so a
		// replica with a lagging clock cannot move the streak backwards.
		next.StreakDays = max(s.StreakDays, 1)
		next.LastLessonDate = &last
	case last.Equal(today.AddDate(0, 0, -1)):
		next.StreakDays = s.StreakDays + 1
	}
	return next
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
