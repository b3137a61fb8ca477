// Package gamify holds the progression rules for learners: daily
// streaks, experience levels, and spaced-repetition review scheduling.
// Everything here is a pure function over dates and counters so the
// rules can be tested without a database.
package gamify

import "time"

// Level titles in ascending order. Learners past the last named level
// are "Mythic".
var levelTitles = []string{
	"Novice",
	"Apprentice",
	"Scholar",
	"Sage",
	"Master",
	"Grandmaster",
	"Legend",
}

const mythicTitle = "Mythic"

// Level describes where a cumulative XP total places a learner.
type Level struct {
	Number      int    // 1-based level
	Title       string // display title for the level
	XPIntoLevel int    // progress within the current level
	XPForNext   int    // total width of the current level
	TotalXP     int    // the input, echoed for convenience
	NextLevelXP int    // cumulative XP needed to reach the next level
}

// cumulativeXP returns the total XP required to have completed level n.
// Level n costs 100*n XP on its own, so the cumulative requirement is
// the triangular sum 100 * n * (n+1) / 2.
func cumulativeXP(n int) int {
	return 100 * n * (n + 1) / 2
}

// LevelFor maps a cumulative XP total to a level. 0 XP is level 1;
// each level n requires 100*n additional XP beyond the previous one.
func LevelFor(totalXP int) Level {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	for totalXP >= cumulativeXP(level) {
		level++
	}

	floor := cumulativeXP(level - 1)
	return Level{
		Number:      level,
		Title:       TitleFor(level),
		XPIntoLevel: totalXP - floor,
		XPForNext:   100 * level,
		TotalXP:     totalXP,
		NextLevelXP: cumulativeXP(level),
	}
}

// TitleFor returns the display title for a level number.
func TitleFor(level int) string {
	if level < 1 {
		level = 1
	}
	if level > len(levelTitles) {
		return mythicTitle
	}
	return levelTitles[level-1]
}

// NextStreak computes the streak after activity on now, given the
// previous streak and the last active date. Consecutive-day activity
// extends the streak, same-day activity leaves it unchanged, and any
// gap resets it to 1. Dates are compared by calendar day in the
// location of now.
func NextStreak(streak int, lastActive time.Time, now time.Time) int {
	if streak < 1 || lastActive.IsZero() {
		return 1
	}

	today := truncateDay(now)
	last := truncateDay(lastActive.In(now.Location()))

	switch {
	case last.Equal(today):
		return streak
	case last.Equal(today.AddDate(0, 0, -1)):
		return streak + 1
	default:
		return 1
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ReviewOffset maps a confidence rating to the delay before the next
// spaced-repetition review. Unknown ratings get the medium interval.
func ReviewOffset(confidence string) time.Duration {
	switch confidence {
	case "low":
		return 24 * time.Hour
	case "high":
		return 14 * 24 * time.Hour
	default: // medium and anything unrecognized
		return 3 * 24 * time.Hour
	}
}

// NextReview returns the next review timestamp for a concept rated with
// the given confidence at time now.
func NextReview(confidence string, now time.Time) time.Time {
	return now.Add(ReviewOffset(confidence))
}
