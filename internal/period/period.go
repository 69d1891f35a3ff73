// Package period enumerates the reporting weeks the dashboard can select.
// A reporting week runs Sunday through the following Saturday.
package period

import (
	"fmt"
	"sort"
	"time"
)

// DefaultCount is how many recent weeks are offered for selection.
const DefaultCount = 12

// Week is one Sunday-to-Saturday reporting period.
type Week struct {
	Start time.Time // Sunday, midnight local
	End   time.Time // following Saturday, midnight local
	Year  int       // ISO year of the start date
	Num   int       // ISO week number of the start date
}

// LastN returns the n most recent weeks whose Sunday falls on or before
// today, most recent first.
func LastN(today time.Time, n int) []Week {
	sunday := today.AddDate(0, 0, -int(today.Weekday()))
	sunday = time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 0, 0, 0, 0, today.Location())

	weeks := make([]Week, 0, n)
	for i := 0; i < n; i++ {
		start := sunday.AddDate(0, 0, -7*i)
		weeks = append(weeks, fromStart(start))
	}
	return weeks
}

func fromStart(start time.Time) Week {
	year, num := start.ISOWeek()
	return Week{
		Start: start,
		End:   start.AddDate(0, 0, 6),
		Year:  year,
		Num:   num,
	}
}

// Prior returns the week immediately before w.
func (w Week) Prior() Week {
	return fromStart(w.Start.AddDate(0, 0, -7))
}

// ID uniquely identifies a week by its start date (YYYY-MM-DD).
// Labels alone collide across year boundaries; IDs never do.
func (w Week) ID() string {
	return w.Start.Format("2006-01-02")
}

// Label is the display name, e.g. "36주차".
func (w Week) Label() string {
	return fmt.Sprintf("%d주차", w.Num)
}

// DisplayRange formats the week as "YYYY.MM.DD ~ YYYY.MM.DD".
func (w Week) DisplayRange() string {
	return w.Start.Format("2006.01.02") + " ~ " + w.End.Format("2006.01.02")
}

// StartDate and EndDate return the inclusive ISO date bounds for
// analytics queries.
func (w Week) StartDate() string { return w.Start.Format("2006-01-02") }
func (w Week) EndDate() string   { return w.End.Format("2006-01-02") }

// SortKey orders weeks chronologically across year boundaries.
// Label order ("9주차" < "10주차") does not.
func (w Week) SortKey() int {
	return w.Year*100 + w.Num
}

// SortChronological sorts weeks ascending by (ISO year, ISO week).
func SortChronological(weeks []Week) {
	sort.SliceStable(weeks, func(i, j int) bool {
		return weeks[i].SortKey() < weeks[j].SortKey()
	})
}

// Find returns the week in weeks with the given ID, or false.
func Find(weeks []Week, id string) (Week, bool) {
	for _, w := range weeks {
		if w.ID() == id {
			return w, true
		}
	}
	return Week{}, false
}
