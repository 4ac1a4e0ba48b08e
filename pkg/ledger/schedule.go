package ledger

import "time"

// DateOnly truncates t to its calendar date at midnight UTC. All engine
// date math happens on these canonical days.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)) / (24 * time.Hour))
}

func lastDayOfMonth(year int, month time.Month) int {
	// day 0 of the next month normalizes to the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths adds n calendar months to d, clamping the day to the last day
// of the target month when d's day does not exist there (the 31st lands on
// Feb 28/29, Apr 30, and so on).
func AddMonths(d time.Time, n int) time.Time {
	d = DateOnly(d)
	total := d.Year()*12 + int(d.Month()) - 1 + n
	year, month := total/12, time.Month(total%12+1)
	day := d.Day()
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DueDate returns the due date of cycle, anchored to the origination day.
// It is always computed from the origination date and the cycle index so
// that a clamped month (origination on the 31st due Feb 28) does not drag
// every later due date down with it.
func DueDate(origination time.Time, cycle int) time.Time {
	return AddMonths(origination, cycle)
}
