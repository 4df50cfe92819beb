package credits

import "time"

// kst is the zone whose midnight starts a new free-credit day.
var kst = time.FixedZone("KST", 9*60*60)

// DayStart returns the most recent KST midnight at or before now.
func DayStart(now time.Time) time.Time {
	local := now.In(kst)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, kst)
}

// resetDue reports whether a KST midnight has passed since the last reset.
func resetDue(resetAt *time.Time, now time.Time) bool {
	if resetAt == nil {
		return true
	}
	return resetAt.Before(DayStart(now))
}
