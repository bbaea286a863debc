package timeparse

import "strconv"

// ResolveHour converts a spoken hour to 24-hour form.
//
// An explicit am/pm suffix is authoritative (12pm is noon, 12am is midnight).
// Without a suffix, 1–6 are read as afternoon/evening, 7–11 as morning, and 0,
// 12 and 13–23 are taken as already being 24-hour values. The bias toward PM
// for small numbers is a heuristic users have come to rely on; keep it.
func ResolveHour(hour int, suffix string) (int, bool) {
	if hour < 0 || hour > 23 {
		return 0, false
	}
	switch suffix {
	case "am":
		if hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 0, true
		}
		return hour, true
	case "pm":
		if hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 12, true
		}
		return hour + 12, true
	}
	if hour >= 1 && hour <= 6 {
		return hour + 12, true
	}
	return hour, true
}

// clockFromMatch turns regexp captures (hour, optional minute, optional
// suffix) into a validated 24-hour clock time.
func clockFromMatch(hourText, minuteText, suffix string) (int, int, bool) {
	hour, err := strconv.Atoi(hourText)
	if err != nil {
		return 0, 0, false
	}
	minute := 0
	if minuteText != "" {
		minute, err = strconv.Atoi(minuteText)
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}
	hour, ok := ResolveHour(hour, suffix)
	if !ok {
		return 0, 0, false
	}
	return hour, minute, true
}
