package alerts

import (
	"time"

	"pantry-alerts/pkg/pantry"
)

// hourRange is a local-hour range, end exclusive.
type hourRange struct {
	start, end int
}

var alertWindows = map[pantry.AlertTime]hourRange{
	pantry.AlertMorning:   {start: 7, end: 11},
	pantry.AlertAfternoon: {start: 12, end: 16},
	pantry.AlertEvening:   {start: 17, end: 21},
}

// InAlertWindow reports whether now, in the user's timezone, falls inside the
// user's preferred alert window. An unknown timezone allows the alert.
//
// Run does not consult this yet; alerts currently go out on every hourly run
// regardless of the preferred time of day.
func InAlertWindow(now time.Time, timezone string, alertTime pantry.AlertTime) bool {
	if alertTime == pantry.AlertOff {
		return false
	}
	w, ok := alertWindows[alertTime]
	if !ok {
		return false
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return true
	}
	hour := now.In(loc).Hour()
	return hour >= w.start && hour < w.end
}
