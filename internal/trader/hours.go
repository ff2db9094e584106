package trader

import "time"

const dateLayout = "2006-01-02"

// MarketLocation resolves the exchange time zone. Falls back to a fixed
// UTC-5 zone when the tz database is unavailable.
func MarketLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// IsMarketHours reports whether t falls inside the regular session,
// weekdays 09:30 through 16:00 inclusive.
func IsMarketHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60+30 && minutes <= 16*60
}
