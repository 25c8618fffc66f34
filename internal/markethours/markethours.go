// Package markethours answers "is the NSE trading right now" questions:
// session boundaries, weekends, the exchange holiday calendar, and the
// next open. All math happens in IST regardless of the caller's zone.
package markethours

import (
	"fmt"
	"time"
)

// IST is Indian Standard Time (UTC+5:30). NSE publishes all session
// times in IST.
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE equity session, minutes from midnight IST.
const (
	openMinuteOfDay  = 9*60 + 15  // 9:15 AM
	closeMinuteOfDay = 15*60 + 30 // 3:30 PM
)

// OpenHour, OpenMinute, CloseHour, CloseMinute expose the session
// boundaries for callers that build their own timestamps.
const (
	OpenHour    = openMinuteOfDay / 60
	OpenMinute  = openMinuteOfDay % 60
	CloseHour   = closeMinuteOfDay / 60
	CloseMinute = closeMinuteOfDay % 60
)

// IsMarketOpen reports whether t falls inside the NSE equity session:
// 9:15 AM to 3:30 PM IST on a trading day. The close boundary is
// exclusive.
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	m := ist.Hour()*60 + ist.Minute()
	return m >= openMinuteOfDay && m < closeMinuteOfDay
}

// IsTradingDay reports whether t is a weekday that is not an exchange
// holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	switch ist.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !IsHoliday(ist)
}

// IsWeekday reports whether t is Mon-Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextOpen returns the next 9:15 AM IST on a trading day. On a trading
// day before the open it returns that same day's open.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	d := openAt(ist)
	if ist.Before(d) && IsTradingDay(ist) {
		return d
	}
	day := ist
	for i := 0; i < 14; i++ {
		day = day.AddDate(0, 0, 1)
		if IsTradingDay(day) {
			return openAt(day)
		}
	}
	// Calendar gaps longer than two weeks don't happen on the NSE;
	// fall through to tomorrow rather than loop forever.
	return openAt(ist.AddDate(0, 0, 1))
}

// TodayClose returns 3:30 PM IST on t's calendar day.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// TimeUntilClose returns how long until today's close, or 0 when the
// close has passed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(IST))
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns how long until the next session open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t.In(IST))
}

// StatusString renders a one-line market status for logs and the
// status API.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open — closes in %s", shortDur(TimeUntilClose(t)))
	}
	next := NextOpen(t).In(IST)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), shortDur(next.Sub(t)))
}

func openAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

func shortDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
