package markethours

import "time"

// NSE trading holidays for calendar year 2026, per the exchange's
// published list. Dates marked tentative depend on lunar sightings and
// may shift by a day.
var holidays2026 = map[[2]int]string{
	{1, 26}:  "Republic Day",
	{2, 17}:  "Mahashivratri (tentative)",
	{3, 14}:  "Holi",
	{3, 31}:  "Id-ul-Fitr (tentative)",
	{4, 2}:   "Ram Navami (tentative)",
	{4, 6}:   "Mahavir Jayanti",
	{4, 10}:  "Good Friday",
	{4, 14}:  "Dr. Ambedkar Jayanti",
	{5, 1}:   "Maharashtra Day",
	{6, 7}:   "Bakrid (tentative)",
	{7, 6}:   "Muharram (tentative)",
	{8, 15}:  "Independence Day",
	{8, 16}:  "Janmashtami (tentative)",
	{9, 5}:   "Milad-un-Nabi (tentative)",
	{10, 2}:  "Gandhi Jayanti",
	{10, 20}: "Dussehra",
	{10, 21}: "Dussehra (tentative)",
	{11, 5}:  "Diwali Lakshmi Puja (tentative)",
	{11, 6}:  "Diwali Balipratipada (tentative)",
	{11, 7}:  "Bhai Dooj (tentative)",
	{11, 19}: "Guru Nanak Jayanti",
	{12, 25}: "Christmas",
}

// IsHoliday reports whether t's IST calendar date is an NSE holiday.
// Only 2026 is loaded; other years fall back to weekday-only checks.
func IsHoliday(t time.Time) bool {
	ist := t.In(IST)
	if ist.Year() != 2026 {
		return false
	}
	_, ok := holidays2026[[2]int{int(ist.Month()), ist.Day()}]
	return ok
}

// HolidayName returns the holiday name for t's date, or "" when it is
// not a holiday.
func HolidayName(t time.Time) string {
	ist := t.In(IST)
	if ist.Year() != 2026 {
		return ""
	}
	return holidays2026[[2]int{int(ist.Month()), ist.Day()}]
}
