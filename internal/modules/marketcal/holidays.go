package marketcal

import "time"

// fixedHoliday is a public holiday on a fixed Gregorian date.
type fixedHoliday struct {
	Month time.Month
	Day   int
	Name  string
}

// Fixed-date public holidays, in calendar order. Holidays falling on a
// weekend earn a compensatory day off on the next free weekday (Labour
// Code art. 111), which holidaysForYear resolves.
var fixedHolidays = []fixedHoliday{
	{time.January, 1, "New Year"},
	{time.April, 30, "Reunification Day"},
	{time.May, 1, "Labour Day"},
	{time.September, 2, "National Day"},
}

// yearlyClosures lists announced exchange closures that cannot be derived
// from fixed rules: the Tet break, Hung Kings Festival (both lunar) and the
// extra National Day leave granted since 2021. Keyed by year, values are
// "MM-DD" strings. Years missing from the table fall back to fixed
// holidays only.
var yearlyClosures = map[int][]string{
	2020: {
		"01-23", "01-24", "01-27", "01-28", "01-29", // Tet
		"04-02", // Hung Kings
	},
	2021: {
		"02-10", "02-11", "02-12", "02-15", "02-16", // Tet
		"04-21", // Hung Kings
		"09-03", // National Day extra leave
	},
	2022: {
		"01-31", "02-01", "02-02", "02-03", "02-04", // Tet
		"04-11", // Hung Kings (Apr 10 fell on Sunday)
		"09-01", // National Day extra leave
	},
	2023: {
		"01-20", "01-23", "01-24", "01-25", "01-26", // Tet
		"05-02", "05-03", // Hung Kings compensation (Apr 29 fell on Saturday)
		"09-04", // National Day compensation (Sep 2 fell on Saturday)
	},
	2024: {
		"02-08", "02-09", "02-12", "02-13", "02-14", // Tet
		"04-18", // Hung Kings
		"09-03", // National Day extra leave
	},
	2025: {
		"01-27", "01-28", "01-29", "01-30", "01-31", // Tet
		"04-07", // Hung Kings
		"09-01", // National Day extra leave
	},
	2026: {
		"02-16", "02-17", "02-18", "02-19", "02-20", // Tet
		"04-27", // Hung Kings (Apr 26 falls on Sunday)
		"09-01", // National Day extra leave
	},
	2027: {
		"02-04", "02-05", "02-08", "02-09", "02-10", // Tet
		"04-16", // Hung Kings
		"09-03", // National Day extra leave
	},
}

// holidaysForYear resolves the full closure set for a year as "MM-DD" keys.
// Fixed holidays landing on a weekend shift to the next weekday that is not
// already a holiday.
func holidaysForYear(year int, loc *time.Location) map[string]bool {
	taken := make(map[string]bool)

	for _, h := range fixedHolidays {
		date := time.Date(year, h.Month, h.Day, 0, 0, 0, 0, loc)
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday || taken[date.Format("01-02")] {
			date = date.AddDate(0, 0, 1)
		}
		taken[date.Format("01-02")] = true
		// The nominal date stays marked too.
		taken[time.Date(year, h.Month, h.Day, 0, 0, 0, 0, loc).Format("01-02")] = true
	}

	for _, md := range yearlyClosures[year] {
		taken[md] = true
	}

	return taken
}
