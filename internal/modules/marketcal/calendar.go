// Package marketcal provides the Ho Chi Minh Stock Exchange trading calendar:
// session times, holidays and trading-day arithmetic.
package marketcal

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// ExchangeCode is the MIC code for the Ho Chi Minh Stock Exchange.
	ExchangeCode = "XSTC"

	timezoneName = "Asia/Ho_Chi_Minh"
)

// HOSE session: 09:00-11:30, lunch halt, 13:00-14:45 (continuous + ATC).
var (
	hoseHours = TradingHours{OpenHour: 9, OpenMinute: 0, CloseHour: 14, CloseMinute: 45}
	hoseLunch = LunchBreak{StartHour: 11, StartMinute: 30, EndHour: 13, EndMinute: 0}
)

// Service answers trading-calendar questions for HOSE.
type Service struct {
	loc *time.Location

	mu    sync.Mutex
	cache map[int]map[string]bool // holidays by year, "MM-DD" keys
}

// NewService creates a calendar service. Panics if the IANA timezone
// database lacks Asia/Ho_Chi_Minh, which only happens on broken installs.
func NewService() *Service {
	loc, err := time.LoadLocation(timezoneName)
	if err != nil {
		panic("marketcal: " + err.Error())
	}
	return &Service{
		loc:   loc,
		cache: make(map[int]map[string]bool),
	}
}

// Location returns the exchange timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// IsTradingDay reports whether the exchange is open at all on t's date.
func (s *Service) IsTradingDay(t time.Time) bool {
	local := t.In(s.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	return !s.isHoliday(local)
}

// IsOpen reports whether a trading session is running at instant t.
func (s *Service) IsOpen(t time.Time) bool {
	local := t.In(s.loc)
	if !s.IsTradingDay(local) {
		return false
	}

	open := s.at(local, hoseHours.OpenHour, hoseHours.OpenMinute)
	closeAt := s.at(local, hoseHours.CloseHour, hoseHours.CloseMinute)
	if local.Before(open) || !local.Before(closeAt) {
		return false
	}

	lunchStart := s.at(local, hoseLunch.StartHour, hoseLunch.StartMinute)
	lunchEnd := s.at(local, hoseLunch.EndHour, hoseLunch.EndMinute)
	if !local.Before(lunchStart) && local.Before(lunchEnd) {
		return false
	}

	return true
}

// NextTradingDay returns the first trading day strictly after t's date.
func (s *Service) NextTradingDay(t time.Time) time.Time {
	d := s.midnight(t.In(s.loc)).AddDate(0, 0, 1)
	for !s.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PreviousTradingDay returns the last trading day strictly before t's date.
func (s *Service) PreviousTradingDay(t time.Time) time.Time {
	d := s.midnight(t.In(s.loc)).AddDate(0, 0, -1)
	for !s.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// TradingDaysBetween counts trading days in (from, to]. Returns 0 when to
// is not after from.
func (s *Service) TradingDaysBetween(from, to time.Time) int {
	start := s.midnight(from.In(s.loc))
	end := s.midnight(to.In(s.loc))
	if !end.After(start) {
		return 0
	}

	count := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if s.IsTradingDay(d) {
			count++
		}
	}
	return count
}

// HolidaysForYear returns the exchange closures for a year, sorted.
func (s *Service) HolidaysForYear(year int) []time.Time {
	set := s.holidaySet(year)

	dates := make([]time.Time, 0, len(set))
	for md := range set {
		d, err := time.ParseInLocation("2006-01-02", fmt.Sprintf("%d-%s", year, md), s.loc)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Status returns the market state at instant t, including when the next
// session starts if the market is closed.
func (s *Service) Status(t time.Time) *MarketStatus {
	local := t.In(s.loc)
	status := &MarketStatus{
		Open:     s.IsOpen(local),
		Exchange: ExchangeCode,
		Timezone: timezoneName,
	}

	if status.Open {
		// Morning session ends at the lunch halt, afternoon at the close.
		lunchStart := s.at(local, hoseLunch.StartHour, hoseLunch.StartMinute)
		if local.Before(lunchStart) {
			status.ClosesAt = lunchStart.Format("15:04")
		} else {
			status.ClosesAt = s.at(local, hoseHours.CloseHour, hoseHours.CloseMinute).Format("15:04")
		}
		return status
	}

	next := s.nextSessionStart(local)
	status.OpensAt = next.Format("15:04")
	if next.Year() != local.Year() || next.YearDay() != local.YearDay() {
		status.OpensDate = next.Format("2006-01-02")
	}
	return status
}

// nextSessionStart finds when the market next opens after t.
func (s *Service) nextSessionStart(local time.Time) time.Time {
	if s.IsTradingDay(local) {
		morning := s.at(local, hoseHours.OpenHour, hoseHours.OpenMinute)
		if local.Before(morning) {
			return morning
		}
		afternoon := s.at(local, hoseLunch.EndHour, hoseLunch.EndMinute)
		if local.Before(afternoon) && !local.Before(s.at(local, hoseLunch.StartHour, hoseLunch.StartMinute)) {
			return afternoon
		}
	}

	d := s.NextTradingDay(local)
	return s.at(d, hoseHours.OpenHour, hoseHours.OpenMinute)
}

func (s *Service) isHoliday(local time.Time) bool {
	return s.holidaySet(local.Year())[local.Format("01-02")]
}

func (s *Service) holidaySet(year int) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.cache[year]; ok {
		return set
	}
	set := holidaysForYear(year, s.loc)
	s.cache[year] = set
	return set
}

func (s *Service) at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, s.loc)
}

func (s *Service) midnight(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}
