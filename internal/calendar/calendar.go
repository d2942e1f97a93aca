// Package calendar is the Taiwan Stock Exchange trading calendar, trimmed
// down from the teacher's multi-exchange internal/scheduler/market_hours.go
// to the single Asia/Taipei calendar this system actually trades against.
package calendar

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingWindow is one open/close session within a trading day.
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// Calendar answers is-trading-day / is-holiday questions for the Taiwan
// Stock Exchange, backing the check_trading_day tool.
type Calendar struct {
	Timezone       *time.Location
	TradingWindows []TradingWindow
	holidays       map[string]string // "2026-01-01" -> holiday name
	log            zerolog.Logger
}

// New builds the TWSE calendar with its 2026 holiday schedule and a single
// 09:00-13:30 trading session.
func New(log zerolog.Logger) *Calendar {
	taipei, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		taipei = time.FixedZone("CST", 8*60*60)
	}

	return &Calendar{
		Timezone: taipei,
		TradingWindows: []TradingWindow{
			{OpenHour: 9, OpenMinute: 0, CloseHour: 13, CloseMinute: 30},
		},
		holidays: map[string]string{
			"2026-01-01": "New Year's Day",
			"2026-01-29": "Lunar New Year Eve",
			"2026-01-30": "Lunar New Year",
			"2026-01-31": "Lunar New Year",
			"2026-02-28": "Peace Memorial Day",
			"2026-04-04": "Tomb Sweeping Day",
			"2026-06-25": "Dragon Boat Festival",
			"2026-10-01": "Mid-Autumn Festival",
			"2026-10-10": "National Day",
		},
		log: log.With().Str("component", "calendar").Logger(),
	}
}

func (c *Calendar) dateKey(t time.Time) string {
	t = t.In(c.Timezone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Timezone).Format("2006-01-02")
}

// IsWeekend reports whether t falls on a Saturday or Sunday in Asia/Taipei.
func (c *Calendar) IsWeekend(t time.Time) bool {
	wd := t.In(c.Timezone).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// HolidayName returns the holiday name for t, or "" if t is not a holiday.
func (c *Calendar) HolidayName(t time.Time) string {
	return c.holidays[c.dateKey(t)]
}

// IsTradingDay reports whether t is a trading day: not a weekend, not a
// holiday. It does not check the intraday trading window.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	if c.IsWeekend(t) {
		return false
	}
	return c.HolidayName(t) == ""
}

// IsMarketOpen reports whether t falls within a trading session on a
// trading day.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	local := t.In(c.Timezone)
	minutes := local.Hour()*60 + local.Minute()
	for _, w := range c.TradingWindows {
		open := w.OpenHour*60 + w.OpenMinute
		close := w.CloseHour*60 + w.CloseMinute
		if minutes >= open && minutes < close {
			return true
		}
	}
	return false
}

// Status is the JSON-ready snapshot the check_trading_day tool returns.
type Status struct {
	IsTradingDay bool   `json:"is_trading_day"`
	IsWeekend    bool   `json:"is_weekend"`
	IsHoliday    bool   `json:"is_holiday"`
	HolidayName  string `json:"holiday_name,omitempty"`
	IsMarketOpen bool   `json:"is_market_open"`
}

// StatusAt builds a Status snapshot for t.
func (c *Calendar) StatusAt(t time.Time) Status {
	name := c.HolidayName(t)
	return Status{
		IsTradingDay: c.IsTradingDay(t),
		IsWeekend:    c.IsWeekend(t),
		IsHoliday:    name != "",
		HolidayName:  name,
		IsMarketOpen: c.IsMarketOpen(t),
	}
}
