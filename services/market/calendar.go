package market

import "time"

// Calendar answers trading-day arithmetic questions against the loaded bar
// index. The index itself defines which days were open; there is no external
// holiday table.
type Calendar struct {
	days  []time.Time
	index map[string]int
}

// NewCalendar builds a calendar from bars already sorted ascending by date.
func NewCalendar(bars []PriceBar) *Calendar {
	c := &Calendar{
		days:  make([]time.Time, len(bars)),
		index: make(map[string]int, len(bars)),
	}
	for i, b := range bars {
		c.days[i] = b.Date
		c.index[b.DateString()] = i
	}
	return c
}

// Index returns the position of day in the calendar, or -1.
func (c *Calendar) Index(day time.Time) int {
	if i, ok := c.index[Day(day).Format(DateLayout)]; ok {
		return i
	}
	return -1
}

// NextOpen returns the first trading day strictly after day. ok is false
// when the calendar is exhausted.
func (c *Calendar) NextOpen(day time.Time) (time.Time, bool) {
	d := Day(day)
	for _, t := range c.days {
		if t.After(d) {
			return t, true
		}
	}
	return time.Time{}, false
}

// AddOpenDays returns the trading day n open days after day. When day itself
// is not a trading day, counting starts from the next one. ok is false when
// the calendar runs out before n days pass.
func (c *Calendar) AddOpenDays(day time.Time, n int) (time.Time, bool) {
	d := Day(day)
	i := c.Index(d)
	if i < 0 {
		found := false
		for j, t := range c.days {
			if t.After(d) {
				i = j - 1
				found = true
				break
			}
		}
		if !found {
			return time.Time{}, false
		}
	}
	target := i + n
	if target < 0 || target >= len(c.days) {
		return time.Time{}, false
	}
	return c.days[target], true
}

// OpenDaysBetween counts trading days in (from, to].
func (c *Calendar) OpenDaysBetween(from, to time.Time) int {
	f, t := Day(from), Day(to)
	n := 0
	for _, d := range c.days {
		if d.After(f) && !d.After(t) {
			n++
		}
	}
	return n
}

// Days exposes the ordered trading days.
func (c *Calendar) Days() []time.Time {
	return c.days
}
