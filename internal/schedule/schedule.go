// Package schedule produces the clinic's bookable time slots. Everything
// here is pure: no storage, no clock of its own.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate    = errors.New("invalid date format")
	ErrInvalidTime    = errors.New("invalid time format")
	ErrInvalidCatalog = errors.New("invalid slot catalog")
)

// Catalog is the canonical, ordered set of slot start times of a working
// day. A slot is bookable when it lies entirely within opening hours and
// does not overlap the break.
type Catalog struct {
	slots []string
	index map[string]struct{}
}

// NewCatalog validates the business-hour configuration and precomputes the
// slot list. An empty break (start == end) disables it.
func NewCatalog(open, close, breakStart, breakEnd string, step time.Duration) (*Catalog, error) {
	o, err := ParseClockToMinutes(open)
	if err != nil {
		return nil, fmt.Errorf("%w: opening time %q", ErrInvalidCatalog, open)
	}
	c, err := ParseClockToMinutes(close)
	if err != nil {
		return nil, fmt.Errorf("%w: closing time %q", ErrInvalidCatalog, close)
	}
	bs, err := ParseClockToMinutes(breakStart)
	if err != nil {
		return nil, fmt.Errorf("%w: break start %q", ErrInvalidCatalog, breakStart)
	}
	be, err := ParseClockToMinutes(breakEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: break end %q", ErrInvalidCatalog, breakEnd)
	}
	minutes := int(step / time.Minute)
	switch {
	case o >= c:
		return nil, fmt.Errorf("%w: opening %s is not before closing %s", ErrInvalidCatalog, open, close)
	case bs > be:
		return nil, fmt.Errorf("%w: break %s-%s is inverted", ErrInvalidCatalog, breakStart, breakEnd)
	case minutes <= 0 || step%time.Minute != 0:
		return nil, fmt.Errorf("%w: step %s must be a positive whole number of minutes", ErrInvalidCatalog, step)
	}

	cat := &Catalog{index: map[string]struct{}{}}
	lunch := Interval{Start: bs, End: be}
	for cursor := o; cursor+minutes <= c; cursor += minutes {
		if Overlaps(Interval{Start: cursor, End: cursor + minutes}, lunch) {
			continue
		}
		s := MinutesToClock(cursor)
		cat.slots = append(cat.slots, s)
		cat.index[s] = struct{}{}
	}
	if len(cat.slots) == 0 {
		return nil, fmt.Errorf("%w: configuration yields no slots", ErrInvalidCatalog)
	}
	return cat, nil
}

// Slots returns a copy of the ordered slot list.
func (c *Catalog) Slots() []string {
	out := make([]string, len(c.slots))
	copy(out, c.slots)
	return out
}

// Contains reports whether slot is one of the catalog values.
func (c *Catalog) Contains(slot string) bool {
	_, ok := c.index[slot]
	return ok
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation(DateLayout, dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse(ClockLayout, timeStr)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

func MinutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// SlotTime is the instant a slot on date starts, in loc.
func SlotTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return time.Time{}, err
	}
	m, err := ParseClockToMinutes(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), m/60, m%60, 0, 0, loc), nil
}

// IsDatePast reports whether dateStr is before today in loc.
func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	startToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}

// FilterReserved keeps the slots not present in reserved, preserving order.
func FilterReserved(slots []string, reserved map[string]bool) []string {
	filtered := make([]string, 0, len(slots))
	for _, s := range slots {
		if !reserved[s] {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

type Interval struct {
	Start int
	End   int
}

func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}
