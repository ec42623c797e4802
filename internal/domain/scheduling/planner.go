package scheduling

import (
	"iter"
	"slices"
	"time"
)

// Booking is a time range already taken on a provider's calendar. A zero
// Duration occupies one slot.
type Booking struct {
	Start    time.Time
	Duration time.Duration
}

// PlanParams describes one provider's calendar.
type PlanParams struct {
	Availability []Availability
	Bookings     []Booking
	// Now marks "today" and filters out slots that have already started.
	Now         time.Time
	HorizonDays int
	Granularity time.Duration
	// DefaultOpen and DefaultClose apply every day when Availability is empty.
	DefaultOpen  string
	DefaultClose string
	Location     *time.Location
}

type span struct{ start, end int }

// AvailableSlots yields free slots in chronological order from today through
// the horizon. The sequence is lazy, finite and can be ranged over repeatedly.
// Invalid availability rows are skipped.
func AvailableSlots(p PlanParams) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if p.Granularity <= 0 || p.HorizonDays <= 0 {
			return
		}
		loc := p.Location
		if loc == nil {
			loc = time.UTC
		}
		now := p.Now.In(loc)
		week := weeklyWindows(p)
		step := int(p.Granularity / time.Minute)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

		for d := 0; d < p.HorizonDays; d++ {
			day := today.AddDate(0, 0, d)
			taken := bookingsOn(p.Bookings, day, p.Granularity)
			for _, m := range slotStarts(week[day.Weekday()], step) {
				start := time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, loc)
				// Wall times skipped by a DST change normalise onto a later slot.
				if start.Hour()*60+start.Minute() != m {
					continue
				}
				if d == 0 && !start.After(now) {
					continue
				}
				end := start.Add(p.Granularity)
				if overlapsAny(start, end, taken) {
					continue
				}
				if !yield(newSlot(start)) {
					return
				}
			}
		}
	}
}

// weeklyWindows indexes the open spans by weekday. With no rows at all every
// day gets the default span.
func weeklyWindows(p PlanParams) [7][]span {
	var week [7][]span
	if len(p.Availability) == 0 {
		opens, err1 := parseClock(p.DefaultOpen)
		closes, err2 := parseClock(p.DefaultClose)
		if err1 != nil || err2 != nil || closes <= opens {
			return week
		}
		for d := range week {
			week[d] = []span{{opens, closes}}
		}
		return week
	}
	for i := range p.Availability {
		a := &p.Availability[i]
		if !a.IsAvailable || a.DayOfWeek < time.Sunday || a.DayOfWeek > time.Saturday {
			continue
		}
		start, end, err := a.window()
		if err != nil {
			continue
		}
		week[a.DayOfWeek] = append(week[a.DayOfWeek], span{start, end})
	}
	return week
}

// slotStarts returns sorted, de-duplicated slot start minutes for a day. A slot
// fits when it ends no later than its window.
func slotStarts(spans []span, step int) []int {
	var out []int
	for _, s := range spans {
		for m := s.start; m+step <= s.end; m += step {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

type interval struct{ start, end time.Time }

func bookingsOn(bookings []Booking, day time.Time, gran time.Duration) []interval {
	next := day.AddDate(0, 0, 1)
	var out []interval
	for _, b := range bookings {
		d := b.Duration
		if d <= 0 {
			d = gran
		}
		start := b.Start.In(day.Location())
		end := start.Add(d)
		if end.After(day) && start.Before(next) {
			out = append(out, interval{start, end})
		}
	}
	return out
}

func overlapsAny(start, end time.Time, taken []interval) bool {
	for _, iv := range taken {
		if start.Before(iv.end) && iv.start.Before(end) {
			return true
		}
	}
	return false
}
