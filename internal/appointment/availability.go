package appointment

import (
	"fmt"
	"time"
)

// SlotInterval is the fixed bookable slot length.
const SlotInterval = 30 * time.Minute

// FreeSlots walks every interval configured for the target date's weekday in
// SlotInterval steps and returns the times not present in `booked`, in
// order. When the target date is today, slots at or before `now` are
// skipped so a caller cannot book a time that has already passed. Slots that
// would roll past an interval's end are not emitted.
//
// A weekday with no configured intervals yields an empty result.
func FreeSlots(availability WeeklyAvailability, date string, booked []string, now time.Time) ([]string, error) {
	day, err := time.ParseInLocation(DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadDate, date)
	}

	occupied := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		occupied[t] = struct{}{}
	}

	isToday := day.Year() == now.Year() && day.YearDay() == now.YearDay()

	slots := []string{}
	for _, interval := range availability[day.Weekday()] {
		start, err := time.ParseInLocation(TimeLayout, interval.Start, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: interval start %q", ErrBadTime, interval.Start)
		}
		end, err := time.ParseInLocation(TimeLayout, interval.End, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: interval end %q", ErrBadTime, interval.End)
		}

		for cur := start; cur.Before(end); cur = cur.Add(SlotInterval) {
			slot := cur.Format(TimeLayout)
			if isToday {
				slotAt := time.Date(now.Year(), now.Month(), now.Day(),
					cur.Hour(), cur.Minute(), 0, 0, time.Local)
				if !slotAt.After(now) {
					continue
				}
			}
			if _, taken := occupied[slot]; taken {
				continue
			}
			slots = append(slots, slot)
		}
	}

	return slots, nil
}
