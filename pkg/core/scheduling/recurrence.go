package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

var ErrInvalidRecurrence = errors.New("invalid recurrence")

// Occurrence is one expanded time window
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// ExpandRecurrence expands an RFC 5545 RRULE starting at start into at most max windows,
// each as long as end-start. The first occurrence is start itself when it matches the rule.
// Unbounded rules are cut off at max.
func ExpandRecurrence(start, end time.Time, rule string, max int) ([]Occurrence, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidRecurrence)
	}
	if max <= 0 {
		return nil, fmt.Errorf("%w: occurrence limit must be positive", ErrInvalidRecurrence)
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	r.DTStart(start)

	duration := end.Sub(start)
	next := r.Iterator()
	var occurrences []Occurrence
	for len(occurrences) < max {
		at, ok := next()
		if !ok {
			break
		}
		occurrences = append(occurrences, Occurrence{Start: at, End: at.Add(duration)})
	}

	if len(occurrences) == 0 {
		return nil, fmt.Errorf("%w: rule produces no occurrences", ErrInvalidRecurrence)
	}
	return occurrences, nil
}
