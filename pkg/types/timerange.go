package types

import (
	"fmt"
	"strings"
	"time"
)

// TimeField names the metadata timestamp used for range filtering.
type TimeField string

const (
	TimeFieldCreated  TimeField = "created_at"
	TimeFieldModified TimeField = "modified_at"
)

// ParseTimeField validates a configured time field name. Empty means created_at.
func ParseTimeField(s string) (TimeField, error) {
	switch TimeField(strings.ToLower(strings.TrimSpace(s))) {
	case "", TimeFieldCreated:
		return TimeFieldCreated, nil
	case TimeFieldModified:
		return TimeFieldModified, nil
	default:
		return "", fmt.Errorf("unknown time field %q (want %s or %s)", s, TimeFieldCreated, TimeFieldModified)
	}
}

// TimeRange bounds a query in time. A nil bound is open on that side.
type TimeRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// IsScoped reports whether either bound is set.
func (r TimeRange) IsScoped() bool {
	return r.Start != nil || r.End != nil
}

// Contains reports whether t falls within the range, bounds inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

func (r TimeRange) String() string {
	format := func(t *time.Time) string {
		if t == nil {
			return "open"
		}
		return t.Format(time.DateTime)
	}
	return fmt.Sprintf("[%s, %s]", format(r.Start), format(r.End))
}
