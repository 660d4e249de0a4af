package domain

import (
	"fmt"
	"time"
)

// localTimeLayouts are the timestamp shapes the upstream parser emits.
var localTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseLocalTime parses a race-local timestamp string in the given location.
func ParseLocalTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized local timestamp %q", s)
}
