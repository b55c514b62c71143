package format

import (
	"fmt"
	"time"
)

// Clock renders display timestamps in the fixed support-desk timezone.
type Clock struct {
	zone *time.Location
	name string
}

// NewClock builds a clock for a whole-hour UTC offset, e.g. 7 for UTC+7.
func NewClock(offsetHours int) Clock {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	if offsetHours == 0 {
		name = "UTC"
	}
	return Clock{zone: time.FixedZone(name, offsetHours*3600), name: name}
}

// Timestamp formats t as "02-01-2006 15:04:05 UTC+7".
func (c Clock) Timestamp(t time.Time) string {
	zone := c.zone
	if zone == nil {
		zone = time.UTC
	}
	name := c.name
	if name == "" {
		name = "UTC"
	}
	return t.In(zone).Format("02-01-2006 15:04:05") + " " + name
}
