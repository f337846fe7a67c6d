package timeutil

import (
	"fmt"
	"time"

	// Bundled zone data so the display zone resolves on minimal images.
	_ "time/tzdata"
)

const displayLocation = "America/New_York"

// DisplayLayout is how start times are rendered in notifications.
const DisplayLayout = "Jan 2, 2006 3:04 PM MST"

func Location() *time.Location {
	loc, err := time.LoadLocation(displayLocation)
	if err != nil {
		return time.FixedZone("America/New_York", -5*3600)
	}
	return loc
}

// FormatDisplay renders t in the display zone.
func FormatDisplay(t time.Time) string {
	return t.In(Location()).Format(DisplayLayout)
}

// DiscordTimestamp renders t as a Discord timestamp tag with the given style,
// e.g. "f" for short date/time or "R" for relative.
func DiscordTimestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// Uptime formats the time elapsed between start and now as "3h 7m".
func Uptime(start, now time.Time) string {
	d := now.Sub(start)
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
