package aggregate

import (
	"fmt"
	"time"
)

// Timeframe is one row of the volume-distribution configuration table:
// bucket count, bucket width, and snapshot TTL for a granularity.
type Timeframe struct {
	Name    string
	Buckets int
	Width   time.Duration
	TTL     time.Duration
}

// Shorter windows change faster, so they carry shorter TTLs.
var timeframes = map[string]Timeframe{
	"hourly": {Name: "hourly", Buckets: 24, Width: time.Hour, TTL: 5 * time.Minute},
	"daily":  {Name: "daily", Buckets: 7, Width: 24 * time.Hour, TTL: 30 * time.Minute},
	"weekly": {Name: "weekly", Buckets: 8, Width: 7 * 24 * time.Hour, TTL: 2 * time.Hour},
}

// LookupTimeframe resolves a timeframe name against the configuration table.
func LookupTimeframe(name string) (Timeframe, bool) {
	tf, ok := timeframes[name]
	return tf, ok
}

// Label names the bucket starting at start: hour of day, weekday, or the
// week's first day.
func (t Timeframe) Label(start time.Time) string {
	switch t.Name {
	case "hourly":
		return fmt.Sprintf("%d:00", start.Hour())
	case "daily":
		return start.Format("Mon")
	case "weekly":
		return "Week of " + start.Format("Jan 2")
	}
	return ""
}
