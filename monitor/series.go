package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Windows are the query ranges the monitor serves over its retained
// series.
var Windows = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	6 * time.Hour,
	24 * time.Hour,
}

// Point is a single sample in a metric series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// series is a bounded, time-pruned list of points for one metric and
// label set.
type series struct {
	name   string
	labels map[string]string
	points []Point
}

// append adds a point and prunes anything older than retention or
// beyond maxSamples.
func (s *series) append(p Point, retention time.Duration, maxSamples int) {
	s.points = append(s.points, p)

	cutoff := p.Time.Add(-retention)
	start := 0
	for start < len(s.points) && s.points[start].Time.Before(cutoff) {
		start++
	}
	if over := len(s.points) - start - maxSamples; over > 0 {
		start += over
	}
	if start > 0 {
		s.points = append([]Point(nil), s.points[start:]...)
	}
}

// window returns the points newer than now-d.
func (s *series) window(now time.Time, d time.Duration) []Point {
	cutoff := now.Add(-d)
	out := make([]Point, 0, len(s.points))
	for _, p := range s.points {
		if !p.Time.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// seriesKey builds a stable map key from a metric name and labels.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, labels[k])
	}
	return b.String()
}

// formatLine renders one sample in the export line format:
// name{label="value"} <number> <unixtime_ms>.
func formatLine(name string, labels map[string]string, value float64, at time.Time) string {
	var b strings.Builder
	b.WriteString(name)
	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s=%q", k, labels[k])
		}
		b.WriteByte('}')
	}
	fmt.Fprintf(&b, " %s %d", formatValue(value), at.UnixMilli())
	return b.String()
}

// formatValue renders a float without a trailing ".0" for integral
// values, matching the usual exposition style.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
