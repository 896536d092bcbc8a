package replay

import (
	"math"
	"time"

	"shuttle-telemetry/internal/geo"
)

// Cursor is one vehicle's playback position: the sample bracket it is in,
// its virtual clock and its accumulated along-route distance.
type Cursor struct {
	samples []Sample
	Index   int
	Virtual time.Time
	Along   float64
	// SpeedKph is the interpolated recorded speed at the last advance.
	SpeedKph float64
}

// Step is the outcome of one advance.
type Step struct {
	Placement  geo.Placement
	SpeedKph   float64
	GapSkipped time.Duration
	Looped     bool
}

func (s Step) SpeedMps() float64 { return s.SpeedKph / 3.6 }

// NewCursor seeds a cursor at startFraction of both the recording and the
// route so vehicles replaying similar recordings start spread out.
func NewCursor(samples []Sample, m *geo.Measure, startFraction float64) *Cursor {
	c := &Cursor{samples: samples}
	if n := len(samples); n > 0 {
		c.Index = int(math.Floor(float64(n)*startFraction)) % n
		if c.Index < 0 {
			c.Index += n
		}
		c.Virtual = samples[c.Index].At
		c.SpeedKph = samples[c.Index].SpeedKph
	}
	if m != nil {
		c.Along = m.Normalize(m.Total * startFraction)
	}
	return c
}

func (c *Cursor) Len() int { return len(c.samples) }

// Advance moves the virtual clock by elapsed*rate and integrates the recorded
// speed over that time. Recorded gaps longer than maxGap are compressed down
// to maxGap; maxGap <= 0 disables compression. It reports false when there is
// nothing to play or no route to play it on.
func (c *Cursor) Advance(m *geo.Measure, coords []geo.Coordinate, elapsed time.Duration, rate float64, maxGap time.Duration) (Step, bool) {
	n := len(c.samples)
	if n == 0 || m == nil || m.Total <= 0 || len(coords) < 2 {
		return Step{}, false
	}
	var step Step

	dv := time.Duration(float64(elapsed) * rate)
	c.Virtual = c.Virtual.Add(dv)

	for maxGap > 0 && c.Index < n-1 {
		cur, next := c.samples[c.Index], c.samples[c.Index+1]
		gap := next.At.Sub(cur.At)
		if gap <= maxGap || c.Virtual.Before(cur.At.Add(maxGap)) {
			break
		}
		c.Virtual = c.Virtual.Add(gap - maxGap)
		step.GapSkipped += gap - maxGap
		c.Index++
	}

	// Keep one sample ahead for interpolation.
	for c.Index < n-2 && !c.Virtual.Before(c.samples[c.Index+1].At) {
		c.Index++
	}

	if c.Index >= n-1 || c.Virtual.After(c.samples[n-1].At) {
		c.Index = 0
		c.Virtual = c.samples[0].At
		step.Looped = true
	}

	a := c.samples[c.Index]
	b := a
	if c.Index+1 < n {
		b = c.samples[c.Index+1]
	}
	t := 1.0
	if span := b.At.Sub(a.At); span > 0 {
		t = math.Min(1, math.Max(0, float64(c.Virtual.Sub(a.At))/float64(span)))
	}
	speed := a.SpeedKph + (b.SpeedKph-a.SpeedKph)*t

	// Trapezoid between the previous and current speed.
	meters := (c.SpeedKph + speed) / 2 / 3.6 * dv.Seconds()
	c.Along = m.Normalize(c.Along + meters)
	c.SpeedKph = speed

	step.Placement = m.PositionAt(coords, c.Along)
	step.SpeedKph = speed
	return step, true
}
