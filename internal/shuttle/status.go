package shuttle

import "time"

// StatusThresholds bound the age of a vehicle's last update for each status.
type StatusThresholds struct {
	Fresh   time.Duration
	Delayed time.Duration
	Offline time.Duration
}

var DefaultStatusThresholds = StatusThresholds{
	Fresh:   15 * time.Second,
	Delayed: 60 * time.Second,
	Offline: 5 * time.Minute,
}

// DeriveStatus classifies a vehicle by how long ago it last reported.
// Updates stamped in the future count as age zero.
func DeriveStatus(lastUpdated, now time.Time, th StatusThresholds) Status {
	age := now.Sub(lastUpdated)
	if age < 0 {
		age = 0
	}
	switch {
	case age <= th.Fresh:
		return StatusFresh
	case age <= th.Delayed:
		return StatusDelayed
	case age <= th.Offline:
		return StatusOffline
	default:
		return StatusHidden
	}
}

// NormalizeDirection maps anything that is not explicitly inbound to outbound.
func NormalizeDirection(d string) string {
	if d == Inbound {
		return Inbound
	}
	return Outbound
}
