package shuttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 30, 0, time.UTC)
	tests := []struct {
		name string
		last time.Time
		want Status
	}{
		{name: "fresh within 15s", last: now.Add(-10 * time.Second), want: StatusFresh},
		{name: "fresh at boundary", last: now.Add(-15 * time.Second), want: StatusFresh},
		{name: "delayed past 15s", last: now.Add(-30 * time.Second), want: StatusDelayed},
		{name: "offline past 60s", last: now.Add(-2 * time.Minute), want: StatusOffline},
		{name: "hidden past 5m", last: now.Add(-6 * time.Minute), want: StatusHidden},
		{name: "future timestamp", last: now.Add(time.Minute), want: StatusFresh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.last, now, DefaultStatusThresholds))
		})
	}
}

func TestNormalizeDirection(t *testing.T) {
	assert.Equal(t, Inbound, NormalizeDirection("inbound"))
	assert.Equal(t, Outbound, NormalizeDirection("outbound"))
	assert.Equal(t, Outbound, NormalizeDirection(""))
}
