package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorReplayHooks(t *testing.T) {
	c := NewCollector(2, 16*time.Millisecond, time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.SpeedMultiplier))
	assert.InDelta(t, 0.016, testutil.ToFloat64(c.FrameInterval), 1e-12)

	c.GapSkipped(50 * time.Second)
	c.GapSkipped(500 * time.Millisecond)
	c.Looped()
	c.ObserveTrackLoad(10, 2, 3)

	assert.InDelta(t, 50.5, testutil.ToFloat64(c.ReplayGapSkipped), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReplayLoops))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.ReplayRows.WithLabelValues("kept")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ReplayRows.WithLabelValues("malformed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ReplayRows.WithLabelValues("inaccurate")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := NewCollector(1, 16*time.Millisecond, time.Second)
	c.FrameTicks.Add(3)
	c.RouteLoads.WithLabelValues("embedded").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "shuttle_frame_ticks_total 3")
	assert.Contains(t, string(body), `shuttle_route_loads_total{source="embedded"} 1`)
}
