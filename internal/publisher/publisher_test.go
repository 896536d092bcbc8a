package publisher

import (
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/shuttle"
	"shuttle-telemetry/internal/telemetry"
)

func ptr(f float64) *float64 { return &f }

func TestSubject(t *testing.T) {
	assert.Equal(t, "shuttle.positions.campus-loop", Subject("shuttle", "positions", "campus-loop"))
	assert.Equal(t, "telemetry.R_1", Subject("", "telemetry", " R.1 "))
	assert.Equal(t, "shuttle.gtfsrt._", Subject("shuttle", "gtfsrt", ""))
	assert.Equal(t, "a_b_c_d", subjectToken("a>b*c/d"))
}

func TestBuildFeed(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	ps := []shuttle.Position{
		{VehicleID: "v2", Direction: shuttle.Inbound, Point: geo.Coordinate{Lon: 100.5, Lat: 13.7}, Heading: 90, SpeedMps: 8, Status: shuttle.StatusFresh},
		{VehicleID: "v1", Label: "BU-01", Direction: shuttle.Outbound, Point: geo.Coordinate{Lon: 100.6, Lat: 13.8}, Heading: 180, SpeedMps: 0, Status: shuttle.StatusFresh},
		{VehicleID: "v3", Status: shuttle.StatusHidden},
	}
	res := telemetry.Result{
		At: at,
		ByVehicle: map[string]telemetry.VehicleSample{
			"v1": {VehicleID: "v1", NextStopID: "s1", DistanceToNextStopM: ptr(0)},
			"v2": {VehicleID: "v2", NextStopID: "s3", DistanceToNextStopM: ptr(120), SpeedMps: ptr(6.5)},
		},
	}

	feed := BuildFeed("campus-loop", at, ps, res)

	assert.Equal(t, "2.0", feed.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, gtfs.FeedHeader_FULL_DATASET, feed.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(1_700_000_000), feed.GetHeader().GetTimestamp())
	require.Len(t, feed.GetEntity(), 2)

	first := feed.GetEntity()[0].GetVehicle()
	assert.Equal(t, "v1", feed.GetEntity()[0].GetId())
	assert.Equal(t, "BU-01", first.GetVehicle().GetLabel())
	assert.Equal(t, uint32(0), first.GetTrip().GetDirectionId())
	assert.Equal(t, "campus-loop", first.GetTrip().GetRouteId())
	assert.Equal(t, gtfs.VehiclePosition_STOPPED_AT, first.GetCurrentStatus())
	assert.Equal(t, "s1", first.GetStopId())

	second := feed.GetEntity()[1].GetVehicle()
	assert.Equal(t, "v2", second.GetVehicle().GetLabel())
	assert.Equal(t, uint32(1), second.GetTrip().GetDirectionId())
	assert.Equal(t, gtfs.VehiclePosition_IN_TRANSIT_TO, second.GetCurrentStatus())
	assert.InDelta(t, 6.5, second.GetPosition().GetSpeed(), 1e-6)
	assert.InDelta(t, 90, second.GetPosition().GetBearing(), 1e-6)

	// Round trip through the wire format used by PublishFeed.
	b, err := proto.Marshal(feed)
	require.NoError(t, err)
	var decoded gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &decoded))
	assert.Len(t, decoded.GetEntity(), 2)
}

func TestBuildFeedWithoutTelemetry(t *testing.T) {
	ps := []shuttle.Position{{VehicleID: "v1", SpeedMps: 4, Status: shuttle.StatusFresh}}
	feed := BuildFeed("r", time.Unix(0, 0), ps, telemetry.Result{})
	require.Len(t, feed.GetEntity(), 1)
	vp := feed.GetEntity()[0].GetVehicle()
	assert.Nil(t, vp.CurrentStatus)
	assert.Empty(t, vp.GetStopId())
	assert.InDelta(t, 4, vp.GetPosition().GetSpeed(), 1e-6)
}

func TestDecodeVehicles(t *testing.T) {
	vs, err := DecodeVehicles([]byte(`[{"id":"a","latitude":13.7,"longitude":100.5,"direction":"inbound"},{"id":"b"}]`))
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "a", vs[0].ID)
	assert.Equal(t, shuttle.Inbound, vs[0].Direction)

	vs, err = DecodeVehicles([]byte(` {"id":"c","last_updated":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, 2024, vs[0].LastUpdated.Year())

	for _, bad := range []string{"", "  ", "{}", "[nope", `{"id":`} {
		_, err := DecodeVehicles([]byte(bad))
		assert.Error(t, err, "input %q", bad)
	}
}
