package publisher

import (
	"sort"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"shuttle-telemetry/internal/shuttle"
	"shuttle-telemetry/internal/telemetry"
)

const gtfsRealtimeVersion = "2.0"

// BuildFeed renders one frame of positions as a full-dataset GTFS-realtime
// vehicle positions feed. Hidden vehicles are left out. Stop status and
// speed come from the telemetry sample when one exists for the vehicle.
func BuildFeed(routeID string, at time.Time, ps []shuttle.Position, res telemetry.Result) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(at.Unix())),
		},
	}

	sorted := make([]shuttle.Position, 0, len(ps))
	for _, p := range ps {
		if p.Status == shuttle.StatusHidden {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VehicleID < sorted[j].VehicleID })

	for _, p := range sorted {
		vp := &gtfs.VehiclePosition{
			Trip: &gtfs.TripDescriptor{
				RouteId:     proto.String(routeID),
				DirectionId: proto.Uint32(directionID(p.Direction)),
			},
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(p.VehicleID),
				Label: proto.String(firstNonEmpty(p.Label, p.VehicleID)),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(p.Point.Lat)),
				Longitude: proto.Float32(float32(p.Point.Lon)),
				Bearing:   proto.Float32(float32(p.Heading)),
				Speed:     proto.Float32(float32(p.SpeedMps)),
			},
			Timestamp: proto.Uint64(uint64(at.Unix())),
		}
		if s, ok := res.ByVehicle[p.VehicleID]; ok {
			if s.SpeedMps != nil {
				vp.Position.Speed = proto.Float32(float32(*s.SpeedMps))
			}
			if s.NextStopID != "" {
				vp.StopId = proto.String(s.NextStopID)
				status := gtfs.VehiclePosition_IN_TRANSIT_TO
				if s.DistanceToNextStopM != nil && *s.DistanceToNextStopM == 0 {
					status = gtfs.VehiclePosition_STOPPED_AT
				}
				vp.CurrentStatus = status.Enum()
			}
		}
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(p.VehicleID),
			Vehicle: vp,
		})
	}
	return feed
}

func directionID(direction string) uint32 {
	if shuttle.NormalizeDirection(direction) == shuttle.Inbound {
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
