package publisher

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"

	"shuttle-telemetry/internal/shuttle"
	"shuttle-telemetry/internal/telemetry"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSReceivedInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("shuttle-telemetry"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// FrameMessage carries every vehicle position of one position tick.
type FrameMessage struct {
	RouteID   string             `json:"routeId"`
	Timestamp time.Time          `json:"timestamp"`
	Vehicles  []shuttle.Position `json:"vehicles"`
}

// TelemetryMessage carries one telemetry tick.
type TelemetryMessage struct {
	RouteID string `json:"routeId"`
	telemetry.Result
}

func (p *NATSPublisher) PublishPositions(routeID string, at time.Time, ps []shuttle.Position) error {
	b, err := json.Marshal(FrameMessage{RouteID: routeID, Timestamp: at, Vehicles: ps})
	if err != nil {
		return err
	}
	return p.publish(Subject(p.prefix, "positions", routeID), b)
}

func (p *NATSPublisher) PublishTelemetry(routeID string, res telemetry.Result) error {
	b, err := json.Marshal(TelemetryMessage{RouteID: routeID, Result: res})
	if err != nil {
		return err
	}
	return p.publish(Subject(p.prefix, "telemetry", routeID), b)
}

// PublishFeed publishes a GTFS-realtime vehicle positions feed built from the
// last frame and telemetry result.
func (p *NATSPublisher) PublishFeed(routeID string, at time.Time, ps []shuttle.Position, res telemetry.Result) error {
	b, err := proto.Marshal(BuildFeed(routeID, at, ps, res))
	if err != nil {
		return err
	}
	return p.publish(Subject(p.prefix, "gtfsrt", routeID), b)
}

func (p *NATSPublisher) publish(subject string, b []byte) error {
	if p.logSubjects {
		log.Debug().Str("subject", subject).Int("bytes", len(b)).Msg("nats publish")
	}
	start := time.Now()
	err := p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// SubscribeVehicles delivers vehicle lists published by an external feed on
// <prefix>.vehicles.<route>. Undecodable messages are logged and dropped.
func (p *NATSPublisher) SubscribeVehicles(routeID string, fn func([]shuttle.Vehicle)) (*nats.Subscription, error) {
	subject := Subject(p.prefix, "vehicles", routeID)
	log.Info().Str("subject", subject).Msg("subscribing to live vehicles")
	return p.nc.Subscribe(subject, func(msg *nats.Msg) {
		if p.metrics != nil {
			p.metrics.NATSReceivedInc()
		}
		vs, err := DecodeVehicles(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping vehicle message")
			return
		}
		fn(vs)
	})
}

// DecodeVehicles accepts either a JSON array of vehicles or a single vehicle.
func DecodeVehicles(b []byte) ([]shuttle.Vehicle, error) {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, errors.New("empty vehicle message")
	}
	if trimmed[0] == '[' {
		var vs []shuttle.Vehicle
		if err := json.Unmarshal(b, &vs); err != nil {
			return nil, err
		}
		return vs, nil
	}
	var v shuttle.Vehicle
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	if v.ID == "" {
		return nil, errors.New("vehicle without id")
	}
	return []shuttle.Vehicle{v}, nil
}

// Subject joins a prefix, a kind and a route id into a NATS subject.
func Subject(prefix, kind, routeID string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	return strings.Join(append(parts, kind, subjectToken(routeID)), ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
