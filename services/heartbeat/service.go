// Package heartbeat periodically publishes the sensor manager's counters on
// the bus. The interval follows retained config/heartbeat updates.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"sensorcode-go/bus"
	"sensorcode-go/services/config"
	"sensorcode-go/services/sensor"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicStats           = bus.T("sensor", "stats")
)

// StatsSource is satisfied by *sensor.Manager.
type StatsSource interface {
	Stats() sensor.Stats
}

// Beat is the payload published on sensor/stats.
type Beat struct {
	Seq    uint64        `json:"seq"`
	Time   time.Time     `json:"time"`
	Uptime time.Duration `json:"uptime"`
	Stats  sensor.Stats  `json:"stats"`
}

type Service struct {
	src      StatsSource
	interval time.Duration
	log      *slog.Logger
	started  time.Time
	seq      uint64
}

func New(src StatsSource, interval time.Duration, log *slog.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{src: src, interval: interval, log: log.With("component", "heartbeat")}
}

func (s *Service) beat(conn *bus.Connection, now time.Time) {
	s.seq++
	st := s.src.Stats()
	conn.Publish(conn.NewMessage(TopicStats, Beat{Seq: s.seq, Time: now, Uptime: now.Sub(s.started), Stats: st}, true))
	s.log.Debug("heartbeat", "seq", s.seq, "registered", st.Registered, "notify_in_use", st.NotifyInUse, "notify_drops", st.NotifyDrops)
}

// interval decodes a config/heartbeat payload. Both the YAML text published
// by the config service and a decoded HeartbeatConfig are accepted.
func interval(payload any) (time.Duration, bool) {
	var hc config.HeartbeatConfig
	switch v := payload.(type) {
	case config.HeartbeatConfig:
		hc = v
	case string:
		if err := yaml.Unmarshal([]byte(v), &hc); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	return hc.Interval, hc.Interval > 0
}

// Run publishes a beat immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	s.started = time.Now()
	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	s.log.Info("heartbeat started", "interval", s.interval)
	s.beat(conn, s.started)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat stopping")
			return ctx.Err()
		case t := <-tick.C:
			s.beat(conn, t)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return nil
			}
			iv, ok := interval(msg.Payload)
			if !ok {
				s.log.Warn("ignoring heartbeat config", "payload", msg.Payload)
				continue
			}
			if iv != s.interval {
				s.interval = iv
				tick.Reset(iv)
				s.log.Info("heartbeat interval set", "interval", iv)
			}
		}
	}
}
