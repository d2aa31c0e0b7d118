package config

import (
	"context"
	"errors"
	"log/slog"

	"gopkg.in/yaml.v3"

	"sensorcode-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

const cfgSim = `
manager:
  notify_pool_size: 8
heartbeat:
  interval: 5s
sensors:
  - name: env0
    driver: sim
    types: [temperature, relative_humidity]
    poll_rate_ms: 1000
    params: {temperature: 21.5, relative_humidity: 40, amplitude: 6, period_s: 60}
    traits:
      - type: temperature
        algo: watermark
        low: [18]
        high: [26]
  - name: imu0
    driver: sim
    types: [accelerometer, gyroscope]
    poll_rate_ms: 250
    irq_pin: 2
    params: {tap_every_s: 30}
    traits:
      - type: gyroscope
        poll_multiple: 4
  - name: probe0
    driver: sim
    types: [pressure]
`

var embeddedConfigs = map[string]string{
	"sim": cfgSim,
}

// EmbeddedConfigLookup resolves a built-in profile by name.
var EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
	s, ok := embeddedConfigs[profile]
	return []byte(s), ok
}

// Embedded parses a built-in profile.
func Embedded(profile string) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(profile)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for profile: " + profile)
	}
	return Parse(raw)
}

type Service struct {
	Name string
	cfg  *Config
	log  *slog.Logger
}

func NewService(cfg *Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Name: serviceName, cfg: cfg, log: log.With("component", serviceName)}
}

// Publish sends the configuration as retained messages: config/manager,
// config/heartbeat, config/readlog and config/sensors/<name>. Payloads are
// the YAML of each section.
func (s *Service) Publish(conn *bus.Connection) error {
	sections := []struct {
		topic bus.Topic
		v     any
	}{
		{bus.T(configPrefix, "manager"), s.cfg.Manager},
		{bus.T(configPrefix, "heartbeat"), s.cfg.Heartbeat},
		{bus.T(configPrefix, "readlog"), s.cfg.ReadLog},
	}
	for _, sc := range s.cfg.Sensors {
		sections = append(sections, struct {
			topic bus.Topic
			v     any
		}{bus.T(configPrefix, "sensors", sc.Name), sc})
	}
	for _, sec := range sections {
		out, err := yaml.Marshal(sec.v)
		if err != nil {
			return err
		}
		conn.Publish(conn.NewMessage(sec.topic, string(out), true))
	}
	s.log.Debug("config published", "sections", len(sections))
	return nil
}

// Start publishes in the background; failures are logged.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Publish(conn); err != nil {
			s.log.Warn("config publish failed", "err", err)
		}
	}()
}
