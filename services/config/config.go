// Package config loads the sensor daemon's YAML configuration and publishes
// it, section by section, as retained bus messages.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sensorcode-go/errcode"
	"sensorcode-go/services/sensor"
	"sensorcode-go/services/sensor/threshold"
	"sensorcode-go/types"
)

type Config struct {
	Manager   ManagerConfig   `yaml:"manager"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	ReadLog   ReadLogConfig   `yaml:"readlog"`
	Sensors   []SensorConfig  `yaml:"sensors"`
}

type ManagerConfig struct {
	TicksPerSecond   uint32        `yaml:"ticks_per_second"`
	NotifyPoolSize   int           `yaml:"notify_pool_size"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	LockTimeout      time.Duration `yaml:"lock_timeout"`
	TimestampRefresh time.Duration `yaml:"timestamp_refresh"`
	TimestampRetry   time.Duration `yaml:"timestamp_retry"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type ReadLogConfig struct {
	// Path of the SQLite database; empty disables the log.
	Path string `yaml:"path"`
}

type SensorConfig struct {
	Name   string   `yaml:"name"`
	Driver string   `yaml:"driver"`
	Bus    string   `yaml:"bus,omitempty"`
	Addr   uint16   `yaml:"addr,omitempty"`
	Types  []string `yaml:"types"`
	// IRQPin routes a GPIO edge into the manager's interrupt path.
	IRQPin  *int   `yaml:"irq_pin,omitempty"`
	IRQEdge string `yaml:"irq_edge,omitempty"`
	// PollRateMs of 0 leaves the sensor to on-demand reads.
	PollRateMs uint32             `yaml:"poll_rate_ms"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Traits     []TraitConfig      `yaml:"traits,omitempty"`
}

type TraitConfig struct {
	Type         string    `yaml:"type"`
	Algo         string    `yaml:"algo,omitempty"`
	Low          []float64 `yaml:"low,omitempty"`
	High         []float64 `yaml:"high,omitempty"`
	PollMultiple uint16    `yaml:"poll_multiple,omitempty"`
}

// Parse decodes YAML strictly, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errcode.Wrap(errcode.InvalidArgument, "config", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

func (c *Config) ApplyDefaults() {
	m := &c.Manager
	if m.TicksPerSecond == 0 {
		m.TicksPerSecond = 1000
	}
	if m.NotifyPoolSize == 0 {
		m.NotifyPoolSize = sensor.DefaultNotifyPoolSize
	}
	if m.ReadTimeout == 0 {
		m.ReadTimeout = sensor.DefaultReadTimeout
	}
	if m.LockTimeout == 0 {
		m.LockTimeout = sensor.DefaultLockTimeout
	}
	if m.TimestampRefresh == 0 {
		m.TimestampRefresh = 30 * time.Minute
	}
	if m.TimestampRetry == 0 {
		m.TimestampRetry = time.Second
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = 10 * time.Second
	}
	for i := range c.Sensors {
		for j := range c.Sensors[i].Traits {
			if c.Sensors[i].Traits[j].Algo == "" {
				c.Sensors[i].Traits[j].Algo = threshold.AlgoWindow.String()
			}
		}
	}
}

func invalid(format string, args ...any) error {
	return errcode.New(errcode.InvalidArgument, "config", fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	if c.Manager.NotifyPoolSize < 0 {
		return invalid("notify_pool_size must be positive")
	}
	seen := map[string]bool{}
	for i, s := range c.Sensors {
		if s.Name == "" {
			return invalid("sensors[%d]: missing name", i)
		}
		if seen[s.Name] {
			return invalid("sensors[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.Driver == "" {
			return invalid("sensor %s: missing driver", s.Name)
		}
		if s.IRQPin != nil && *s.IRQPin < 0 {
			return invalid("sensor %s: negative irq_pin", s.Name)
		}
		switch s.IRQEdge {
		case "", "rising", "falling", "both":
		default:
			return invalid("sensor %s: unknown irq_edge %q", s.Name, s.IRQEdge)
		}
		caps, err := s.TypeMask()
		if err != nil {
			return err
		}
		for _, tc := range s.Traits {
			if _, err := tc.Trait(caps); err != nil {
				return invalid("sensor %s: %v", s.Name, err)
			}
		}
	}
	return nil
}

// TypeMask parses the sensor's type list.
func (s SensorConfig) TypeMask() (types.SensorType, error) {
	if len(s.Types) == 0 {
		return 0, invalid("sensor %s: no types", s.Name)
	}
	var mask types.SensorType
	for _, name := range s.Types {
		t, ok := types.ParseSensorType(name)
		if !ok {
			return 0, invalid("sensor %s: unknown type %q", s.Name, name)
		}
		mask |= t
	}
	return mask, nil
}

// Trait converts the entry into a manager trait for a sensor with the given
// capabilities.
func (tc TraitConfig) Trait(caps types.SensorType) (sensor.TypeTrait, error) {
	t, ok := types.ParseSensorType(tc.Type)
	if !ok || !t.Single() {
		return sensor.TypeTrait{}, fmt.Errorf("trait type %q is not a single type", tc.Type)
	}
	if !caps.Has(t) {
		return sensor.TypeTrait{}, fmt.Errorf("trait type %s not among sensor types", t)
	}
	algo, ok := threshold.AlgoWindow, true
	if tc.Algo != "" {
		algo, ok = threshold.ParseAlgo(tc.Algo)
	}
	if !ok {
		return sensor.TypeTrait{}, fmt.Errorf("unknown algo %q", tc.Algo)
	}
	if algo == threshold.AlgoUser {
		return sensor.TypeTrait{}, fmt.Errorf("algo %q needs a comparator and cannot be configured", tc.Algo)
	}
	kind := types.KindOf(t)
	width := len(types.Build(kind, nil).Fields())
	if len(tc.Low) > width || len(tc.High) > width {
		return sensor.TypeTrait{}, fmt.Errorf("%s thresholds take at most %d values", t, width)
	}
	tt := sensor.TypeTrait{Type: t, Algo: algo, PollMultiple: tc.PollMultiple}
	if len(tc.Low) > 0 {
		tt.Low = types.Build(kind, tc.Low)
	}
	if len(tc.High) > 0 {
		tt.High = types.Build(kind, tc.High)
	}
	return tt, nil
}

// HasThreshold reports whether the entry configures any bound.
func (tc TraitConfig) HasThreshold() bool { return len(tc.Low) > 0 || len(tc.High) > 0 }
