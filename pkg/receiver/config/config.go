package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/norasector/samedec/pkg/same"
	"github.com/norasector/samedec/pkg/same/frame"
	"github.com/norasector/samedec/pkg/same/transport"
)

const DefaultDedupeWindow = 3 * time.Minute

type Config struct {
	LogLevel     string              `yaml:"log_level"`
	Channels     []Channel           `yaml:"channels"`
	Framer       Framer              `yaml:"framer"`
	Transport    Transport           `yaml:"transport"`
	DedupeWindow time.Duration       `yaml:"dedupe_window"`
	UDPOutputs   []OutputDestination `yaml:"udp_outputs"`
	MQTT         MQTT                `yaml:"mqtt"`
	AlertLog     struct {
		Pattern string `yaml:"pattern"`
	} `yaml:"alert_log"`
	StatusServer struct {
		Port int `yaml:"port"`
	} `yaml:"status_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type Channel struct {
	Name     string `yaml:"name"`
	Device   string `yaml:"device"`
	Path     string `yaml:"path"`
	Realtime bool   `yaml:"realtime"`
}

type Framer struct {
	MaxBurstLength int           `yaml:"max_burst_length"`
	ByteTimeout    time.Duration `yaml:"byte_timeout"`
	InvalidRun     int           `yaml:"invalid_run"`
}

type Transport struct {
	HoldOff   time.Duration `yaml:"hold_off"`
	MaxBursts int           `yaml:"max_bursts"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns a configuration with no channels and every tunable at its default.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(contents)
}

func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Framer.MaxBurstLength == 0 {
		c.Framer.MaxBurstLength = frame.DefaultMaxBurstLength
	}
	if c.Framer.ByteTimeout == 0 {
		c.Framer.ByteTimeout = frame.DefaultByteTimeout
	}
	if c.Framer.InvalidRun == 0 {
		c.Framer.InvalidRun = frame.DefaultInvalidRun
	}
	if c.Transport.HoldOff == 0 {
		c.Transport.HoldOff = transport.DefaultHoldOff
	}
	if c.Transport.MaxBursts == 0 {
		c.Transport.MaxBursts = same.MaxBursts
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = DefaultDedupeWindow
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "same/alerts"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "samedec"
	}
	for i := range c.Channels {
		if c.Channels[i].Device == "" {
			c.Channels[i].Device = "file"
		}
	}
}

func (c *Config) Validate() error {
	if c.Framer.MaxBurstLength < 0 || c.Framer.ByteTimeout < 0 || c.Framer.InvalidRun < 0 {
		return fmt.Errorf("framer settings must not be negative")
	}
	if c.Transport.HoldOff < 0 || c.Transport.MaxBursts < 0 {
		return fmt.Errorf("transport settings must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel with path %q has no name", ch.Path)
		}
		if _, ok := seen[ch.Name]; ok {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}

		switch ch.Device {
		case "file":
			if ch.Path == "" {
				return fmt.Errorf("channel %q: file device needs a path", ch.Name)
			}
		default:
			return fmt.Errorf("channel %q: unknown device %q", ch.Name, ch.Device)
		}
	}

	for _, dest := range c.UDPOutputs {
		if dest.Host == "" || dest.Port <= 0 {
			return fmt.Errorf("invalid udp output %s:%d", dest.Host, dest.Port)
		}
	}
	return nil
}
