package receiver

import (
	"time"

	"github.com/norasector/samedec/pkg/receiver/config"
	"github.com/norasector/samedec/pkg/receiver/device"
)

type Options struct {
	Channels     []ChannelSource
	Framer       config.Framer
	Transport    config.Transport
	DedupeWindow time.Duration
	Outputs      []Output
}

// ChannelSource names a device whose bytes are framed independently.
type ChannelSource struct {
	Name   string
	Device device.Device
}

// OptionsFromConfig fills everything but the channel devices and outputs, which need I/O to build.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Framer:       c.Framer,
		Transport:    c.Transport,
		DedupeWindow: c.DedupeWindow,
	}
}
