package receiver

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/rs/zerolog"

	"github.com/norasector/samedec/pkg/receiver/alert"
	"github.com/norasector/samedec/pkg/receiver/device"
	"github.com/norasector/samedec/pkg/same"
	"github.com/norasector/samedec/pkg/same/frame"
	"github.com/norasector/samedec/pkg/same/transport"
	"github.com/norasector/samedec/pkg/util"
)

// Channel frames the bytes of one device.
type Channel struct {
	Name   string
	device device.Device
	framer *frame.Framer
	r      *Receiver
	logger zerolog.Logger
}

func NewChannel(r *Receiver, src ChannelSource) *Channel {
	logger := r.logger.With().Str("channel", src.Name).Logger()

	assembler := transport.NewAssembler(
		transport.WithHoldOff(r.opts.Transport.HoldOff),
		transport.WithMaxBursts(r.opts.Transport.MaxBursts),
		transport.WithLogger(logger),
	)

	return &Channel{
		Name:   src.Name,
		device: src.Device,
		r:      r,
		logger: logger,
		framer: frame.NewFramer(
			frame.WithMaxBurstLength(r.opts.Framer.MaxBurstLength),
			frame.WithByteTimeout(r.opts.Framer.ByteTimeout),
			frame.WithInvalidRun(r.opts.Framer.InvalidRun),
			frame.WithAssembler(assembler),
			frame.WithLogger(logger),
		),
	}
}

// run consumes segments until the device closes them or ctx is done.
func (c *Channel) run(ctx context.Context, segments <-chan *device.Segment) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seg, ok := <-segments:
			if !ok {
				c.logger.Info().Msg("source exhausted")
				return nil
			}
			c.process(seg)
		}
	}
}

// step drives the framer with one segment: carrier first, then bytes, then a
// tick at the end of the segment so deadlines are checked at least once per segment.
func (c *Channel) step(seg *device.Segment) []frame.FrameOut {
	var events []frame.FrameOut
	end := seg.Time.Add(time.Duration(len(seg.Data)) * same.BytePeriod)

	if seg.Carrier {
		events = append(events, c.framer.Carrier(true, seg.Time)...)
	}
	events = append(events, c.framer.Receive(seg.Data, seg.Time)...)
	if !seg.Carrier {
		events = append(events, c.framer.Carrier(false, end)...)
	}
	events = append(events, c.framer.Tick(end)...)
	return events
}

func (c *Channel) process(seg *device.Segment) {
	var events []frame.FrameOut
	duration := util.TimeOperationMicroseconds(func() {
		events = c.step(seg)
	})

	c.r.metrics.bytes.WithLabelValues(c.Name).Add(float64(len(seg.Data)))
	reading := 0.0
	if c.framer.State() == frame.Reading {
		reading = 1
	}
	c.r.metrics.state.WithLabelValues(c.Name).Set(reading)

	end := seg.Time.Add(time.Duration(len(seg.Data)) * same.BytePeriod)
	for _, ev := range events {
		c.handle(ev, end)
	}

	c.r.writePoint(influxdb2.NewPoint("same.segment",
		map[string]string{
			"channel": c.Name,
		},
		map[string]interface{}{
			"bytes":       len(seg.Data),
			"carrier":     seg.Carrier,
			"events":      len(events),
			"duration_us": duration,
		}, time.Now()))
}

func (c *Channel) handle(ev frame.FrameOut, at time.Time) {
	c.r.metrics.events.WithLabelValues(c.Name, ev.State.String()).Inc()
	if c.r.status != nil {
		c.r.status.Observe(c.Name, ev, c.framer.Transport(), at)
	}

	if ev.State != frame.Ready {
		c.logger.Debug().Str("state", ev.State.String()).Msg("framer state")
		return
	}

	if ev.Err != nil {
		c.r.metrics.decodeErrors.WithLabelValues(c.Name).Inc()
		c.logger.Warn().Err(ev.Err).Msg("message could not be decoded")
		c.r.writePoint(influxdb2.NewPoint("same.decode_error",
			map[string]string{"channel": c.Name},
			map[string]interface{}{"error": ev.Err.Error()},
			at))
		return
	}

	msg := *ev.Message
	if c.r.dedupe.Seen(msg, at) {
		c.r.metrics.duplicates.WithLabelValues(c.Name).Inc()
		c.logger.Info().Str("message", msg.String()).Msg("duplicate message suppressed")
		return
	}

	a := alert.New(c.Name, msg, at)
	c.r.publish(a)
}
