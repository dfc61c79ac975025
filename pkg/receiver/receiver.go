package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/samedec/pkg/receiver/alert"
	"github.com/norasector/samedec/pkg/receiver/device"
	"github.com/norasector/samedec/pkg/receiver/status"
	"github.com/norasector/samedec/pkg/util"
)

const segmentBuffer = 16

// Receiver runs one framing pipeline per channel and fans decoded alerts out to outputs.
type Receiver struct {
	opts     Options
	channels []*Channel
	writeAPI api.WriteAPI
	status   *status.Server
	metrics  *Metrics
	dedupe   *Dedupe
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	writes sync.WaitGroup
}

type ReceiverOption func(r *Receiver) error

func WithInfluxDB(writeAPI api.WriteAPI) ReceiverOption {
	return func(r *Receiver) error {
		r.writeAPI = writeAPI
		return nil
	}
}

func WithStatusServer(s *status.Server) ReceiverOption {
	return func(r *Receiver) error {
		r.status = s
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ReceiverOption {
	return func(r *Receiver) error {
		r.logger = logger
		return nil
	}
}

func WithMetrics(m *Metrics) ReceiverOption {
	return func(r *Receiver) error {
		r.metrics = m
		return nil
	}
}

func NewReceiver(options Options, opts ...ReceiverOption) (*Receiver, error) {
	r := &Receiver{
		opts:     options,
		writeAPI: &util.MockWriteAPI{}, // overwritten with option
		dedupe:   NewDedupe(options.DedupeWindow),
		logger:   log.Logger,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.metrics == nil {
		r.metrics = NewMetrics()
	}

	if len(options.Channels) == 0 {
		return nil, fmt.Errorf("must specify at least one channel")
	}

	seen := make(map[string]struct{}, len(options.Channels))
	for _, src := range options.Channels {
		if _, ok := seen[src.Name]; ok {
			return nil, fmt.Errorf("duplicate channel name %q", src.Name)
		}
		seen[src.Name] = struct{}{}

		r.channels = append(r.channels, NewChannel(r, src))
		if r.status != nil {
			r.status.Register(src.Name)
		}
	}

	return r, nil
}

func (r *Receiver) Metrics() *Metrics {
	return r.metrics
}

func (r *Receiver) Stop() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	var errs []error
	for _, ch := range r.channels {
		if err := ch.device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping channel %s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Start blocks until every channel's source is exhausted, ctx is done, or a
// component fails. Outputs are stopped once the channels are finished.
func (r *Receiver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	outputCtx, stopOutputs := context.WithCancel(ctx)
	defer stopOutputs()

	for _, output := range r.opts.Outputs {
		thisOutput := output
		eg.Go(func() error {
			return thisOutput.Start(outputCtx)
		})
	}

	if r.status != nil {
		eg.Go(func() error {
			return r.status.Run(outputCtx)
		})
	}

	eg.Go(func() error {
		channels, ctx := errgroup.WithContext(ctx)
		for _, ch := range r.channels {
			thisChannel := ch
			segments := make(chan *device.Segment, segmentBuffer)
			channels.Go(func() error {
				defer close(segments)
				return thisChannel.device.Start(ctx, segments)
			})
			channels.Go(func() error {
				return thisChannel.run(ctx, segments)
			})
		}
		// A failing channel is recorded before the outputs see cancellation.
		err := channels.Wait()
		if err == nil {
			stopOutputs()
		}
		return err
	})

	r.logger.Info().
		Int("channels", len(r.channels)).
		Int("outputs", len(r.opts.Outputs)).
		Msg("Starting")

	err := eg.Wait()
	r.writes.Wait()
	r.writeAPI.Flush()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// publish hands an alert to every output without waiting on any of them.
func (r *Receiver) publish(a *alert.Alert) {
	r.logger.Info().
		Str("channel", a.Channel).
		Str("alert_id", a.ID.String()).
		Str("message", a.Message.String()).
		Msg("alert")

	r.metrics.alerts.WithLabelValues(a.Channel, a.Message.Kind.String(), a.Message.Event).Inc()
	if r.status != nil {
		r.status.AddAlert(a)
	}

	skippedOutputs := 0
	for _, output := range r.opts.Outputs {
		select {
		case output.Receive() <- a:
			// We will not wait on blocked channels.
		default:
			skippedOutputs++
		}
	}
	if skippedOutputs > 0 {
		r.metrics.dropped.WithLabelValues(a.Channel).Add(float64(skippedOutputs))
		r.logger.Warn().Int("skipped_outputs", skippedOutputs).Msg("outputs not keeping up")
	}

	r.writePoint(influxdb2.NewPoint("same.alert",
		map[string]string{
			"channel": a.Channel,
			"kind":    a.Message.Kind.String(),
			"event":   a.Message.Event,
		},
		map[string]interface{}{
			"id":              a.ID.String(),
			"message":         a.Message.String(),
			"skipped_outputs": skippedOutputs,
		}, time.Now()))
}

// writePoint hands a point to the write API off the channel goroutine. Start
// waits for pending writes before flushing.
func (r *Receiver) writePoint(p *write.Point) {
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		r.writeAPI.WritePoint(p)
	}()
}
