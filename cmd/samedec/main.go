package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/samedec/pkg/receiver"
	"github.com/norasector/samedec/pkg/receiver/config"
	"github.com/norasector/samedec/pkg/receiver/device/file"
	"github.com/norasector/samedec/pkg/receiver/output"
	"github.com/norasector/samedec/pkg/receiver/status"
	"github.com/norasector/samedec/pkg/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	configFile := pflag.StringP("config", "c", "", "YAML config file")
	input := pflag.StringP("input", "i", "", "Replay demodulated bytes from a file, or - for stdin, instead of the configured channels")
	realtime := pflag.BoolP("realtime", "r", false, "Pace --input at the SAME byte rate")
	logLevel := pflag.StringP("log-level", "l", "", "Override the configured log level")
	pflag.Parse()

	opts := config.Default()
	if *configFile != "" {
		var err error
		opts, err = config.Load(*configFile)
		if err != nil {
			log.Fatal().Err(err).Str("config", *configFile).Msg("error loading config")
		}
	}

	if *input != "" {
		opts.Channels = []config.Channel{{Name: "input", Device: "file", Path: *input, Realtime: *realtime}}
	}
	if len(opts.Channels) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	if *logLevel != "" {
		opts.LogLevel = *logLevel
	}
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", opts.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Logger.Level(level)

	var influxWriteAPI api.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, opts.InfluxDB.Token)
		defer client.Close()
		influxWriteAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	}

	ropts := receiver.OptionsFromConfig(opts)
	for _, ch := range opts.Channels {
		log.Info().Str("channel", ch.Name).Str("device", ch.Device).Str("path", ch.Path).Msg("initializing device...")
		dev, err := file.NewFileDevice(ch.Path, file.DefaultReadSize, ch.Realtime)
		if err != nil {
			log.Fatal().Str("channel", ch.Name).Err(err).Msg("failed to open file device")
		}
		ropts.Channels = append(ropts.Channels, receiver.ChannelSource{Name: ch.Name, Device: dev})
	}

	ropts.Outputs = append(ropts.Outputs, output.NewWriterOutput(os.Stdout))
	if len(opts.UDPOutputs) > 0 {
		ropts.Outputs = append(ropts.Outputs, output.NewUDPOutput(opts.UDPOutputs, influxWriteAPI))
	}
	if opts.MQTT.Broker != "" {
		ropts.Outputs = append(ropts.Outputs, output.NewMQTTOutput(opts.MQTT))
	}
	if opts.AlertLog.Pattern != "" {
		alertLog, err := output.NewAlertLogOutput(opts.AlertLog.Pattern)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create alert log")
		}
		ropts.Outputs = append(ropts.Outputs, alertLog)
	}

	metrics := receiver.NewMetrics()
	receiverOpts := []receiver.ReceiverOption{
		receiver.WithInfluxDB(influxWriteAPI),
		receiver.WithMetrics(metrics),
		receiver.WithLogger(log.Logger),
	}
	if opts.StatusServer.Port > 0 {
		statusServer := status.NewServer(opts.StatusServer.Port, metrics.Registry)
		statusServer.SetLogger(log.Logger)
		receiverOpts = append(receiverOpts, receiver.WithStatusServer(statusServer))
	}

	rx, err := receiver.NewReceiver(ropts, receiverOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create receiver")
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		return rx.Stop()
	})

	eg.Go(func() error {
		// Replays end on their own; the signal watcher must not outlive them.
		defer cancel()
		return rx.Start(ctx)
	})

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
}
