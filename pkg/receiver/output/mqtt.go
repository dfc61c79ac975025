package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/samedec/pkg/receiver/alert"
	"github.com/norasector/samedec/pkg/receiver/config"
	"github.com/norasector/samedec/pkg/same/message"
)

const mqttTimeout = 10 * time.Second

// MQTTOutput publishes each alert as JSON under <topic>/<channel>/<event>.
type MQTTOutput struct {
	cfg       config.MQTT
	recvChan  chan *alert.Alert
	newClient func(*mqtt.ClientOptions) mqtt.Client
	logger    zerolog.Logger
}

func NewMQTTOutput(cfg config.MQTT) *MQTTOutput {
	return &MQTTOutput{
		cfg:       cfg,
		recvChan:  make(chan *alert.Alert, receiveChannels),
		newClient: mqtt.NewClient,
		logger:    log.Logger.With().Str("broker", cfg.Broker).Logger(),
	}
}

func (m *MQTTOutput) Receive() chan<- *alert.Alert {
	return m.recvChan
}

func (m *MQTTOutput) Topic(a *alert.Alert) string {
	event := "eom"
	if a.Message.Kind == message.Header {
		event = a.Message.Event
	}
	return fmt.Sprintf("%s/%s/%s", m.cfg.Topic, a.Channel, event)
}

func (m *MQTTOutput) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		m.logger.Info().Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		m.logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	return opts
}

func (m *MQTTOutput) Start(ctx context.Context) error {
	client := m.newClient(m.clientOptions())
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		m.logger.Warn().Msg("mqtt broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	defer client.Disconnect(250)

	return drain(ctx, m.recvChan, func(a *alert.Alert) error {
		payload, err := json.Marshal(a.Record())
		if err != nil {
			return err
		}

		topic := m.Topic(a)
		token := client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(mqttTimeout) {
			m.logger.Warn().Str("topic", topic).Msg("mqtt publish timed out")
			return nil
		}
		if err := token.Error(); err != nil {
			m.logger.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
		return nil
	})
}
