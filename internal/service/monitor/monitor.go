package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

const (
	// clientID identifies the monitor to the broker.
	clientID = "tasmota-updater-monitor"

	// connectTimeout bounds the initial broker handshake.
	connectTimeout = 10 * time.Second

	// disconnectQuiesce is how long Disconnect waits for in-flight
	// messages, in milliseconds as paho expects.
	disconnectQuiesce = 1000

	// reconnectInterval is the retry pause after a lost connection.
	reconnectInterval = 5 * time.Second
)

// Tasmota topic layout: tele/<device>/STATE for periodic telemetry,
// tele/<device>/LWT for availability, stat/<device>/STATUS2 for the
// firmware report answered to a "Status 2" command.
const (
	stateSuffix        = "STATE"
	availabilitySuffix = "LWT"
	firmwareSuffix     = "STATUS2"

	telemetryPrefix = "tele"
	statusPrefix    = "stat"
)

// EventKind classifies a telemetry event.
type EventKind string

// Telemetry event kinds.
const (
	EventState        EventKind = "state"
	EventAvailability EventKind = "availability"
	EventFirmware     EventKind = "firmware"
)

// Event is one decoded telemetry message from a device.
type Event struct {
	// Device is the topic name of the reporting device.
	Device string
	// Kind classifies the message.
	Kind EventKind
	// Version is the reported firmware version, firmware events only.
	Version string
	// Online is the availability flag, availability events only.
	Online bool
	// Uptime is the device-reported uptime string, state events only.
	Uptime string
	// RSSI is the reported signal quality, state events only.
	RSSI int
}

// Handler consumes decoded telemetry events.
type Handler func(ctx context.Context, event Event)

// Monitor subscribes to device telemetry topics and feeds decoded
// events to a handler.
type Monitor struct {
	cfg     config.MQTTConfig
	handler Handler
	client  pahomqtt.Client
}

// New creates a monitor for the provided broker configuration.
// The handler must not be nil.
func New(cfg config.MQTTConfig, handler Handler) *Monitor {
	return &Monitor{
		cfg:     cfg,
		handler: handler,
	}
}

// Run connects to the broker, subscribes to the telemetry topics and
// blocks until the context ends, then disconnects cleanly.
func (m *Monitor) Run(ctx context.Context) error {
	if m.cfg.Broker == "" {
		return fmt.Errorf("mqtt broker address is not configured")
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			logger.Info(ctx, "Connected to MQTT broker")
			m.subscribe(ctx)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.WarnKV(ctx, "MQTT connection lost", "error", err)
		})

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	m.client = pahomqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	<-ctx.Done()

	m.client.Disconnect(disconnectQuiesce)
	logger.Info(ctx, "Telemetry monitor stopped")

	return nil
}

// subscribe registers the wildcard telemetry subscriptions.
func (m *Monitor) subscribe(ctx context.Context) {
	topics := []string{
		m.topic(telemetryPrefix, stateSuffix),
		m.topic(telemetryPrefix, availabilitySuffix),
		m.topic(statusPrefix, firmwareSuffix),
	}

	for _, topic := range topics {
		token := m.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			m.handleMessage(ctx, msg.Topic(), msg.Payload())
		})

		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			logger.WarnKV(ctx, "MQTT subscribe failed", "topic", topic, "error", token.Error())
			continue
		}

		logger.InfoKV(ctx, "Subscribed to telemetry topic", "topic", topic)
	}
}

// topic builds a wildcard subscription for one message class.
func (m *Monitor) topic(prefix, suffix string) string {
	if m.cfg.TopicPrefix != "" {
		return m.cfg.TopicPrefix + "/" + prefix + "/+/" + suffix
	}

	return prefix + "/+/" + suffix
}

// handleMessage decodes one telemetry message and forwards the event.
func (m *Monitor) handleMessage(ctx context.Context, topic string, payload []byte) {
	event, ok := decodeMessage(m.cfg.TopicPrefix, topic, payload)
	if !ok {
		return
	}

	if m.handler != nil {
		m.handler(ctx, event)
	}
}

// decodeMessage turns a raw topic/payload pair into a telemetry event.
// Messages outside the known topic layout or with undecodable payloads
// are dropped.
func decodeMessage(topicPrefix, topic string, payload []byte) (Event, bool) {
	device, suffix, ok := splitDeviceTopic(topicPrefix, topic)
	if !ok {
		return Event{}, false
	}

	event := Event{Device: device}

	switch suffix {
	case availabilitySuffix:
		event.Kind = EventAvailability
		event.Online = strings.EqualFold(strings.TrimSpace(string(payload)), "Online")

		return event, true
	case stateSuffix:
		var state stateMessage
		if err := json.Unmarshal(payload, &state); err != nil {
			return Event{}, false
		}

		event.Kind = EventState
		event.Uptime = state.Uptime
		event.RSSI = state.Wifi.RSSI

		return event, true
	case firmwareSuffix:
		var status firmwareMessage
		if err := json.Unmarshal(payload, &status); err != nil {
			return Event{}, false
		}

		event.Kind = EventFirmware
		event.Version = status.StatusFWR.Version

		return event, true
	default:
		return Event{}, false
	}
}

// splitDeviceTopic extracts the device name and message class from a
// telemetry topic, rejecting topics outside the expected layout.
func splitDeviceTopic(topicPrefix, topic string) (device, suffix string, ok bool) {
	if topicPrefix != "" {
		trimmed, found := strings.CutPrefix(topic, topicPrefix+"/")
		if !found {
			return "", "", false
		}

		topic = trimmed
	}

	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return "", "", false
	}

	switch parts[0] {
	case telemetryPrefix, statusPrefix:
	default:
		return "", "", false
	}

	if parts[1] == "" {
		return "", "", false
	}

	return parts[1], parts[2], true
}

// stateMessage is the subset of the periodic STATE payload we report on.
type stateMessage struct {
	Uptime string `json:"Uptime"`
	Wifi   struct {
		RSSI int `json:"RSSI"`
	} `json:"Wifi"`
}

// firmwareMessage is the subset of the STATUS2 payload we report on.
type firmwareMessage struct {
	StatusFWR struct {
		Version string `json:"Version"`
	} `json:"StatusFWR"`
}
