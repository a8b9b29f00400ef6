package mqttbridge

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/rs/zerolog"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqttbridge: broker timeout")

// PahoConfig configures a PahoBroker.
type PahoConfig struct {
	BrokerURL string // e.g. tcp://localhost:1883
	ClientID  string
	Username  string
	Password  string //nolint:gosec // configuration field, not a hardcoded secret
	QoS       byte
	Timeout   time.Duration // Connect and per-operation wait (default: 5s).
	Logger    *zerolog.Logger
}

// PahoBroker is a Broker backed by the Eclipse Paho client.
type PahoBroker struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// Dial connects to the broker. The client reconnects on its own after the
// first successful connect.
func Dial(cfg PahoConfig) (*PahoBroker, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	log := logger.Component(logger.OrNop(cfg.Logger), "mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", cfg.BrokerURL).Msg("connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.BrokerURL).Msg("connection lost")
		})

	client := mqtt.NewClient(opts)

	p := &PahoBroker{client: client, qos: cfg.QoS, timeout: timeout}
	if err := p.wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("mqttbridge: connect %s: %w", cfg.BrokerURL, err)
	}

	return p, nil
}

func (p *PahoBroker) wait(t mqtt.Token) error {
	if !t.WaitTimeout(p.timeout) {
		return ErrTimeout
	}
	return t.Error()
}

// Publish sends payload to topic.
func (p *PahoBroker) Publish(topic string, retained bool, payload []byte) error {
	return p.wait(p.client.Publish(topic, p.qos, retained, payload))
}

// Subscribe delivers every message on topic to handler.
func (p *PahoBroker) Subscribe(topic string, handler func(payload []byte)) error {
	return p.wait(p.client.Subscribe(topic, p.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	}))
}

// Unsubscribe stops delivery for topic.
func (p *PahoBroker) Unsubscribe(topic string) error {
	return p.wait(p.client.Unsubscribe(topic))
}

// Close disconnects, giving in-flight work a short grace period.
func (p *PahoBroker) Close() {
	p.client.Disconnect(250)
}
