// Package config loads the piradio YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/germanamz/piradio/pkg/commandclient"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/germanamz/piradio/pkg/reconciler"
	"github.com/germanamz/piradio/pkg/session"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that points at the config file.
const EnvPath = "PIRADIO_CONFIG"

// DefaultPath is used when neither a flag nor EnvPath names a file.
const DefaultPath = "piradio.yaml"

// Config is the top-level piradio configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Controls   ControlsConfig   `yaml:"controls"`
	Logger     logger.Config    `yaml:"logger"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Notify     NotifyConfig     `yaml:"notify"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// ConnectionConfig describes how to reach the device.
type ConnectionConfig struct {
	Address    string `yaml:"address"`
	APIKey     string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	AuthHeader string `yaml:"auth_header"`
	AuthScheme string `yaml:"auth_scheme"`
	PushPath   string `yaml:"push_path"`
	Timeout    string `yaml:"timeout"` // Duration string, e.g. "10s".
}

// ControlsConfig tunes command behaviour.
type ControlsConfig struct {
	VolumeStep    int    `yaml:"volume_step"`
	CatalogPolicy string `yaml:"catalog_policy"` // push_confirmed or optimistic.
	Poll          string `yaml:"poll"`           // Status poll interval; empty disables polling.
}

// MQTTConfig holds the MQTT bridge settings.
type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"` //nolint:gosec // configuration field, not a hardcoded secret
	StateTopic   string `yaml:"state_topic"`
	CommandTopic string `yaml:"command_topic"`
}

// NotifyConfig holds desktop notification settings.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
	Icon    string `yaml:"icon"`
}

// BridgeConfig holds settings for the headless bridge process.
type BridgeConfig struct {
	PIDFile string `yaml:"pid_file"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			AuthHeader: commandclient.DefaultAuthHeader,
			Timeout:    commandclient.DefaultTimeout.String(),
		},
		Controls: ControlsConfig{
			VolumeStep:    reconciler.DefaultVolumeStep,
			CatalogPolicy: reconciler.PushConfirmed.String(),
		},
		Logger: logger.Config{
			Level: "info",
		},
		MQTT: MQTTConfig{
			Host:         "localhost",
			Port:         1883,
			ClientID:     "piradio",
			StateTopic:   "piradio/state",
			CommandTopic: "piradio/command",
		},
		Notify: NotifyConfig{
			Title: "piradio",
		},
		Bridge: BridgeConfig{
			PIDFile: "/tmp/piradio.pid",
		},
	}
}

// LoadConfig reads a YAML file on top of Default.
// Environment variables referenced as ${VAR} or $VAR are expanded before
// parsing, so the API key and broker password can live in the environment
// (e.g. loaded from a .env file).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML on top of Default.
func Parse(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent. An empty
// address is allowed: the terminal UI asks for one.
func (c Config) Validate() error {
	if c.Connection.Address != "" {
		if err := c.Radio().Validate(); err != nil {
			return fmt.Errorf("config: connection: %w", err)
		}
	}

	if _, err := c.Connection.TimeoutDuration(); err != nil {
		return err
	}

	if c.Controls.VolumeStep < 1 || c.Controls.VolumeStep > radio.MaxVolume {
		return fmt.Errorf("config: controls: volume_step must be between 1 and %d", radio.MaxVolume)
	}

	if _, err := reconciler.ParseCatalogPolicy(c.Controls.CatalogPolicy); err != nil {
		return fmt.Errorf("config: controls: %w", err)
	}

	if _, err := c.Controls.PollInterval(); err != nil {
		return err
	}

	if _, err := zerolog.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("config: logger: %w", err)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			return fmt.Errorf("config: mqtt: host is required")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("config: mqtt: invalid port %d", c.MQTT.Port)
		}
		if c.MQTT.StateTopic == "" || c.MQTT.CommandTopic == "" {
			return fmt.Errorf("config: mqtt: state_topic and command_topic are required")
		}
		if c.MQTT.StateTopic == c.MQTT.CommandTopic {
			return fmt.Errorf("config: mqtt: state_topic and command_topic must differ")
		}
	}

	return nil
}

// Radio returns the connection config for the session manager.
func (c Config) Radio() radio.ConnectionConfig {
	return radio.ConnectionConfig{
		Address:    c.Connection.Address,
		Credential: c.Connection.APIKey,
	}
}

// TimeoutDuration parses the request timeout. Empty means the client default.
func (c ConnectionConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: connection: timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: connection: timeout must not be negative")
	}

	return d, nil
}

// PollInterval parses the status poll interval. Zero disables polling.
func (c ControlsConfig) PollInterval() (time.Duration, error) {
	if c.Poll == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Poll)
	if err != nil {
		return 0, fmt.Errorf("config: controls: poll: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: controls: poll must not be negative")
	}

	return d, nil
}

// BrokerURL returns the MQTT broker address in the form paho expects.
func (c MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// SessionOptions builds session.Options from a validated config.
func (c Config) SessionOptions(log *zerolog.Logger) (session.Options, error) {
	timeout, err := c.Connection.TimeoutDuration()
	if err != nil {
		return session.Options{}, err
	}

	policy, err := reconciler.ParseCatalogPolicy(c.Controls.CatalogPolicy)
	if err != nil {
		return session.Options{}, fmt.Errorf("config: controls: %w", err)
	}

	return session.Options{
		Auth: commandclient.Auth{
			Header: c.Connection.AuthHeader,
			Scheme: c.Connection.AuthScheme,
		},
		Timeout:       timeout,
		PushPath:      c.Connection.PushPath,
		VolumeStep:    c.Controls.VolumeStep,
		CatalogPolicy: policy,
		Logger:        log,
	}, nil
}

// ResolvePath picks the config file: the flag value, then $PIRADIO_CONFIG,
// then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if p := os.Getenv(EnvPath); p != "" {
		return p
	}

	return DefaultPath
}
