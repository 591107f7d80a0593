package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/victorjacobs/go-ilightsln/gateway"
)

// Restored state backends.
const (
	StateBackendMQTT   = "mqtt"
	StateBackendSQLite = "sqlite"
)

const defaultDiscoveryTimeout = 5 * time.Second

type Configuration struct {
	Gateway          Gateway  `yaml:"gateway"`
	MQTT             MQTT     `yaml:"mqtt"`
	RefreshFrequency int      `yaml:"refresh_frequency"` // Poll interval in milliseconds
	State            State    `yaml:"state"`
	InfluxDB         InfluxDB `yaml:"influxdb"`
	LogLevel         string   `yaml:"log_level"`
}

type Gateway struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Driver           string        `yaml:"driver"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

type MQTT struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// State selects where restored state is read from.
type State struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"` // SQLite database, sqlite backend only
}

type InfluxDB struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// Default returns the configuration used for keys absent from the file.
func Default() *Configuration {
	return &Configuration{
		Gateway: Gateway{
			Port:             gateway.DefaultPort,
			Driver:           gateway.SimulatedDriver,
			DiscoveryTimeout: defaultDiscoveryTimeout,
		},
		MQTT: MQTT{
			Host:     "localhost",
			Port:     1883,
			ClientID: "ilightsln",
		},
		RefreshFrequency: 2000,
		State: State{
			Backend: StateBackendMQTT,
			Path:    "./ilightsln.db",
		},
		LogLevel: "info",
	}
}

// LoadConfiguration reads a YAML (or JSON) file on top of the defaults, then
// applies environment overrides and validates the result.
func LoadConfiguration(filename string) (*Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Configuration, error) {
	configuration := Default()
	if err := yaml.Unmarshal(data, configuration); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(configuration)

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return configuration, nil
}

// Environment variables follow the pattern ILIGHTSLN_SECTION_KEY.
func applyEnvOverrides(c *Configuration) {
	if v := os.Getenv("ILIGHTSLN_GATEWAY_HOST"); v != "" {
		c.Gateway.Host = v
	}
	if v := os.Getenv("ILIGHTSLN_MQTT_HOST"); v != "" {
		c.MQTT.Host = v
	}
	if v := os.Getenv("ILIGHTSLN_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("ILIGHTSLN_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("ILIGHTSLN_INFLUXDB_TOKEN"); v != "" {
		c.InfluxDB.Token = v
	}
}

// Validate reports every problem with the configuration at once.
func (c *Configuration) Validate() error {
	var errs []string

	if c.Gateway.Host == "" {
		errs = append(errs, "gateway.host is required")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.Driver == "" {
		errs = append(errs, "gateway.driver is required")
	}
	if c.Gateway.DiscoveryTimeout <= 0 {
		errs = append(errs, "gateway.discovery_timeout must be positive")
	}
	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.RefreshFrequency <= 0 {
		errs = append(errs, "refresh_frequency must be positive")
	}

	switch c.State.Backend {
	case StateBackendMQTT:
	case StateBackendSQLite:
		if c.State.Path == "" {
			errs = append(errs, "state.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("state.backend must be %q or %q", StateBackendMQTT, StateBackendSQLite))
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("log_level: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Configuration) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshFrequency) * time.Millisecond
}

func (m *MQTT) ClientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%v:%v", m.Host, m.Port)).
		SetClientID(m.ClientID).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Printf("MQTT reconnecting")
		})
}
