// Package config loads daemon configuration from defaults, an optional YAML
// file and FRIDGE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/fridge-sensor/internal/dht"
	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/lcd"
	"github.com/sweeney/fridge-sensor/internal/scheduler"
	"github.com/sweeney/fridge-sensor/internal/upload"
)

// EnvPrefix prefixes every environment override, e.g. FRIDGE_MQTT_BROKER.
const EnvPrefix = "FRIDGE"

// DefaultSearchPath is where the daemon looks for config.yaml when no
// --config flag is given.
const DefaultSearchPath = "/etc/fridge-sensor"

// Config holds all configuration for the daemon. It is static after start.
type Config struct {
	Interval  time.Duration `mapstructure:"interval"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	Sensor    SensorConfig  `mapstructure:"sensor"`
	LCD       LCDConfig     `mapstructure:"lcd"`
	Upload    UploadConfig  `mapstructure:"upload"`
	MQTT      MQTTConfig    `mapstructure:"mqtt"`
	HTTP      HTTPConfig    `mapstructure:"http"`
}

// SensorConfig holds the GPIO wiring and protocol timing.
type SensorConfig struct {
	Chip             string        `mapstructure:"chip"`
	PinRefrigerator  int           `mapstructure:"pin_refrigerator"`
	PinFreezer       int           `mapstructure:"pin_freezer"`
	Threshold        time.Duration `mapstructure:"threshold"`
	Wake             time.Duration `mapstructure:"wake"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	BitStartTimeout  time.Duration `mapstructure:"bit_start_timeout"`
	BitMaxWidth      time.Duration `mapstructure:"bit_max_width"`
}

// LCDConfig holds the I2C display settings.
type LCDConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bus     string `mapstructure:"bus"` // "" = first available
	Address int    `mapstructure:"address"`
}

// UploadConfig holds the HTTP collector settings. An empty Endpoint disables
// uploads.
type UploadConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TripAfter int           `mapstructure:"trip_after"`
	OpenFor   time.Duration `mapstructure:"open_for"`
}

// MQTTConfig holds the broker settings. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ConnectWait time.Duration `mapstructure:"connect_wait"`
	// WSBroker is the websocket URL the status page uses for live updates:
	// "=broker" derives ws://host:9001 from Broker, "" disables.
	WSBroker string `mapstructure:"ws_broker"`
}

// HTTPConfig holds the status server settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	t := dht.DefaultTiming()
	return Config{
		Interval:  scheduler.DefaultInterval,
		Heartbeat: 15 * time.Minute,
		Sensor: SensorConfig{
			Chip:             "gpiochip0",
			PinRefrigerator:  gpio.DefaultPinRefrigerator,
			PinFreezer:       gpio.DefaultPinFreezer,
			Threshold:        t.Threshold,
			Wake:             t.Wake,
			HandshakeTimeout: t.HandshakeTimeout,
			BitStartTimeout:  t.BitStartTimeout,
			BitMaxWidth:      t.BitMaxWidth,
		},
		LCD: LCDConfig{
			Enabled: true,
			Address: lcd.DefaultAddress,
		},
		Upload: UploadConfig{
			Timeout:   3 * time.Second,
			TripAfter: 3,
			OpenFor:   60 * time.Second,
		},
		MQTT: MQTTConfig{
			ConnectWait: 30 * time.Second,
			WSBroker:    "=broker",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads configuration. path may name a YAML file or a directory holding
// config.yaml; when empty, DefaultSearchPath and the working directory are
// searched. A directory without config.yaml falls back to defaults; a named
// file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	switch {
	case path == "":
		v.AddConfigPath(DefaultSearchPath)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	case isDir(path):
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	default:
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("config: no config file found, using defaults and environment")
	} else {
		log.Printf("config: loaded %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("interval", d.Interval)
	v.SetDefault("heartbeat", d.Heartbeat)

	v.SetDefault("sensor.chip", d.Sensor.Chip)
	v.SetDefault("sensor.pin_refrigerator", d.Sensor.PinRefrigerator)
	v.SetDefault("sensor.pin_freezer", d.Sensor.PinFreezer)
	v.SetDefault("sensor.threshold", d.Sensor.Threshold)
	v.SetDefault("sensor.wake", d.Sensor.Wake)
	v.SetDefault("sensor.handshake_timeout", d.Sensor.HandshakeTimeout)
	v.SetDefault("sensor.bit_start_timeout", d.Sensor.BitStartTimeout)
	v.SetDefault("sensor.bit_max_width", d.Sensor.BitMaxWidth)

	v.SetDefault("lcd.enabled", d.LCD.Enabled)
	v.SetDefault("lcd.bus", d.LCD.Bus)
	v.SetDefault("lcd.address", d.LCD.Address)

	v.SetDefault("upload.endpoint", d.Upload.Endpoint)
	v.SetDefault("upload.timeout", d.Upload.Timeout)
	v.SetDefault("upload.trip_after", d.Upload.TripAfter)
	v.SetDefault("upload.open_for", d.Upload.OpenFor)

	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.connect_wait", d.MQTT.ConnectWait)
	v.SetDefault("mqtt.ws_broker", d.MQTT.WSBroker)

	v.SetDefault("http.addr", d.HTTP.Addr)
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.Sensor.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("sensor.threshold must be positive, got %v", c.Sensor.Threshold))
	}
	if c.Sensor.BitMaxWidth > 0 && c.Sensor.Threshold >= c.Sensor.BitMaxWidth {
		errs = append(errs, fmt.Errorf("sensor.threshold %v must be below sensor.bit_max_width %v", c.Sensor.Threshold, c.Sensor.BitMaxWidth))
	}
	if c.Sensor.PinRefrigerator < 0 || c.Sensor.PinFreezer < 0 {
		errs = append(errs, fmt.Errorf("sensor pins must not be negative"))
	}
	if c.Sensor.PinRefrigerator == c.Sensor.PinFreezer {
		errs = append(errs, fmt.Errorf("sensor.pin_refrigerator and sensor.pin_freezer must differ, both %d", c.Sensor.PinFreezer))
	}
	if c.LCD.Address < 0 || c.LCD.Address > 0x7f {
		errs = append(errs, fmt.Errorf("lcd.address %#x is not a 7-bit I2C address", c.LCD.Address))
	}
	if c.MQTT.Broker != "" && c.MQTT.ConnectWait <= 0 {
		errs = append(errs, fmt.Errorf("mqtt.connect_wait must be positive when mqtt.broker is set, got %v", c.MQTT.ConnectWait))
	}
	if c.Upload.TripAfter < 1 {
		errs = append(errs, fmt.Errorf("upload.trip_after must be at least 1, got %d", c.Upload.TripAfter))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Timing converts the sensor settings to decoder timing.
func (c *Config) Timing() dht.Timing {
	return dht.Timing{
		Wake:             c.Sensor.Wake,
		HandshakeTimeout: c.Sensor.HandshakeTimeout,
		BitStartTimeout:  c.Sensor.BitStartTimeout,
		BitMaxWidth:      c.Sensor.BitMaxWidth,
		Threshold:        c.Sensor.Threshold,
	}
}

// UploadClient converts the upload settings to client settings.
func (c *Config) UploadClient() upload.Config {
	return upload.Config{
		Endpoint:  c.Upload.Endpoint,
		Timeout:   c.Upload.Timeout,
		TripAfter: uint32(c.Upload.TripAfter),
		OpenFor:   c.Upload.OpenFor,
	}
}
