package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"i4.energy/across/atlink/modem"
	"i4.energy/across/atlink/observability"
	"i4.energy/across/atlink/output"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the gateway listens on (e.g. "0.0.0.0:8080")
	BindAddress string `mapstructure:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `mapstructure:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `mapstructure:"baud_rate"`
	// WiFiSSID is the access point joined after init; empty keeps the
	// association stored in the module
	WiFiSSID string `mapstructure:"wifi_ssid"`
	// WiFiPassword is the access point passphrase
	WiFiPassword string `mapstructure:"wifi_password"`
	// PollInterval is the minimum time between two driver polls
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// CommandTimeout applies to commands that declare no timeout; zero waits forever
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// RequestTimeout bounds one fetch including the queue wait
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// QueueLimit caps sequences waiting for the modem; zero is unbounded
	QueueLimit int `mapstructure:"queue_limit"`
	// Output is the CLI output format (table, json, yaml)
	Output string `mapstructure:"output"`
	// Log configures the process logger
	Log observability.LogConfig `mapstructure:"log"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = modem.DefaultBaudRate
		c.PollInterval = modem.DefaultPollInterval
		c.CommandTimeout = 10 * time.Second
		c.RequestTimeout = 30 * time.Second
		c.QueueLimit = 32
		c.Output = "table"
		c.Log = observability.DefaultLogConfig()
		return nil
	}
}

// WithFile merges a yaml, json or toml file read with viper. Keys missing
// from the file keep their current value. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}

		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	}
}

// WithEnv loads configuration from ATLINK_ prefixed environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("ATLINK_BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("ATLINK_SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("ATLINK_BAUD_RATE"); baud != "" {
			b, err := strconv.Atoi(baud)
			if err != nil {
				return fmt.Errorf("ATLINK_BAUD_RATE: %w", err)
			}
			c.BaudRate = b
		}

		if ssid := os.Getenv("ATLINK_WIFI_SSID"); ssid != "" {
			c.WiFiSSID = ssid
		}

		if password := os.Getenv("ATLINK_WIFI_PASSWORD"); password != "" {
			c.WiFiPassword = password
		}

		if interval := os.Getenv("ATLINK_POLL_INTERVAL"); interval != "" {
			d, err := time.ParseDuration(interval)
			if err != nil {
				return fmt.Errorf("ATLINK_POLL_INTERVAL: %w", err)
			}
			c.PollInterval = d
		}

		if level := os.Getenv("ATLINK_LOG_LEVEL"); level != "" {
			c.Log.Level = level
		}

		return nil
	}
}

// WithFlags loads configuration from the command-line flags that were set
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *pflag.Flag) {
			var ferr error
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				c.BaudRate, ferr = fSet.GetInt(f.Name)
			case "wifi-ssid":
				c.WiFiSSID = f.Value.String()
			case "wifi-password":
				c.WiFiPassword = f.Value.String()
			case "poll-interval":
				c.PollInterval, ferr = fSet.GetDuration(f.Name)
			case "command-timeout":
				c.CommandTimeout, ferr = fSet.GetDuration(f.Name)
			case "request-timeout":
				c.RequestTimeout, ferr = fSet.GetDuration(f.Name)
			case "output":
				c.Output = f.Value.String()
			case "log-level":
				c.Log.Level = f.Value.String()
			case "log-format":
				c.Log.Format = f.Value.String()
			case "log-file":
				c.Log.Outputs = []string{f.Value.String()}
			}
			if ferr != nil && err == nil {
				err = fmt.Errorf("flag --%s: %w", f.Name, ferr)
			}
		})
		return err
	}
}

func (c *Config) validate() error {
	if c.SerialPort == "" {
		return fmt.Errorf("serial port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.CommandTimeout < 0 || c.QueueLimit < 0 {
		return fmt.Errorf("command timeout and queue limit must not be negative")
	}
	if _, err := output.NewFormatter(c.Output); err != nil {
		return err
	}
	return nil
}
