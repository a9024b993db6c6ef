package modem

import (
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval spaces Driver polls during an active transfer.
	DefaultPollInterval = 15 * time.Millisecond
	// DefaultTickInterval is how often Modem.Loop calls Driver.Poll.
	DefaultTickInterval = 5 * time.Millisecond
	// DefaultInitTimeout bounds the init commands run by New.
	DefaultInitTimeout = 30 * time.Second
)

// Config holds the settings of a Driver and of the Modem wrapping it.
// Build one with NewConfigBuilder, or fill the fields directly; zero values
// are replaced with defaults.
type Config struct {
	Dialer Dialer
	Clock  Clock
	Logger *slog.Logger

	// PollInterval is the minimum time between two Driver steps.
	PollInterval time.Duration
	// TickInterval is the period at which Modem.Loop polls the Driver.
	TickInterval time.Duration
	// CommandTimeout applies to commands that declare no Timeout of their
	// own. Zero leaves such commands unbounded.
	CommandTimeout time.Duration
	// QueueLimit caps the pending queue. Zero means unbounded.
	QueueLimit int

	// Init is run by New before it returns, bounded by InitTimeout.
	Init        []Command
	InitTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = DefaultInitTimeout
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no settings applied.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.Clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithTickInterval(d time.Duration) *ConfigBuilder {
	b.config.TickInterval = d
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithQueueLimit(n int) *ConfigBuilder {
	b.config.QueueLimit = n
	return b
}

// WithInit sets commands that New runs before returning, such as a reset
// and echo-off pair.
func (b *ConfigBuilder) WithInit(cmds ...Command) *ConfigBuilder {
	b.config.Init = append([]Command(nil), cmds...)
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
