package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"i4.energy/across/atlink/esp"
	"i4.energy/across/atlink/modem"
	"i4.energy/across/atlink/observability"
	"i4.energy/across/atlink/output"
)

// app is the state shared by all commands, set up in PersistentPreRunE.
type app struct {
	cfgFile string

	config    *Config
	logger    *slog.Logger
	syncLog   func() error
	formatter output.Formatter

	// dial builds the modem dialer; replaced in tests
	dial func(*Config) modem.Dialer
}

func newApp() *app {
	return &app{dial: serialDialer}
}

func serialDialer(c *Config) modem.Dialer {
	return modem.SerialDialer{
		PortName: c.SerialPort,
		Mode: &serial.Mode{
			BaudRate: c.BaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "atlink",
		Short: "Drive an ESP8266 Wi-Fi modem through its AT command interface",
		Long: `atlink talks to an ESP8266 running the AT firmware over a serial port.
It can fetch a URL through the modem, run YAML command scripts and serve a
small HTTP gateway that forwards requests over the modem's TCP link.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.syncLog != nil {
				a.syncLog()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	pf.Int("baud-rate", modem.DefaultBaudRate, "Baud rate for serial communication")
	pf.String("wifi-ssid", "", "Access point to join after init")
	pf.String("wifi-password", "", "Access point passphrase")
	pf.Duration("poll-interval", modem.DefaultPollInterval, "Minimum time between driver polls")
	pf.Duration("command-timeout", 0, "Timeout for commands that declare none (default 10s)")
	pf.Duration("request-timeout", 0, "Timeout for one request (default 30s)")
	pf.StringP("output", "o", "", "output format: table, json, yaml (default \"table\")")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (console, json)")
	pf.String("log-file", "", "Write logs to this file instead of stderr")

	root.AddCommand(newServeCmd(a), newGetCmd(a), newRunCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	config, err := LoadConfig(WithDefaults(), WithFile(a.cfgFile), WithEnv(), WithFlags(cmd.Flags()))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.config = config

	a.logger, a.syncLog, err = observability.NewLogger(config.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.formatter, err = output.NewFormatter(config.Output)
	return err
}

// openModem dials and initializes the modem, starts its event loop and joins
// the configured access point. stop ends the loop and closes the modem.
func (a *app) openModem(ctx context.Context) (m *modem.Modem, stop func(), err error) {
	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(a.dial(a.config)).
		WithLogger(a.logger.With("component", "modem")).
		WithPollInterval(a.config.PollInterval).
		WithCommandTimeout(a.config.CommandTimeout).
		WithQueueLimit(a.config.QueueLimit).
		WithInit(esp.InitCommands()...).
		Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create modem config: %w", err)
	}

	m, err = modem.New(ctx, modemConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create modem: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Loop(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Modem loop failed", "error", err)
		}
	}()
	stop = func() {
		cancel()
		<-done
		if err := m.Close(); err != nil {
			a.logger.Error("Failed to close modem", "error", err)
		}
	}

	if a.config.WiFiSSID != "" {
		artifacts, err := m.Do(ctx, modem.NewSequence("join", esp.Join(a.config.WiFiSSID, a.config.WiFiPassword), nil))
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("failed to join %q: %w", a.config.WiFiSSID, err)
		}
		station := esp.StationFrom(artifacts)
		a.logger.Info("Joined access point", "ssid", a.config.WiFiSSID, "ip", station.IP, "mac", station.MAC)
	}

	return m, stop, nil
}

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
