package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/atlink/esp"
	"i4.energy/across/atlink/httpmsg"
	"i4.energy/across/atlink/modem"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Serve accepts POST /fetch requests and forwards each one over the modem's
TCP link, one at a time. GET /healthz reports liveness.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			m, stop, err := a.openModem(ctx)
			if err != nil {
				return err
			}
			defer stop()

			httpServer := &http.Server{
				Addr: a.config.BindAddress,
				Handler: &Server{
					Logger:         a.logger.With("component", "server"),
					Modem:          m,
					RequestTimeout: a.config.RequestTimeout,
				},
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("Starting HTTP server", "address", httpServer.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			select {
			case err := <-errc:
				return fmt.Errorf("HTTP server failed: %w", err)
			case <-ctx.Done():
				a.logger.Info("Received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			a.logger.Info("Closing HTTP server")
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var (
		method  string
		headers []string
		data    string
	)
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch an http:// URL through the modem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, req, err := requestFromURL(args[0], method, headers, data)
			if err != nil {
				return err
			}

			m, stop, err := a.openModem(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.config.RequestTimeout)
			defer cancel()

			artifacts, err := m.Do(ctx, modem.NewSequence("fetch "+target.String(), esp.Fetch(target, req), nil))
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", args[0], err)
			}
			result, err := esp.ResultFrom(artifacts)
			if err != nil {
				return err
			}
			return a.formatter.Format(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, `extra header as "Key: Value", repeatable`)
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a YAML command script and print the captured artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			script, err := esp.LoadScript(f)
			f.Close()
			if err != nil {
				return err
			}

			m, stop, err := a.openModem(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.config.RequestTimeout)
			defer cancel()

			artifacts, err := m.Do(ctx, script.Sequence(nil))
			if err != nil {
				return fmt.Errorf("script %q failed: %w", script.Name, err)
			}
			return a.formatter.Format(cmd.OutOrStdout(), map[string]string(artifacts))
		},
	}
}

// requestFromURL builds the fetch target and request for an http:// URL.
func requestFromURL(rawURL, method string, headers []string, body string) (esp.Target, *httpmsg.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return esp.Target{}, nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" {
		return esp.Target{}, nil, fmt.Errorf("unsupported scheme %q, only http is available over the modem", u.Scheme)
	}
	if u.Hostname() == "" {
		return esp.Target{}, nil, errors.New("url has no host")
	}

	port := 80
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return esp.Target{}, nil, fmt.Errorf("invalid port %q", p)
		}
	}

	var extra []httpmsg.Header
	for _, h := range headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return esp.Target{}, nil, fmt.Errorf("invalid header %q, want \"Key: Value\"", h)
		}
		extra = append(extra, httpmsg.Header{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}

	target := esp.Target{Host: u.Hostname(), Port: port}
	host := u.Hostname()
	if u.Port() != "" {
		host = net.JoinHostPort(u.Hostname(), u.Port())
	}
	return target, newRequest(method, u.RequestURI(), host, extra, body), nil
}

// newRequest adds Connection: close, and Content-Length when a body is
// present and the caller did not set one.
func newRequest(method, path, host string, headers []httpmsg.Header, body string) *httpmsg.Request {
	if method == "" {
		method = http.MethodGet
	}
	if path == "" {
		path = "/"
	}
	req := httpmsg.NewRequest(strings.ToUpper(method), path, host)

	hasLength, hasConnection := false, false
	for _, h := range headers {
		req.AddHeader(h.Key, h.Value)
		hasLength = hasLength || strings.EqualFold(h.Key, "Content-Length")
		hasConnection = hasConnection || strings.EqualFold(h.Key, "Connection")
	}
	if !hasConnection {
		req.AddHeader("Connection", "close")
	}
	if body != "" {
		if !hasLength {
			req.AddHeader("Content-Length", strconv.Itoa(len(body)))
		}
		req.Body = []byte(body)
	}
	return req
}
