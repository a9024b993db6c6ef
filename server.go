package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"i4.energy/across/atlink/esp"
	"i4.energy/across/atlink/httpmsg"
	"i4.energy/across/atlink/modem"
)

// Server handles incoming HTTP requests and forwards them over the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem
	// RequestTimeout bounds one fetch; zero relies on the client context
	RequestTimeout time.Duration
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /fetch", s.handleFetch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", "error", err)
	}
}

// FetchRequest is the body of POST /fetch.
type FetchRequest struct {
	Host    string            `json:"host"`
	Port    int               `json:"port"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// handleFetch sends one HTTP request through the modem and returns the
// response it captured
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Host == "" {
		s.sendError(w, "'host' field is required", http.StatusBadRequest)
		return
	}
	if req.Port == 0 {
		req.Port = 80
	}
	if req.Port < 0 || req.Port > 65535 {
		s.sendError(w, "'port' must be between 1 and 65535", http.StatusBadRequest)
		return
	}

	// map order is random; send headers sorted
	var headers []httpmsg.Header
	for _, key := range slices.Sorted(maps.Keys(req.Headers)) {
		headers = append(headers, httpmsg.Header{Key: key, Value: req.Headers[key]})
	}
	host := req.Host
	if req.Port != 80 {
		host = net.JoinHostPort(req.Host, strconv.Itoa(req.Port))
	}
	target := esp.Target{Host: req.Host, Port: req.Port}
	message := newRequest(req.Method, req.Path, host, headers, req.Body)

	ctx := r.Context()
	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}

	artifacts, err := s.Modem.Do(ctx, modem.NewSequence("fetch "+target.String(), esp.Fetch(target, message), nil))
	if err != nil {
		s.Logger.Error("Failed to fetch", "error", err, "target", target.String(), "path", message.Path)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	result, err := esp.ResultFrom(artifacts)
	if err != nil {
		s.Logger.Error("Fetch returned no response", "error", err, "target", target.String())
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.Logger.Info("Fetched", "target", target.String(), "path", message.Path, "status", result.Status, "body_length", len(result.Body))
	s.sendJSON(w, result, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// statusFor maps a sequence failure to the gateway status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, modem.ErrModemError), errors.Is(err, modem.ErrWrite):
		return http.StatusBadGateway
	case errors.Is(err, modem.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrQueueFull), errors.Is(err, modem.ErrAlreadyClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
