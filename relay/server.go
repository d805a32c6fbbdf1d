// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perety/airwave/radio"
)

// AudioConfigStore persists per-user audio preferences. Implemented by
// the store package.
type AudioConfigStore interface {
	AudioConfig(ctx context.Context, user string) (radio.AudioConfig, error)
	SaveAudioConfig(ctx context.Context, user string, config radio.AudioConfig) error
}

// Server exposes the relay over HTTP: the websocket signaling
// endpoint, audio-config persistence, and metrics.
type Server struct {
	hub          *Hub
	metrics      *Metrics
	audio        AudioConfigStore
	pingInterval time.Duration
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

// NewServer wires the HTTP surface over a running hub. pingInterval
// paces websocket keepalives; zero picks the default.
func NewServer(hub *Hub, metrics *Metrics, audio AudioConfigStore, pingInterval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		hub:          hub,
		metrics:      metrics,
		audio:        audio,
		pingInterval: pingInterval,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/audio-config", s.handleAudioConfig)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user", user, "error", err)
		return
	}

	station := newClient(user, s.hub, conn, s.pingInterval, s.logger)
	select {
	case s.hub.register <- station:
	case <-s.hub.done:
		conn.Close()
		return
	}
	go station.writePump()
	go station.readPump()
}

func (s *Server) handleAudioConfig(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		config, err := s.audio.AudioConfig(r.Context(), user)
		if err != nil {
			s.logger.Error("audio config load failed", "user", user, "error", err)
			http.Error(w, "load failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(config)

	case http.MethodPut:
		var config radio.AudioConfig
		if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
			http.Error(w, "bad audio config", http.StatusBadRequest)
			return
		}
		if config.OutputVolume < 0 || config.OutputVolume > 1 ||
			config.VoiceThreshold < 0 || config.VoiceThreshold > 1 {
			http.Error(w, "levels must be within [0, 1]", http.StatusBadRequest)
			return
		}
		if err := s.audio.SaveAudioConfig(r.Context(), user, config); err != nil {
			s.logger.Error("audio config save failed", "user", user, "error", err)
			http.Error(w, "save failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
