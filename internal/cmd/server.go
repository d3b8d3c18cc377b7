package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// Register gateway routes (WebSocket and REST)
	services.Gateway.RegisterRoutes(mux)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Add service info
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(services.Gateway.GetStats()); err != nil {
			log.Error().Err(err).Msg("failed to encode service info")
		}
	})

	// Expose Prometheus scrape endpoint when telemetry is enabled
	if services.promHandler != nil {
		mux.Handle("/metrics", services.promHandler)
	}

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server. Write timeout stays unset because WebSocket
	// connections outlive any sane response deadline.
	return &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout: 0,
		IdleTimeout: 120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
