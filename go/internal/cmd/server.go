package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcdev12/arena/go/internal/config"
	"github.com/mcdev12/arena/go/internal/match/gateway"
	"github.com/mcdev12/arena/go/internal/match/outbox"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	newMatchAPI(services.Runner).RegisterRoutes(mux)
	gateway.NewWebSocketHandler(services.Gateway).RegisterRoutes(mux)
	setupHealthCheck(mux, services)

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type healthResponse struct {
	Status      string                  `json:"status"`
	Store       string                  `json:"store"`
	NATS        string                  `json:"nats"`
	Relay       *outbox.CounterSnapshot `json:"relay,omitempty"`
	Connections gateway.ConnectionStats `json:"connections"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:      "ok",
			Store:       "ok",
			NATS:        "disabled",
			Connections: services.Gateway.Stats(),
		}
		status := http.StatusOK

		if err := services.Store.Ping(ctx); err != nil {
			resp.Store = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		if services.Publisher != nil {
			resp.NATS = string(services.Monitor.State())
			if !services.Publisher.Connected() {
				resp.Status = "degraded"
			}
		}
		if services.Counters != nil {
			snap := services.Counters.Snapshot()
			resp.Relay = &snap
		}

		writeJSON(w, status, resp)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
