package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bidding/internal/campaign"
)

type health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewAdminRouter serves /healthz and /metrics on the admin listener. The
// health check pings the store when it is backed by a remote service.
func NewAdminRouter(reg *prometheus.Registry, store campaign.Store) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthz(store)).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	return r
}

func healthz(store campaign.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pinger, ok := store.(campaign.Pinger)
		if !ok {
			json.NewEncoder(w).Encode(health{Status: "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(health{Status: "unavailable", Error: err.Error()})

			return
		}

		json.NewEncoder(w).Encode(health{Status: "ok"})
	}
}
