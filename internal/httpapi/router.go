// Package httpapi serves health, status and metrics for the running desk.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quailyquaily/chipdesk/supervisor"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store       Pinger
	Maintenance func() bool
	Workers     func() []supervisor.Status
	QueueLength func() int
}

type statusResponse struct {
	Maintenance bool                `json:"maintenance"`
	QueueLength int                 `json:"queue_length"`
	Watchers    []supervisor.Status `json:"watchers"`
}

func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", d.health).Methods(http.MethodGet)
	r.HandleFunc("/status", d.status).Methods(http.MethodGet)
	return r
}

func (d Deps) health(w http.ResponseWriter, r *http.Request) {
	if d.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (d Deps) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Watchers: []supervisor.Status{}}
	if d.Maintenance != nil {
		resp.Maintenance = d.Maintenance()
	}
	if d.QueueLength != nil {
		resp.QueueLength = d.QueueLength()
	}
	if d.Workers != nil {
		if ws := d.Workers(); ws != nil {
			resp.Watchers = ws
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
