// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
	"github.com/icewatch/icewatch/internal/models"
	"github.com/icewatch/icewatch/internal/notify"
	"github.com/icewatch/icewatch/internal/websocket"
)

var startTime = time.Now()

// requestID tags each request with an ID for log correlation, echoed
// back in the X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// requestMetrics records per-route request counts.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// healthLive reports process liveness only.
func (s *Server) healthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// healthReady reports readiness: the store must answer. Degraded
// extraction is reported but does not fail the probe; the pipeline
// still functions on gazetteer matching alone.
func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("readiness probe failed store ping")
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"store":  err.Error(),
		})
		return
	}

	body := map[string]any{"status": "ok"}
	if s.degraded != nil && s.degraded() {
		body["extraction"] = "degraded"
	}
	respondJSON(w, http.StatusOK, body)
}

// clusterView is the read-only representation of a cluster.
type clusterView struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Location       string    `json:"location"`
	Confidence     float64   `json:"confidence"`
	ConfidenceBand string    `json:"confidence_band"`
	ReportCount    int       `json:"report_count"`
	SourceCount    int       `json:"source_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastUpdated    time.Time `json:"last_updated"`
	Lat            *float64  `json:"lat,omitempty"`
	Lon            *float64  `json:"lon,omitempty"`
	AlertsEmitted  int       `json:"alerts_emitted"`
}

func newClusterView(cl *models.Cluster) clusterView {
	v := clusterView{
		ID:             cl.ID,
		State:          string(cl.State),
		Location:       cl.Label,
		Confidence:     cl.Confidence,
		ConfidenceBand: notify.Band(cl.Confidence),
		ReportCount:    len(cl.Members),
		SourceCount:    cl.SourceDiversity(),
		FirstSeen:      cl.FirstSeen,
		LastUpdated:    cl.LastUpdated,
		AlertsEmitted:  len(cl.AlertsEmitted),
	}
	if v.Location == "" {
		v.Location = "Minneapolis area"
	}
	if cl.HasCentroid {
		lat, lon := cl.CentroidLat, cl.CentroidLon
		v.Lat, v.Lon = &lat, &lon
	}
	return v
}

// clusters lists active clusters from the store.
func (s *Server) clusters(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.ActiveClusters(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("cluster listing failed")
		respondError(w, http.StatusInternalServerError, "cluster listing failed")
		return
	}

	views := make([]clusterView, 0, len(active))
	for _, cl := range active {
		views = append(views, newClusterView(cl))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"clusters": views,
		"count":    len(views),
	})
}

// status summarizes the running process for operators.
func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ReportCount(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("status query failed")
		respondError(w, http.StatusInternalServerError, "status query failed")
		return
	}

	body := map[string]any{
		"uptime_seconds":  int64(time.Since(startTime).Seconds()),
		"reports_stored":  reports,
		"ws_subscribers":  s.hub.ClientCount(),
		"extraction_mode": "full",
	}
	if s.degraded != nil && s.degraded() {
		body["extraction_mode"] = "degraded"
	}
	respondJSON(w, http.StatusOK, body)
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	// The feed carries no client-specific state and the deployment sits
	// behind an operator-controlled reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// alertFeed upgrades the connection and subscribes it to the hub.
func (s *Server) alertFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(s.hub, conn)
	s.hub.Register <- client
	client.Start()
}
