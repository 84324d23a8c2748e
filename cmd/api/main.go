package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"drivebridge/common"
	"drivebridge/internal/cache"
	"drivebridge/internal/models"
	"drivebridge/internal/pipeline"
)

type server struct {
	prod  pipeline.JobProducer
	store cache.StatusStore
}

func newServer(prod pipeline.JobProducer, store cache.StatusStore) *server {
	return &server{
		prod:  prod,
		store: store,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topic := common.GetEnv("KAFKA_JOBS_TOPIC", "drivebridge.index.jobs")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")

	prod := pipeline.NewProducer(broker, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	statusStore := cache.NewRedisStatusStore(redisAddr, "index:status:", 24*time.Hour)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	srv := newServer(prod, statusStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/shares", srv.handleShares)
	mux.HandleFunc("/shares/", srv.handleShareStatus)
	mux.HandleFunc("/metrics", srv.handleMetrics)

	addr := common.GetEnv("API_ADDR", ":8080")
	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleShares accepts POST requests to enqueue a share for indexing.
//
// Method: POST
// Path:   /shares?share_code=...&receive_code=...&cid=...
// Example:
//
//	curl -X POST "http://localhost:8080/shares?share_code=sw3abc1xyz9&receive_code=a1b2"
func (s *server) handleShares(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shareCode := strings.TrimSpace(r.URL.Query().Get("share_code"))
	if shareCode == "" {
		http.Error(w, "missing share_code", http.StatusBadRequest)
		return
	}
	receiveCode := strings.TrimSpace(r.URL.Query().Get("receive_code"))
	rootID := strings.TrimSpace(r.URL.Query().Get("cid"))
	if rootID == "" {
		rootID = "0"
	}

	id := newSessionID()
	createdAt := time.Now().UTC()
	status := models.IndexStatus{
		SessionID: id,
		ShareCode: shareCode,
		Status:    "queued",
		CreatedAt: createdAt,
	}

	job := models.IndexJob{
		SessionID:   id,
		ShareCode:   shareCode,
		ReceiveCode: receiveCode,
		RootID:      rootID,
		CreatedAt:   createdAt,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.prod.WriteJob(ctx, job); err != nil {
		http.Error(w, "failed to enqueue job", http.StatusBadGateway)
		return
	}

	if err := s.store.SetStatus(ctx, status); err != nil {
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}

	writeJSON(w, status, http.StatusAccepted)
}

// handleShareStatus returns status for a previously submitted share.
//
// Method: GET
// Path:   /shares/{sessionID}
// Example:
//
//	curl "http://localhost:8080/shares/20260119120000"
func (s *server) handleShareStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/shares/"), "/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	status, ok, err := s.store.GetStatus(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, status, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
//
// Method: GET
// Path:   /metrics
// Example:
//
//	curl "http://localhost:8080/metrics"
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("drivebridge_api_up 1\n"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func newSessionID() string {
	return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
}
