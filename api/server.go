// Package api exposes a small monitor surface over the running sweep:
// queue depth, staged day count, pending and drained results.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"openrange-backtest/cache"
	"openrange-backtest/database"
	"openrange-backtest/realtime"
	"openrange-backtest/tasks"
)

// Progress is one snapshot of the sweep's state.
type Progress struct {
	QueueDepth     int64 `json:"queue_depth"`
	StagedDays     int64 `json:"staged_days"`
	PendingResults int64 `json:"pending_results"`
	DrainedRows    int64 `json:"drained_rows"`
}

// Server handles HTTP monitor requests.
type Server struct {
	broker   *cache.RedisClient
	series   *cache.RedisClient
	queue    *tasks.Queue
	repo     *database.ResultRepository
	rtBroker *realtime.Broker
	upgrader websocket.Upgrader
}

// NewServer creates a monitor server. repo may be nil when this process has
// no durable store credentials; drained counts then read as zero.
func NewServer(broker, series *cache.RedisClient, queue *tasks.Queue, repo *database.ResultRepository, rtBroker *realtime.Broker) *Server {
	return &Server{
		broker:   broker,
		series:   series,
		queue:    queue,
		repo:     repo,
		rtBroker: rtBroker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start serves the monitor endpoints and broadcasts progress snapshots
// until the context is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/progress", s.handleProgress)
	mux.Handle("GET /api/events", s.rtBroker)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go s.broadcastProgress(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Monitor API listening on :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(progress)
}

// handleWebSocket streams progress events to a websocket client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientChan := s.rtBroker.Subscribe()
	defer s.rtBroker.Unsubscribe(clientChan)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) snapshot(ctx context.Context) (Progress, error) {
	var progress Progress
	var err error

	progress.QueueDepth, err = s.queue.Len(ctx)
	if err != nil {
		return progress, fmt.Errorf("queue depth: %w", err)
	}

	stagedKeys, err := s.series.ScanKeys(ctx, "*")
	if err != nil {
		return progress, fmt.Errorf("staged days: %w", err)
	}
	progress.StagedDays = int64(len(stagedKeys))

	pendingKeys, err := s.broker.ScanKeys(ctx, tasks.ResultKeyPrefix+"*")
	if err != nil {
		return progress, fmt.Errorf("pending results: %w", err)
	}
	progress.PendingResults = int64(len(pendingKeys))

	if s.repo != nil {
		progress.DrainedRows, err = s.repo.Count()
		if err != nil {
			return progress, fmt.Errorf("drained rows: %w", err)
		}
	}
	return progress, nil
}

// broadcastProgress pushes a snapshot to monitor clients every few seconds.
func (s *Server) broadcastProgress(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress, err := s.snapshot(ctx)
			if err != nil {
				continue
			}
			s.rtBroker.Broadcast("progress", progress)
		}
	}
}
