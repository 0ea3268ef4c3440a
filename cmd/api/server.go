package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kimland-sync/internal/types"
	"kimland-sync/syncer"
)

// Syncer is the part of the orchestrator the server drives
type Syncer interface {
	SyncProductInventory(ctx context.Context, identifier string, localProductID int64, catalog types.CatalogClient, displayName string) types.SyncResult
	SyncBatch(ctx context.Context, items []types.BatchItem, progress chan<- types.ProgressEvent) types.BatchSummary
}

// SyncRequest is the body of POST /sync
type SyncRequest struct {
	SKU       string `json:"sku"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
}

// BatchRequest is the body of POST /sync/batch. All takes every catalog product with a reference.
type BatchRequest struct {
	Items []types.BatchItem `json:"items"`
	All   bool              `json:"all"`
}

// APIResponse wraps every non-streamed response
type APIResponse struct {
	Success bool              `json:"success"`
	Data    *types.SyncResult `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Server exposes the sync pipeline over HTTP
type Server struct {
	logger  types.Logger
	syncer  Syncer
	catalog types.CatalogClient
}

// NewServer creates a new API server
func NewServer(logger types.Logger, s Syncer, catalog types.CatalogClient) *Server {
	return &Server{
		logger:  logger,
		syncer:  s,
		catalog: catalog,
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Post("/sync", s.handleSync)
	r.Post("/sync/batch", s.handleBatch)
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.SKU = strings.TrimSpace(req.SKU)
	if req.SKU == "" || req.ProductID == 0 {
		s.sendError(w, "sku and product_id are required", http.StatusBadRequest)
		return
	}

	s.logger.Infof("Sync request for %s (product %d)", req.SKU, req.ProductID)
	result := s.syncer.SyncProductInventory(r.Context(), req.SKU, req.ProductID, s.catalog, req.Name)

	status := http.StatusOK
	switch result.Status {
	case types.StatusNotFound:
		status = http.StatusNotFound
	case types.StatusError:
		status = http.StatusBadGateway
	}
	s.send(w, APIResponse{
		Success: result.Status == types.StatusSuccess,
		Data:    &result,
		Error:   result.ErrorMessage,
	}, status)
}

// handleBatch streams one JSON progress event per line. A client disconnect cancels the batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	items := req.Items
	if req.All {
		var err error
		if items, err = syncer.CatalogItems(r.Context(), s.catalog, s.logger); err != nil {
			s.sendError(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
	if len(items) == 0 {
		s.sendError(w, "No items provided", http.StatusBadRequest)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	events := make(chan types.ProgressEvent)
	go func() {
		s.syncer.SyncBatch(r.Context(), items, events)
		close(events)
	}()

	enc := json.NewEncoder(w)
	for ev := range events {
		// keep draining after a write error so the batch can stop cleanly
		if err := enc.Encode(ev); err != nil {
			s.logger.Debugf("Failed to write progress event: %v", err)
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) send(w http.ResponseWriter, response APIResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.send(w, APIResponse{Success: false, Error: message}, statusCode)
}

// Serve accepts connections on ln until ctx is done, then shuts srv down. It returns once
// Shutdown has finished, so requests still running (a batch finishing its current item)
// are done before the caller releases what they use.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
