package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/anchorsync"
	"github.com/himanishpuri/AnchorSync/pkg/logger"
	"github.com/himanishpuri/AnchorSync/pkg/utils"
)

// maxBodyBytes bounds request bodies accepted by the registry.
const maxBodyBytes = 1 << 20

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	store  anchorsync.Storage
	config *ServerConfig
	log    anchorsync.Logger
	now    func() time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	Expiration     time.Duration
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(store anchorsync.Storage, config *ServerConfig) *Server {
	return &Server{
		store:  store,
		config: config,
		log:    logger.GetLogger(),
		now:    time.Now,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "AnchorSync Registry API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"metrics":      "GET /api/health/metrics",
			"anchors":      "GET /api/anchors",
			"createAnchor": "POST /api/anchors",
			"purge":        "POST /api/anchors/purge",
			"getAnchor":    "GET /api/anchors/{id}",
			"deleteAnchor": "DELETE /api/anchors/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountAnchors()
	if err != nil {
		s.log.Errorf("Failed to count anchors: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}
	anchors, err := s.store.ListAnchors()
	if err != nil {
		s.log.Errorf("Failed to list anchors: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	now := s.now()
	expired := 0
	for i := range anchors {
		if anchors[i].Expired(now) {
			expired++
		}
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		AnchorCount:  count,
		ExpiredCount: expired,
	})
}

// handleListAnchors handles GET /api/anchors
func (s *Server) handleListAnchors(w http.ResponseWriter, r *http.Request) {
	anchors, err := s.store.ListAnchors()
	if err != nil {
		s.log.Errorf("Failed to list anchors: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve anchors")
		return
	}

	now := s.now()
	dtos := make([]AnchorDTO, len(anchors))
	for i, a := range anchors {
		dtos[i] = newAnchorDTO(a, now)
	}

	s.respondJSON(w, http.StatusOK, ListAnchorsResponse{
		Anchors: dtos,
		Count:   len(dtos),
	})
}

// handleCreateAnchor handles POST /api/anchors
func (s *Server) handleCreateAnchor(w http.ResponseWriter, r *http.Request) {
	var req CreateAnchorRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID != "" && !utils.IsUUID(req.ID) {
		s.respondError(w, http.StatusBadRequest, "id must be a UUID")
		return
	}

	rec, err := s.store.CreateAnchor(req.Record(s.now(), s.config.Expiration))
	if err != nil {
		s.log.Errorf("Failed to create anchor: %v", err)
		s.respondError(w, http.StatusConflict, "Failed to create anchor")
		return
	}

	s.log.Infof("Registered anchor %s at %s", rec.ID, rec.Pose)
	s.respondJSON(w, http.StatusCreated, newAnchorDTO(rec, s.now()))
}

// handleGetAnchor handles GET /api/anchors/{id}
func (s *Server) handleGetAnchor(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.store.GetAnchor(id)
	if err != nil {
		if anchorsync.IsNotFound(err) {
			s.log.Warnf("Anchor not found: %s", id)
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Anchor with ID %s not found", id))
			return
		}
		s.log.Errorf("Failed to get anchor %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve anchor")
		return
	}

	s.respondJSON(w, http.StatusOK, newAnchorDTO(*rec, s.now()))
}

// handleDeleteAnchor handles DELETE /api/anchors/{id}
func (s *Server) handleDeleteAnchor(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.store.DeleteAnchor(id); err != nil {
		if anchorsync.IsNotFound(err) {
			s.log.Warnf("Anchor not found for deletion: %s", id)
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Anchor with ID %s not found", id))
			return
		}
		s.log.Errorf("Failed to delete anchor %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete anchor")
		return
	}

	s.log.Infof("Deleted anchor %s", id)
	s.respondJSON(w, http.StatusOK, DeleteAnchorResponse{
		Message: "Anchor deleted successfully",
		ID:      id,
	})
}

// handlePurge handles POST /api/anchors/purge
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.PurgeExpired()
	if err != nil {
		s.log.Errorf("Failed to purge anchors: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to purge anchors")
		return
	}

	s.log.Infof("Purged %d expired anchors", removed)
	s.respondJSON(w, http.StatusOK, PurgeResponse{
		Message: "Expired anchors removed",
		Removed: removed,
	})
}

// handleAnchors routes requests to /api/anchors
func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListAnchors(w, r)
	case http.MethodPost:
		s.handleCreateAnchor(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAnchor routes requests to /api/anchors/{id}
func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/anchors/")
	if id == "" || strings.Contains(id, "/") {
		s.respondError(w, http.StatusBadRequest, "Anchor ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetAnchor(w, r, id)
	case http.MethodDelete:
		s.handleDeleteAnchor(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handlePurgeRoute routes requests to /api/anchors/purge
func (s *Server) handlePurgeRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handlePurge(w, r)
}
