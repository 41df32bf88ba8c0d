// Package server provides the HTTP intake API.
//
// The API mirrors the chat flow: artifacts and text messages arrive as
// events, bursts settle after a quiet period, and notifications queue up
// for the client to poll.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/invoiceflow/internal/model"
	"github.com/invoiceflow/invoiceflow/pkg/classify"
	"github.com/invoiceflow/invoiceflow/pkg/engine"
	"github.com/invoiceflow/invoiceflow/pkg/notify"
	"github.com/invoiceflow/invoiceflow/pkg/place"
	"github.com/invoiceflow/invoiceflow/pkg/report"
)

// Server handles HTTP requests for event intake and report retrieval.
type Server struct {
	engine   *engine.Engine
	report   *report.XLSXReport
	places   place.Store
	notices  *notify.QueueNotifier
	mux      *http.ServeMux
	tempDir  string
	maxBytes int64
}

// NewServer creates the intake server. Uploaded workbooks are stored under
// tempDir; notices is the queue the engine notifies into.
func NewServer(eng *engine.Engine, rep *report.XLSXReport, places place.Store, notices *notify.QueueNotifier, tempDir string, maxBytes int64) (*Server, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}

	s := &Server{
		engine:   eng,
		report:   rep,
		places:   places,
		notices:  notices,
		mux:      http.NewServeMux(),
		tempDir:  tempDir,
		maxBytes: maxBytes,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/artifacts", s.handleArtifacts)
	s.mux.HandleFunc("/api/labels", s.handleLabels)
	s.mux.HandleFunc("/api/burst/end", s.handleBurstEnd)
	s.mux.HandleFunc("/api/place", s.handlePlace)
	s.mux.HandleFunc("/api/report", s.handleReport)
	s.mux.HandleFunc("/api/notifications", s.handleNotifications)
	s.mux.HandleFunc("/api/health", s.handleHealth)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops the engine's timers.
func (s *Server) Close() error {
	s.engine.Stop()
	return nil
}

// handleArtifacts receives one invoice workbook as a multipart upload and
// submits it as an artifact event. The user field names the submitter.
func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(s.maxBytes); err != nil {
		jsonError(w, "Failed to parse upload", http.StatusBadRequest)
		return
	}

	user := r.FormValue("user")
	if user == "" {
		jsonError(w, "User required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		jsonError(w, "Only .xlsx files are accepted", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	path := filepath.Join(s.tempDir, id+"__"+filepath.Base(header.Filename))

	out, err := os.Create(path)
	if err != nil {
		jsonError(w, "Failed to save file", http.StatusInternalServerError)
		return
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		jsonError(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	ref := model.ArtifactRef{
		ID:          id,
		DisplayName: header.Filename,
		Path:        path,
	}
	s.engine.Submit(r.Context(), user, model.NewArtifactEvent(ref, eventTime(r.FormValue("timestamp"))))

	jsonResponse(w, map[string]string{
		"id":     id,
		"status": "buffered",
	})
}

// handleLabels receives a text message. Text that classifies as a
// customer name always joins the burst; only non-name text answers a
// pending place prompt. The answer is one-shot, it does not become the
// user's default place.
func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		User      string `json:"user"`
		Text      string `json:"text"`
		Timestamp string `json:"timestamp,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.User == "" || strings.TrimSpace(req.Text) == "" {
		jsonError(w, "User and text required", http.StatusBadRequest)
		return
	}

	if _, ok := classify.Classify(req.Text); ok {
		s.engine.Submit(r.Context(), req.User, model.NewLabelEvent(req.Text, eventTime(req.Timestamp)))
		jsonResponse(w, map[string]string{"status": "buffered"})
		return
	}

	if s.engine.HasAwaiting(req.User) {
		value := strings.TrimSpace(req.Text)
		n := s.engine.ResolvePlace(r.Context(), req.User, value)
		jsonResponse(w, map[string]interface{}{
			"status":   "resolved",
			"place":    value,
			"resolved": n,
		})
		return
	}

	jsonResponse(w, map[string]string{"status": "ignored"})
}

// handleBurstEnd aborts the user's current burst, discarding buffered
// events without processing them.
func (s *Server) handleBurstEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		jsonError(w, "User required", http.StatusBadRequest)
		return
	}

	s.engine.Submit(r.Context(), req.User, model.NewEndOfBurstEvent(time.Now()))
	jsonResponse(w, map[string]string{"status": "cleared"})
}

// handlePlace gets or sets the user's default unloading place. Setting a
// place also finalizes any pairs waiting on one.
func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user := r.URL.Query().Get("user")
		if user == "" {
			jsonError(w, "User required", http.StatusBadRequest)
			return
		}
		value, ok, err := s.places.Get(r.Context(), user)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			jsonError(w, "No place set", http.StatusNotFound)
			return
		}
		jsonResponse(w, map[string]string{"user": user, "place": value})

	case http.MethodPost:
		var req struct {
			User  string `json:"user"`
			Place string `json:"place"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.User == "" || strings.TrimSpace(req.Place) == "" {
			jsonError(w, "User and place required", http.StatusBadRequest)
			return
		}
		value := strings.TrimSpace(req.Place)
		if err := s.places.Set(r.Context(), req.User, value); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		n := s.engine.ResolvePlace(r.Context(), req.User, value)
		jsonResponse(w, map[string]interface{}{
			"user":     req.User,
			"place":    value,
			"resolved": n,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleReport serves or resets the current month's workbook. A GET first
// forces the user's pending burst through; entries still waiting on a
// place block the download.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if user := r.URL.Query().Get("user"); user != "" {
			s.engine.FlushNow(r.Context(), user)
			if s.engine.HasAwaiting(user) {
				value, ok, err := s.places.Get(r.Context(), user)
				if err != nil || !ok {
					jsonError(w, "Entries are waiting for an unloading place", http.StatusConflict)
					return
				}
				s.engine.ResolvePlace(r.Context(), user, value)
			}
		}

		path := s.report.CurrentPath()
		if _, err := os.Stat(path); err != nil {
			jsonError(w, "No report for the current month", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
		http.ServeFile(w, r, path)

	case http.MethodDelete:
		if err := s.report.Reset(); err != nil {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonResponse(w, map[string]string{"status": "reset"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleNotifications drains queued messages for a user.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		jsonError(w, "User required", http.StatusBadRequest)
		return
	}

	messages := s.notices.Drain(user)
	if messages == nil {
		messages = []string{}
	}
	jsonResponse(w, map[string]interface{}{
		"user":     user,
		"messages": messages,
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{
		"status":  "ok",
		"service": "invoiceflow",
	})
}

// eventTime parses an RFC 3339 timestamp from the transport, falling back
// to receive time.
func eventTime(v string) time.Time {
	if v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return time.Now()
}

// Helper functions

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
