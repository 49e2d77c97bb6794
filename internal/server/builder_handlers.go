package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tabsync/internal/beatsync"
	"tabsync/internal/session"
	"tabsync/pkg/models"
)

// handleCreateBuilder starts a new builder session.
func (s *SyncServer) handleCreateBuilder(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.sessions.CreateBuilder()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.respondJSON(w, map[string]interface{}{
		"sessionId": sess.ID,
		"status":    sess.Builder.Status(),
	})
}

// builderSession resolves the session from an /api/builder/{id}/{action} path.
func (s *SyncServer) builderSession(w http.ResponseWriter, r *http.Request) (*session.BuilderSession, string, bool) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 5 || pathParts[3] == "" {
		s.respondWithError(w, r, http.StatusBadRequest, "Session ID is required", nil)
		return nil, "", false
	}

	sess, ok := s.sessions.Get(pathParts[3])
	if !ok || sess.Kind != session.KindBuilder {
		s.respondWithError(w, r, http.StatusNotFound, "Builder session not found", nil)
		return nil, "", false
	}
	return sess.Builder, pathParts[4], true
}

// handleBuilderAction dispatches one builder session operation.
func (s *SyncServer) handleBuilderAction(w http.ResponseWriter, r *http.Request) {
	b, action, ok := s.builderSession(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	switch action {
	case "status":
		s.respondJSON(w, b.Status())

	case "score-loaded":
		var req struct {
			Score    models.Score `json:"score"`
			Filename string       `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		if err := b.HandleScoreLoaded(&req.Score, req.Filename); err != nil {
			s.respondWithError(w, r, http.StatusConflict, "Resumed markers do not fit the loaded score", err)
			return
		}
		s.respondJSON(w, b.Status())

	case "audio-ready":
		var req struct {
			Duration float64 `json:"duration"`
			Filename string  `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		b.HandleAudioReady(req.Duration, req.Filename)
		s.respondJSON(w, b.Status())

	case "position":
		var req struct {
			Position float64 `json:"position"`
			Playing  bool    `json:"playing"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		b.ReportPosition(req.Position, req.Playing)
		s.respondJSON(w, map[string]bool{"success": true})

	case "tap":
		marker, recorded := b.Tap()
		s.respondJSON(w, map[string]interface{}{
			"recorded": recorded,
			"marker":   marker,
			"status":   b.Status(),
		})

	case "undo":
		undone := b.Undo()
		s.respondJSON(w, map[string]interface{}{
			"undone": undone,
			"status": b.Status(),
		})

	case "clear":
		// Destructive: the client must confirm explicitly.
		var req struct {
			Confirm bool `json:"confirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
			s.respondWithError(w, r, http.StatusBadRequest, "Clearing all markers requires confirmation", err)
			return
		}
		b.Clear()
		s.respondJSON(w, b.Status())

	case "load":
		s.handleBuilderLoad(w, r, b)

	case "metadata":
		var req struct {
			Title  string `json:"title"`
			Artist string `json:"artist"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		if vErr := s.validateTitle(req.Title); vErr != nil {
			s.respondWithValidationError(w, r, []ValidationError{*vErr})
			return
		}
		b.SetMetadata(sanitizeInput(req.Title), sanitizeInput(req.Artist))
		s.respondJSON(w, b.Status())

	case "export":
		s.handleBuilderExport(w, r, b)

	default:
		s.respondWithError(w, r, http.StatusNotFound, "Unknown builder action", nil)
	}
}

// handleBuilderLoad resumes a library mapping in the builder.
func (s *SyncServer) handleBuilderLoad(w http.ResponseWriter, r *http.Request, b *session.BuilderSession) {
	var req struct {
		MappingID int `json:"mappingId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	info, err := s.db.GetMappingByID(req.MappingID)
	if err != nil {
		s.respondWithError(w, r, http.StatusNotFound, "Mapping not found", err)
		return
	}
	m, err := s.readMappingFile(info.FilePath)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error reading sync file", err)
		return
	}

	if err := b.LoadMapping(m); err != nil {
		status := http.StatusConflict
		if errors.Is(err, beatsync.ErrNonContiguous) {
			status = http.StatusUnprocessableEntity
		}
		s.respondWithError(w, r, status, "Mapping cannot be resumed", err)
		return
	}
	s.respondJSON(w, b.Status())
}

// handleBuilderExport assembles the sync document and serves it as a
// download, also filing a copy into the library.
func (s *SyncServer) handleBuilderExport(w http.ResponseWriter, r *http.Request, b *session.BuilderSession) {
	var req struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Save   bool   `json:"save"`
	}
	if r.Body != nil {
		// Export without a body keeps the prefilled metadata.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if vErr := s.validateTitle(req.Title); vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}

	m, err := b.Export(sanitizeInput(req.Title), sanitizeInput(req.Artist))
	if err != nil {
		if errors.Is(err, session.ErrNoMarkers) {
			s.respondWithError(w, r, http.StatusConflict, "No markers to export", err)
			return
		}
		s.respondWithError(w, r, http.StatusInternalServerError, "Export failed", err)
		return
	}

	data, err := beatsync.Marshal(m)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error encoding sync document", err)
		return
	}

	filename := beatsync.ExportFilename(m.Title)

	if req.Save {
		if id, err := s.saveToLibrary(filename, data); err != nil {
			s.logger.WithError(err).Warn("Could not file exported mapping into library")
		} else {
			s.logger.WithField("mapping_id", id).Info("Filed exported mapping into library")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(data); err != nil {
		s.logger.WithError(err).Error("Failed to write export response")
	}
}
