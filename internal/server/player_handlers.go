package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"tabsync/internal/beatsync"
	"tabsync/internal/session"
	"tabsync/pkg/models"
)

// handleCreatePlayer starts a new player session.
func (s *SyncServer) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.sessions.CreatePlayer()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.respondJSON(w, map[string]interface{}{
		"sessionId": sess.ID,
		"status":    sess.Player.Status(),
	})
}

// playerSession resolves the session from an /api/player/{id}/{action} path.
func (s *SyncServer) playerSession(w http.ResponseWriter, r *http.Request) (*session.PlayerSession, string, bool) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 5 || pathParts[3] == "" {
		s.respondWithError(w, r, http.StatusBadRequest, "Session ID is required", nil)
		return nil, "", false
	}

	sess, ok := s.sessions.Get(pathParts[3])
	if !ok || sess.Kind != session.KindPlayer {
		s.respondWithError(w, r, http.StatusNotFound, "Player session not found", nil)
		return nil, "", false
	}
	return sess.Player, pathParts[4], true
}

// handlePlayerAction dispatches one player session operation.
func (s *SyncServer) handlePlayerAction(w http.ResponseWriter, r *http.Request) {
	p, action, ok := s.playerSession(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	switch action {
	case "status":
		s.respondJSON(w, p.Status())

	case "load":
		s.handlePlayerLoad(w, r, p)

	case "score-loaded":
		var req struct {
			Score models.Score `json:"score"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		if err := p.HandleScoreLoaded(&req.Score); err != nil {
			s.respondWithError(w, r, http.StatusConflict, "Score does not match the loaded mapping", err)
			return
		}
		s.respondJSON(w, p.Status())

	case "player-ready":
		var req struct {
			Ticks beatsync.TickMap `json:"ticks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		p.HandlePlayerReady(req.Ticks)
		s.respondJSON(w, p.Status())

	case "audio-ready":
		var req struct {
			Duration float64 `json:"duration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		p.HandleAudioReady(req.Duration)
		s.respondJSON(w, p.Status())

	case "position":
		var req struct {
			Position float64 `json:"position"`
			Playing  bool    `json:"playing"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		s.respondJSON(w, p.UpdatePosition(req.Position, req.Playing))

	case "seek":
		var req struct {
			Time float64 `json:"time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		s.respondJSON(w, p.Seek(req.Time))

	case "prev-bar":
		frame, moved := p.PreviousBar()
		s.respondJSON(w, map[string]interface{}{
			"moved": moved,
			"frame": frame,
		})

	case "next-bar":
		frame, moved := p.NextBar()
		s.respondJSON(w, map[string]interface{}{
			"moved": moved,
			"frame": frame,
		})

	case "rate":
		var req struct {
			Rate float64 `json:"rate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		if req.Rate <= 0 || req.Rate > 4 {
			s.respondWithValidationError(w, r, []ValidationError{{
				Field:   "rate",
				Message: "Playback rate must be between 0 and 4",
				Code:    "INVALID_PLAYBACK_RATE",
			}})
			return
		}
		p.SetRate(req.Rate)
		s.respondJSON(w, map[string]bool{"success": true})

	case "stop":
		p.Stop()
		s.respondJSON(w, p.Status())

	default:
		s.respondWithError(w, r, http.StatusNotFound, "Unknown player action", nil)
	}
}

// handlePlayerLoad loads a library mapping into the player.
func (s *SyncServer) handlePlayerLoad(w http.ResponseWriter, r *http.Request, p *session.PlayerSession) {
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

	if err := p.LoadMapping(m); err != nil {
		s.respondWithError(w, r, http.StatusConflict, "Mapping does not match the loaded score", err)
		return
	}
	s.respondJSON(w, p.Status())
}
