package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"tabsync/internal/beatsync"
	"tabsync/pkg/models"
)

// respondJSON encodes v to the response, logging encode failures.
func (s *SyncServer) respondJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// handleHome serves the main SPA / index file from the configured static dir.
func (s *SyncServer) handleHome(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.config.Server.StaticDir, "index.html"))
}

// handleGetMappings returns the library index, optionally filtered by search.
func (s *SyncServer) handleGetMappings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	searchQuery := sanitizeInput(r.URL.Query().Get("search"))
	if vErr := s.validateSearchQuery(searchQuery); vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}

	var mappings []models.MappingInfo
	var err error
	if searchQuery != "" {
		mappings, err = s.db.SearchMappings(searchQuery)
	} else {
		mappings, err = s.db.GetAllMappings()
	}
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving mappings", err)
		return
	}

	if mappings == nil {
		mappings = []models.MappingInfo{}
	}
	s.respondJSON(w, mappings)
}

// handleGetMapping returns the full sync document for one library entry.
func (s *SyncServer) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	mappingID, vErr := s.validateMappingID(pathParts, 4)
	if vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}

	info, err := s.db.GetMappingByID(mappingID)
	if err != nil {
		s.respondWithError(w, r, http.StatusNotFound, "Mapping not found", err)
		return
	}

	m, err := s.readMappingFile(info.FilePath)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error reading sync file", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	s.respondJSON(w, map[string]interface{}{
		"id":      info.ID,
		"mapping": m,
	})
}

// handleImportMapping accepts an uploaded .tabsync document, validates it and
// files it into the library directory. The write is atomic: the document
// goes to a temp file first and is renamed into place only after it parsed.
func (s *SyncServer) handleImportMapping(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m, err := beatsync.Parse(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid sync document", err)
		return
	}

	if vErr := s.validateTitle(m.Title); vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}

	data, err := beatsync.Marshal(m)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error encoding sync document", err)
		return
	}

	filename := beatsync.ExportFilename(m.Title)
	id, err := s.saveToLibrary(filename, data)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error filing sync document", err)
		return
	}

	s.logger.WithField("filename", filename).Info("Imported sync mapping")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.respondJSON(w, map[string]interface{}{
		"id":       id,
		"filename": filename,
		"success":  true,
	})
}

// handleDeleteMapping removes a mapping's file and its index row.
func (s *SyncServer) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	mappingID, vErr := s.validateMappingID(pathParts, 4)
	if vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}

	info, err := s.db.GetMappingByID(mappingID)
	if err != nil {
		s.respondWithError(w, r, http.StatusNotFound, "Mapping not found", err)
		return
	}

	if err := os.Remove(info.FilePath); err != nil && !os.IsNotExist(err) {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error deleting sync file", err)
		return
	}
	if err := s.db.RemoveMappingByPath(info.FilePath); err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error removing mapping from index", err)
		return
	}
	s.mappingCache.Delete(info.FilePath)

	s.logger.WithField("file_path", info.FilePath).Info("Deleted sync mapping")

	w.Header().Set("Content-Type", "application/json")
	s.respondJSON(w, map[string]interface{}{"success": true})
}

// handleDownloadMapping serves a mapping's raw .tabsync file as an attachment.
func (s *SyncServer) handleDownloadMapping(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	mappingID, vErr := s.validateMappingID(pathParts, 4)
	if vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}

	info, err := s.db.GetMappingByID(mappingID)
	if err != nil {
		s.respondWithError(w, r, http.StatusNotFound, "Mapping not found", err)
		return
	}

	filename := beatsync.ExportFilename(info.Title)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, info.FilePath)
}

// handleProbeAudio reads duration and tag hints from an audio file in the
// library directory, for prefilling export metadata.
func (s *SyncServer) handleProbeAudio(w http.ResponseWriter, r *http.Request) {
	file := sanitizeInput(r.URL.Query().Get("file"))
	if file == "" {
		s.respondWithValidationError(w, r, []ValidationError{{
			Field:   "file",
			Message: "File name is required",
			Code:    "MISSING_FILE",
		}})
		return
	}

	fullPath := filepath.Join(s.config.Library.Path, file)
	if vErr := s.validateFilePath(fullPath); vErr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*vErr})
		return
	}
	if !s.prober.IsSupported(fullPath) {
		s.respondWithValidationError(w, r, []ValidationError{{
			Field:   "file",
			Message: fmt.Sprintf("Unsupported file type: %s", filepath.Ext(fullPath)),
			Code:    "UNSUPPORTED_FILE_TYPE",
		}})
		return
	}

	info, err := s.prober.ProbeFile(fullPath)
	if err != nil {
		s.respondWithError(w, r, http.StatusNotFound, "Error probing audio file", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	s.respondJSON(w, info)
}

// saveToLibrary files a validated sync document into the library directory
// and indexes it. The write is atomic: the document goes to a temp file
// first and is renamed into place, so a crash mid-write never leaves a
// half-written .tabsync file behind.
func (s *SyncServer) saveToLibrary(filename string, data []byte) (int, error) {
	destPath := filepath.Join(s.config.Library.Path, filename)
	if vErr := s.validateFilePath(destPath); vErr != nil {
		return 0, fmt.Errorf("%s", vErr.Message)
	}

	tmp, err := os.CreateTemp(s.config.Library.Path, ".import-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	s.mappingCache.Delete(destPath)

	return s.db.IndexFile(destPath)
}

// readMappingFile parses one .tabsync file from disk, consulting the
// document cache first. The watcher and the write paths invalidate entries
// when files change.
func (s *SyncServer) readMappingFile(path string) (*models.SyncMapping, error) {
	if m, ok := s.mappingCache.GetMapping(path); ok {
		return m, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := beatsync.Parse(f)
	if err != nil {
		return nil, err
	}
	s.mappingCache.SetMapping(path, m)
	return m, nil
}
