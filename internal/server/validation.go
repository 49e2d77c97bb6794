package server

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondWithValidationError sends a structured validation error response
func (s *SyncServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	s.respondJSON(w, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (s *SyncServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := s.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	s.respondJSON(w, map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// validateMappingID validates and parses a mapping ID from the URL path
func (s *SyncServer) validateMappingID(pathParts []string, minParts int) (int, *ValidationError) {
	if len(pathParts) < minParts {
		return 0, &ValidationError{
			Field:   "mapping_id",
			Message: "Mapping ID is required",
			Code:    "MISSING_MAPPING_ID",
		}
	}

	mappingIDStr := pathParts[minParts-1]
	if mappingIDStr == "" {
		return 0, &ValidationError{
			Field:   "mapping_id",
			Message: "Mapping ID cannot be empty",
			Code:    "EMPTY_MAPPING_ID",
		}
	}

	mappingID, err := strconv.Atoi(mappingIDStr)
	if err != nil {
		return 0, &ValidationError{
			Field:   "mapping_id",
			Message: "Mapping ID must be a valid integer",
			Code:    "INVALID_MAPPING_ID_FORMAT",
		}
	}

	if mappingID <= 0 {
		return 0, &ValidationError{
			Field:   "mapping_id",
			Message: "Mapping ID must be positive",
			Code:    "INVALID_MAPPING_ID_VALUE",
		}
	}

	return mappingID, nil
}

// validateSearchQuery validates search query parameters
func (s *SyncServer) validateSearchQuery(query string) *ValidationError {
	if len(query) > 1000 {
		return &ValidationError{
			Field:   "search",
			Message: "Search query too long (max 1000 characters)",
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}

	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   "search",
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}

	return nil
}

// validateFilePath ensures the path stays inside the configured library directory
func (s *SyncServer) validateFilePath(filePath string) *ValidationError {
	cleanPath := filepath.Clean(filePath)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return &ValidationError{
			Field:   "file_path",
			Message: "Invalid file path",
			Code:    "INVALID_FILE_PATH",
		}
	}

	absLibraryDir, err := filepath.Abs(s.config.Library.Path)
	if err != nil {
		return &ValidationError{
			Field:   "file_path",
			Message: "Server configuration error",
			Code:    "CONFIG_ERROR",
		}
	}

	relPath, err := filepath.Rel(absLibraryDir, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return &ValidationError{
			Field:   "file_path",
			Message: "File path outside allowed directory",
			Code:    "PATH_TRAVERSAL_DENIED",
		}
	}

	return nil
}

// validateTitle validates a mapping title supplied on export or import
func (s *SyncServer) validateTitle(title string) *ValidationError {
	if len(title) > 255 {
		return &ValidationError{
			Field:   "title",
			Message: "Title too long (max 255 characters)",
			Code:    "TITLE_TOO_LONG",
		}
	}

	if strings.Contains(title, "\x00") || strings.Contains(title, "\n") || strings.Contains(title, "\r") {
		return &ValidationError{
			Field:   "title",
			Message: "Title contains invalid characters",
			Code:    "INVALID_TITLE_CHARACTERS",
		}
	}

	return nil
}

// sanitizeInput sanitizes user input to prevent injection attacks
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
