// Package auth provides optional cookie-based authentication backed by a
// TOML users file.
package auth

import (
	"fmt"
	"time"

	"tabsync/internal/config"
)

// Service ties the user store and session manager together behind the
// enabled flag: with auth disabled every check passes.
type Service struct {
	config         *config.AuthConfig
	userStore      *UserStore
	sessionManager *SessionManager
	enabled        bool
}

// NewService creates the authentication service from its config section.
func NewService(config *config.AuthConfig) (*Service, error) {
	if !config.Enabled {
		return &Service{
			config:  config,
			enabled: false,
		}, nil
	}

	duration, err := time.ParseDuration(config.SessionDuration)
	if err != nil {
		return nil, fmt.Errorf("invalid session duration: %w", err)
	}

	userStore, err := NewUserStore(config.UsersFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}

	return &Service{
		config:         config,
		userStore:      userStore,
		sessionManager: NewSessionManager(duration, config.SecureCookies),
		enabled:        true,
	}, nil
}

// IsEnabled returns whether authentication is enabled.
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// Login authenticates a user and creates a session.
func (s *Service) Login(username, password string) (*Session, error) {
	if !s.enabled {
		return nil, fmt.Errorf("authentication is disabled")
	}
	if !s.userStore.Authenticate(username, password) {
		return nil, fmt.Errorf("invalid credentials")
	}

	session, err := s.sessionManager.CreateSession(username)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ValidateSession checks if a session ID is valid. With auth disabled every
// session is considered valid.
func (s *Service) ValidateSession(sessionID string) (*Session, bool) {
	if !s.enabled {
		return nil, true
	}
	return s.sessionManager.GetSession(sessionID)
}

// Logout invalidates a session.
func (s *Service) Logout(sessionID string) {
	if !s.enabled {
		return
	}
	s.sessionManager.DeleteSession(sessionID)
}

// RefreshSession extends a session's expiration.
func (s *Service) RefreshSession(sessionID string) bool {
	if !s.enabled {
		return true
	}
	return s.sessionManager.RefreshSession(sessionID)
}

// GetSessionManager returns the session manager (for middleware).
func (s *Service) GetSessionManager() *SessionManager {
	return s.sessionManager
}

// IsRegistrationAllowed returns whether user registration is enabled.
func (s *Service) IsRegistrationAllowed() bool {
	return s.enabled && s.config.AllowRegistration
}

// Register creates a new user account.
func (s *Service) Register(username, password string) error {
	if !s.IsRegistrationAllowed() {
		return fmt.Errorf("registration is disabled")
	}
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}
	return s.userStore.RegisterUser(username, password)
}
