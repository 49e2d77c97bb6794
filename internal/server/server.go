package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tabsync/internal/auth"
	"tabsync/internal/cache"
	"tabsync/internal/config"
	"tabsync/internal/library"
	"tabsync/internal/metadata"
	"tabsync/internal/ngrok"
	"tabsync/internal/session"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// SyncServer serves the mapping library and the builder/player session API.
type SyncServer struct {
	db           *library.Database
	config       *config.Config
	watcher      *fsnotify.Watcher
	prober       *metadata.Prober
	sessions     *session.Manager
	mappingCache *cache.MappingCache
	authService  *auth.Service
	ngrokService *ngrok.Service
	logger       *logrus.Logger
	mux          *http.ServeMux
}

// NewSyncServer creates a new server instance.
func NewSyncServer(cfg *config.Config, db *library.Database) (*SyncServer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	authService, err := auth.NewService(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	ngrokSvc, err := ngrok.NewService(&cfg.Ngrok)
	if err != nil {
		log.Printf("Warning: Ngrok service not available: %v", err)
		ngrokSvc = nil
	}

	timeout := time.Duration(cfg.Session.TimeoutMinutes) * time.Minute

	server := &SyncServer{
		db:           db,
		config:       cfg,
		prober:       metadata.NewProber(cfg.Library.AudioFormats),
		sessions:     session.NewManager(timeout, logger),
		mappingCache: cache.NewMappingCache(),
		authService:  authService,
		ngrokService: ngrokSvc,
		logger:       logger,
		mux:          http.NewServeMux(),
	}

	return server, nil
}

// ScanLibrary walks the sync directory and indexes every .tabsync file.
func (s *SyncServer) ScanLibrary() error {
	if !s.config.Library.ScanOnStartup {
		log.Println("Skipping library scan (disabled in config)")
		return nil
	}

	log.Printf("Scanning mapping library in: %s", s.config.Library.Path)

	if err := os.MkdirAll(s.config.Library.Path, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	var wg sync.WaitGroup
	var mappingCount int64
	jobs := make(chan string, 100)

	// Start worker pool
	numWorkers := runtime.NumCPU()
	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				if _, err := s.db.IndexFile(path); err != nil {
					log.Printf("Error indexing %s: %v", path, err)
				} else {
					atomic.AddInt64(&mappingCount, 1)
				}
				wg.Done()
			}
		}()
	}

	// Walk directory and enqueue jobs
	walkErr := filepath.Walk(s.config.Library.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && library.IsSyncFile(path) {
			wg.Add(1)
			jobs <- path
		}
		return nil
	})

	// Close jobs channel and wait for all workers
	close(jobs)
	wg.Wait()

	log.Printf("Indexed %d sync mappings", mappingCount)
	return walkErr
}

// Start starts the server and blocks until the listener fails.
func (s *SyncServer) Start() {
	// Start file watcher if enabled
	if s.config.Library.WatchForChanges {
		if err := s.startFileWatcher(); err != nil {
			log.Printf("Warning: Could not start file watcher: %v", err)
		} else {
			defer s.stopFileWatcher()
		}
	}

	s.setupRoutes()

	mappings, err := s.db.GetAllMappings()
	mappingCount := 0
	if err == nil {
		mappingCount = len(mappings)
	}

	localAddress := fmt.Sprintf("http://%s", s.config.GetAddress())

	log.Printf("Tabsync server starting on port %s", s.config.Server.Port)
	log.Printf("Mapping library contains %d sync files", mappingCount)
	if s.config.Library.WatchForChanges {
		log.Printf("File watcher monitoring: %s", s.config.Library.Path)
	}
	log.Printf("Local access: %s", localAddress)

	// Start ngrok tunnel if enabled
	if s.ngrokService != nil {
		ctx := context.Background()
		if err := s.ngrokService.StartTunnel(ctx, localAddress); err != nil {
			log.Printf("Warning: Could not start ngrok tunnel: %v", err)
		} else {
			defer s.ngrokService.Stop()
		}
	}

	server := &http.Server{
		Addr:        s.config.GetAddress(),
		Handler:     s.handler(),
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

// handler wraps the mux in the middleware chain.
func (s *SyncServer) handler() http.Handler {
	var h http.Handler = s.mux
	h = s.authMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.requestLoggingMiddleware(h)
	h = s.panicRecoveryMiddleware(h)
	return h
}

func (s *SyncServer) setupRoutes() {
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.Server.StaticDir))))
	s.mux.HandleFunc("/health", s.handleHealthCheck)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleAuthLogout)

	// Library routes
	s.mux.HandleFunc("/api/mappings", s.handleGetMappings)
	s.mux.HandleFunc("/api/mappings/import", s.handleImportMapping)
	s.mux.HandleFunc("/api/mappings/", func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(r.URL.Path, "/")
		if len(pathParts) >= 5 && pathParts[4] == "download" {
			s.handleDownloadMapping(w, r)
			return
		}
		switch r.Method {
		case "GET":
			s.handleGetMapping(w, r)
		case "DELETE":
			s.handleDeleteMapping(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Audio probe route
	s.mux.HandleFunc("/api/probe", s.handleProbeAudio)

	// Builder session routes
	s.mux.HandleFunc("/api/builder", s.handleCreateBuilder)
	s.mux.HandleFunc("/api/builder/", s.handleBuilderAction)

	// Player session routes
	s.mux.HandleFunc("/api/player", s.handleCreatePlayer)
	s.mux.HandleFunc("/api/player/", s.handlePlayerAction)

	// Live cursor feed
	s.mux.HandleFunc("/ws/cursor/", s.handleCursorFeed)
}

// Shutdown gracefully shuts down the server.
func (s *SyncServer) Shutdown() {
	log.Println("Shutting down tabsync server...")
	s.stopFileWatcher()
	log.Println("Tabsync server shutdown complete")
}
