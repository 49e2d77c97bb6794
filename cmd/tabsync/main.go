package main

import (
	"os"
	"os/signal"
	"syscall"

	"tabsync/internal/config"
	"tabsync/internal/library"
	"tabsync/internal/server"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	// Initialize the library index
	db, err := library.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing library database")
	}
	defer db.Close()

	// Create and configure the sync server
	syncServer, err := server.NewSyncServer(cfg, db)
	if err != nil {
		logger.WithError(err).Fatal("Error creating sync server")
	}

	// Index the mapping library
	if err := syncServer.ScanLibrary(); err != nil {
		logger.WithError(err).Fatal("Error scanning mapping library")
	}

	// Check mapping count and note if empty
	if cfg.Library.ScanOnStartup {
		mappings, err := db.GetAllMappings()
		if err != nil {
			logger.WithError(err).Warn("Could not get mapping count")
		} else if len(mappings) == 0 {
			logger.WithField("library_path", cfg.Library.Path).Info("No sync mappings found yet; create one with the builder")
		}
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start the server in a goroutine
	go func() {
		syncServer.Start()
	}()

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
	syncServer.Shutdown()
}
