package server

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"tabsync/internal/library"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// startFileWatcher initializes fsnotify monitoring of the library directory.
func (s *SyncServer) startFileWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	go s.watchFiles()

	if err := s.addDirectoryToWatcher(s.config.Library.Path); err != nil {
		return err
	}

	s.logger.WithField("library_path", s.config.Library.Path).Info("File watcher started")
	return nil
}

// addDirectoryToWatcher recursively walks and adds subdirectories to watcher.
func (s *SyncServer) addDirectoryToWatcher(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return s.watcher.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels and dispatches events.
func (s *SyncServer) watchFiles() {
	defer s.watcher.Close()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFileEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleFileEvent applies filtering & delegates creation/removal actions.
func (s *SyncServer) handleFileEvent(event fsnotify.Event) {
	// Ignore temporary files and hidden files
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	isSyncFile := library.IsSyncFile(event.Name)

	switch {
	case (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && isSyncFile:
		// Dispatch asynchronously, after the file has settled
		go func(name string) {
			time.Sleep(500 * time.Millisecond)
			s.handleNewFile(name)
		}(event.Name)

	case event.Has(fsnotify.Remove) && isSyncFile:
		go s.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		// Check if it's a new directory
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.watcher.Add(event.Name)
			s.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

// handleNewFile indexes a .tabsync file dropped into the library directory.
func (s *SyncServer) handleNewFile(filePath string) {
	s.mappingCache.Delete(filePath)
	id, err := s.db.IndexFile(filePath)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", filePath).Error("Error indexing sync file")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"file_path":  filePath,
		"mapping_id": id,
	}).Info("Indexed sync mapping")
}

// handleRemovedFile drops index rows referencing deleted sync files.
func (s *SyncServer) handleRemovedFile(filePath string) {
	s.mappingCache.Delete(filePath)
	if err := s.db.RemoveMappingByPath(filePath); err != nil {
		s.logger.WithError(err).WithField("file_path", filePath).Error("Error removing mapping from index")
		return
	}
	s.logger.WithField("file_path", filePath).Info("Removed mapping from index")
}

// stopFileWatcher closes the watcher (idempotent).
func (s *SyncServer) stopFileWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}
