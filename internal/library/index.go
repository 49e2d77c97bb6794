// Package library maintains the persistent index of .tabsync files in the
// configured sync directory.
package library

import (
	"os"
	"path/filepath"

	"tabsync/internal/beatsync"
	"tabsync/pkg/models"
)

// InfoFromMapping builds the index row for a parsed sync document.
func InfoFromMapping(m *models.SyncMapping, filePath string, fileSize int64) models.MappingInfo {
	info := models.MappingInfo{
		Title:       m.Title,
		Artist:      m.Artist,
		TotalBars:   m.TotalBars,
		MarkerCount: len(m.Markers),
		FilePath:    filePath,
		FileSize:    fileSize,
		CreatedAt:   m.CreatedAt,
	}
	if m.GPFile != nil {
		info.GPFile = *m.GPFile
	}
	if m.AudioFile != nil {
		info.AudioFile = *m.AudioFile
	}
	return info
}

// IndexFile parses one .tabsync file and upserts its index row. Documents
// that fail structural validation are skipped with an error.
func (db *Database) IndexFile(filePath string) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	m, err := beatsync.Parse(f)
	if err != nil {
		return 0, err
	}
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return db.InsertMapping(InfoFromMapping(m, filePath, stat.Size()))
}

// IsSyncFile reports whether the path carries the sync document extension.
func IsSyncFile(path string) bool {
	return filepath.Ext(path) == beatsync.Extension
}
