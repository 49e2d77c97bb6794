package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tabsync/internal/beatsync"
	"tabsync/pkg/models"
)

func TestDatabase(t *testing.T) {
	testDir := t.TempDir()
	dbPath := filepath.Join(testDir, "test.db")

	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	t.Run("InsertAndGetMapping", func(t *testing.T) {
		info := models.MappingInfo{
			Title:       "Test Song",
			Artist:      "Test Artist",
			GPFile:      "test.gp5",
			AudioFile:   "test.mp3",
			TotalBars:   64,
			MarkerCount: 64,
			FilePath:    "/test/test_song.tabsync",
			FileSize:    2048,
			CreatedAt:   time.Now().UTC(),
		}

		id, err := db.InsertMapping(info)
		if err != nil {
			t.Fatalf("Failed to insert mapping: %v", err)
		}

		retrieved, err := db.GetMappingByID(id)
		if err != nil {
			t.Fatalf("Failed to get mapping by ID: %v", err)
		}

		if retrieved.Title != info.Title {
			t.Errorf("Expected title %s, got %s", info.Title, retrieved.Title)
		}
		if retrieved.Artist != info.Artist {
			t.Errorf("Expected artist %s, got %s", info.Artist, retrieved.Artist)
		}
		if retrieved.MarkerCount != info.MarkerCount {
			t.Errorf("Expected marker count %d, got %d", info.MarkerCount, retrieved.MarkerCount)
		}
		if retrieved.GPFile != info.GPFile {
			t.Errorf("Expected gp file %s, got %s", info.GPFile, retrieved.GPFile)
		}
	})

	t.Run("UpsertByPath", func(t *testing.T) {
		info := models.MappingInfo{
			Title:     "Test Song",
			Artist:    "Test Artist",
			FilePath:  "/test/test_song.tabsync",
			FileSize:  4096,
			CreatedAt: time.Now().UTC(),
		}

		firstID, err := db.InsertMapping(info)
		if err != nil {
			t.Fatalf("Failed to upsert mapping: %v", err)
		}

		info.MarkerCount = 12
		secondID, err := db.InsertMapping(info)
		if err != nil {
			t.Fatalf("Failed to upsert mapping: %v", err)
		}
		if firstID != secondID {
			t.Errorf("Expected same ID on re-index, got %d then %d", firstID, secondID)
		}

		retrieved, err := db.GetMappingByID(secondID)
		if err != nil {
			t.Fatalf("Failed to get mapping by ID: %v", err)
		}
		if retrieved.MarkerCount != 12 {
			t.Errorf("Expected updated marker count 12, got %d", retrieved.MarkerCount)
		}
	})

	t.Run("GetAllMappings", func(t *testing.T) {
		mappings, err := db.GetAllMappings()
		if err != nil {
			t.Fatalf("Failed to get all mappings: %v", err)
		}
		if len(mappings) == 0 {
			t.Error("Expected at least one mapping")
		}
	})

	t.Run("SearchMappings", func(t *testing.T) {
		mappings, err := db.SearchMappings("Test")
		if err != nil {
			t.Fatalf("Failed to search mappings: %v", err)
		}
		if len(mappings) == 0 {
			t.Error("Expected to find mappings with 'Test'")
		}

		mappings, err = db.SearchMappings("no-such-song")
		if err != nil {
			t.Fatalf("Failed to search mappings: %v", err)
		}
		if len(mappings) != 0 {
			t.Errorf("Expected no results, got %d", len(mappings))
		}
	})

	t.Run("MappingExists", func(t *testing.T) {
		exists, err := db.MappingExists("/test/test_song.tabsync")
		if err != nil {
			t.Fatalf("Failed to check mapping existence: %v", err)
		}
		if !exists {
			t.Error("Expected mapping to exist")
		}

		exists, err = db.MappingExists("/test/missing.tabsync")
		if err != nil {
			t.Fatalf("Failed to check mapping existence: %v", err)
		}
		if exists {
			t.Error("Expected mapping to not exist")
		}
	})

	t.Run("RemoveMappingByPath", func(t *testing.T) {
		if err := db.RemoveMappingByPath("/test/test_song.tabsync"); err != nil {
			t.Fatalf("Failed to remove mapping: %v", err)
		}

		exists, err := db.MappingExists("/test/test_song.tabsync")
		if err != nil {
			t.Fatalf("Failed to check mapping existence: %v", err)
		}
		if exists {
			t.Error("Expected mapping to be removed")
		}
	})
}

func TestIndexFile(t *testing.T) {
	testDir := t.TempDir()

	db, err := NewDatabase(filepath.Join(testDir, "index.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	m := &models.SyncMapping{
		Title:     "Indexed Song",
		Artist:    "Indexer",
		TotalBars: 2,
		Markers: []models.BeatMarker{
			{Bar: 1, Time: 0.0},
			{Bar: 2, Time: 1.5},
		},
	}
	data, err := beatsync.Marshal(m)
	if err != nil {
		t.Fatalf("Failed to marshal mapping: %v", err)
	}
	filePath := filepath.Join(testDir, "indexed_song.tabsync")
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		t.Fatalf("Failed to write sync file: %v", err)
	}

	id, err := db.IndexFile(filePath)
	if err != nil {
		t.Fatalf("Failed to index file: %v", err)
	}

	info, err := db.GetMappingByID(id)
	if err != nil {
		t.Fatalf("Failed to get mapping by ID: %v", err)
	}
	if info.Title != "Indexed Song" || info.MarkerCount != 2 {
		t.Errorf("Indexed row = %+v, want title and marker count from the document", info)
	}

	// Malformed documents never reach the index.
	badPath := filepath.Join(testDir, "broken.tabsync")
	if err := os.WriteFile(badPath, []byte(`{"title":"x"}`), 0o644); err != nil {
		t.Fatalf("Failed to write bad file: %v", err)
	}
	if _, err := db.IndexFile(badPath); err == nil {
		t.Error("Expected malformed document to fail indexing")
	}
	if exists, _ := db.MappingExists(badPath); exists {
		t.Error("Malformed document was indexed")
	}
}
