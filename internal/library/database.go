package library

import (
	"database/sql"
	"fmt"
	"time"

	"tabsync/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB holding the mapping library index: one row per
// .tabsync file in the configured directory. It is safe for concurrent use
// because the underlying *sql.DB is concurrency-safe. The files themselves
// stay on disk; the index only carries what the browse and search endpoints
// need.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for better performance
	insertMappingStmt  *sql.Stmt
	updateMappingStmt  *sql.Stmt
	getMappingByIDStmt *sql.Stmt
	mappingExistsStmt  *sql.Stmt
	removeMappingStmt  *sql.Stmt
	searchMappingsStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string) (*Database, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(5) // SQLite works better with fewer connections
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Library database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	mappingsTable := `
	CREATE TABLE IF NOT EXISTS mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		gp_file TEXT,
		audio_file TEXT,
		total_bars INTEGER DEFAULT 0,
		marker_count INTEGER DEFAULT 0,
		file_path TEXT NOT NULL UNIQUE,
		file_size INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_mappings_artist ON mappings(artist);",
		"CREATE INDEX IF NOT EXISTS idx_mappings_search ON mappings(title, artist);",
		"CREATE INDEX IF NOT EXISTS idx_mappings_file_path ON mappings(file_path);",
	}

	if _, err := db.conn.Exec(mappingsTable); err != nil {
		return err
	}
	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return db.runMigrations()
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run; keep them lightweight.
func (db *Database) runMigrations() error {
	// Migration 1: marker_count was added after the first release
	var columnExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('mappings')
		WHERE name = 'marker_count'`).Scan(&columnExists)
	if err != nil {
		return err
	}

	if !columnExists {
		if _, err := db.conn.Exec("ALTER TABLE mappings ADD COLUMN marker_count INTEGER DEFAULT 0"); err != nil {
			return err
		}
	}

	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.insertMappingStmt, err = db.conn.Prepare(`
		INSERT INTO mappings (title, artist, gp_file, audio_file, total_bars, marker_count, file_path, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert mapping statement: %w", err)
	}

	db.updateMappingStmt, err = db.conn.Prepare(`
		UPDATE mappings SET title = ?, artist = ?, gp_file = ?, audio_file = ?, total_bars = ?, marker_count = ?, file_size = ?, created_at = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update mapping statement: %w", err)
	}

	db.getMappingByIDStmt, err = db.conn.Prepare(`
		SELECT id, title, artist, COALESCE(gp_file, ''), COALESCE(audio_file, ''), total_bars, marker_count, file_path, file_size, created_at
		FROM mappings WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get mapping by ID statement: %w", err)
	}

	db.mappingExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM mappings WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare mapping exists statement: %w", err)
	}

	db.removeMappingStmt, err = db.conn.Prepare(`
		DELETE FROM mappings WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove mapping statement: %w", err)
	}

	db.searchMappingsStmt, err = db.conn.Prepare(`
		SELECT id, title, artist, COALESCE(gp_file, ''), COALESCE(audio_file, ''), total_bars, marker_count, file_path, file_size, created_at
		FROM mappings
		WHERE title LIKE ? OR artist LIKE ? OR gp_file LIKE ? OR audio_file LIKE ?
		ORDER BY artist, title`)
	if err != nil {
		return fmt.Errorf("failed to prepare search mappings statement: %w", err)
	}

	return nil
}

// InsertMapping inserts a new mapping or updates an existing one (matched by
// file_path) returning the row's database ID.
func (db *Database) InsertMapping(info models.MappingInfo) (int, error) {
	var existingID int
	err := db.conn.QueryRow("SELECT id FROM mappings WHERE file_path = ?", info.FilePath).Scan(&existingID)
	if err == nil {
		_, err = db.updateMappingStmt.Exec(
			info.Title, info.Artist, info.GPFile, info.AudioFile,
			info.TotalBars, info.MarkerCount, info.FileSize, info.CreatedAt,
			existingID)
		if err != nil {
			db.logger.WithError(err).WithField("mapping_id", existingID).Error("Failed to update existing mapping")
		}
		return existingID, err
	}

	result, err := db.insertMappingStmt.Exec(
		info.Title, info.Artist, info.GPFile, info.AudioFile,
		info.TotalBars, info.MarkerCount, info.FilePath, info.FileSize, info.CreatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", info.FilePath).Error("Failed to insert new mapping")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		db.logger.WithError(err).Error("Failed to get last insert ID")
		return 0, err
	}

	return int(id), nil
}

// GetAllMappings returns all indexed mappings ordered by artist/title.
func (db *Database) GetAllMappings() ([]models.MappingInfo, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, artist, COALESCE(gp_file, ''), COALESCE(audio_file, ''), total_bars, marker_count, file_path, file_size, created_at
		FROM mappings
		ORDER BY artist, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappingRows(rows)
}

// GetMappingByID returns a single mapping row or an error when no row exists.
func (db *Database) GetMappingByID(id int) (*models.MappingInfo, error) {
	var info models.MappingInfo
	err := db.getMappingByIDStmt.QueryRow(id).Scan(
		&info.ID, &info.Title, &info.Artist, &info.GPFile, &info.AudioFile,
		&info.TotalBars, &info.MarkerCount, &info.FilePath, &info.FileSize, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// SearchMappings matches the query against title, artist and the file hints.
func (db *Database) SearchMappings(query string) ([]models.MappingInfo, error) {
	searchPattern := "%" + query + "%"
	rows, err := db.searchMappingsStmt.Query(searchPattern, searchPattern, searchPattern, searchPattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappingRows(rows)
}

// RemoveMappingByPath deletes the index row for a file that disappeared.
func (db *Database) RemoveMappingByPath(filePath string) error {
	_, err := db.removeMappingStmt.Exec(filePath)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to remove mapping")
	}
	return err
}

// MappingExists reports whether a file path is already indexed.
func (db *Database) MappingExists(filePath string) (bool, error) {
	var count int
	if err := db.mappingExistsStmt.QueryRow(filePath).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close releases the prepared statements and the connection pool.
func (db *Database) Close() error {
	stmts := []*sql.Stmt{
		db.insertMappingStmt,
		db.updateMappingStmt,
		db.getMappingByIDStmt,
		db.mappingExistsStmt,
		db.removeMappingStmt,
		db.searchMappingsStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}

func scanMappingRows(rows *sql.Rows) ([]models.MappingInfo, error) {
	var mappings []models.MappingInfo
	for rows.Next() {
		var info models.MappingInfo
		if err := rows.Scan(
			&info.ID, &info.Title, &info.Artist, &info.GPFile, &info.AudioFile,
			&info.TotalBars, &info.MarkerCount, &info.FilePath, &info.FileSize, &info.CreatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, info)
	}
	return mappings, rows.Err()
}
