package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"tabsync/internal/beatsync"
	"tabsync/internal/config"
	"tabsync/internal/library"
	"tabsync/internal/session"
	"tabsync/pkg/models"
)

// newTestServer builds a server over a throwaway library directory with
// auth, ngrok and the file watcher disabled.
func newTestServer(t *testing.T) *SyncServer {
	t.Helper()

	testDir := t.TempDir()
	libraryDir := filepath.Join(testDir, "mappings")
	if err := os.MkdirAll(libraryDir, 0755); err != nil {
		t.Fatalf("Failed to create library directory: %v", err)
	}

	db, err := library.NewDatabase(filepath.Join(testDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(testDir, "test.db")
	cfg.Library.Path = libraryDir
	cfg.Library.WatchForChanges = false
	cfg.Library.ScanOnStartup = false
	cfg.Logging.RequestLogging = false

	srv, err := NewSyncServer(cfg, db)
	if err != nil {
		t.Fatalf("Failed to create sync server: %v", err)
	}
	srv.logger.SetOutput(io.Discard)
	srv.setupRoutes()
	return srv
}

// doRequest runs one request through the full middleware chain. A []byte
// body is sent raw; anything else is JSON-encoded.
func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func sampleDocument(t *testing.T, title string) []byte {
	t.Helper()

	gpFile := "song.gp"
	audioFile := "song.mp3"
	data, err := beatsync.Marshal(&models.SyncMapping{
		Title:     title,
		Artist:    "Test Artist",
		GPFile:    &gpFile,
		AudioFile: &audioFile,
		TotalBars: 4,
		Markers: []models.BeatMarker{
			{Bar: 1, Time: 0},
			{Bar: 2, Time: 2},
			{Bar: 3, Time: 4},
			{Bar: 4, Time: 6},
		},
	})
	if err != nil {
		t.Fatalf("Failed to build sample document: %v", err)
	}
	return data
}

func importSample(t *testing.T, h http.Handler, title string) int {
	t.Helper()

	rr := doRequest(t, h, "POST", "/api/mappings/import", sampleDocument(t, title))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		ID int `json:"id"`
	}
	decodeBody(t, rr, &resp)
	return resp.ID
}

func TestMappingEndpoints(t *testing.T) {
	srv := newTestServer(t)
	h := srv.handler()

	t.Run("ImportAndList", func(t *testing.T) {
		importSample(t, h, "Thunderstruck")

		rr := doRequest(t, h, "GET", "/api/mappings", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}

		var mappings []models.MappingInfo
		decodeBody(t, rr, &mappings)
		if len(mappings) != 1 {
			t.Fatalf("Expected 1 mapping, got %d", len(mappings))
		}
		if mappings[0].Title != "Thunderstruck" {
			t.Errorf("Expected title Thunderstruck, got %s", mappings[0].Title)
		}
		if mappings[0].MarkerCount != 4 {
			t.Errorf("Expected 4 markers, got %d", mappings[0].MarkerCount)
		}
	})

	t.Run("GetMapping", func(t *testing.T) {
		id := importSample(t, h, "Back in Black")

		rr := doRequest(t, h, "GET", "/api/mappings/"+itoa(id), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			ID      int                `json:"id"`
			Mapping models.SyncMapping `json:"mapping"`
		}
		decodeBody(t, rr, &resp)
		if resp.ID != id {
			t.Errorf("Expected id %d, got %d", id, resp.ID)
		}
		if resp.Mapping.Version != beatsync.CurrentVersion {
			t.Errorf("Expected version %d, got %d", beatsync.CurrentVersion, resp.Mapping.Version)
		}
		if len(resp.Mapping.Markers) != 4 {
			t.Errorf("Expected 4 markers, got %d", len(resp.Mapping.Markers))
		}
	})

	t.Run("DownloadMapping", func(t *testing.T) {
		id := importSample(t, h, "Highway to Hell")

		rr := doRequest(t, h, "GET", "/api/mappings/"+itoa(id)+"/download", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}
		if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Highway_to_Hell.tabsync") {
			t.Errorf("Unexpected Content-Disposition: %s", cd)
		}
		if _, err := beatsync.ParseBytes(rr.Body.Bytes()); err != nil {
			t.Errorf("Downloaded document failed to parse: %v", err)
		}
	})

	t.Run("SearchMappings", func(t *testing.T) {
		rr := doRequest(t, h, "GET", "/api/mappings?search=Thunder", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rr.Code)
		}

		var mappings []models.MappingInfo
		decodeBody(t, rr, &mappings)
		if len(mappings) != 1 || mappings[0].Title != "Thunderstruck" {
			t.Errorf("Expected to find Thunderstruck, got %v", mappings)
		}
	})

	t.Run("DeleteMapping", func(t *testing.T) {
		id := importSample(t, h, "Doomed")

		rr := doRequest(t, h, "DELETE", "/api/mappings/"+itoa(id), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		if _, err := os.Stat(filepath.Join(srv.config.Library.Path, "Doomed.tabsync")); !os.IsNotExist(err) {
			t.Error("Expected sync file to be removed")
		}

		rr = doRequest(t, h, "GET", "/api/mappings/"+itoa(id), nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 after delete, got %d", rr.Code)
		}
	})

	t.Run("ImportRejectsMalformed", func(t *testing.T) {
		before := countSyncFiles(t, srv.config.Library.Path)

		rr := doRequest(t, h, "POST", "/api/mappings/import", []byte(`{"title":"broken"}`))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", rr.Code)
		}

		// A rejected import must leave no file behind
		if after := countSyncFiles(t, srv.config.Library.Path); after != before {
			t.Errorf("Expected %d sync files after rejected import, got %d", before, after)
		}
	})

	t.Run("InvalidMappingID", func(t *testing.T) {
		rr := doRequest(t, h, "GET", "/api/mappings/abc", nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", rr.Code)
		}

		var result ValidationResult
		decodeBody(t, rr, &result)
		if result.Valid || len(result.Errors) == 0 {
			t.Fatal("Expected a validation error")
		}
		if result.Errors[0].Code != "INVALID_MAPPING_ID_FORMAT" {
			t.Errorf("Unexpected error code: %s", result.Errors[0].Code)
		}
	})
}

func TestBuilderEndpoints(t *testing.T) {
	srv := newTestServer(t)
	h := srv.handler()

	createBuilder := func(t *testing.T) string {
		t.Helper()
		rr := doRequest(t, h, "POST", "/api/builder", nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", rr.Code)
		}
		var resp struct {
			SessionID string `json:"sessionId"`
		}
		decodeBody(t, rr, &resp)
		return resp.SessionID
	}

	loadFiles := func(t *testing.T, id string) {
		t.Helper()
		rr := doRequest(t, h, "POST", "/api/builder/"+id+"/score-loaded", map[string]interface{}{
			"score":    models.Score{Title: "Test Song", Artist: "Test Artist", TotalBars: 4},
			"filename": "song.gp",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("score-loaded failed: %d %s", rr.Code, rr.Body.String())
		}
		rr = doRequest(t, h, "POST", "/api/builder/"+id+"/audio-ready", map[string]interface{}{
			"duration": 10.0,
			"filename": "song.mp3",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("audio-ready failed: %d %s", rr.Code, rr.Body.String())
		}
	}

	tapAt := func(t *testing.T, id string, pos float64) {
		t.Helper()
		rr := doRequest(t, h, "POST", "/api/builder/"+id+"/position", map[string]interface{}{
			"position": pos,
			"playing":  true,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("position report failed: %d", rr.Code)
		}
		rr = doRequest(t, h, "POST", "/api/builder/"+id+"/tap", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("tap failed: %d", rr.Code)
		}
	}

	t.Run("TapFlow", func(t *testing.T) {
		id := createBuilder(t)

		// Score alone is not enough to start recording
		rr := doRequest(t, h, "POST", "/api/builder/"+id+"/score-loaded", map[string]interface{}{
			"score":    models.Score{TotalBars: 4},
			"filename": "song.gp",
		})
		var status session.BuilderStatus
		decodeBody(t, rr, &status)
		if status.State != "empty" {
			t.Errorf("Expected state empty before audio, got %s", status.State)
		}

		rr = doRequest(t, h, "POST", "/api/builder/"+id+"/audio-ready", map[string]interface{}{
			"duration": 10.0,
			"filename": "song.mp3",
		})
		decodeBody(t, rr, &status)
		if status.State != "ready" || status.NextBar != 1 {
			t.Errorf("Expected ready/bar 1, got %s/bar %d", status.State, status.NextBar)
		}

		doRequest(t, h, "POST", "/api/builder/"+id+"/position", map[string]interface{}{
			"position": 1.25,
			"playing":  true,
		})
		rr = doRequest(t, h, "POST", "/api/builder/"+id+"/tap", nil)
		var tapResp struct {
			Recorded bool                  `json:"recorded"`
			Marker   models.BeatMarker     `json:"marker"`
			Status   session.BuilderStatus `json:"status"`
		}
		decodeBody(t, rr, &tapResp)
		if !tapResp.Recorded {
			t.Fatal("Expected tap to be recorded")
		}
		if tapResp.Marker.Bar != 1 || tapResp.Marker.Time != 1.25 {
			t.Errorf("Unexpected marker: %+v", tapResp.Marker)
		}
		if tapResp.Status.State != "recording" || tapResp.Status.NextBar != 2 {
			t.Errorf("Expected recording/bar 2, got %s/bar %d", tapResp.Status.State, tapResp.Status.NextBar)
		}

		rr = doRequest(t, h, "POST", "/api/builder/"+id+"/undo", nil)
		var undoResp struct {
			Undone bool                  `json:"undone"`
			Status session.BuilderStatus `json:"status"`
		}
		decodeBody(t, rr, &undoResp)
		if !undoResp.Undone || undoResp.Status.MarkerCount != 0 {
			t.Errorf("Expected undo back to zero markers, got %+v", undoResp)
		}
	})

	t.Run("ClearRequiresConfirmation", func(t *testing.T) {
		id := createBuilder(t)
		loadFiles(t, id)
		tapAt(t, id, 0.5)

		rr := doRequest(t, h, "POST", "/api/builder/"+id+"/clear", map[string]interface{}{})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400 without confirmation, got %d", rr.Code)
		}

		rr = doRequest(t, h, "GET", "/api/builder/"+id+"/status", nil)
		var status session.BuilderStatus
		decodeBody(t, rr, &status)
		if status.MarkerCount != 1 {
			t.Errorf("Expected markers untouched after refused clear, got %d", status.MarkerCount)
		}

		rr = doRequest(t, h, "POST", "/api/builder/"+id+"/clear", map[string]interface{}{"confirm": true})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200 with confirmation, got %d", rr.Code)
		}
		decodeBody(t, rr, &status)
		if status.State != "ready" || status.MarkerCount != 0 {
			t.Errorf("Expected ready with no markers, got %s/%d", status.State, status.MarkerCount)
		}
	})

	t.Run("ExportWithoutMarkers", func(t *testing.T) {
		id := createBuilder(t)
		loadFiles(t, id)

		rr := doRequest(t, h, "POST", "/api/builder/"+id+"/export", map[string]interface{}{})
		if rr.Code != http.StatusConflict {
			t.Errorf("Expected status 409 with no markers, got %d", rr.Code)
		}
	})

	t.Run("ExportAndSave", func(t *testing.T) {
		id := createBuilder(t)
		loadFiles(t, id)
		tapAt(t, id, 0.0)
		tapAt(t, id, 2.5)

		rr := doRequest(t, h, "POST", "/api/builder/"+id+"/export", map[string]interface{}{
			"title": "My Export",
			"save":  true,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "My_Export.tabsync") {
			t.Errorf("Unexpected Content-Disposition: %s", cd)
		}

		m, err := beatsync.ParseBytes(rr.Body.Bytes())
		if err != nil {
			t.Fatalf("Exported document failed to parse: %v", err)
		}
		if m.Title != "My Export" || len(m.Markers) != 2 {
			t.Errorf("Unexpected export: title=%s markers=%d", m.Title, len(m.Markers))
		}
		if m.Markers[1].Time != 2.5 {
			t.Errorf("Expected second marker at 2.5, got %v", m.Markers[1].Time)
		}

		// save:true also files the document into the library
		if _, err := os.Stat(filepath.Join(srv.config.Library.Path, "My_Export.tabsync")); err != nil {
			t.Errorf("Expected exported file in library: %v", err)
		}
	})

	t.Run("SessionNotFound", func(t *testing.T) {
		rr := doRequest(t, h, "GET", "/api/builder/does-not-exist/status", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", rr.Code)
		}
	})
}

func TestPlayerEndpoints(t *testing.T) {
	srv := newTestServer(t)
	h := srv.handler()

	mappingID := importSample(t, h, "Player Song")

	createPlayer := func(t *testing.T) string {
		t.Helper()
		rr := doRequest(t, h, "POST", "/api/player", nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", rr.Code)
		}
		var resp struct {
			SessionID string `json:"sessionId"`
		}
		decodeBody(t, rr, &resp)
		return resp.SessionID
	}

	readyPlayer := func(t *testing.T) string {
		t.Helper()
		id := createPlayer(t)
		steps := []struct {
			action string
			body   interface{}
		}{
			{"load", map[string]interface{}{"mappingId": mappingID}},
			{"score-loaded", map[string]interface{}{"score": models.Score{TotalBars: 4}}},
			{"player-ready", map[string]interface{}{"ticks": beatsync.TickMap{
				1: {Start: 0, End: 960},
				2: {Start: 960, End: 1920},
				3: {Start: 1920, End: 2880},
				4: {Start: 2880, End: 3840},
			}}},
			{"audio-ready", map[string]interface{}{"duration": 8.0}},
		}
		for _, step := range steps {
			rr := doRequest(t, h, "POST", "/api/player/"+id+"/"+step.action, step.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("%s failed: %d %s", step.action, rr.Code, rr.Body.String())
			}
		}
		return id
	}

	t.Run("CursorFromPosition", func(t *testing.T) {
		id := readyPlayer(t)

		rr := doRequest(t, h, "POST", "/api/player/"+id+"/position", map[string]interface{}{
			"position": 3.0,
			"playing":  true,
		})
		var frame session.CursorFrame
		decodeBody(t, rr, &frame)
		if frame.Cursor.Bar != 2 {
			t.Errorf("Expected bar 2 at t=3.0, got %d", frame.Cursor.Bar)
		}
		if frame.Cursor.Progress != 0.5 {
			t.Errorf("Expected progress 0.5, got %v", frame.Cursor.Progress)
		}
		if !frame.Cursor.TickKnown || frame.Cursor.Tick != 1440 {
			t.Errorf("Expected tick 1440, got %d (known=%v)", frame.Cursor.Tick, frame.Cursor.TickKnown)
		}
	})

	t.Run("SeekClamped", func(t *testing.T) {
		id := readyPlayer(t)

		rr := doRequest(t, h, "POST", "/api/player/"+id+"/seek", map[string]interface{}{"time": 99.0})
		var frame session.CursorFrame
		decodeBody(t, rr, &frame)
		if frame.Cursor.Time != 8.0 {
			t.Errorf("Expected seek clamped to 8.0, got %v", frame.Cursor.Time)
		}
	})

	t.Run("BarNavigation", func(t *testing.T) {
		id := readyPlayer(t)

		doRequest(t, h, "POST", "/api/player/"+id+"/position", map[string]interface{}{
			"position": 2.5, "playing": true,
		})

		rr := doRequest(t, h, "POST", "/api/player/"+id+"/next-bar", nil)
		var resp struct {
			Moved bool                `json:"moved"`
			Frame session.CursorFrame `json:"frame"`
		}
		decodeBody(t, rr, &resp)
		if !resp.Moved || resp.Frame.SeekTo == nil || *resp.Frame.SeekTo != 4.0 {
			t.Errorf("Expected jump to 4.0, got %+v", resp)
		}
	})

	t.Run("InvalidRate", func(t *testing.T) {
		id := readyPlayer(t)

		rr := doRequest(t, h, "POST", "/api/player/"+id+"/rate", map[string]interface{}{"rate": 5.0})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for rate 5.0, got %d", rr.Code)
		}

		rr = doRequest(t, h, "POST", "/api/player/"+id+"/rate", map[string]interface{}{"rate": 1.5})
		if rr.Code != http.StatusOK {
			t.Errorf("Expected status 200 for rate 1.5, got %d", rr.Code)
		}
	})

	t.Run("KindMismatch", func(t *testing.T) {
		rr := doRequest(t, h, "POST", "/api/builder", nil)
		var resp struct {
			SessionID string `json:"sessionId"`
		}
		decodeBody(t, rr, &resp)

		rr = doRequest(t, h, "GET", "/api/player/"+resp.SessionID+"/status", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 for builder session on player route, got %d", rr.Code)
		}
	})
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func countSyncFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read library directory: %v", err)
	}
	count := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == beatsync.Extension {
			count++
		}
	}
	return count
}
