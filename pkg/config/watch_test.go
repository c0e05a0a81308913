package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/chrysalis/pkg/ingest/promotion"
)

func TestWatchThresholdsFile_LoadsInitialContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.json")
	writeThresholds(t, path, promotion.Thresholds{AddedMajorPct: 0.5})

	received := make(chan promotion.Thresholds, 1)
	watcher, err := WatchThresholdsFile(path, nil, func(t promotion.Thresholds) { received <- t })
	if err != nil {
		t.Fatalf("WatchThresholdsFile: %v", err)
	}
	defer watcher.Close()

	select {
	case got := <-received:
		if got.AddedMajorPct != 0.5 {
			t.Errorf("AddedMajorPct = %v, want 0.5", got.AddedMajorPct)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial thresholds load")
	}
}

func TestWatchThresholdsFile_MissingFileDoesNotFireOrError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	received := make(chan promotion.Thresholds, 1)
	watcher, err := WatchThresholdsFile(path, nil, func(t promotion.Thresholds) { received <- t })
	if err != nil {
		t.Fatalf("WatchThresholdsFile: %v", err)
	}
	defer watcher.Close()

	select {
	case <-received:
		t.Fatal("onChange fired for a nonexistent file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchThresholdsFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.json")
	writeThresholds(t, path, promotion.Thresholds{AddedMajorPct: 0.1})

	received := make(chan promotion.Thresholds, 2)
	watcher, err := WatchThresholdsFile(path, nil, func(t promotion.Thresholds) { received <- t })
	if err != nil {
		t.Fatalf("WatchThresholdsFile: %v", err)
	}
	defer watcher.Close()

	<-received // drain the initial load

	writeThresholds(t, path, promotion.Thresholds{AddedMajorPct: 0.9})

	select {
	case got := <-received:
		if got.AddedMajorPct != 0.9 {
			t.Errorf("AddedMajorPct = %v, want 0.9", got.AddedMajorPct)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload after write")
	}
}

func writeThresholds(t *testing.T, path string, thresholds promotion.Thresholds) {
	t.Helper()
	data, err := json.Marshal(thresholds)
	if err != nil {
		t.Fatalf("marshal thresholds: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write thresholds file: %v", err)
	}
}
