package data_test

import (
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/trading-backend/internal/data"
	"go.uber.org/zap"
)

type sample struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store, err := data.New(zap.NewNop(), path, 0o600)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := store.Save(&sample{Count: 3, Name: "abc"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var loaded sample
	ok, err := store.Load(&loaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected Load to report an existing file")
	}
	if loaded.Count != 3 || loaded.Name != "abc" {
		t.Errorf("unexpected loaded value: %+v", loaded)
	}
}

func TestLoadMissingFileLeavesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	store, err := data.New(zap.NewNop(), path, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dst := sample{Count: 42}
	ok, err := store.Load(&dst)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatal("expected Load to report no existing file")
	}
	if dst.Count != 42 {
		t.Errorf("default value should survive a missing-file load, got %+v", dst)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := data.New(zap.NewNop(), path, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := store.Save(&sample{Count: 1}); err != nil {
		t.Fatalf("Save 1: %v", err)
	}
	if err := store.Save(&sample{Count: 2}); err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	var loaded sample
	if _, err := store.Load(&loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Count != 2 {
		t.Errorf("expected latest save to win, got %+v", loaded)
	}
}
