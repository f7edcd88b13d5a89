package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsProgram(t *testing.T) {
	ts := newTestServer(t, testProgram)

	w, err := NewWatcher(ts.Server, "", ts.stdout, ts.stderr)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	// Write then rename so the watcher only ever sees the complete file
	updated := "endpoints:\n  - {method: GET, path: /answer, type: int, body: {int: 99}}\n"
	tmp := filepath.Join(t.TempDir(), "next.yaml")
	if err := os.WriteFile(tmp, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, ts.config.Program); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.Reloads() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if w.Reloads() == 0 {
		t.Fatalf("program was not reloaded; stderr: %s", ts.stderr.String())
	}

	if rec := ts.get("/answer"); rec.Body.String() != "99" {
		t.Errorf("expected reloaded body 99, got %q", rec.Body.String())
	}
}

func TestWatcherReloadsOnceWriteSettles(t *testing.T) {
	ts := newTestServer(t, testProgram)

	w, err := NewWatcher(ts.Server, "", ts.stdout, ts.stderr)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	// Truncate first, then write in place, as some editors do. Reading
	// the empty file would fail to load and leave the old program serving.
	if err := os.WriteFile(ts.config.Program, nil, 0644); err != nil {
		t.Fatal(err)
	}
	updated := "endpoints:\n  - {method: GET, path: /answer, type: int, body: {int: 7}}\n"
	if err := os.WriteFile(ts.config.Program, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.Reloads() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if w.Reloads() == 0 {
		t.Fatal("program was not reloaded")
	}

	// Give a stray second reload time to show up
	time.Sleep(300 * time.Millisecond)
	if n := w.Reloads(); n != 1 {
		t.Errorf("expected one reload, got %d", n)
	}
	if rec := ts.get("/answer"); rec.Body.String() != "7" {
		t.Errorf("expected reloaded body 7, got %q", rec.Body.String())
	}
}

func TestSamePath(t *testing.T) {
	if !samePath("/a/b/../c.yaml", "/a/c.yaml") {
		t.Error("expected cleaned paths to match")
	}
	if samePath("/a/c.yaml", "/a/d.yaml") {
		t.Error("expected different files not to match")
	}
}
