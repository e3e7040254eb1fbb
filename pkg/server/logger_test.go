package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDBLogHandlerStoresRecords(t *testing.T) {
	store := newMemStore()
	jobID := uuid.New()
	var out bytes.Buffer
	next := slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(NewDBLogHandler(store, jobID, next)).With("strategy", "plan")
	logger.WithGroup("search").Info("Search finished",
		"query", "caffeine sleep",
		"wait", 7500*time.Millisecond,
		"error", errors.New("boom"),
		slog.Group("page", "n", 2),
	)
	logger.Debug("Model call finished")

	logs, _ := store.ListLogs(context.Background(), jobID)
	if len(logs) != 1 {
		t.Fatalf("stored %d records, want 1 (debug is not stored)", len(logs))
	}
	got := logs[0]
	if got.Message != "Search finished" || got.Level != "INFO" {
		t.Errorf("record = %+v", got)
	}
	want := map[string]any{
		"strategy":      "plan",
		"search.query":  "caffeine sleep",
		"search.wait":   "7.5s",
		"search.error":  "boom",
		"search.page.n": int64(2),
	}
	for k, v := range want {
		if got.Metadata[k] != v {
			t.Errorf("metadata[%q] = %#v, want %#v", k, got.Metadata[k], v)
		}
	}

	text := out.String()
	if !strings.Contains(text, "Search finished") || !strings.Contains(text, "Model call finished") {
		t.Errorf("records not passed on:\n%s", text)
	}
	if !strings.Contains(text, "search.query=") {
		t.Errorf("group not passed on:\n%s", text)
	}
}

func TestDBLogHandlerAttrsInsideGroup(t *testing.T) {
	store := newMemStore()
	jobID := uuid.New()
	logger := slog.New(NewDBLogHandler(store, jobID, nil))

	logger.WithGroup("run").With("id", 7).Warn("Rate limited")

	logs, _ := store.ListLogs(context.Background(), jobID)
	if len(logs) != 1 {
		t.Fatalf("stored %d records", len(logs))
	}
	if logs[0].Metadata["run.id"] != int64(7) {
		t.Errorf("metadata = %v", logs[0].Metadata)
	}
	if logs[0].Level != "WARN" {
		t.Errorf("level = %q", logs[0].Level)
	}
}
