package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "imagedex.log" {
		t.Errorf("DefaultLogPath should end with imagedex.log, got: %s", path)
	}
	if !strings.Contains(path, filepath.Join(".imagedex", "logs")) {
		t.Errorf("DefaultLogPath should live under .imagedex/logs, got: %s", path)
	}
}

func TestConfigs(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 || !cfg.WriteToStderr {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if DebugConfig().Level != "debug" {
		t.Error("DebugConfig should log at debug")
	}
	serve := ServeConfig("warn")
	if serve.WriteToStderr {
		t.Error("ServeConfig must not write to stderr")
	}
	if serve.Level != "warn" {
		t.Errorf("expected level warn, got %s", serve.Level)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{Level: "info", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("hidden_event")
	logger.Info("index_started", "workers", 4)
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "hidden_event") {
		t.Error("debug record written at info level")
	}
	entry := ParseEntry(strings.TrimSpace(content))
	if !entry.Valid || entry.Msg != "index_started" || entry.Attrs["workers"] != float64(4) {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"DEBUG":   "DEBUG",
		"info":    "INFO",
		" warn ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"unknown": "INFO",
		"":        "INFO",
	}
	for input, want := range tests {
		if got := ParseLevel(input).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestFindLogFile(t *testing.T) {
	if _, err := FindLogFile("/nonexistent/path/to/log.log"); err == nil {
		t.Error("expected error for missing explicit file")
	}

	path := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	found, err := FindLogFile(path)
	if err != nil || found != path {
		t.Errorf("FindLogFile(%s) = %s, %v", path, found, err)
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "imagedex.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	// Four writes of ~600KB against a 1MB limit rotate three times
	chunk := []byte(strings.Repeat("x", 600*1024) + "\n")
	for i := 0; i < 4; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	for _, name := range []string{"imagedex.log", "imagedex.log.1", "imagedex.log.2"} {
		if _, err := os.Stat(filepath.Join(filepath.Dir(logPath), name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotation kept more files than maxFiles")
	}
}

func TestRotatingWriter_OversizedFirstWriteDoesNotRotate(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "imagedex.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Close() }()

	if _, err := w.Write(make([]byte, 2<<20)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("an empty file should not be rotated")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "imagedex.log")
	w, err := NewRotatingWriter(logPath, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	w.SetImmediateSync(false)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "worker=%d item=%d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	_ = w.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 400 {
		t.Errorf("expected 400 lines, got %d", lines)
	}
}

func TestParseEntry(t *testing.T) {
	entry := ParseEntry(`{"time":"2026-01-15T10:30:45.123Z","level":"WARN","msg":"index_item_failed","item":"img-9"}`)
	if !entry.Valid {
		t.Fatal("expected valid entry")
	}
	if entry.Level != "WARN" || entry.Msg != "index_item_failed" || entry.Attrs["item"] != "img-9" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if _, ok := entry.Attrs["msg"]; ok {
		t.Error("standard keys must not appear in attrs")
	}
	if entry.Time.Minute() != 30 {
		t.Errorf("time not parsed: %v", entry.Time)
	}

	raw := ParseEntry("plain text")
	if raw.Valid || raw.Raw != "plain text" {
		t.Errorf("unexpected raw entry: %+v", raw)
	}
}

func TestViewer_Matches(t *testing.T) {
	debug := ParseEntry(`{"level":"DEBUG","msg":"geo_search_complete"}`)
	warn := ParseEntry(`{"level":"WARN","msg":"index_item_failed","item":"a"}`)
	plain := ParseEntry("not json")

	v := NewViewer(ViewerConfig{Level: "info"}, nil)
	if v.Matches(debug) || !v.Matches(warn) || v.Matches(plain) {
		t.Error("level filter misapplied")
	}

	v = NewViewer(ViewerConfig{Event: "index_"}, nil)
	if v.Matches(debug) || !v.Matches(warn) {
		t.Error("event filter misapplied")
	}

	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`json`)}, nil)
	if !v.Matches(plain) || v.Matches(warn) {
		t.Error("pattern filter misapplied")
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, nil)
	entry := ParseEntry(`{"time":"2026-01-15T10:30:45.123Z","level":"INFO","msg":"index_complete","skipped":1,"processed":10}`)

	got := v.FormatEntry(entry)
	want := "10:30:45.123 INFO  index_complete processed=10 skipped=1"
	if got != want {
		t.Errorf("FormatEntry = %q, want %q", got, want)
	}

	if got := v.FormatEntry(ParseEntry("garbage")); got != "garbage" {
		t.Errorf("invalid entries should be raw, got %q", got)
	}
}

func TestViewer_Tail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagedex.log")
	var b strings.Builder
	for i := 0; i < 10; i++ {
		level := "INFO"
		if i%2 == 1 {
			level = "ERROR"
		}
		fmt.Fprintf(&b, `{"level":%q,"msg":"event_%d"}`+"\n", level, i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := NewViewer(ViewerConfig{Level: "error"}, nil).Tail(path, 3)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Msg)
	}
	if strings.Join(msgs, ",") != "event_5,event_7,event_9" {
		t.Errorf("unexpected tail: %v", msgs)
	}

	if _, err := NewViewer(ViewerConfig{}, nil).Tail(filepath.Join(t.TempDir(), "missing"), 3); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestViewer_Print(t *testing.T) {
	var out strings.Builder
	v := NewViewer(ViewerConfig{NoColor: true}, &out)
	v.Print([]Entry{ParseEntry("one"), ParseEntry("two")})
	if out.String() != "one\ntwo\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestViewer_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagedex.log")
	if err := os.WriteFile(path, []byte(`{"level":"INFO","msg":"old"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 4)
	v := NewViewer(ViewerConfig{PollInterval: 10 * time.Millisecond}, nil)
	done := make(chan error, 1)
	go func() {
		done <- v.Follow(ctx, path, func(e Entry) { got <- e.Msg })
	}()

	// Let Follow seek to the end before appending
	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"level":"INFO","msg":"new"}` + "\n")
	_ = f.Close()

	select {
	case msg := <-got:
		if msg != "new" {
			t.Errorf("expected only new lines, got %q", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}
