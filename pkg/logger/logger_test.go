package logger

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	// Test development mode
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize development logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}

	// Test production mode
	err = Init()
	if err != nil {
		t.Fatalf("failed to initialize production logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger = Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

// Basic logging test (slog-backed; no Sugar)
func TestLoggerBasic(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil")
	}

	ctx := context.Background()
	logger.Info(ctx, "test message", String("k", "v"))
}

func TestLoggerNamed(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	ctx := context.Background()
	namedLogger.Info(ctx, "test message")
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	setOutput(&buf)
	defer setOutput(os.Stdout)

	if err := SetFormat("json"); err != nil {
		t.Fatalf("json format rejected: %v", err)
	}
	defer func() { _ = SetFormat("text") }()

	Named("trainer").Info(context.Background(), "run published",
		Int64("version", 3), Bool("degenerate", false), Duration("took", time.Second))

	out := buf.String()
	if !strings.Contains(out, `"msg":"run published"`) {
		t.Fatalf("expected json output, got %q", out)
	}
	if !strings.Contains(out, `"version":3`) {
		t.Fatalf("expected grouped version field, got %q", out)
	}
	if !strings.Contains(out, `"source":`) {
		t.Fatalf("expected caller source, got %q", out)
	}

	if err := SetFormat("xml"); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestSetLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q rejected: %v", lvl, err)
		}
	}
	if err := SetLevelString("loud"); err == nil {
		t.Error("expected unknown level to fail")
	}
	_ = SetLevelString("info")
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	setOutput(&buf)
	defer setOutput(os.Stdout)
	if err := SetFormat("json"); err != nil {
		t.Fatalf("json format rejected: %v", err)
	}
	defer func() { _ = SetFormat("text") }()

	ctx := WithFields(context.Background(), RequestID("r-1"))
	ctx = WithFields(ctx, Domain("pharma"))
	if got := len(fieldsFrom(ctx)); got != 2 {
		t.Fatalf("expected 2 carried fields, got %d", got)
	}
	if WithFields(ctx) != ctx {
		t.Fatal("adding no fields should return the same context")
	}

	Get().With(String("component", "ranker")).Warn(ctx, "filter failed", Version(4))

	out := buf.String()
	for _, want := range []string{`"request_id":"r-1"`, `"domain":"pharma"`, `"component":"ranker"`, `"version":4`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %q", want, out)
		}
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected caller to point at the test, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	setOutput(&buf)
	defer setOutput(os.Stdout)
	if err := SetLevelString("error"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = SetLevelString("info") }()

	Get().Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info entry written at error level: %q", buf.String())
	}
}
