package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestLoggerFromContextFallsBack(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Error("expected the default logger when none was attached")
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if LoggerFromContext(ctx) != logger {
		t.Error("expected the attached logger back")
	}
}

func TestWithEnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = With(ctx, "download_id", 42)

	LoggerFromContext(ctx).Info("progress")

	if !bytes.Contains(buf.Bytes(), []byte(`"download_id":42`)) {
		t.Errorf("expected enriched attribute in output, got %s", buf.String())
	}
}
