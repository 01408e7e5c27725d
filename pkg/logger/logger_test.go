package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestFromFallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected a logger")
	}
}

func TestWithRoundTrip(t *testing.T) {
	l := slog.Default().With("k", "v")
	ctx := With(context.Background(), l)
	if From(ctx) != l {
		t.Fatalf("expected the stored logger back")
	}
}
