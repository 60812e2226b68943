package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "POST /api/v1/chat/messages", "req-1")
	childCtx, child := StartChildSpan(ctx, "chat.send")
	_, grandchild := StartChildSpan(childCtx, "chat.rank")
	grandchild.End()
	child.End()
	root.End()

	if child.TraceID != "req-1" || grandchild.TraceID != "req-1" {
		t.Fatalf("trace id not propagated: %q %q", child.TraceID, grandchild.TraceID)
	}

	var names []string
	var depths []int
	root.Walk(func(s *Span, depth int) {
		names = append(names, s.Name)
		depths = append(depths, depth)
	})
	if strings.Join(names, ",") != "POST /api/v1/chat/messages,chat.send,chat.rank" {
		t.Fatalf("walk order = %v", names)
	}
	if depths[2] != 2 {
		t.Fatalf("depths = %v", depths)
	}
}

func TestDetachedChildSpan(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	if span.TraceID != "" {
		t.Fatalf("trace id = %q", span.TraceID)
	}
	if SpanFromContext(ctx) != span {
		t.Fatal("span not stored in context")
	}
	if SpanFromContext(context.Background()) != nil {
		t.Fatal("expected nil span")
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, root := StartSpan(context.Background(), "root", "t")
	_, ok := StartChildSpan(ctx, "ok")
	ok.End()
	_, bad := StartChildSpan(ctx, "bad")
	bad.SetError(errors.New("upstream down"))
	bad.End()
	root.End()
	root.Log(logger)

	out := buf.String()
	if !strings.Contains(out, "span=bad") || !strings.Contains(out, "upstream down") {
		t.Fatalf("failed span not logged: %s", out)
	}
	if strings.Contains(out, "span=ok") {
		t.Fatalf("healthy span logged at warn: %s", out)
	}
}
