package kafka

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
	closed    bool
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{drained: make(chan struct{})}
	for i, v := range values {
		r.queue = append(r.queue, kafka.Message{Offset: int64(i), Key: []byte("k"), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

type payload struct {
	DocumentID string `json:"documentId"`
}

func TestPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "report-ingest")

	if err := p.Publish(context.Background(), "doc-1", payload{DocumentID: "doc-1"}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishBatch(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "doc-1" || string(w.msgs[0].Value) != `{"documentId":"doc-1"}` {
		t.Fatalf("message = %s %s", w.msgs[0].Key, w.msgs[0].Value)
	}
}

func TestPublishErrors(t *testing.T) {
	p := newProducer(&fakeWriter{}, "t")
	if err := p.Publish(context.Background(), "k", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}

	boom := errors.New("broker down")
	p = newProducer(&fakeWriter{err: boom}, "t")
	if err := p.Publish(context.Background(), "k", 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishEventSizeLimit(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "report-ingest")

	// Larger than the writer's default 1 MiB batch, within the API body limit.
	text := strings.Repeat("x", 3<<19)
	if err := p.Publish(context.Background(), "doc-1", payload{DocumentID: text}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	err := p.Publish(context.Background(), "doc-2", payload{DocumentID: strings.Repeat("x", MaxMessageBytes)})
	if apperrors.HTTPStatusCode(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("err = %v, want 413", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
}

func runConsumer(t *testing.T, r *fakeReader, handler MessageHandler) {
	t.Helper()
	c := newConsumer(r, "t", handler)
	c.retry.InitialDelay = 1
	c.retry.MaxDelay = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	<-r.drained
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestConsumerCommitsHandledAndPoison(t *testing.T) {
	r := newFakeReader(`{"documentId":"a"}`, `not json`, `{"documentId":"c"}`)
	var seen []string
	runConsumer(t, r, func(_ context.Context, _, value []byte) error {
		p, err := DecodeJSON[payload](value)
		if err != nil {
			return err
		}
		seen = append(seen, p.DocumentID)
		return nil
	})

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "c" {
		t.Fatalf("seen = %v", seen)
	}
	if len(r.committed) != 3 {
		t.Fatalf("committed = %v", r.committed)
	}
	if !r.closed {
		t.Fatal("reader not closed")
	}
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	r := newFakeReader(`{}`, `{}`)
	attempts := map[int64]int{}
	var current int64
	runConsumer(t, r, func(_ context.Context, _, value []byte) error {
		attempts[current]++
		if current == 0 && attempts[0] < 2 {
			return errors.New("store unavailable")
		}
		if current == 1 {
			return errors.New("always failing")
		}
		current++
		return nil
	})

	if attempts[0] != 2 {
		t.Fatalf("attempts for first message = %d", attempts[0])
	}
	if attempts[1] != 3 {
		t.Fatalf("attempts for second message = %d", attempts[1])
	}
	if len(r.committed) != 1 || r.committed[0] != 0 {
		t.Fatalf("committed = %v", r.committed)
	}
}

func TestDecodeJSONPoison(t *testing.T) {
	if _, err := DecodeJSON[payload]([]byte("{")); !errors.Is(err, ErrPoison) {
		t.Fatalf("err = %v", err)
	}
}

func TestPingWithoutBrokers(t *testing.T) {
	if err := Ping(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty broker list")
	}
}
