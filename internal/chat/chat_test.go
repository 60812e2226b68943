package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/esgpulse/esg-analytics/internal/document"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = "Our climate plan cut carbon emissions by twelve percent. " +
	"The board added two independent directors. " +
	"Employee safety training reached every site. " +
	"Renewable energy now powers half of our plants."

type fakeResponder struct {
	answer    string
	err       error
	question  string
	passages  []string
	callCount int
}

type staticResponder string

func (r staticResponder) Answer(context.Context, string, []string) (string, error) {
	return string(r), nil
}

func (f *fakeResponder) Answer(_ context.Context, question string, passages []string) (string, error) {
	f.callCount++
	f.question = question
	f.passages = passages
	return f.answer, f.err
}

type tick struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tick) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func setup(t *testing.T, opts ...Option) (*Service, *Session) {
	t.Helper()
	store := document.NewMemoryStore()
	ix := document.NewIndexer(store, document.WithChunkSize(60))
	_, err := ix.Ingest(context.Background(), "doc-1", report, 0)
	require.NoError(t, err)

	clock := &tick{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	svc := NewService(NewMemoryStore(), document.NewRanker(store, nil), opts...)
	session, err := svc.Start(context.Background(), "doc-1")
	require.NoError(t, err)
	return svc, session
}

func TestSendAnswersFromRelevantChunks(t *testing.T) {
	responder := &fakeResponder{answer: "Emissions fell 12%."}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc, session := setup(t, WithResponder(responder), WithMetrics(m))

	reply, err := svc.Send(context.Background(), session.ID, "carbon emissions")
	require.NoError(t, err)

	assert.Equal(t, "Emissions fell 12%.", reply.Response)
	assert.Equal(t, "carbon emissions", responder.question)
	require.NotEmpty(t, responder.passages)
	assert.Contains(t, responder.passages[0], "carbon emissions")
	assert.LessOrEqual(t, len(reply.RelevantChunks), ContextChunks)
	assert.Equal(t, 1, reply.ChunkCount)
	assert.True(t, strings.HasSuffix(reply.RelevantChunks[0].Content, "..."))
	assert.Equal(t, document.SectionEnvironmental, reply.RelevantChunks[0].Section)
	assert.Equal(t, 1, reply.RelevantChunks[0].Page)

	require.Len(t, reply.Session.Messages, 2)
	assert.Equal(t, RoleUser, reply.Session.Messages[0].Role)
	assert.Equal(t, "carbon emissions", reply.Session.Messages[0].Content)
	assert.Equal(t, RoleAssistant, reply.Session.Messages[1].Role)
	assert.Equal(t, reply.Session.Messages[1].Timestamp, reply.Session.UpdatedAt)
	assert.True(t, reply.Session.UpdatedAt.After(reply.Session.CreatedAt))
}

func TestSendFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		responder Responder
		want      string
	}{
		{"no responder", nil, NoResponderReply},
		{"empty answer", &fakeResponder{answer: "   "}, NotFoundReply},
		{"responder error", &fakeResponder{err: apperrors.ErrUpstream}, ErrorReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.responder != nil {
				opts = append(opts, WithResponder(tt.responder))
			}
			svc, session := setup(t, opts...)
			reply, err := svc.Send(context.Background(), session.ID, "board")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Response)
			assert.Equal(t, tt.want, reply.Session.Messages[1].Content)
		})
	}
}

func TestSendUnknownSession(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Send(context.Background(), "missing", "hello")
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
}

func TestSendRejectsBlankMessage(t *testing.T) {
	svc, session := setup(t)
	_, err := svc.Send(context.Background(), session.ID, "  ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	got, err := svc.Session(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestStartRequiresDocument(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Start(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSessionsSummaries(t *testing.T) {
	svc, first := setup(t, WithResponder(&fakeResponder{answer: "ok"}))
	second, err := svc.Start(context.Background(), "doc-2")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), first.ID, "safety")
	require.NoError(t, err)

	list, err := svc.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, "doc-2", list[1].DocumentID)
	assert.Zero(t, list[1].MessageCount)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Session{ID: "s1", DocumentID: "d"}))
	assert.True(t, errors.Is(store.Create(ctx, &Session{ID: "s1"}), apperrors.ErrInvalidInput))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	got.Messages = append(got.Messages, Message{ID: "m"})

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, again.Messages)
}

func TestConcurrentSends(t *testing.T) {
	svc, session := setup(t, WithResponder(staticResponder("ok")))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Send(context.Background(), session.ID, "energy"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	got, err := svc.Session(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 20)
}

func TestSnippetize(t *testing.T) {
	assert.Equal(t, "short...", Snippetize("short"))
	long := strings.Repeat("x", 250)
	assert.Equal(t, strings.Repeat("x", 200)+"...", Snippetize(long))
}
