package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text        string `json:"text"`
	RequestID   string `json:"requestId"`
	HasDeadline bool   `json:"hasDeadline"`
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer()
	Handle(s, "Echo.Say", func(ctx context.Context, req echoRequest) (*echoResponse, error) {
		if req.Text == "" {
			return nil, fmt.Errorf("%w: text is required", apperrors.ErrInvalidInput)
		}
		_, ok := ctx.Deadline()
		return &echoResponse{Text: req.Text, RequestID: logger.RequestID(ctx), HasDeadline: ok}, nil
	})
	Handle(s, "Echo.Missing", func(ctx context.Context, _ struct{}) (any, error) {
		return nil, fmt.Errorf("%w: abc", apperrors.ErrSessionNotFound)
	})
	Handle(s, "Echo.Crash", func(ctx context.Context, _ struct{}) (any, error) {
		return nil, errors.New("database password leaked in message")
	})
	Handle(s, "Echo.Block", func(ctx context.Context, _ struct{}) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
		assert.ErrorIs(t, <-served, ErrServerClosed)
	})
	return s, ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(logger.WithRequestID(context.Background(), "req-9"), time.Second)
	defer cancel()

	var resp echoResponse
	require.NoError(t, c.Call(ctx, "Echo.Say", echoRequest{Text: "hello"}, &resp))
	assert.Equal(t, echoResponse{Text: "hello", RequestID: "req-9", HasDeadline: true}, resp)

	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoRequest{Text: "again"}, &resp))
	assert.Equal(t, "again", resp.Text)
	assert.False(t, resp.HasDeadline)
}

func TestCallErrorCodes(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)
	ctx := context.Background()

	err := c.Call(ctx, "Echo.Say", echoRequest{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = c.Call(ctx, "Echo.Say", "not an object", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = c.Call(ctx, "Echo.Missing", struct{}{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))

	err = c.Call(ctx, "Echo.Crash", struct{}{}, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInternal, rpcErr.Code)
	assert.NotContains(t, rpcErr.Message, "password")

	err = c.Call(ctx, "Echo.Nope", struct{}{}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeUnimplemented, rpcErr.Code)
}

func TestCallDeadlineRedials(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Call(ctx, "Echo.Block", struct{}{}, nil)
	require.Error(t, err)

	var resp echoResponse
	require.NoError(t, c.Call(context.Background(), "Echo.Say", echoRequest{Text: "back"}, &resp))
	assert.Equal(t, "back", resp.Text)
}

func TestClosedClient(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Call(context.Background(), "Echo.Say", echoRequest{Text: "x"}, nil), ErrClientClosed)
}

func TestMethods(t *testing.T) {
	s, _ := startServer(t)
	assert.ElementsMatch(t, []string{"Echo.Say", "Echo.Missing", "Echo.Crash", "Echo.Block"}, s.Methods())
}

func TestStopEndsServeWithServerClosed(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := NewServer()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		served := make(chan error, 1)
		go func() { served <- s.Serve(ln) }()

		c, err := Dial(context.Background(), ln.Addr().String())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, s.Stop(ctx))
		cancel()
		c.Close()

		select {
		case err := <-served:
			require.ErrorIs(t, err, ErrServerClosed, "run %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: Serve did not return after Stop", i)
		}
	}
}

func TestServeAfterStop(t *testing.T) {
	s := NewServer()
	require.NoError(t, s.Stop(context.Background()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Serve(ln), ErrServerClosed)
}
