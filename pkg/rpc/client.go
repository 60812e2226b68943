package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/esgpulse/esg-analytics/pkg/logger"
)

// ErrClientClosed is returned by Call after Close.
var ErrClientClosed = errors.New("rpc: client closed")

// Client issues calls over a single connection, one at a time. A transport
// failure drops the connection and the next Call redials.
type Client struct {
	addr   string
	dialer net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	enc    *json.Encoder
	dec    *json.Decoder
	nextID uint64
	closed bool
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	c := &Client{addr: addr, dialer: net.Dialer{Timeout: 5 * time.Second}}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.dec = json.NewDecoder(conn)
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Call invokes method with params and decodes the result into result, which
// may be nil. The context deadline travels with the request; cancelling ctx
// aborts the call and drops the connection. Safe for concurrent use.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	c.nextID++
	req := Request{
		ID:        strconv.FormatUint(c.nextID, 10),
		Method:    method,
		Params:    raw,
		RequestID: logger.RequestID(ctx),
	}
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		req.DeadlineMs = deadline.UnixMilli()
	}
	_ = c.conn.SetDeadline(deadline)

	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.enc.Encode(req); err != nil {
		c.drop()
		return c.transportErr(ctx, "sending request", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		c.drop()
		return c.transportErr(ctx, "reading response", err)
	}
	if resp.ID != req.ID {
		c.drop()
		return fmt.Errorf("rpc: response id %q for request %q", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}

func (c *Client) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", op, c.addr, ctxErr)
	}
	return fmt.Errorf("%s %s: %w", op, c.addr, err)
}

// Close closes the connection. Further calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
