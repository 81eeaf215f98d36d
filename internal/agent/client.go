package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/devprof/internal/protocol"
	"github.com/coral-mesh/devprof/internal/retry"
	"github.com/coral-mesh/devprof/pkg/version"
)

// Options configures a Client.
type Options struct {
	// DialTimeout bounds each websocket handshake attempt.
	DialTimeout time.Duration
	// Retry controls redialing when the handshake fails.
	Retry retry.Config
	// Logger receives connection and protocol diagnostics.
	Logger zerolog.Logger
}

// DefaultOptions returns options suitable for a local agent.
func DefaultOptions() Options {
	return Options{
		DialTimeout: 5 * time.Second,
		Retry: retry.Config{
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Jitter:         0.1,
		},
		Logger: zerolog.Nop(),
	}
}

type response struct {
	result json.RawMessage
	err    *protocol.ErrorPayload
}

// Client is a devtools protocol connection to a remote agent.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	nextID atomic.Int64

	writeMu sync.Mutex

	mu         sync.Mutex
	pending    map[int64]chan response
	dispatcher Dispatcher
	closed     bool
	readErr    error

	done chan struct{}
}

// Dial connects to the agent's websocket endpoint, retrying failed
// handshakes according to opts.Retry.
func Dial(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.DialTimeout

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	var conn *websocket.Conn
	err := retry.Do(ctx, opts.Retry, func() error {
		c, _, err := dialer.DialContext(ctx, endpoint, header)
		if err != nil {
			opts.Logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Agent dial attempt failed")
			return err
		}
		conn = c
		return nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent %s: %w", endpoint, err)
	}

	return NewClient(conn, opts.Logger), nil
}

// NewClient wraps an established websocket connection and starts reading.
func NewClient(conn *websocket.Conn, logger zerolog.Logger) *Client {
	c := &Client{
		conn:    conn,
		logger:  logger.With().Str("component", "agent_client").Logger(),
		pending: make(map[int64]chan response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetDispatcher registers the receiver of inbound Profiler events. Events
// arriving while no dispatcher is set are dropped.
func (c *Client) SetDispatcher(d Dispatcher) {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
}

// Profiler returns the Profiler domain API over this connection.
func (c *Client) Profiler() *ProfilerAPI {
	return NewProfilerAPI(c)
}

// Done is closed once the connection has stopped reading.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Call sends a request and waits for its response.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	msg := protocol.Message{
		ID:     c.nextID.Add(1),
		Method: method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
		msg.Params = raw
	}

	ch := make(chan response, 1)
	c.mu.Lock()
	if c.closed || c.readErr != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	if err := c.write(msg); err != nil {
		c.forget(msg.ID)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(msg.ID)
		return ctx.Err()
	case <-c.done:
		c.forget(msg.ID)
		return ErrClosed
	case resp := <-ch:
		if resp.err != nil {
			return &ResponseError{Method: method, Code: resp.err.Code, Message: resp.err.Message}
		}
		if result == nil || len(resp.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

// Err returns the error that stopped the reader, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Client) write(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closing := c.closed
			if !closing {
				c.readErr = err
			}
			c.mu.Unlock()

			if !closing && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Agent connection lost")
			}
			return
		}

		if msg.ID != 0 {
			c.deliver(msg)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) deliver(msg protocol.Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Int64("id", msg.ID).Msg("Response for unknown request")
		return
	}
	ch <- response{result: msg.Result, err: msg.Error}
}

func (c *Client) dispatch(msg protocol.Message) {
	c.mu.Lock()
	d := c.dispatcher
	c.mu.Unlock()

	if d == nil {
		return
	}

	handled, err := Dispatch(d, msg.Method, msg.Params)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", msg.Method).Msg("Dropping malformed event")
		return
	}
	if !handled {
		c.logger.Debug().Str("method", msg.Method).Msg("Ignoring event")
	}
}
