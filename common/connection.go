package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"github.com/liuxd6825/cdptab/log"
)

const (
	wsWriteBufferSize    = 1 << 20
	wsHandshakeTimeout   = 30 * time.Second
	wsCloseWriteDeadline = 2 * time.Second
)

var _ cdp.Executor = &Connection{}

/*
Connection is a CDP WebSocket connection to a single tab.

Every command gets an id from a per-connection counter and a one-shot
channel in the pending map. A single receive loop reads all frames:

  - a frame with an id completes the pending command with that id, or is
    dropped when nobody waits for it;
  - a frame with a method and no id is an event and is dropped.

Writes are serialized, so a Connection may be used from several
goroutines, though the controller issues one command at a time.
*/
type Connection struct {
	wsURL  string
	logger *log.Logger
	conn   *websocket.Conn

	msgID   int64
	writeMu sync.Mutex
	// Reuse the easyjson structs to avoid allocs per Read/Write.
	encoder jwriter.Writer
	decoder jlexer.Lexer

	pendingMu sync.Mutex
	pending   map[int64]chan *cdproto.Message
	closed    bool
	err       error // why the connection ended; set before done is closed

	shutdownOnce sync.Once
	done         chan struct{}
	recvDone     chan struct{}
}

// NewConnection dials the tab's WebSocket debugger URL.
func NewConnection(ctx context.Context, wsURL string, logger *log.Logger) (*Connection, error) {
	wsd := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
		WriteBufferSize:  wsWriteBufferSize,
	}

	conn, resp, err := wsd.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrConnectionFailed, wsURL, err)
	}

	c := &Connection{
		wsURL:    wsURL,
		logger:   logger,
		conn:     conn,
		pending:  make(map[int64]chan *cdproto.Message),
		done:     make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	go c.recvLoop()

	return c, nil
}

// OpenConnection dials wsURL and enables the Runtime, Page and Network
// domains so the tab is ready for commands.
func OpenConnection(ctx context.Context, wsURL string, logger *log.Logger) (*Connection, error) {
	c, err := NewConnection(ctx, wsURL, logger)
	if err != nil {
		return nil, err
	}
	if err := c.enableDomains(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

func (c *Connection) enableDomains(ctx context.Context) error {
	cctx := cdp.WithExecutor(ctx, c)
	if err := runtime.Enable().Do(cctx); err != nil {
		return fmt.Errorf("enabling runtime domain: %w", err)
	}
	if err := page.Enable().Do(cctx); err != nil {
		return fmt.Errorf("enabling page domain: %w", err)
	}
	if err := network.Enable().Do(cctx); err != nil {
		return fmt.Errorf("enabling network domain: %w", err)
	}
	return nil
}

// URL returns the WebSocket URL the connection was dialed with.
func (c *Connection) URL() string {
	return c.wsURL
}

// Done is closed once the connection has ended.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Execute implements cdp.Executor and performs a synchronous send and receive.
func (c *Connection) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
	}

	msg, err := c.roundTrip(ctx, method, buf)
	if err != nil {
		return err
	}
	if res != nil && len(msg.Result) > 0 {
		if err := easyjson.Unmarshal(msg.Result, res); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// Send issues an untyped command. params may be nil or anything
// encoding/json can marshal. The raw result is returned.
func (c *Connection) Send(ctx context.Context, method string, params any) (easyjson.RawMessage, error) {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("encoding %s params: %w", method, err)
		}
	}

	msg, err := c.roundTrip(ctx, method, buf)
	if err != nil {
		return nil, err
	}
	return msg.Result, nil
}

func (c *Connection) roundTrip(ctx context.Context, method string, params []byte) (*cdproto.Message, error) {
	id := atomic.AddInt64(&c.msgID, 1)
	ch := make(chan *cdproto.Message, 1)

	c.pendingMu.Lock()
	if c.closed {
		// err tells an orderly Close apart from a dropped socket.
		reason := c.err
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("sending %s: %w", method, reason)
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: params,
	}
	if err := c.write(msg); err != nil {
		c.handleIOError(err)
		return nil, fmt.Errorf("sending %s: %w", method, c.closeErr())
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &CommandError{
				Method:  method,
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
			}
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", method, ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("waiting for %s: %w", method, c.closeErr())
	}
}

func (c *Connection) write(msg *cdproto.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.encoder = jwriter.Writer{}
	msg.MarshalEasyJSON(&c.encoder)
	if err := c.encoder.Error; err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	buf, err := c.encoder.BuildBytes()
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	c.logger.Debugf("cdp:send", "-> %s", buf)
	return c.conn.WriteMessage(websocket.TextMessage, buf)
}

func (c *Connection) recvLoop() {
	defer close(c.recvDone)

	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.handleIOError(err)
			return
		}

		c.logger.Debugf("cdp:recv", "<- %s", buf)

		var msg cdproto.Message
		c.decoder = jlexer.Lexer{Data: buf}
		msg.UnmarshalEasyJSON(&c.decoder)
		if err := c.decoder.Error(); err != nil {
			c.logger.Errorf("cdp", "ignoring undecodable message: %v", err)
			continue
		}

		switch {
		case msg.ID != 0:
			c.resolve(&msg)
		case msg.Method != "":
			c.logger.Tracef("cdp:event", "method:%s", msg.Method)
		default:
			c.logger.Errorf("cdp", "ignoring malformed incoming message (missing id or method): %s", buf)
		}
	}
}

func (c *Connection) resolve(msg *cdproto.Message) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debugf("cdp", "dropping response for unknown id %d", msg.ID)
		return
	}
	select {
	case ch <- msg:
	default:
		c.logger.Debugf("cdp", "dropping duplicate response for id %d", msg.ID)
	}
}

func (c *Connection) handleIOError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Errorf("cdp", "connection to %s lost: %v", c.wsURL, err)
	}
	c.shutdown(fmt.Errorf("%w: %w", ErrConnectionFailed, err), false)
}

func (c *Connection) shutdown(reason error, sendClose bool) {
	c.shutdownOnce.Do(func() {
		c.pendingMu.Lock()
		c.closed = true
		c.err = reason
		c.pendingMu.Unlock()

		if sendClose {
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsCloseWriteDeadline),
			)
			c.writeMu.Unlock()
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debugf("cdp", "writing close frame: %v", err)
			}
		}
		_ = c.conn.Close()
		close(c.done)
	})
}

func (c *Connection) closeErr() error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.err == nil {
		return ErrNotConnected
	}
	return c.err
}

// Close closes the connection and waits for the receive loop to exit.
// It is safe to call more than once. Commands sent afterwards fail with
// ErrNotConnected.
func (c *Connection) Close() {
	c.shutdown(ErrNotConnected, true)
	<-c.recvDone
}
