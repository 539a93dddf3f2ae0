// Package conn drives a single client connection end to end: the HTTP
// upgrade handshake (spec §4.2-§4.4), then the WebSocket frame loop and its
// JSON envelope protocol (spec §4.5, §6), generalizing the teacher's
// handleConnection (server.go) from a fixed echo responder to one backed by
// a shared fanout.Table.
package conn

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pepnova/wsgate/internal/fanout"
	"github.com/pepnova/wsgate/internal/handshake"
	"github.com/pepnova/wsgate/internal/httpmsg"
	"github.com/pepnova/wsgate/internal/wireenv"
	"github.com/pepnova/wsgate/internal/wserr"
	"github.com/pepnova/wsgate/internal/wsframe"
)

const (
	readBufSize = 4096

	// idleTimeout bounds how long a connection may sit without making read
	// or write progress, per spec §5: "Each transport has a 60 s read/write
	// inactivity timeout."
	idleTimeout      = 60 * time.Second
	readIdleTimeout  = idleTimeout
	writeIdleTimeout = idleTimeout

	// pingInterval is how often an established connection is probed with a
	// PING, per the supplemented keepalive feature. The timer is not reset
	// by client traffic, so PINGs are sent on a fixed period.
	pingInterval = 30 * time.Second
)

var nextID uint64

// Table is the subset of *fanout.Table a connection needs.
type Table interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string, sock fanout.Socket) error
	Unsubscribe(ctx context.Context, channel string, sock fanout.Socket) error
	UnsubscribeAll(ctx context.Context, sock fanout.Socket) error
}

// Conn wraps one client's net.Conn, its HTTP/WebSocket state machines, and
// its membership in the shared fan-out table. It implements fanout.Socket.
type Conn struct {
	id     uint64
	nc     net.Conn
	reader *bufio.Reader
	log    *slog.Logger
	table  Table

	engine  *wsframe.Engine
	headBuf []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
}

// New wraps an accepted net.Conn. The caller must invoke Serve to run it.
func New(nc net.Conn, table Table, log *slog.Logger) *Conn {
	id := atomic.AddUint64(&nextID, 1)
	return &Conn{
		id:     id,
		nc:     nc,
		reader: bufio.NewReader(nc),
		log:    log.With("conn", id, "remote", nc.RemoteAddr().String()),
		table:  table,
		engine: wsframe.New(),
	}
}

// ID implements fanout.Socket.
func (c *Conn) ID() uint64 { return c.id }

// SendText implements fanout.Socket by framing and writing a text message.
// It is safe to call from the Redis receive goroutine, concurrently with
// Serve's own writes, hence the dedicated write mutex.
func (c *Conn) SendText(payload []byte) {
	c.writeOut(wsframe.EncodeTextFrame(payload))
}

func (c *Conn) writeOut(out []byte) {
	if len(out) == 0 || c.closed.Load() {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.nc.SetWriteDeadline(time.Now().Add(writeIdleTimeout))
	if _, err := c.nc.Write(out); err != nil {
		c.log.Debug("write failed", "err", err)
		c.closeNow()
	}
}

// Serve performs the handshake and then runs the frame loop until the
// connection closes or ctx is cancelled. It always tears down the
// connection's fan-out subscriptions before returning (spec §4.8).
func (c *Conn) Serve(ctx context.Context) {
	defer c.closeNow()

	if err := c.doHandshake(); err != nil {
		c.log.Debug("handshake failed", "err", err)
		return
	}

	c.engine.FinishHandshake()
	c.runFrameLoop(ctx)
}

func (c *Conn) doHandshake() error {
	buf := make([]byte, readBufSize)
	for {
		_ = c.nc.SetReadDeadline(time.Now().Add(readIdleTimeout))
		n, err := c.reader.Read(buf)
		if n > 0 {
			c.headBuf = append(c.headBuf, buf[:n]...)
			req, consumed, perr := httpmsg.ReadRequest(c.headBuf)
			if perr == httpmsg.ErrIncomplete {
				continue
			}
			if perr != nil {
				return perr
			}
			result := handshake.Negotiate(req)
			var out bytes.Buffer
			httpmsg.WriteResponse(&out, result.Response)
			c.writeOut(out.Bytes())
			if !result.Accepted {
				return fmt.Errorf("%w: handshake rejected", wserr.Bad)
			}
			// Any bytes past the head belong to the first WebSocket frame.
			c.headBuf = c.headBuf[consumed:]
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", wserr.Disconnected, err)
		}
	}
}

func (c *Conn) runFrameLoop(ctx context.Context) {
	c.engine.OnMessage = c.handleMessage

	pending := c.headBuf
	c.headBuf = nil
	buf := make([]byte, readBufSize)

	pingTimer := time.NewTimer(pingInterval)
	defer pingTimer.Stop()
	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(pingTimer, done)

	for {
		if len(pending) > 0 {
			consumed, err := c.engine.Feed(pending)
			c.writeOut(c.engine.DrainOut())
			if err != nil {
				return
			}
			pending = pending[consumed:]
			if c.engine.State() == wsframe.Closed {
				return
			}
			if consumed > 0 {
				continue
			}
			// consumed == 0: watermark not yet met, fall through to read more.
		}

		if ctx.Err() != nil {
			return
		}
		_ = c.nc.SetReadDeadline(time.Now().Add(readIdleTimeout))
		n, err := c.reader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			continue
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) pingLoop(timer *time.Timer, done <-chan struct{}) {
	var seq uint64
	for {
		select {
		case <-done:
			return
		case <-timer.C:
			seq++
			c.writeOut(wsframe.EncodePingFrame([]byte(strconv.FormatUint(seq, 10))))
			timer.Reset(pingInterval)
		}
	}
}

func (c *Conn) handleMessage(isBinary bool, payload []byte) {
	if isBinary {
		c.log.Debug("dropping binary frame", "bytes", len(payload))
		return // spec §6: only text frames carry the JSON envelope protocol
	}
	msg, ok := wireenv.DecodeClientMessage(payload)
	if !ok {
		return
	}
	ctx := context.Background()
	switch msg.Action {
	case wireenv.ActionPublish:
		_ = c.table.Publish(ctx, msg.Key, msg.Data)
	case wireenv.ActionSubscribe:
		_ = c.table.Subscribe(ctx, msg.Key, c)
	case wireenv.ActionUnsubscribe:
		_ = c.table.Unsubscribe(ctx, msg.Key, c)
	}
}

func (c *Conn) closeNow() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.table.UnsubscribeAll(context.Background(), c)
		_ = c.nc.Close()
	})
}

// Close tears the connection down from outside its own Serve goroutine: it
// closes the underlying socket, which unblocks a pending reader.Read in
// runFrameLoop/doHandshake immediately rather than waiting for the next idle
// timeout to fire. Used by the server loop's shutdown path (spec §3's
// "process-wide registry of live connections... to allow orderly shutdown",
// §4.9/§9 "every registered H is destroyed"). Idempotent, like closeNow.
func (c *Conn) Close() {
	c.closeNow()
}
