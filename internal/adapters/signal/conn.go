package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// WsSignalConn is a WebSocket endpoint. It implements core.Connection.
type WsSignalConn struct {
	id   core.ConnID
	meta *domain.Member
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}
	once sync.Once
}

func newWsSignalConn(ws *websocket.Conn, meta *domain.Member, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		meta: meta,
		conn: ws,
		send: make(chan core.Frame, buffer),
		done: make(chan struct{}),
	}
}

func (c *WsSignalConn) ID() core.ConnID      { return c.id }
func (c *WsSignalConn) Meta() *domain.Member { return c.meta }

// Send queues f for the write pump, waiting for room in the queue until ctx
// is done.
func (c *WsSignalConn) Send(ctx context.Context, f core.Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrBackpressure, ctx.Err())
	}
}

func (c *WsSignalConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *WsSignalConn) Done() <-chan struct{} { return c.done }
