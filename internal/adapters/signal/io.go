package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var errNotObject = errors.New("payload is not a JSON object")

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, room domain.RoomName, c *WsSignalConn) {
	defer func() {
		ctl.Relay.Leave(room, c.id)
		ctl.limiter.Forget(c.id)
		c.Close()
		// The connection context is gone; tell the peers on the server's.
		ctl.broadcastJSON(context.WithoutCancel(ctx), room, c.id, peerMsg{Type: "peer_left", Peer: c.id, User: c.meta.User})
		cancel()
		log.Info().Str("module", "signal").Str("room", string(room)).Str("conn", string(c.id)).Msg("connection left")
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleFrame(ctx, room, c, data)
	}
}

// handleFrame answers pings itself and relays everything else untouched.
// Payloads that are not JSON objects never reach the room.
func (ctl *SignalWSController) handleFrame(ctx context.Context, room domain.RoomName, c *WsSignalConn, data []byte) {
	if !ctl.limiter.Allow(c.id) {
		ctl.sendJSON(ctx, c, errorMsg{Type: "error", Error: "rate_limited"})
		return
	}

	var env envelope
	err := json.Unmarshal(data, &env)
	if err == nil && !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		err = errNotObject
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad payload")
		ctl.sendJSON(ctx, c, errorMsg{Type: "error", Error: "bad_payload"})
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(ctx, c)
	default:
		ctl.Relay.Broadcast(ctx, room, core.Frame(data), c.id)
	}
}

func (ctl *SignalWSController) sendJSON(ctx context.Context, c core.Connection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = ctl.Relay.Unicast(ctx, c, b)
}

func (ctl *SignalWSController) broadcastJSON(ctx context.Context, room domain.RoomName, exclude core.ConnID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcastJSON marshal")
		return
	}
	ctl.Relay.Broadcast(ctx, room, b, exclude)
}
