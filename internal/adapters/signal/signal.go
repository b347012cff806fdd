// Package signal is the WebSocket transport of the relay: one read pump and
// one write pump per connection, frames passed to the relay untouched.
package signal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/skillcall/internal/app"
	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	SendBuffer   int
	RateLimit    int
	RateInterval time.Duration
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

type SignalWSController struct {
	Relay    *app.Relay
	opts     Options
	limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(relay *app.Relay, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.PongWait <= opts.PingPeriod {
		opts.PongWait = opts.PingPeriod * 10 / 9
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &SignalWSController{
		Relay:    relay,
		opts:     opts,
		limiter:  NewRateLimiter(opts.RateLimit, opts.RateInterval),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// Admit puts conn into its room. It must end in Relay.Join.
type Admit func(conn core.Connection) error

// HandleSignal upgrades the request and admits the connection to room. A nil
// admit joins the relay directly.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, room domain.RoomName, member *domain.Member, admit Admit) {
	if admit == nil {
		admit = func(conn core.Connection) error { return ctl.Relay.Join(room, conn) }
	}
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, member, ctl.opts.SendBuffer)
	logger := log.With().
		Str("module", "signal").
		Str("room", string(room)).
		Str("conn", string(conn.ID())).
		Str("user", string(member.User)).
		Str("client", member.ClientToken).
		Logger()

	if err := admit(conn); err != nil {
		logger.Warn().Err(err).Msg("join rejected")
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason(err))
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	logger.Info().Msg("connection joined")

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)

	ctl.sendJSON(connCtx, conn, welcomeMsg{
		Type:  "welcome",
		Conn:  conn.ID(),
		Room:  room,
		Peers: ctl.Relay.Members(room),
	})
	ctl.broadcastJSON(connCtx, room, conn.ID(), peerMsg{Type: "peer_joined", Peer: conn.ID(), User: member.User})

	go ctl.readPump(connCtx, cancel, room, conn)
}

func reason(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomFull):
		return "room full"
	case errors.Is(err, core.ErrAlreadyBound):
		return "already joined"
	case errors.Is(err, domain.ErrInvalidState):
		return "room not open"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not authorized"
	default:
		return "join failed"
	}
}
