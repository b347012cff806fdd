package signal

import (
	"context"

	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
)

type envelope struct {
	Type string `json:"type"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type welcomeMsg struct {
	Type  string           `json:"type"`
	Conn  core.ConnID      `json:"conn"`
	Room  domain.RoomName  `json:"room"`
	Peers []core.MemberDTO `json:"peers"`
}

type peerMsg struct {
	Type string        `json:"type"`
	Peer core.ConnID   `json:"peer"`
	User domain.UserID `json:"user"`
}

func (ctl *SignalWSController) handlePing(ctx context.Context, c *WsSignalConn) {
	ctl.sendJSON(ctx, c, envelope{Type: "pong"})
}
