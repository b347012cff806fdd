package http

import (
	"context"
	"net/http"

	"github.com/dkeye/skillcall/internal/adapters/rtc"
	"github.com/dkeye/skillcall/internal/adapters/signal"
	"github.com/dkeye/skillcall/internal/app"
	"github.com/dkeye/skillcall/internal/app/lifecycle"
	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	sessions   *lifecycle.Manager
	relay      *app.Relay
	signal     *signal.SignalWSController
	iceServers []rtc.ICEServerDTO
}

type createRequestBody struct {
	TeacherID string `json:"teacherId"`
	Topic     string `json:"topic"`
}

type rateBody struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (h *handlers) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ticket, err := h.sessions.CreateRequest(c.Request.Context(), lifecycle.Request{
		LearnerID: actor(c),
		TeacherID: domain.UserID(body.TeacherID),
		Topic:     body.Topic,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if ticket.Existing {
		status = http.StatusOK
	}
	c.JSON(status, ticket)
}

func (h *handlers) getSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), domain.SessionID(c.Param("id")), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) accept(c *gin.Context) {
	room, err := h.sessions.Accept(c.Request.Context(), domain.SessionID(c.Param("id")), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomName": room})
}

func (h *handlers) decline(c *gin.Context) {
	h.noContent(c, h.sessions.Decline)
}

func (h *handlers) cancel(c *gin.Context) {
	h.noContent(c, h.sessions.Cancel)
}

func (h *handlers) end(c *gin.Context) {
	h.noContent(c, h.sessions.End)
}

func (h *handlers) noContent(c *gin.Context, op func(context.Context, domain.SessionID, domain.UserID) error) {
	if err := op(c.Request.Context(), domain.SessionID(c.Param("id")), actor(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) rate(c *gin.Context) {
	var body rateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	r, err := h.sessions.Rate(c.Request.Context(), domain.SessionID(c.Param("id")), actor(c), body.Score, body.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *handlers) pendingCount(c *gin.Context) {
	n, err := h.sessions.PendingCount(c.Request.Context(), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *handlers) history(c *gin.Context) {
	list, err := h.sessions.History(c.Request.Context(), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *handlers) roomsList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.relay.List()})
}

func (h *handlers) iceServersList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.iceServers})
}

// signalWS refuses with a plain HTTP error before upgrading, then admits the
// connection under the session lock so a concurrent End cannot miss it.
func (h *handlers) signalWS(ctx context.Context, c *gin.Context) {
	room := domain.RoomName(c.Param("room"))
	user := actor(c)
	if _, err := h.sessions.AuthorizeRoom(c.Request.Context(), room, user); err != nil {
		log.Info().Err(err).Str("module", "adapters.http").Str("room", string(room)).Str("user", string(user)).Msg("ws join refused")
		writeError(c, err)
		return
	}
	member := domain.NewMember(user, c.GetString(clientTokenKey))
	h.signal.HandleSignal(ctx, c, room, member, func(conn core.Connection) error {
		return h.sessions.AdmitToRoom(ctx, room, user, func() error {
			return h.relay.Join(room, conn)
		})
	})
}
