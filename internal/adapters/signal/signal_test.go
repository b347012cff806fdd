package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/skillcall/internal/app"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, relay *app.Relay, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := NewSignalWSController(relay, opts)
	r := gin.New()
	r.GET("/ws/:room", func(c *gin.Context) {
		member := domain.NewMember(domain.UserID(c.Query("user")), "ct-"+c.Query("user"))
		ctl.HandleSignal(context.Background(), c, domain.RoomName(c.Param("room")), member, nil)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, room, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + room + "?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readRaw(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	require.NoError(t, json.Unmarshal([]byte(readRaw(t, ws)), &msg))
	return msg
}

// joinPair connects alice then bob and drains the membership notices.
func joinPair(t *testing.T, srv *httptest.Server, room string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	alice := dial(t, srv, room, "alice")
	welcome := readJSON(t, alice)
	require.Equal(t, "welcome", welcome["type"])

	bob := dial(t, srv, room, "bob")
	welcome = readJSON(t, bob)
	require.Equal(t, "welcome", welcome["type"])
	assert.Len(t, welcome["peers"], 2)

	joined := readJSON(t, alice)
	require.Equal(t, "peer_joined", joined["type"])
	assert.Equal(t, "bob", joined["user"])
	return alice, bob
}

func TestSignal_RelaysFramesUnchanged(t *testing.T) {
	relay := app.NewRelay(app.RelayConfig{})
	srv := newTestServer(t, relay, Options{})
	alice, bob := joinPair(t, srv, "room")

	offer := `{"type":"offer", "sdp":"v=0\r\n","extra":[1,2,3]}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(offer)))
	assert.Equal(t, offer, readRaw(t, bob))

	answer := `{"type":"answer","sdp":"v=0"}`
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(answer)))
	assert.Equal(t, answer, readRaw(t, alice))
}

func TestSignal_BadPayloadAndPing(t *testing.T) {
	relay := app.NewRelay(app.RelayConfig{})
	srv := newTestServer(t, relay, Options{})
	alice, bob := joinPair(t, srv, "room")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, map[string]any{"type": "error", "error": "bad_payload"}, readJSON(t, alice))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`null`)))
	assert.Equal(t, map[string]any{"type": "error", "error": "bad_payload"}, readJSON(t, alice))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, map[string]any{"type": "pong"}, readJSON(t, alice))

	// Neither the bad payload nor the ping reached bob.
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"candidate"}`)))
	assert.Equal(t, `{"type":"candidate"}`, readRaw(t, bob))
}

func TestSignal_PeerLeft(t *testing.T) {
	relay := app.NewRelay(app.RelayConfig{})
	srv := newTestServer(t, relay, Options{})
	alice, bob := joinPair(t, srv, "room")

	require.NoError(t, bob.Close())
	left := readJSON(t, alice)
	assert.Equal(t, "peer_left", left["type"])
	assert.Equal(t, "bob", left["user"])

	assert.Eventually(t, func() bool { return len(relay.Members("room")) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSignal_RoomFull(t *testing.T) {
	relay := app.NewRelay(app.RelayConfig{})
	relay.Open("room", 1)
	srv := newTestServer(t, relay, Options{})

	alice := dial(t, srv, "room", "alice")
	readJSON(t, alice)

	bob := dial(t, srv, "room", "bob")
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := bob.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "room full", closeErr.Text)
	assert.Len(t, relay.Members("room"), 1)
}

func TestSignal_RateLimited(t *testing.T) {
	relay := app.NewRelay(app.RelayConfig{})
	srv := newTestServer(t, relay, Options{RateLimit: 2, RateInterval: time.Minute})
	alice, bob := joinPair(t, srv, "room")

	for range 2 {
		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"candidate"}`)))
		assert.Equal(t, `{"type":"candidate"}`, readRaw(t, bob))
	}
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"candidate"}`)))
	assert.Equal(t, map[string]any{"type": "error", "error": "rate_limited"}, readJSON(t, alice))
}

func TestSignal_CloseEvictsConnections(t *testing.T) {
	relay := app.NewRelay(app.RelayConfig{})
	srv := newTestServer(t, relay, Options{})
	alice, bob := joinPair(t, srv, "room")

	assert.Equal(t, 2, relay.Close("room"))
	for _, ws := range []*websocket.Conn{alice, bob} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}
	}
	assert.Empty(t, relay.List())
}
