package rtc

import (
	"testing"

	"github.com/dkeye/skillcall/internal/config"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebRTCConfig_DefaultsWhenEmpty(t *testing.T) {
	cfg := WebRTCConfig(nil)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestWebRTCConfig_TURNCredentials(t *testing.T) {
	cfg := WebRTCConfig([]config.ICEServer{
		{URLs: []string{"stun:stun.example.com"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
	})
	require.Len(t, cfg.ICEServers, 2)
	assert.Nil(t, cfg.ICEServers[0].Credential)
	assert.Equal(t, "p", cfg.ICEServers[1].Credential)

	dtos := ClientICEServers(cfg)
	require.Len(t, dtos, 2)
	assert.Equal(t, ICEServerDTO{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"}, dtos[1])
	assert.Empty(t, dtos[0].Credential)
}

func TestValidateICEServers(t *testing.T) {
	ok := WebRTCConfig([]config.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp"}, Username: "u", Credential: "p"},
	})
	assert.NoError(t, ValidateICEServers(ok))
	assert.NoError(t, ValidateICEServers(DefaultWebRTCConfig()))

	bad := WebRTCConfig([]config.ICEServer{{URLs: []string{"http://stun.example.com"}}})
	assert.Error(t, ValidateICEServers(bad))

	noCreds := WebRTCConfig([]config.ICEServer{{URLs: []string{"turns:turn.example.com:5349"}}})
	assert.ErrorIs(t, ValidateICEServers(noCreds), webrtc.ErrNoTurnCredentials)

	noURLs := webrtc.Configuration{ICEServers: []webrtc.ICEServer{{}}}
	assert.Error(t, ValidateICEServers(noURLs))
}
