// Package rtc describes the WebRTC side the browsers need from us. No media
// passes through this service; it only tells peers which ICE servers to use.
package rtc

import (
	"fmt"
	"strings"

	"github.com/dkeye/skillcall/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// WebRTCConfig builds the peer configuration clients should use. An empty
// list falls back to DefaultWebRTCConfig.
func WebRTCConfig(servers []config.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		return DefaultWebRTCConfig()
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if strings.TrimSpace(s.Username) != "" {
			srv.Username = s.Username
		}
		if strings.TrimSpace(s.Credential) != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return webrtc.Configuration{ICEServers: out}
}

// ValidateICEServers parses every URL the way a peer connection would and
// requires credentials on TURN servers.
func ValidateICEServers(cfg webrtc.Configuration) error {
	for i, srv := range cfg.ICEServers {
		if len(srv.URLs) == 0 {
			return fmt.Errorf("ice server %d: no urls", i)
		}
		for _, raw := range srv.URLs {
			uri, err := stun.ParseURI(raw)
			if err != nil {
				return fmt.Errorf("ice server %d: %q: %w", i, raw, err)
			}
			if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
				if cred, _ := srv.Credential.(string); srv.Username == "" || cred == "" {
					return fmt.Errorf("ice server %d: %q: %w", i, raw, webrtc.ErrNoTurnCredentials)
				}
			}
		}
	}
	return nil
}

// ICEServerDTO is the browser RTCIceServer shape.
type ICEServerDTO struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ClientICEServers renders cfg for RTCPeerConnection in the browser.
func ClientICEServers(cfg webrtc.Configuration) []ICEServerDTO {
	out := make([]ICEServerDTO, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		dto := ICEServerDTO{URLs: s.URLs, Username: s.Username}
		if cred, ok := s.Credential.(string); ok {
			dto.Credential = cred
		}
		out = append(out, dto)
	}
	return out
}
