package relay

import (
	"strings"

	"github.com/pion/webrtc/v3"
)

// DefaultSTUNServers are used when no STUN servers are configured.
var DefaultSTUNServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}

// Config holds the relay settings.
type Config struct {
	STUNServers    []string
	TURNURL        string
	TURNUsername   string
	TURNPassword   string
	AllowedOrigins []string
}

// STUNServer is the wire form of one STUN entry in session-joined.
type STUNServer struct {
	URLs string `json:"urls"`
}

// ParseSTUNServers splits a comma-separated server list, trimming blanks.
func ParseSTUNServers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) stunServers() []string {
	if len(c.STUNServers) == 0 {
		return DefaultSTUNServers
	}
	return c.STUNServers
}

// STUN returns the STUN list announced to joining peers.
func (c Config) STUN() []STUNServer {
	servers := c.stunServers()
	out := make([]STUNServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, STUNServer{URLs: s})
	}
	return out
}

// ICEConfig returns the full peer connection configuration, including the
// TURN relay when one is configured.
func (c Config) ICEConfig() webrtc.Configuration {
	var servers []webrtc.ICEServer
	for _, s := range c.stunServers() {
		servers = append(servers, webrtc.ICEServer{URLs: []string{s}})
	}
	if c.TURNURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:           []string{c.TURNURL},
			Username:       c.TURNUsername,
			Credential:     c.TURNPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
		BundlePolicy:       webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:      webrtc.RTCPMuxPolicyRequire,
	}
}
