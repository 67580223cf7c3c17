package relay

import "encoding/json"

// Inbound events.
const (
	EventJoinSession       = "join-session"
	EventLeaveSession      = "leave-session"
	EventOffer             = "offer"
	EventAnswer            = "answer"
	EventICECandidate      = "ice-candidate"
	EventCheatingDetection = "cheating-detection"
)

// Outbound events.
const (
	EventSessionJoined           = "session-joined"
	EventPeerJoined              = "peer-joined"
	EventPeerLeft                = "peer-left"
	EventCheatingDetectionUpdate = "cheating-detection-update"
	EventError                   = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type joinRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type leaveRequest struct {
	SessionID string `json:"sessionId"`
}

// signalRequest covers offer, answer and ice-candidate. Only the field named
// after the event is set; its contents are never inspected.
type signalRequest struct {
	SessionID    string          `json:"sessionId"`
	TargetPeerID string          `json:"targetPeerId"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

type detectionRequest struct {
	SessionID     string         `json:"sessionId"`
	DetectionData map[string]any `json:"detectionData"`
}

// SessionJoined is sent to a peer after it joins a session.
type SessionJoined struct {
	SessionID   string       `json:"sessionId"`
	STUNServers []STUNServer `json:"stunServers"`
}

// PeerJoined is broadcast to the existing members of a session.
type PeerJoined struct {
	PeerID string `json:"peerId"`
	UserID string `json:"userId"`
}

// PeerLeft is broadcast to the remaining members of a session.
type PeerLeft struct {
	PeerID string `json:"peerId"`
}

// DetectionUpdate fans proctoring telemetry out to a session.
type DetectionUpdate struct {
	PeerID        string         `json:"peerId"`
	DetectionData map[string]any `json:"detectionData"`
	Timestamp     string         `json:"timestamp"`
}

// ErrorMessage reports a rejected frame to its sender.
type ErrorMessage struct {
	Message string `json:"message"`
}
