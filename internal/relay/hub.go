// Package relay is the WebSocket signaling relay: peers join interview
// sessions, exchange offers, answers and ICE candidates, and fan proctoring
// telemetry out to everyone watching a session.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/interviewer/internal/metrics"
)

const writeTimeout = 10 * time.Second

// Sink receives proctoring telemetry relayed through a session.
type Sink interface {
	Detection(ctx context.Context, sessionID, userID string, data map[string]any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, sessionID, userID string, data map[string]any)

func (f SinkFunc) Detection(ctx context.Context, sessionID, userID string, data map[string]any) {
	f(ctx, sessionID, userID, data)
}

// Peer is one connected client.
type Peer struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	// guarded by Hub.mu
	userID   string
	authUser string
	sessions map[string]bool
}

func (p *Peer) send(event string, data any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteJSON(outbound{Event: event, Data: data})
}

type session struct {
	id        string
	userID    string
	createdAt time.Time
	peers     map[string]*Peer
}

// SessionInfo describes a live relay session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Peers     int       `json:"peers"`
	CreatedAt time.Time `json:"created_at"`
}

// Hub owns the session and peer registries.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	sink     Sink

	// Authenticate, when set, resolves the caller during the upgrade. A peer
	// authenticated this way may only join under its own user id.
	Authenticate func(r *http.Request) (string, error)

	mu       sync.RWMutex
	sessions map[string]*session
	peers    map[string]*Peer
}

// NewHub creates a hub. sink may be nil.
func NewHub(cfg Config, sink Sink) *Hub {
	h := &Hub{
		cfg:      cfg,
		sink:     sink,
		sessions: make(map[string]*session),
		peers:    make(map[string]*Peer),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP upgrades the connection and runs the peer's read loop until the
// transport closes. The peer then leaves every session it joined.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var authUser string
	if h.Authenticate != nil {
		u, err := h.Authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		authUser = u
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &Peer{ID: uuid.NewString(), conn: conn, authUser: authUser, sessions: make(map[string]bool)}
	h.mu.Lock()
	h.peers[p.ID] = p
	h.updateGauges()
	h.mu.Unlock()
	slog.Info("peer connected", "peer_id", p.ID)

	defer h.disconnect(p)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("peer read failed", "peer_id", p.ID, "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.reply(p, EventError, ErrorMessage{Message: "invalid message"})
			continue
		}
		h.dispatch(r.Context(), p, env)
	}
}

func (h *Hub) dispatch(ctx context.Context, p *Peer, env Envelope) {
	switch env.Event {
	case EventJoinSession:
		var req joinRequest
		if err := decode(env.Data, &req); err != nil || req.SessionID == "" {
			h.reply(p, EventError, ErrorMessage{Message: "Failed to join session"})
			return
		}
		h.join(p, req)
	case EventLeaveSession:
		var req leaveRequest
		if err := decode(env.Data, &req); err != nil || req.SessionID == "" {
			h.reply(p, EventError, ErrorMessage{Message: "Failed to leave session"})
			return
		}
		h.leave(p, req.SessionID)
	case EventOffer, EventAnswer, EventICECandidate:
		var req signalRequest
		if err := decode(env.Data, &req); err != nil || req.TargetPeerID == "" {
			h.reply(p, EventError, ErrorMessage{Message: "invalid " + env.Event})
			return
		}
		h.forward(p, env.Event, req)
	case EventCheatingDetection:
		var req detectionRequest
		if err := decode(env.Data, &req); err != nil || req.SessionID == "" {
			h.reply(p, EventError, ErrorMessage{Message: "invalid " + env.Event})
			return
		}
		h.detection(ctx, p, req)
	default:
		h.reply(p, EventError, ErrorMessage{Message: "unknown event " + env.Event})
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

func (h *Hub) join(p *Peer, req joinRequest) {
	h.mu.Lock()
	if p.authUser != "" {
		if req.UserID != "" && req.UserID != p.authUser {
			h.mu.Unlock()
			h.reply(p, EventError, ErrorMessage{Message: "Failed to join session"})
			return
		}
		req.UserID = p.authUser
	}
	s, ok := h.sessions[req.SessionID]
	if !ok {
		s = &session{id: req.SessionID, userID: req.UserID, createdAt: time.Now().UTC(), peers: make(map[string]*Peer)}
		h.sessions[req.SessionID] = s
		slog.Info("relay session created", "session_id", req.SessionID)
	}
	_, rejoin := s.peers[p.ID]
	var others []*Peer
	if !rejoin {
		for _, o := range s.peers {
			others = append(others, o)
		}
		s.peers[p.ID] = p
		p.sessions[req.SessionID] = true
		p.userID = req.UserID
	}
	h.updateGauges()
	h.mu.Unlock()

	h.reply(p, EventSessionJoined, SessionJoined{SessionID: req.SessionID, STUNServers: h.cfg.STUN()})
	h.broadcast(others, EventPeerJoined, PeerJoined{PeerID: p.ID, UserID: req.UserID})
	slog.Info("peer joined session", "peer_id", p.ID, "session_id", req.SessionID, "user_id", req.UserID)
}

func (h *Hub) leave(p *Peer, sessionID string) {
	h.mu.Lock()
	remaining := h.removeLocked(p, sessionID)
	h.mu.Unlock()
	h.broadcast(remaining, EventPeerLeft, PeerLeft{PeerID: p.ID})
}

// removeLocked drops p from a session and returns the peers left behind.
// Callers hold h.mu.
func (h *Hub) removeLocked(p *Peer, sessionID string) []*Peer {
	s, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	if _, member := s.peers[p.ID]; !member {
		return nil
	}
	delete(s.peers, p.ID)
	delete(p.sessions, sessionID)
	remaining := make([]*Peer, 0, len(s.peers))
	for _, o := range s.peers {
		remaining = append(remaining, o)
	}
	if len(s.peers) == 0 {
		delete(h.sessions, sessionID)
		slog.Info("relay session closed", "session_id", sessionID)
	}
	h.updateGauges()
	return remaining
}

func (h *Hub) disconnect(p *Peer) {
	h.mu.Lock()
	left := make(map[string][]*Peer, len(p.sessions))
	for id := range p.sessions {
		left[id] = h.removeLocked(p, id)
	}
	delete(h.peers, p.ID)
	h.updateGauges()
	h.mu.Unlock()

	for _, remaining := range left {
		h.broadcast(remaining, EventPeerLeft, PeerLeft{PeerID: p.ID})
	}
	p.conn.Close()
	slog.Info("peer disconnected", "peer_id", p.ID, "sessions", len(left))
}

func (h *Hub) forward(p *Peer, event string, req signalRequest) {
	h.mu.RLock()
	target, ok := h.peers[req.TargetPeerID]
	h.mu.RUnlock()
	if !ok {
		metrics.RelayMessages.WithLabelValues(event, "dropped").Inc()
		slog.Warn("signal target not connected", "event", event, "peer_id", p.ID, "target", req.TargetPeerID)
		return
	}

	payload := map[string]any{"fromPeerId": p.ID, "sessionId": req.SessionID}
	switch event {
	case EventOffer:
		payload["offer"] = req.Offer
	case EventAnswer:
		payload["answer"] = req.Answer
	case EventICECandidate:
		payload["candidate"] = req.Candidate
	}
	h.deliver(target, event, payload)
}

func (h *Hub) detection(ctx context.Context, p *Peer, req detectionRequest) {
	h.mu.RLock()
	var members []*Peer
	if s, ok := h.sessions[req.SessionID]; ok {
		for _, o := range s.peers {
			members = append(members, o)
		}
	}
	userID := p.userID
	h.mu.RUnlock()

	h.broadcast(members, EventCheatingDetectionUpdate, DetectionUpdate{
		PeerID:        p.ID,
		DetectionData: req.DetectionData,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if h.sink != nil && req.DetectionData != nil {
		h.sink.Detection(ctx, req.SessionID, userID, req.DetectionData)
	}
}

func (h *Hub) broadcast(peers []*Peer, event string, data any) {
	for _, o := range peers {
		h.deliver(o, event, data)
	}
}

// deliver writes to a peer. Failures are logged and never end either peer's
// read loop.
func (h *Hub) deliver(p *Peer, event string, data any) {
	if err := p.send(event, data); err != nil {
		metrics.RelayMessages.WithLabelValues(event, "dropped").Inc()
		slog.Warn("relay delivery failed", "event", event, "peer_id", p.ID, "error", err)
		return
	}
	metrics.RelayMessages.WithLabelValues(event, "delivered").Inc()
}

func (h *Hub) reply(p *Peer, event string, data any) { h.deliver(p, event, data) }

// updateGauges publishes registry sizes. Callers hold h.mu.
func (h *Hub) updateGauges() {
	metrics.RelaySessions.Set(float64(len(h.sessions)))
	metrics.RelayPeers.Set(float64(len(h.peers)))
}

// Sessions lists the live relay sessions.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, SessionInfo{SessionID: s.id, UserID: s.userID, Peers: len(s.peers), CreatedAt: s.createdAt})
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Config returns the relay configuration.
func (h *Hub) Config() Config { return h.cfg }
