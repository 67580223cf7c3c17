package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/interviewer/internal/content"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/proctor"
	"github.com/pavelanni/interviewer/internal/relay"
	"github.com/pavelanni/interviewer/internal/report"
	"github.com/pavelanni/interviewer/internal/speech"
	"github.com/pavelanni/interviewer/internal/store"
)

// MinAnswerLength is the shortest answer, in characters, the API accepts.
const MinAnswerLength = 10

const maxBodyBytes = 1 << 20

// Deps are the services the HTTP layer drives.
type Deps struct {
	Store      *store.Store
	Interviews *interview.Service
	Reports    *report.Service
	Proctor    *proctor.Service
	Speech     *speech.Service
	Content    *content.Generator
	Relay      *relay.Hub
	Auth       *Authenticator
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	interviews  *interview.Service
	reports     *report.Service
	proctor     *proctor.Service
	speech      *speech.Service
	content     *content.Generator
	relay       *relay.Hub
	auth        *Authenticator
	corsOrigins []string
}

// New creates a new Handler.
func New(d Deps) *Handler {
	auth := d.Auth
	if auth == nil {
		auth = NewAuthenticator("")
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		store:       d.Store,
		interviews:  d.Interviews,
		reports:     d.Reports,
		proctor:     d.Proctor,
		speech:      d.Speech,
		content:     d.Content,
		relay:       d.Relay,
		auth:        auth,
		corsOrigins: origins,
	}
}

// Router builds the full route tree with its middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userIDHeader, userRoleHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(i18n.Middleware())
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/api/audio/{file}", h.handleAudio)
	r.Get("/api/webrtc/config", h.handleWebRTCConfig)
	if h.relay != nil {
		r.Method(http.MethodGet, "/webrtc", h.relay)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)

		r.Get("/api/jobs", h.handleListJobs)

		r.Post("/api/interviews", h.handleStartInterview)
		r.Get("/api/interviews", h.handleListInterviews)
		r.Get("/api/interviews/{id}", h.handleGetInterview)
		r.Delete("/api/interviews/{id}", h.handleDeleteInterview)
		r.Post("/api/interviews/{id}/answers", h.handleSubmitAnswer)
		r.Post("/api/interviews/{id}/followup", h.handleFollowUp)
		r.Post("/api/interviews/{id}/report", h.handleGenerateReport)
		r.Get("/api/interviews/{id}/report", h.handleGetReport)
		r.Post("/api/interviews/{id}/proctoring", h.handleProctoring)
		r.Get("/api/interviews/{id}/flags", h.handleFlags)
		r.Get("/api/interviews/{id}/risk", h.handleRisk)
		r.Post("/api/interviews/{id}/questions/{index}/speech", h.handleSpeech)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/api/admin/jobs", h.handleUploadJobs)
			r.Get("/api/admin/relay/sessions", h.handleRelaySessions)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "tts_enabled": h.speech != nil && h.speech.Enabled()}
	if h.relay != nil {
		resp["relay_sessions"] = len(h.relay.Sessions())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs()
	if err != nil {
		h.fail(w, r, err, "ErrJobNotFound")
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

type startRequest struct {
	JobID string `json:"jobId"`
}

func (h *Handler) handleStartInterview(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	user := model.UserFromContext(r.Context())
	res, err := h.interviews.Start(r.Context(), user.ID, req.JobID)
	if err != nil {
		h.fail(w, r, err, "ErrJobNotFound")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListInterviews(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessions, err := h.interviews.List(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteInterview(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if err := h.interviews.Delete(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	answer := strings.TrimSpace(req.Answer)
	if utf8.RuneCountInString(answer) < MinAnswerLength {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: i18n.Td(r.Context(), "ErrAnswerTooShort", map[string]any{"Min": MinAnswerLength}),
		})
		return
	}
	user := model.UserFromContext(r.Context())
	res, err := h.interviews.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), user.ID, answer)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type followUpRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type followUpResponse struct {
	FollowUp  string `json:"follow_up,omitempty"`
	Available bool   `json:"available"`
}

func (h *Handler) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedSession(w, r); !ok {
		return
	}
	var req followUpRequest
	if err := decodeJSON(r, &req, false); err != nil || strings.TrimSpace(req.Question) == "" {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	q, ok := h.content.GenerateFollowUp(r.Context(), req.Question, req.Answer)
	writeJSON(w, http.StatusOK, followUpResponse{FollowUp: q, Available: ok})
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	rep, err := h.reports.Generate(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	rep, err := h.reports.Get(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.fail(w, r, err, "ErrReportNotFound")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleProctoring(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	var raw map[string]any
	if err := decodeJSON(r, &raw, false); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	data, err := proctor.DecodeDetectionData(raw)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	res, err := h.proctor.Process(r.Context(), sess.ID, data)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleFlags(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	flags, err := h.proctor.Flags(r.Context(), sess.ID)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

type riskResponse struct {
	HighRisk      bool    `json:"high_risk"`
	CheatingScore float64 `json:"cheating_score"`
	Threshold     float64 `json:"threshold"`
}

func (h *Handler) handleRisk(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	high, score, err := h.proctor.IsHighRisk(r.Context(), sess.ID)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, riskResponse{HighRisk: high, CheatingScore: score, Threshold: h.proctor.Threshold()})
}

type speechRequest struct {
	UseCache *bool `json:"useCache"`
}

func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if idx < 0 || idx >= len(sess.Questions) {
		h.writeError(w, r, http.StatusNotFound, "ErrNotFound")
		return
	}
	var req speechRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	useCache := req.UseCache == nil || *req.UseCache
	res := h.speech.Synthesize(r.Context(), sess.Questions[idx], speech.Options{
		SessionID:     sess.ID,
		QuestionIndex: &idx,
		UseCache:      useCache,
	})
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	path, err := h.speech.AudioPath(chi.URLParam(r, "file"))
	if err != nil {
		h.fail(w, r, err, "ErrNotFound")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}

type iceResponse struct {
	ICEServers any `json:"iceServers"`
}

func (h *Handler) handleWebRTCConfig(w http.ResponseWriter, r *http.Request) {
	var cfg relay.Config
	if h.relay != nil {
		cfg = h.relay.Config()
	}
	writeJSON(w, http.StatusOK, iceResponse{ICEServers: cfg.ICEConfig().ICEServers})
}

// ownedSession loads the {id} session for the caller, writing a 404 when it
// does not exist or belongs to someone else.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (*model.InterviewSession, bool) {
	user := model.UserFromContext(r.Context())
	sess, err := h.interviews.Get(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return nil, false
	}
	return sess, true
}

type errorBody struct {
	Error string `json:"error"`
}

// fail maps a service error onto a status code. notFoundMsg is the message
// id used for missing records.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrConflict):
		h.writeError(w, r, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, model.ErrValidation):
		slog.Debug("request rejected", "path", r.URL.Path, "error", err)
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "ErrInternal")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorBody{Error: i18n.T(r.Context(), msgID)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads a JSON body into v. With optional set an empty body is
// accepted and leaves v untouched.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
