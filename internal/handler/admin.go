package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/interviewer/internal/relay"
)

const maxUploadBytes = 10 << 20

// handleUploadJobs imports a JSON array of jobs. The body is either a
// multipart form with a jobs_file part or raw JSON named by ?name=.
func (h *Handler) handleUploadJobs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	source := r.URL.Query().Get("name")
	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
			return
		}
		file, header, ferr := r.FormFile("jobs_file")
		if ferr != nil {
			h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
			return
		}
		defer file.Close()
		if source == "" {
			source = header.Filename
		}
		data, err = io.ReadAll(file)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if source == "" {
		source = "upload"
	}

	res, err := h.store.ImportJobs(source, data)
	if err != nil {
		h.fail(w, r, err, "ErrNotFound")
		return
	}
	if res.Duplicate {
		slog.Info("jobs upload unchanged, skipping", "source", source)
	} else {
		slog.Info("uploaded jobs via admin", "source", source, "count", res.Count)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRelaySessions(w http.ResponseWriter, r *http.Request) {
	sessions := []relay.SessionInfo{}
	if h.relay != nil {
		sessions = h.relay.Sessions()
	}
	writeJSON(w, http.StatusOK, sessions)
}
