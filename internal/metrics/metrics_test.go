package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/interviewer/internal/llm"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/interviews/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/interviews/{id}", "418"))
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/interviews/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/interviews/{id}", "418"))
	assert.Equal(t, 3.0, after-before)
}

func TestHandlerExposesCollectors(t *testing.T) {
	SessionsStarted.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "interviewer_sessions_started_total"))
}

type stubProvider struct{ err error }

func (stubProvider) Name() string { return "stub" }
func (s stubProvider) Generate(context.Context, llm.Request) (string, error) {
	return "ok", s.err
}

func TestInstrumentedProviderCounts(t *testing.T) {
	okBefore := testutil.ToFloat64(LLMRequests.WithLabelValues("stub", "ok"))
	errBefore := testutil.ToFloat64(LLMRequests.WithLabelValues("stub", "error"))

	_, err := Instrument(stubProvider{}).Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	_, err = Instrument(stubProvider{err: errors.New("down")}).Generate(context.Background(), llm.Request{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(LLMRequests.WithLabelValues("stub", "ok"))-okBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(LLMRequests.WithLabelValues("stub", "error"))-errBefore)
}
