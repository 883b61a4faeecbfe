package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kyb/pkg/requestcontext"

	"kyb/internal/platform/metrics"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRequireActor(t *testing.T) {
	var got requestcontext.Principal
	h := RequireActor(discard)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.Actor(r.Context())
	}))

	t.Run("attaches principal", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderActorID, " analyst-7 ")
		r.Header.Set(HeaderActorName, "Ada Analyst")
		r.Header.Set(HeaderActorRole, "analyst")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, requestcontext.Principal{UserID: "analyst-7", UserName: "Ada Analyst", Role: "analyst"}, got)
	})

	t.Run("missing id is unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"unauthorized","error_description":"missing actor identity"}`, w.Body.String())
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.NotEqual(t, "req-123", seen)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}

func TestRecoveryAndLogger(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Logger(discard, m)(Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/work-items", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, w.Body.String())
}
