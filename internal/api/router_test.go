package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esclipse/SynthraCloud/internal/api/handlers"
	"github.com/esclipse/SynthraCloud/internal/scheduler"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.NewNop()
	sched := scheduler.New(log)
	return NewRouter(Handlers{
		Health:        handlers.NewHealthHandler(sched, nil, nil, "abc123"),
		Chat:          handlers.NewChatHandler(nil, log),
		Translate:     handlers.NewTranslateHandler(nil, log),
		StockAnalysis: handlers.NewStockAnalysisHandler(nil, log),
	}, log)
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, handlers.ServiceName, body["service"])
	assert.Equal(t, "abc123", body["policy_hash"])
	assert.Contains(t, body, "jobs")
	assert.NotContains(t, body, "database")
}

func TestRequestID(t *testing.T) {
	router := testRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rr.Header().Get(RequestIDHeader), 36, "generated uuid")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set(RequestIDHeader, "caller-42")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, "caller-42", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rr.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/translate", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rr.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/stock-analysis", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRecoveryMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	r.Use(loggingMiddleware(logger.NewNop()))
	r.Use(recoveryMiddleware(logger.NewNop()))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
}

func TestStatusRecorderForwardsFlush(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner}

	var w http.ResponseWriter = rec
	flusher, ok := w.(http.Flusher)
	require.True(t, ok)
	flusher.Flush()

	assert.True(t, inner.Flushed)
	assert.Equal(t, http.ResponseWriter(inner), rec.Unwrap())
}
