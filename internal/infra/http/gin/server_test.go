package ginserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentsync/internal/app/engine"
	"rentsync/internal/clock"
	"rentsync/internal/infra/config"
	ginserver "rentsync/internal/infra/http/gin"
	"rentsync/internal/infra/obs"
	"rentsync/internal/infra/storage/memory"
	"rentsync/internal/testutil/fakebackend"
)

type testServer struct {
	handler http.Handler
	backend *fakebackend.Backend
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	backend := fakebackend.New("seeker")
	eng, err := engine.New(engine.Options{
		UserID:        "seeker",
		Requests:      backend,
		Conversations: backend,
		Push:          fakebackend.NewPushChannel(),
		Cache:         memory.NewLookupCache(),
		Clock:         clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Close)

	router := ginserver.NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		ListingSync: ginserver.ListingSyncHandler{Commands: eng.Commands, Queries: eng.Queries},
		Requests:    ginserver.RequestsHandler{Queries: eng.Queries, Actions: eng.Actions},
	})
	return testServer{handler: router, backend: backend}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListingSyncFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/listings/L1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[map[string]any](t, rec)
	assert.Equal(t, "L1", snap["listing_id"])
	assert.Equal(t, "none", snap["status"])
	assert.Equal(t, false, snap["is_resolving"])

	rec = srv.do(t, http.MethodPost, "/api/v1/listings/L1/requests", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "R1", created["id"])
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "hello", created["message"])

	rec = srv.do(t, http.MethodGet, "/api/v1/listings/L1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[map[string]any](t, rec)
	assert.Equal(t, "pending", snap["status"])
	assert.Equal(t, "R1", snap["request_id"])

	rec = srv.do(t, http.MethodGet, "/api/v1/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "R1", list.Items[0]["id"])
}

func TestDecisionsKeepBackendMessage(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/v1/listings/L1/requests", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/requests/R1/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decode[map[string]any](t, rec)["status"])

	rec = srv.do(t, http.MethodPost, "/api/v1/requests/R1/reject", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "requests: invalid status transition", decode[map[string]any](t, rec)["error"])

	rec = srv.do(t, http.MethodPost, "/api/v1/requests/missing/approve", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "request not found", decode[map[string]any](t, rec)["error"])
}

func TestCloseListingSession(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/api/v1/listings/L1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/listings/L1/sync", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/listings/L1/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRequestRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings/L1/requests", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := string(bytes.Repeat([]byte("x"), 2001))
	rec = srv.do(t, http.MethodPost, "/api/v1/listings/L1/requests", map[string]any{"message": long})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, create, _, _, _ := srv.backend.Calls()
	assert.Equal(t, 0, create)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/livez", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/readyz", nil).Code)
}
