package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/latencymetrics"
	"github.com/rapidaai/runtime/internal/nodes"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("passthrough", nodes.NewPassthrough, nodes.PassthroughSchema()))

	clock := uint64(0)
	nowUs := func() uint64 { clock++; return clock }
	return NewServer(config.Default(), reg, latencymetrics.NewRegistry(func() int64 { return int64(nowUs()) }), commons.NewTestLogger(), nowUs)
}

func TestServer_Healthz(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CreateSessionSendInputAndClose(t *testing.T) {
	s := testServer(t)

	manifestYAML := `
version: v1
nodes:
  - id: in
    node_type: passthrough
    is_streaming: true
  - id: out
    node_type: passthrough
    is_streaming: true
connections:
  - from: in
    to: out
`
	body, err := json.Marshal(map[string]string{"manifest_yaml": manifestYAML})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	sessionID, _ := created["session_id"].(string)
	require.NotEmpty(t, sessionID)

	inputBody, err := json.Marshal(map[string]any{"node_id": "in", "text": "hello"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/input", bytes.NewReader(inputBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	time.Sleep(20 * time.Millisecond) // let the pipeline drain the frame

	req = httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/close", nil)
	rec = httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_SendInputUnknownSessionIs404(t *testing.T) {
	s := testServer(t)
	body, err := json.Marshal(map[string]any{"node_id": "in", "text": "hi"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sessions/does-not-exist/input", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
