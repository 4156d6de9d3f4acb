// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/AleutianAI/datagate/services/datagate/config"
	"github.com/AleutianAI/datagate/services/datagate/dag"
	"github.com/AleutianAI/datagate/services/datagate/recorder"
	"github.com/AleutianAI/datagate/services/datagate/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const graphYAML = `
name: api
components:
  - {name: data, kind: value, value: {"{0}": [1, 2]}}
  - {name: pass, kind: toggle, value: true}
  - {name: hold, kind: gate, policy: gatekeeper, data: data, flag: pass}
  - {name: hist, kind: recorder, data: data}
`

type mapStore map[string]bool

func (m mapStore) GetBool(_ context.Context, component, key string) (bool, bool, error) {
	v, ok := m[component+"/"+key]
	return v, ok, nil
}

func (m mapStore) SetBool(_ context.Context, component, key string, value bool) error {
	m[component+"/"+key] = value
	return nil
}

type testServer struct {
	router *gin.Engine
	store  mapStore
	exec   *dag.Executor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Parse([]byte(graphYAML))
	require.NoError(t, err)
	store := mapStore{}
	g, err := cfg.BuildGraph(ctx, store)
	require.NoError(t, err)
	exec, err := dag.NewExecutor(g.DAG, nil)
	require.NoError(t, err)
	_, err = exec.Solve(ctx)
	require.NoError(t, err)

	metrics, err := telemetry.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	promStub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("datagate_requests_total 1\n"))
	})
	h := NewHandlers(g, exec, store, metrics, nil)
	return &testServer{router: NewRouter("datagate-test", h, promStub), store: store, exec: exec}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type componentBody struct {
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Expired     bool            `json:"expired"`
	Value       json.RawMessage `json:"value"`
	RecordEmpty *bool           `json:"record_empty"`
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, HealthResponse{Status: "ok", Graph: "api", Nodes: 4}, resp)
}

func TestHandleGetComponent(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/components/hist", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body componentBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "recorder", body.Kind)
	assert.False(t, body.Expired)
	assert.JSONEq(t, `{"{0;0}": [1, 2]}`, string(body.Value))
	require.NotNil(t, body.RecordEmpty)
	assert.False(t, *body.RecordEmpty)

	w = s.do(t, http.MethodGet, "/v1/components/pass", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.JSONEq(t, `true`, string(body.Value))

	w = s.do(t, http.MethodGet, "/v1/components/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSetComponent(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/components/data", `{"{0}": [3]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var solved SolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &solved))
	assert.NotEmpty(t, solved.SessionID)
	assert.Contains(t, solved.Evaluated, "hist")
	assert.Empty(t, solved.Errors)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/v1/components/hist", "")
	var body componentBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.JSONEq(t, `{"{0;0}": [1, 2], "{1;0}": [3]}`, string(body.Value))

	w = s.do(t, http.MethodPost, "/v1/components/pass", `false`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v, _ := s.exec.Output("pass")
	assert.Equal(t, false, v)
}

func TestHandleSetComponent_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown", "/v1/components/nope", `1`, http.StatusNotFound, "NOT_FOUND"},
		{"not a parameter", "/v1/components/hold", `[1]`, http.StatusBadRequest, "NOT_A_PARAMETER"},
		{"bad toggle", "/v1/components/pass", `[1]`, http.StatusBadRequest, "INVALID_VALUE"},
		{"empty body", "/v1/components/data", ``, http.StatusBadRequest, "INVALID_VALUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHandleSetRecordEmpty(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/v1/components/hist/record_empty", `{"value": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, s.store["hist/"+recorder.SettingRecordEmpty])

	w = s.do(t, http.MethodGet, "/v1/components/hist", "")
	var body componentBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.RecordEmpty)
	assert.True(t, *body.RecordEmpty)

	w = s.do(t, http.MethodPut, "/v1/components/hold/record_empty", `{"value": true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/v1/components/hist/record_empty", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "datagate_requests_total")
}
