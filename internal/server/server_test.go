package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noteshare-go/internal/ns"
	nstest "noteshare-go/internal/testutil"
)

const testSalt = "test-salt"

type testServer struct {
	*Server
	clock   *nstest.StubClock
	purger   *nstest.RecordingPurger
	metrics  *Metrics
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := nstest.NewTestDatabase(t)
	clock := nstest.FixedClock()
	purger := &nstest.RecordingPurger{}
	logger := ns.NewNopLogger()

	files := ns.NewFileStore(db, nstest.NewTestStorage(1), ns.NewContentValidator(64), purger,
		ns.FileStoreConfig{BaseURL: "https://notes.example.com", MaxTTL: 24 * time.Hour}, logger, clock)
	creds := ns.NewCredentialStore(db, testSalt, clock, nstest.NewStubIDGenerator(), logger)
	nstest.CreateUser(t, db, "alice", "alice-key")
	nstest.CreateUser(t, db, "bob", "bob-key")

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	srv := New(files, creds, metrics, registry, Options{MaxUploadSize: 64}, logger, clock)
	return &testServer{Server: srv, clock: clock, purger: purger, metrics: metrics, registry: registry}
}

func signedRequest(t *testing.T, method, target, uid, apiKey string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(HeaderUID, uid)
	req.Header.Set(HeaderNonce, "nonce-1")
	req.Header.Set(HeaderSignature, ns.Sign(ns.HashKey(apiKey), "nonce-1", testSalt))
	return req
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, uid, apiKey, fileType, body string) uploadResponse {
	t.Helper()
	req := signedRequest(t, http.MethodPost, "/v1/file/upload", uid, apiKey, strings.NewReader(body))
	req.Header.Set(HeaderFileType, fileType)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// metricValue returns the counter value of the series of name matching the
// given label pairs, or 0 when it was never recorded.
func (ts *testServer) metricValue(t *testing.T, name string, labels ...string) float64 {
	t.Helper()
	families, err := ts.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string)
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labels); i += 2 {
				if got[labels[i]] != labels[i+1] {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestUpload_AndServe(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.upload(t, "alice", "alice-key", "html", "<p>hello</p>")
	assert.True(t, resp.Success)
	assert.Len(t, resp.Name, 8)
	assert.Equal(t, resp.Name+".html", resp.Filename)
	assert.Equal(t, "https://notes.example.com/notes/"+resp.Filename[:1]+"/"+resp.Filename, resp.URL)
	assert.Nil(t, resp.Expires)
	assert.False(t, resp.Deduplicated)

	rec := ts.do(httptest.NewRequest(http.MethodGet, strings.TrimPrefix(resp.URL, "https://notes.example.com"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>hello</p>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	assert.Equal(t, float64(12), ts.metricValue(t, "noteshare_bytes_uploaded_total"))
	assert.Equal(t, float64(1), ts.metricValue(t, "noteshare_http_requests_total", "route", "upload", "status", "success"))
}

func TestUpload_Deduplicated(t *testing.T) {
	ts := newTestServer(t)

	first := ts.upload(t, "alice", "alice-key", "css", "a{}")
	second := ts.upload(t, "bob", "bob-key", "css", "a{}")

	assert.Equal(t, first.URL, second.URL)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, float64(1), ts.metricValue(t, "noteshare_uploads_deduplicated_total"))
}

func TestUpload_Expiration(t *testing.T) {
	ts := newTestServer(t)

	req := signedRequest(t, http.MethodPost, "/v1/file/upload", "alice", "alice-key", strings.NewReader("img"))
	req.Header.Set(HeaderFileType, "png")
	req.Header.Set(HeaderExpiration, "3600")
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Expires)
	assert.Equal(t, ts.clock.Now().Add(time.Hour).Unix(), *resp.Expires)

	path := strings.TrimPrefix(resp.URL, "https://notes.example.com")
	ts.clock.Advance(2 * time.Hour)
	rec = ts.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		fileType   string
		expiration string
		body       string
		wantCode   int
	}{
		{name: "executable", fileType: "exe", body: "MZ", wantCode: http.StatusBadRequest},
		{name: "missing type", fileType: "", body: "x", wantCode: http.StatusBadRequest},
		{name: "too large", fileType: "png", body: strings.Repeat("x", 65), wantCode: http.StatusRequestEntityTooLarge},
		{name: "bad expiration", fileType: "png", expiration: "soon", body: "x", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			req := signedRequest(t, http.MethodPost, "/v1/file/upload", "alice", "alice-key", strings.NewReader(tt.body))
			req.Header.Set(HeaderFileType, tt.fileType)
			if tt.expiration != "" {
				req.Header.Set(HeaderExpiration, tt.expiration)
			}
			rec := ts.do(req)
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAuth_CredentialRefresh(t *testing.T) {
	tests := []struct {
		name       string
		uid        string
		apiKey     string
		wantReason string
	}{
		{name: "wrong key", uid: "alice", apiKey: "stolen", wantReason: "invalid"},
		{name: "unknown user", uid: "mallory", apiKey: "alice-key", wantReason: "unknown_user"},
		{name: "no identity", uid: "", apiKey: "", wantReason: "unknown_user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			req := signedRequest(t, http.MethodPost, "/v1/file/upload", tt.uid, tt.apiKey, strings.NewReader("<p/>"))
			req.Header.Set(HeaderFileType, "html")
			rec := ts.do(req)

			assert.Equal(t, StatusCredentialRefresh, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "credential refresh required", resp.Error)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.Equal(t, float64(1), ts.metricValue(t, "noteshare_auth_failures_total", "reason", tt.wantReason))
		})
	}
}

func TestCheck(t *testing.T) {
	ts := newTestServer(t)
	up := ts.upload(t, "alice", "alice-key", "html", "<p>check</p>")

	rec := ts.do(signedRequest(t, http.MethodPost, "/v1/file/check", "bob", "bob-key", jsonBody(t, filenameRequest{Filename: up.Filename})))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)
	assert.Equal(t, up.URL, resp.URL)

	rec = ts.do(signedRequest(t, http.MethodPost, "/v1/file/check", "alice", "alice-key", jsonBody(t, filenameRequest{Filename: "zzzzzzzz.css"})))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = checkResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
	assert.Empty(t, resp.URL)
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t)
	up := ts.upload(t, "alice", "alice-key", "html", "<p>delete</p>")
	path := strings.TrimPrefix(up.URL, "https://notes.example.com")

	rec := ts.do(signedRequest(t, http.MethodPost, "/v1/file/delete", "bob", "bob-key", jsonBody(t, filenameRequest{Filename: up.Filename})))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, path, nil)).Code)

	rec = ts.do(signedRequest(t, http.MethodPost, "/v1/file/delete", "alice", "alice-key", jsonBody(t, filenameRequest{Filename: up.Filename})))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, path, nil)).Code)
	assert.Equal(t, []string{up.URL}, ts.purger.URLs())

	rec = ts.do(signedRequest(t, http.MethodPost, "/v1/file/delete", "alice", "alice-key", jsonBody(t, filenameRequest{Filename: up.Filename})))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilenameRequest_Invalid(t *testing.T) {
	ts := newTestServer(t)
	for _, body := range []string{"not json", `{"filename":""}`, `{"filename":"../x.html"}`} {
		rec := ts.do(signedRequest(t, http.MethodPost, "/v1/file/delete", "alice", "alice-key", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestServe_WrongShardPath(t *testing.T) {
	ts := newTestServer(t)
	up := ts.upload(t, "alice", "alice-key", "html", "<p>shard</p>")

	for _, p := range []string{"/notes/" + up.Filename, "/css/" + up.Filename[:1] + "/" + up.Filename} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ts.metrics.RecordSweep(3, 1, time.Second)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "noteshare_sweep_purged_total 3")
	assert.Contains(t, rec.Body.String(), "noteshare_sweep_failed_total 1")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
