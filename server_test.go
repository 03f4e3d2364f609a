package ddprofiler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerSubmitTask(t *testing.T) {
	c := NewConductor(newTestPipeline(), &testStore{}, WithPoolSize(1))
	h := NewServer(":0", c).Handler()

	rec := post(t, h, `{"kind":"local_file","dataset":"ds","dir":"/data","name":"a.csv"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var reply TaskAccepted
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "a.csv", reply.Source)
	assert.Equal(t, 1, reply.Queued)
	assert.Equal(t, int64(1), c.Stats().Submitted)
}

func TestServerRejectsBadRequests(t *testing.T) {
	c := NewConductor(newTestPipeline(), &testStore{}, WithPoolSize(1))
	h := NewServer(":0", c).Handler()

	rec := post(t, h, `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, `{"kind":"local_file","dir":"/data"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid task descriptor")

	rec = post(t, h, `{"kind":"hdfs_file"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, int64(0), c.Stats().Submitted)
}

func TestServerStopped(t *testing.T) {
	c := NewConductor(newTestPipeline(), &testStore{}, WithPoolSize(1))
	require.Nil(t, c.Start())
	require.Nil(t, c.Stop())
	h := NewServer(":0", c).Handler()

	rec := post(t, h, `{"kind":"benchmark","path":"/data/b.csv"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerStatus(t *testing.T) {
	c := NewConductor(newTestPipeline(), &testStore{}, WithPoolSize(2))
	h := NewServer(":0", c).Handler()

	rec := get(t, h, "/v1/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"created"`)

	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ddprofiler_queue_length")
}
