package authbroker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeResource answers each request with the next status in sequence,
// repeating the last one, and counts calls.
func newFakeResource(t *testing.T, statuses ...int) (*httptest.Server, *int64) {
	t.Helper()
	var count int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&count, 1)
		idx := int(n) - 1
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		status := statuses[idx]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"riders":[]}`))
		} else {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &count
}

func newTestExecutor(t *testing.T, stsURL, apiURL string) (*Executor, *Broker) {
	t.Helper()
	b, _ := newTestBroker(t, stsURL, apiURL)
	return NewExecutor(b, testLogger()), b
}

func TestExecuteSuccess(t *testing.T) {
	sts, stsCount := newFakeSTS(t, 7200)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/v3/external/contracts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"contracts": []string{"full-time"}})
	}))
	defer api.Close()
	exec, _ := newTestExecutor(t, sts.URL, api.URL)

	resp, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodGet, "/v3/external/contracts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body), "full-time")
	assert.EqualValues(t, 1, atomic.LoadInt64(stsCount))
}

func TestExecuteRetriesOnceAfter401(t *testing.T) {
	sts, stsCount := newFakeSTS(t, 7200)
	api, apiCount := newFakeResource(t, http.StatusUnauthorized, http.StatusOK)
	exec, _ := newTestExecutor(t, sts.URL, api.URL)

	resp, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodGet, "/v1/external/city/1/riders", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	// two resource calls, two exchanges (initial mint + one forced refresh)
	assert.EqualValues(t, 2, atomic.LoadInt64(apiCount))
	assert.EqualValues(t, 2, atomic.LoadInt64(stsCount))
}

func TestExecuteFailsAfterSecond401(t *testing.T) {
	sts, stsCount := newFakeSTS(t, 7200)
	api, apiCount := newFakeResource(t, http.StatusUnauthorized, http.StatusUnauthorized)
	exec, _ := newTestExecutor(t, sts.URL, api.URL)

	_, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodGet, "/v3/external/employees", nil, nil)
	var aerr *AuthenticationFailedError
	require.True(t, errors.As(err, &aerr))

	// no third attempt, exactly one forced refresh
	assert.EqualValues(t, 2, atomic.LoadInt64(apiCount))
	assert.EqualValues(t, 2, atomic.LoadInt64(stsCount))
}

func TestExecuteSurfacesUpstreamError(t *testing.T) {
	sts, _ := newFakeSTS(t, 7200)
	api, apiCount := newFakeResource(t, http.StatusBadGateway)
	exec, _ := newTestExecutor(t, sts.URL, api.URL)

	_, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodGet, "/v3/external/cities", nil, nil)
	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, http.StatusBadGateway, uerr.Status)
	assert.JSONEq(t, `{"error":"nope"}`, uerr.Body)
	assert.EqualValues(t, 1, atomic.LoadInt64(apiCount)) // never retried
}

func TestExecuteReusesCachedTokenAcrossCalls(t *testing.T) {
	sts, stsCount := newFakeSTS(t, 7200)
	api, _ := newFakeResource(t, http.StatusOK)
	exec, _ := newTestExecutor(t, sts.URL, api.URL)

	for i := 0; i < 3; i++ {
		_, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodGet, "/v3/external/vehicle-types", nil, nil)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(stsCount))
}

func TestExecuteTransportError(t *testing.T) {
	sts, _ := newFakeSTS(t, 7200)
	api, _ := newFakeResource(t, http.StatusOK)
	url := api.URL
	api.Close()
	exec, _ := newTestExecutor(t, sts.URL, url)

	_, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodGet, "/v3/external/contracts", nil, nil)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
}

func TestExecutePostBodyReplayedOnRetry(t *testing.T) {
	sts, _ := newFakeSTS(t, 7200)
	var bodies []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer api.Close()
	exec, _ := newTestExecutor(t, sts.URL, api.URL)

	payload := []byte(`{"first_name":"Ada"}`)
	resp, err := exec.Execute(context.Background(), testOrgID, testAPIType, http.MethodPost, "/v3/external/employees", payload, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}
