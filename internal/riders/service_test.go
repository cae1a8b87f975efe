package riders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleetgate/internal/authbroker"
)

type recordedCall struct {
	orgID   string
	apiType string
	method  string
	path    string
	body    []byte
}

type stubExecutor struct {
	calls []recordedCall
	resp  json.RawMessage
	err   error
}

func (s *stubExecutor) Execute(_ context.Context, orgID, apiType, method, path string, body []byte, _ http.Header) (*authbroker.Response, error) {
	s.calls = append(s.calls, recordedCall{orgID: orgID, apiType: apiType, method: method, path: path, body: body})
	if s.err != nil {
		return nil, s.err
	}
	return &authbroker.Response{Status: http.StatusOK, Body: s.resp}, nil
}

func newTestService(resp string) (*Service, *stubExecutor) {
	exec := &stubExecutor{resp: json.RawMessage(resp)}
	return NewService(exec, nil, zap.NewNop().Sugar()), exec
}

func TestCatalogPaths(t *testing.T) {
	svc, exec := newTestService(`[]`)
	ctx := context.Background()

	_, err := svc.Contracts(ctx, "org-1")
	require.NoError(t, err)
	_, err = svc.VehicleTypes(ctx, "org-1")
	require.NoError(t, err)
	_, err = svc.StartingPoints(ctx, "org-1")
	require.NoError(t, err)
	_, err = svc.Cities(ctx, "org-1")
	require.NoError(t, err)

	require.Len(t, exec.calls, 4)
	assert.Equal(t, "/v3/external/contracts", exec.calls[0].path)
	assert.Equal(t, "/v3/external/vehicle-types", exec.calls[1].path)
	assert.Equal(t, "/v3/external/starting-points", exec.calls[2].path)
	assert.Equal(t, "/v3/external/cities", exec.calls[3].path)
	for _, c := range exec.calls {
		assert.Equal(t, "org-1", c.orgID)
		assert.Equal(t, APIType, c.apiType)
		assert.Equal(t, http.MethodGet, c.method)
	}
}

func TestRidersListEncodesFilters(t *testing.T) {
	svc, exec := newTestService(`{"riders":[]}`)

	filters := url.Values{}
	filters.Set("status", "ACTIVE")
	filters.Set("city_id", "12")
	_, err := svc.Riders(context.Background(), "org-1", filters)
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "/v3/external/employees?city_id=12&status=ACTIVE", exec.calls[0].path)
}

func TestRiderPathsEscapeIDs(t *testing.T) {
	svc, exec := newTestService(`{}`)
	ctx := context.Background()

	_, err := svc.Rider(ctx, "org-1", "emp/9")
	require.NoError(t, err)
	_, err = svc.LiveRiderDetails(ctx, "org-1", "12", "r 7")
	require.NoError(t, err)

	assert.Equal(t, "/v3/external/employees/emp%2F9", exec.calls[0].path)
	assert.Equal(t, "/v1/external/city/12/rider/r%207", exec.calls[1].path)
}

func TestMutationsForwardBody(t *testing.T) {
	svc, exec := newTestService(`{"id":"emp-1"}`)
	ctx := context.Background()
	payload := json.RawMessage(`{"name":"Dana"}`)

	_, err := svc.CreateRider(ctx, "org-1", payload)
	require.NoError(t, err)
	_, err = svc.UpdateRider(ctx, "org-1", "emp-1", payload)
	require.NoError(t, err)
	_, err = svc.AssignVehicle(ctx, "org-1", "emp-1", json.RawMessage(`{"vehicle_type_id":3}`))
	require.NoError(t, err)
	_, err = svc.AssignStartingPoints(ctx, "org-1", "emp-1", json.RawMessage(`{"starting_point_ids":[1,2]}`))
	require.NoError(t, err)
	_, err = svc.AssignContract(ctx, "org-1", "emp-1", json.RawMessage(`{"contract_id":8}`))
	require.NoError(t, err)

	require.Len(t, exec.calls, 5)
	assert.Equal(t, http.MethodPost, exec.calls[0].method)
	assert.Equal(t, "/v3/external/employees", exec.calls[0].path)
	assert.JSONEq(t, `{"name":"Dana"}`, string(exec.calls[0].body))
	assert.Equal(t, http.MethodPut, exec.calls[1].method)
	assert.Equal(t, "/v3/external/employees/emp-1", exec.calls[1].path)
	assert.Equal(t, "/v3/external/employees/emp-1/vehicles", exec.calls[2].path)
	assert.Equal(t, "/v3/external/employees/emp-1/starting-points", exec.calls[3].path)
	assert.Equal(t, "/v3/external/employees/emp-1/contracts", exec.calls[4].path)
}

func TestLiveRidersWithoutRedisAlwaysFetches(t *testing.T) {
	svc, exec := newTestService(`{"riders":[{"id":"r-1"}]}`)
	ctx := context.Background()

	first, err := svc.LiveRiders(ctx, "org-1", "12")
	require.NoError(t, err)
	second, err := svc.LiveRiders(ctx, "org-1", "12")
	require.NoError(t, err)

	assert.Len(t, exec.calls, 2)
	assert.Equal(t, "/v1/external/city/12/riders", exec.calls[0].path)
	assert.JSONEq(t, string(first), string(second))
}

func TestExecutorErrorPassesThrough(t *testing.T) {
	exec := &stubExecutor{err: authbroker.ErrCredentialNotFound}
	svc := NewService(exec, nil, zap.NewNop().Sugar())

	_, err := svc.Cities(context.Background(), "org-1")
	assert.ErrorIs(t, err, authbroker.ErrCredentialNotFound)
}
