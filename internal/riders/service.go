// Package riders wraps the delivery-rider management platform behind typed
// operations, delegating authentication to the broker's request executor.
package riders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleetgate/internal/authbroker"
)

// APIType identifies the rider platform configuration slot.
const APIType = "rider_platform"

// liveSnapshotTTL bounds how stale a cached live-city snapshot may be.
const liveSnapshotTTL = 15 * time.Second

// Executor performs authenticated requests against an organization's
// external API.
type Executor interface {
	Execute(ctx context.Context, orgID, apiType, method, path string, body []byte, header http.Header) (*authbroker.Response, error)
}

type Service struct {
	exec Executor
	rdb  *redis.Client // optional; live snapshots bypass it when nil
	log  *zap.SugaredLogger
}

func NewService(exec Executor, rdb *redis.Client, log *zap.SugaredLogger) *Service {
	return &Service{exec: exec, rdb: rdb, log: log}
}

func (s *Service) get(ctx context.Context, orgID, path string, query url.Values) (json.RawMessage, error) {
	if enc := query.Encode(); enc != "" {
		path += "?" + enc
	}
	resp, err := s.exec.Execute(ctx, orgID, APIType, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *Service) send(ctx context.Context, orgID, method, path string, body json.RawMessage) (json.RawMessage, error) {
	resp, err := s.exec.Execute(ctx, orgID, APIType, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Catalog endpoints.

func (s *Service) Contracts(ctx context.Context, orgID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v3/external/contracts", nil)
}

func (s *Service) VehicleTypes(ctx context.Context, orgID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v3/external/vehicle-types", nil)
}

func (s *Service) StartingPoints(ctx context.Context, orgID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v3/external/starting-points", nil)
}

func (s *Service) Cities(ctx context.Context, orgID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v3/external/cities", nil)
}

// Rider management.

func (s *Service) CreateRider(ctx context.Context, orgID string, rider json.RawMessage) (json.RawMessage, error) {
	return s.send(ctx, orgID, http.MethodPost, "/v3/external/employees", rider)
}

func (s *Service) Riders(ctx context.Context, orgID string, filters url.Values) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v3/external/employees", filters)
}

func (s *Service) Rider(ctx context.Context, orgID, employeeID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v3/external/employees/"+url.PathEscape(employeeID), nil)
}

func (s *Service) UpdateRider(ctx context.Context, orgID, employeeID string, rider json.RawMessage) (json.RawMessage, error) {
	return s.send(ctx, orgID, http.MethodPut, "/v3/external/employees/"+url.PathEscape(employeeID), rider)
}

func (s *Service) AssignVehicle(ctx context.Context, orgID, employeeID string, vehicle json.RawMessage) (json.RawMessage, error) {
	return s.send(ctx, orgID, http.MethodPost, "/v3/external/employees/"+url.PathEscape(employeeID)+"/vehicles", vehicle)
}

func (s *Service) AssignStartingPoints(ctx context.Context, orgID, employeeID string, points json.RawMessage) (json.RawMessage, error) {
	return s.send(ctx, orgID, http.MethodPost, "/v3/external/employees/"+url.PathEscape(employeeID)+"/starting-points", points)
}

func (s *Service) AssignContract(ctx context.Context, orgID, employeeID string, contract json.RawMessage) (json.RawMessage, error) {
	return s.send(ctx, orgID, http.MethodPost, "/v3/external/employees/"+url.PathEscape(employeeID)+"/contracts", contract)
}

// Live data. City snapshots are briefly cached in Redis since the dashboard
// polls them and the analytics/alert paths re-read the same snapshot.

func (s *Service) LiveRiders(ctx context.Context, orgID, cityID string) (json.RawMessage, error) {
	key := fmt.Sprintf("live:%s:%s", orgID, cityID)
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			return cached, nil
		}
	}
	body, err := s.get(ctx, orgID, "/v1/external/city/"+url.PathEscape(cityID)+"/riders", nil)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, key, []byte(body), liveSnapshotTTL).Err(); err != nil {
			s.log.Warnw("live snapshot cache", "err", err)
		}
	}
	return body, nil
}

func (s *Service) LiveRiderDetails(ctx context.Context, orgID, cityID, riderID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v1/external/city/"+url.PathEscape(cityID)+"/rider/"+url.PathEscape(riderID), nil)
}

func (s *Service) CompaniesOverview(ctx context.Context, orgID, cityID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v1/external/city/"+url.PathEscape(cityID)+"/companies", nil)
}

func (s *Service) CompanyData(ctx context.Context, orgID, cityID, companyID string) (json.RawMessage, error) {
	return s.get(ctx, orgID, "/v1/external/city/"+url.PathEscape(cityID)+"/company/"+url.PathEscape(companyID), nil)
}
