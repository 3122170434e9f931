package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
	historymem "github.com/opsforge/remediator/internal/history/memory"
	"github.com/opsforge/remediator/internal/orchestration"
)

type fakeEngine struct {
	submitErr  error
	submitted  []domain.RemediationRequest
	batches    []orchestration.BatchRequest
	statuses   map[string]*orchestration.InstanceStatus
	cancelErr  error
	cancelled  []orchestration.CancelRequest
	purgeCount int
}

func (f *fakeEngine) Submit(_ context.Context, req domain.RemediationRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return fmt.Sprintf("inst-%d", len(f.submitted)), nil
}

func (f *fakeEngine) SubmitBatch(_ context.Context, br orchestration.BatchRequest) ([]string, error) {
	f.batches = append(f.batches, br)
	ids := make([]string, len(br.Targets))
	for i := range br.Targets {
		ids[i] = uuid.NewString()
	}
	return ids, nil
}

func (f *fakeEngine) GetStatus(_ context.Context, instanceID string) (*orchestration.InstanceStatus, error) {
	if s, ok := f.statuses[instanceID]; ok {
		return s, nil
	}
	return nil, orchestration.ErrInstanceNotFound
}

func (f *fakeEngine) Cancel(_ context.Context, req orchestration.CancelRequest) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, req)
	return nil
}

func (f *fakeEngine) Purge(_ context.Context, _ time.Time) (int, error) {
	return f.purgeCount, nil
}

func setupHandler(t *testing.T, engine *fakeEngine) (*chi.Mux, *historymem.Repository) {
	t.Helper()

	repo := historymem.NewRepository()
	h := NewHandler(engine, repo)

	router := chi.NewRouter()
	router.Route("/api/v1", h.RegisterRoutes)
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validSubmitBody() map[string]any {
	return map[string]any{
		"tenant_id":    uuid.NewString(),
		"incident_id":  "INC-1001",
		"platform":     "endpoint-protection",
		"action":       "isolate-device",
		"parameters":   map[string]any{"deviceId": "dev-7"},
		"initiated_by": "analyst@example.com",
		"priority":     "High",
	}
}

func TestHandler_Submit(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations", validSubmitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "inst-1", resp.Data["instance_id"])

	require.Len(t, engine.submitted, 1)
	assert.Equal(t, domain.PlatformEndpointProtection, engine.submitted[0].Platform)
	assert.Equal(t, domain.PriorityHigh, engine.submitted[0].Priority)
}

func TestHandler_SubmitInvalidJSON(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/remediations", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engine.submitted)
}

func TestHandler_SubmitMissingFields(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	body := validSubmitBody()
	delete(body, "initiated_by")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engine.submitted)
}

func TestHandler_SubmitDefaultsPriority(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	body := validSubmitBody()
	delete(body, "priority")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, engine.submitted, 1)
	assert.Equal(t, domain.PriorityMedium, engine.submitted[0].Priority)
}

func TestHandler_SubmitBatch(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations/batch", map[string]any{
		"tenant_id":    uuid.NewString(),
		"incident_id":  "INC-2002",
		"platform":     "endpoint-protection",
		"action":       "isolate-device",
		"initiated_by": "analyst@example.com",
		"targets": []map[string]any{
			{"deviceId": "dev-1"},
			{"deviceId": "dev-2"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data struct {
			InstanceIDs []string `json:"instance_ids"`
			Submitted   int      `json:"submitted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.InstanceIDs, 2)
	assert.Equal(t, 2, resp.Data.Submitted)

	require.Len(t, engine.batches, 1)
	assert.Len(t, engine.batches[0].Targets, 2)
}

func TestHandler_SubmitBatchRequiresTargets(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations/batch", map[string]any{
		"tenant_id":    uuid.NewString(),
		"incident_id":  "INC-2002",
		"platform":     "endpoint-protection",
		"action":       "isolate-device",
		"initiated_by": "analyst@example.com",
		"targets":      []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engine.batches)
}

func TestHandler_GetStatus(t *testing.T) {
	engine := &fakeEngine{
		statuses: map[string]*orchestration.InstanceStatus{
			"inst-9": {
				InstanceID: "inst-9",
				Status:     domain.InstanceExecuting,
				CreatedAt:  time.Now(),
			},
		},
	}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/remediations/inst-9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data orchestration.InstanceStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "inst-9", resp.Data.InstanceID)
	assert.Equal(t, domain.InstanceExecuting, resp.Data.Status)
}

func TestHandler_GetStatusNotFound(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/remediations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Cancel(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations/inst-3/cancel", map[string]any{
		"cancelled_by": "soc-lead@example.com",
		"reason":       "false positive",
		"force":        true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, engine.cancelled, 1)
	assert.Equal(t, "inst-3", engine.cancelled[0].InstanceID)
	assert.Equal(t, "soc-lead@example.com", engine.cancelled[0].Actor)
	assert.True(t, engine.cancelled[0].Terminate)
}

func TestHandler_CancelConflictOnTerminal(t *testing.T) {
	engine := &fakeEngine{cancelErr: orchestration.ErrInstanceTerminal}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations/inst-3/cancel", map[string]any{
		"cancelled_by": "ops",
		"reason":       "too late",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_CancelNotFound(t *testing.T) {
	engine := &fakeEngine{cancelErr: orchestration.ErrInstanceNotFound}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations/nope/cancel", map[string]any{
		"cancelled_by": "ops",
		"reason":       "gone",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CancelRequiresReason(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/remediations/inst-3/cancel", map[string]any{
		"cancelled_by": "ops",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engine.cancelled)
}

func seedHistory(t *testing.T, repo history.Repository, tenantID string, n int) {
	t.Helper()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		completed := base.Add(time.Duration(i)*time.Hour + 10*time.Second)
		require.NoError(t, repo.Append(context.Background(), &domain.HistoryEntry{
			TenantID:    tenantID,
			RequestID:   uuid.NewString(),
			IncidentID:  fmt.Sprintf("INC-%d", i),
			Platform:    domain.PlatformEndpointProtection,
			Action:      domain.ActionIsolateDevice,
			Status:      domain.StatusCompleted,
			Success:     true,
			InitiatedBy: "analyst@example.com",
			Priority:    domain.PriorityMedium,
			InitiatedAt: base.Add(time.Duration(i) * time.Hour),
			CompletedAt: &completed,
			Duration:    10 * time.Second,
		}))
	}
}

func TestHandler_QueryHistory(t *testing.T) {
	engine := &fakeEngine{}
	router, repo := setupHandler(t, engine)

	tenantID := uuid.NewString()
	seedHistory(t, repo, tenantID, 5)
	seedHistory(t, repo, uuid.NewString(), 3)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/history?tenant_id="+tenantID+"&page_size=2&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data history.Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Data.TotalCount)
	assert.Equal(t, 3, resp.Data.TotalPages)
	assert.Len(t, resp.Data.Entries, 2)
	for _, e := range resp.Data.Entries {
		assert.Equal(t, tenantID, e.TenantID)
	}
}

func TestHandler_QueryHistoryRejectsBadParams(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	for _, path := range []string{
		"/api/v1/history?page_size=zero",
		"/api/v1/history?page=-1",
		"/api/v1/history?from=yesterday",
		"/api/v1/history?sort_by=color",
	} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestHandler_GetStatistics(t *testing.T) {
	engine := &fakeEngine{}
	router, repo := setupHandler(t, engine)

	tenantID := uuid.NewString()
	seedHistory(t, repo, tenantID, 4)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/history/statistics?tenant_id="+tenantID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data history.Statistics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, 4, resp.Data.Successful)
	assert.InDelta(t, 100.0, resp.Data.SuccessRate, 0.001)
}

func TestHandler_Purge(t *testing.T) {
	engine := &fakeEngine{purgeCount: 7}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/history?before=2026-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Data["removed"])
}

func TestHandler_PurgeRequiresCutoff(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := setupHandler(t, engine)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/history", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/history?before=last-week", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
