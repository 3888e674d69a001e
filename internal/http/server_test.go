package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/ledger"
	"github.com/fyrsmithlabs/escrowd/internal/task"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

type testServer struct {
	server *Server
	ledger *ledger.Memory
}

func setupTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	return setupTestServerWithConfig(t, &Config{
		Host:         "localhost",
		Port:         0,
		CallerHeader: auth.DefaultCallerHeader,
		BodyLimit:    "1K",
	}, opts...)
}

func setupTestServerWithConfig(t *testing.T, cfg *Config, opts ...Option) *testServer {
	t.Helper()

	l := ledger.NewMemory(nil, nil)
	require.NoError(t, l.Credit(context.Background(), "creator", 1_000))

	svc, err := task.NewService(nil, l, nil, nil)
	require.NoError(t, err)

	server, err := NewServer(svc, l, zap.NewNop(), cfg, opts...)
	require.NoError(t, err)
	return &testServer{server: server, ledger: l}
}

// do sends a request as caller; an empty caller omits the header.
func (ts *testServer) do(t *testing.T, method, target, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if caller != "" {
		req.Header.Set(auth.DefaultCallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	ts.server.Echo().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decode[ErrorResponse](t, rec).Code)
}

func TestNewServer(t *testing.T) {
	l := ledger.NewMemory(nil, nil)
	svc, err := task.NewService(nil, l, nil, nil)
	require.NoError(t, err)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(svc, l, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", server.config.Host)
		assert.Equal(t, 8480, server.config.Port)
		assert.True(t, server.config.RateLimit.Enabled)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(svc, l, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when task service is nil", func(t *testing.T) {
		_, err := NewServer(nil, l, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task service cannot be nil")
	})

	t.Run("returns error when balance reader is nil", func(t *testing.T) {
		_, err := NewServer(svc, nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "balance reader cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok without checks", func(t *testing.T) {
		ts := setupTestServer(t)
		rec := ts.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Empty(t, resp.Checks)
	})

	t.Run("degraded when a check fails", func(t *testing.T) {
		ts := setupTestServer(t,
			WithHealthCheck("nats", func(context.Context) error { return errors.New("disconnected") }),
			WithHealthCheck("ledger", func(context.Context) error { return nil }),
		)
		rec := ts.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, map[string]string{"nats": "disconnected", "ledger": "ok"}, resp.Checks)
	})
}

func TestTaskLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/tasks", "creator", CreateTaskRequest{Name: "alpha", LockedAmount: 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CreateTaskResponse](t, rec)
	assert.Equal(t, "alpha", created.Name)
	assert.Equal(t, auth.Identity("creator"), created.Creator)
	assert.Equal(t, uint64(100), created.LockedAmount)
	assert.NotEmpty(t, created.ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/alpha", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[TaskResponse](t, rec)
	assert.Equal(t, task.StageCreated, got.Stage)
	assert.Equal(t, created.Vault, got.Vault)
	require.NotNil(t, got.VaultBalance)
	assert.Equal(t, uint64(100), *got.VaultBalance)
	assert.Empty(t, got.Recipients)

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/alpha/allocation", "creator", SubmitAllocationRequest{
		Recipients: []string{"x", "y"},
		Amounts:    []uint64{60, 40},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/alpha/claim", "x", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claim := decode[task.ClaimResult](t, rec)
	assert.Equal(t, uint64(60), claim.Amount)
	assert.Equal(t, 0, claim.Index)

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/alpha/claim", "x", nil)
	requireErrorCode(t, rec, http.StatusConflict, "RewardAlreadyClaimed")

	rec = ts.do(t, http.MethodGet, "/api/v1/accounts/x/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, BalanceResponse{Identity: "x", Balance: 60}, decode[BalanceResponse](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/alpha", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[TaskResponse](t, rec)
	assert.Equal(t, task.StageAllocated, got.Stage)
	assert.Equal(t, []bool{true, false}, got.Claimed)
	assert.Equal(t, uint64(40), got.Outstanding)
	require.NotNil(t, got.VaultBalance)
	assert.Equal(t, uint64(40), *got.VaultBalance)

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListTasksResponse](t, rec)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "alpha", list.Tasks[0].Name)
}

func TestErrorMapping(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.ledger.Credit(context.Background(), "poor", 5))

	rec := ts.do(t, http.MethodPost, "/api/v1/tasks", "creator", CreateTaskRequest{Name: "alpha", LockedAmount: 100})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		target string
		caller string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "missing caller",
			method: http.MethodPost, target: "/api/v1/tasks",
			body:   CreateTaskRequest{Name: "beta", LockedAmount: 1},
			status: http.StatusUnauthorized, code: "MissingCaller",
		},
		{
			name:   "invalid caller header",
			method: http.MethodPost, target: "/api/v1/tasks", caller: "not valid!",
			body:   CreateTaskRequest{Name: "beta", LockedAmount: 1},
			status: http.StatusBadRequest, code: "InvalidCaller",
		},
		{
			name:   "malformed body",
			method: http.MethodPost, target: "/api/v1/tasks", caller: "creator",
			body:   `{"name":`,
			status: http.StatusBadRequest, code: "InvalidRequest",
		},
		{
			name:   "empty name",
			method: http.MethodPost, target: "/api/v1/tasks", caller: "creator",
			body:   CreateTaskRequest{LockedAmount: 1},
			status: http.StatusBadRequest, code: "InvalidTaskName",
		},
		{
			name:   "duplicate name",
			method: http.MethodPost, target: "/api/v1/tasks", caller: "creator",
			body:   CreateTaskRequest{Name: "alpha", LockedAmount: 1},
			status: http.StatusConflict, code: "TaskAlreadyExists",
		},
		{
			name:   "insufficient funds",
			method: http.MethodPost, target: "/api/v1/tasks", caller: "poor",
			body:   CreateTaskRequest{Name: "gamma", LockedAmount: 10},
			status: http.StatusPaymentRequired, code: "InsufficientFunds",
		},
		{
			name:   "unknown task",
			method: http.MethodGet, target: "/api/v1/tasks/missing",
			status: http.StatusNotFound, code: "TaskNotFound",
		},
		{
			name:   "non-creator allocation",
			method: http.MethodPost, target: "/api/v1/tasks/alpha/allocation", caller: "x",
			body:   SubmitAllocationRequest{Recipients: []string{"x"}, Amounts: []uint64{100}},
			status: http.StatusForbidden, code: "Unauthorized",
		},
		{
			name:   "sum mismatch",
			method: http.MethodPost, target: "/api/v1/tasks/alpha/allocation", caller: "creator",
			body:   SubmitAllocationRequest{Recipients: []string{"x", "y"}, Amounts: []uint64{60, 30}},
			status: http.StatusUnprocessableEntity, code: "InvalidRewardDistribution",
		},
		{
			name:   "invalid recipient",
			method: http.MethodPost, target: "/api/v1/tasks/alpha/allocation", caller: "creator",
			body:   SubmitAllocationRequest{Recipients: []string{"bad id"}, Amounts: []uint64{100}},
			status: http.StatusBadRequest, code: "InvalidRequest",
		},
		{
			name:   "claim before allocation",
			method: http.MethodPost, target: "/api/v1/tasks/alpha/claim", caller: "x",
			status: http.StatusConflict, code: "RewardDistributionNotSubmitted",
		},
		{
			name:   "invalid account",
			method: http.MethodGet, target: "/api/v1/accounts/bad%20id/balance",
			status: http.StatusBadRequest, code: "InvalidRequest",
		},
		{
			name:   "unknown route",
			method: http.MethodGet, target: "/api/v2/tasks",
			status: http.StatusNotFound, code: "NotFound",
		},
		{
			name:   "body too large",
			method: http.MethodPost, target: "/api/v1/tasks", caller: "creator",
			body:   CreateTaskRequest{Name: string(bytes.Repeat([]byte("a"), 2048)), LockedAmount: 1},
			status: http.StatusRequestEntityTooLarge, code: "RequestTooLarge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, tt.caller, tt.body)
			requireErrorCode(t, rec, tt.status, tt.code)
		})
	}
}

func TestNotEligibleClaim(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/tasks", "creator", CreateTaskRequest{Name: "alpha", LockedAmount: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/alpha/allocation", "creator", SubmitAllocationRequest{
		Recipients: []string{"x"},
		Amounts:    []uint64{10},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/alpha/claim", "z", nil)
	requireErrorCode(t, rec, http.StatusForbidden, "NotEligible")

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/alpha/allocation", "creator", SubmitAllocationRequest{
		Recipients: []string{"y"},
		Amounts:    []uint64{10},
	})
	requireErrorCode(t, rec, http.StatusConflict, "AllocationAlreadySubmitted")
}

func TestInitialize(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/config", "", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "NotInitialized")

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/initialize", "admin", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, auth.Identity("admin"), decode[task.GlobalConfig](t, rec).Admin)

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/initialize", "other", nil)
	requireErrorCode(t, rec, http.StatusConflict, "AlreadyInitialized")

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.Identity("admin"), decode[task.GlobalConfig](t, rec).Admin)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledger.NewMetrics(reg)

	ts := setupTestServerWithConfig(t, &Config{Host: "localhost", Gatherer: reg})
	rec := ts.do(t, http.MethodPost, "/api/v1/tasks", "creator", CreateTaskRequest{Name: "alpha", LockedAmount: 10})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "NotFound")
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServerWithConfig(t, &Config{
		Host: "localhost",
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 0.001,
			Burst:             1,
		},
	})

	rec := ts.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks", "", nil)
	requireErrorCode(t, rec, http.StatusTooManyRequests, "RateLimited")

	// health is never limited
	rec = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverRendersInternal(t *testing.T) {
	ts := setupTestServer(t)
	ts.server.Echo().GET("/boom", func(echo.Context) error {
		panic("boom")
	})

	rec := ts.do(t, http.MethodGet, "/boom", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Internal", resp.Code)
	assert.Equal(t, "internal error", resp.Message)
}

func TestErrorResponse_HidesInternalErrors(t *testing.T) {
	status, body := errorResponse(errors.New("db password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body.Message)

	status, body = errorResponse(context.DeadlineExceeded)
	assert.Equal(t, http.StatusRequestTimeout, status)
	assert.Equal(t, "DeadlineExceeded", body.Code)
}
