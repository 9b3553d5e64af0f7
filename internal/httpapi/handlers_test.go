package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finserv-applications/internal/aggregation"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/lifecycle"
	"finserv-applications/internal/models"
	"finserv-applications/internal/store"
	"finserv-applications/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	testSecret = "test-secret"
	testIssuer = "finserv-identity"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
}

func newTestAPI(t *testing.T, limiter *RateLimiter, checks map[string]HealthCheck) *testAPI {
	t.Helper()
	log := logger.NewTestLogger(t)
	reg := registry.Default()
	st := store.NewMemoryStore(reg)

	h := NewHandler(
		lifecycle.NewService(reg, st, log),
		aggregation.NewEngine(aggregation.Config{}, reg, st, log),
		checks,
		log,
	)
	router := NewRouter(h, RouterOptions{
		Authenticator:  NewAuthenticator(testSecret, testIssuer, "admin", log),
		RateLimiter:    limiter,
		RequestTimeout: 5 * time.Second,
	})
	return &testAPI{t: t, router: router}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := SignToken(testSecret, testIssuer, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(method, path, bearer string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeApp(t *testing.T, rec *httptest.ResponseRecorder) *models.Application {
	t.Helper()
	var app models.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	return &app
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code     string                 `json:"code"`
			Metadata map[string]interface{} `json:"metadata"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

// ==========================
// Authentication
// ==========================

func TestAuth(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodGet, "/api/v1/applications/personal_loan", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, rec))

	rec = api.do(http.MethodGet, "/api/v1/applications/personal_loan", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/personal_loan", nil)
	req.Header.Set("Authorization", "Token abc")
	raw := httptest.NewRecorder()
	api.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusUnauthorized, raw.Code)

	wrongIssuer, err := SignToken(testSecret, "someone-else", "user-a", "", time.Hour)
	require.NoError(t, err)
	rec = api.do(http.MethodGet, "/api/v1/applications/personal_loan", wrongIssuer, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := SignToken(testSecret, testIssuer, "user-a", "", -time.Minute)
	require.NoError(t, err)
	rec = api.do(http.MethodGet, "/api/v1/applications/personal_loan", expired, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/applications/personal_loan", token(t, "user-a", ""), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallerFrom_Default(t *testing.T) {
	assert.Equal(t, models.Caller{}, CallerFrom(context.Background()))
}

// ==========================
// Applications
// ==========================

func TestSubmitGetAndIsolation(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	userA, userB := token(t, "user-a", ""), token(t, "user-b", "")

	rec := api.do(http.MethodPost, "/api/v1/applications/personal_loan", userA, map[string]interface{}{"amount": 500000, "purpose": "wedding"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeApp(t, rec)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, int64(500000), *created.Amount)
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	path := "/api/v1/applications/personal_loan/" + created.ID
	rec = api.do(http.MethodGet, path, userA, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, path, userB, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = api.do(http.MethodGet, "/api/v1/applications/personal_loan/missing", userA, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/applications/personal_loan", userB, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Items)
}

func TestSubmit_Errors(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	userA := token(t, "user-a", "")

	rec := api.do(http.MethodPost, "/api/v1/applications/personal_loan", "", map[string]interface{}{"amount": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/applications/space_tourism", userA, map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/applications/personal_loan", userA, map[string]interface{}{"amount": 12.5}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/personal_loan", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+userA)
	raw := httptest.NewRecorder()
	api.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestSubmit_AnonymousInquiry(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodPost, "/api/v1/applications/motor_insurance", "", map[string]interface{}{"vehicle": "scooter"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, decodeApp(t, rec).OwnerID)

	rec = api.do(http.MethodGet, "/api/v1/applications/motor_insurance", token(t, "user-a", ""), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/applications/motor_insurance", token(t, "admin-1", "admin"), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}

func TestList_QueryValidation(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	userA := token(t, "user-a", "")

	for _, q := range []string{"?status=archived", "?limit=0", "?limit=1000", "?offset=-1", "?limit=abc"} {
		rec := api.do(http.MethodGet, "/api/v1/applications/personal_loan"+q, userA, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec := api.do(http.MethodGet, "/api/v1/applications/personal_loan?status=under_review&limit=5&offset=0", userA, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEdit(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	userA := token(t, "user-a", "")

	rec := api.do(http.MethodPost, "/api/v1/applications/home_loan", userA, map[string]interface{}{"amount": 100}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeApp(t, rec)
	etag := rec.Header().Get("ETag")
	path := "/api/v1/applications/home_loan/" + created.ID

	rec = api.do(http.MethodPatch, path, userA, map[string]interface{}{"amount": 200}, map[string]string{"If-Match": etag})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(200), *decodeApp(t, rec).Amount)

	rec = api.do(http.MethodPatch, path, userA, map[string]interface{}{"amount": 300}, map[string]string{"If-Match": etag})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, rec))

	rec = api.do(http.MethodPatch, path, userA, map[string]interface{}{"amount": 300}, map[string]string{"If-Match": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPatch, path, token(t, "user-b", ""), map[string]interface{}{"amount": 300}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ==========================
// Transitions
// ==========================

func TestTransition(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	userA, admin := token(t, "user-a", ""), token(t, "admin-1", "admin")

	rec := api.do(http.MethodPost, "/api/v1/applications/personal_loan", userA, map[string]interface{}{"amount": 1000}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeApp(t, rec)
	path := "/api/v1/admin/applications/personal_loan/" + created.ID + "/status"

	rec = api.do(http.MethodPost, path, userA, transitionBody{Status: "Approved"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "submitter cannot self-approve")

	rec = api.do(http.MethodPost, path, admin, transitionBody{Status: "Disbursed"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error struct {
			Code     string            `json:"code"`
			Metadata map[string]string `json:"metadata"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_TRANSITION", body.Error.Code)
	assert.Equal(t, "Pending", body.Error.Metadata["currentStatus"])
	assert.Equal(t, "Disbursed", body.Error.Metadata["targetStatus"])

	rec = api.do(http.MethodPost, path, admin, transitionBody{Status: "Rejected"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "rejection needs a note")

	rec = api.do(http.MethodPost, path, admin, transitionBody{Status: "teleported"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stale := created.UpdatedAt.Add(-time.Second)
	rec = api.do(http.MethodPost, path, admin, transitionBody{Status: "Approved", ExpectedVersion: &stale}, nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = api.do(http.MethodPost, path, admin, transitionBody{Status: "under review"}, map[string]string{"If-Match": `"` + created.UpdatedAt.Format(time.RFC3339Nano) + `"`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decodeApp(t, rec)
	assert.Equal(t, models.StatusUnderReview, reviewed.Status)
	assert.Len(t, reviewed.StatusHistory, 2)
	assert.Equal(t, "admin-1", reviewed.StatusHistory[1].ActorID)
}

// ==========================
// Dashboard, registry, health
// ==========================

func TestSummary(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	userA, userB, admin := token(t, "user-a", ""), token(t, "user-b", ""), token(t, "admin-1", "admin")

	rec := api.do(http.MethodPost, "/api/v1/applications/personal_loan", userA, map[string]interface{}{"amount": 500000}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	summaryFor := func(tok string) aggregation.Summary {
		rec := api.do(http.MethodGet, "/api/v1/dashboard/summary", tok, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var s aggregation.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
		return s
	}

	a := summaryFor(userA)
	assert.Equal(t, int64(1), a.TotalsByCategory[models.CategoryPersonalLoan].Count)
	assert.Equal(t, int64(500000), *a.TotalsByCategory[models.CategoryPersonalLoan].Sum)
	assert.Nil(t, a.TotalsByCategory[models.CategoryCompanyRegistration].Sum)

	assert.Equal(t, int64(0), summaryFor(userB).TotalsByCategory[models.CategoryPersonalLoan].Count)
	assert.Equal(t, int64(1), summaryFor(admin).TotalsByCategory[models.CategoryPersonalLoan].Count)

	rec = api.do(http.MethodGet, "/api/v1/dashboard/summary", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCategories(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodGet, "/api/v1/categories", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []categoryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, registry.Default().Len())
	assert.Equal(t, models.CategoryPersonalLoan, out[0].Category)
	assert.True(t, out[0].HasAmount)
}

func TestHealth(t *testing.T) {
	healthy := newTestAPI(t, nil, map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
	})
	rec := healthy.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	degraded := newTestAPI(t, nil, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec = degraded.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	rec := api.do(http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(1, 2, logger.NewTestLogger(t))
	api := newTestAPI(t, limiter, nil)
	userA := token(t, "user-a", "")

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, api.do(http.MethodGet, "/api/v1/categories", userA, nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another caller has its own bucket.
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/categories", token(t, "user-b", ""), nil, nil).Code)
}
