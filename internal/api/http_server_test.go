package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fixhub/internal/config"
	"fixhub/internal/database"
	"fixhub/internal/events"
	"fixhub/internal/models"
	"fixhub/internal/repository"
	"fixhub/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg config.APIConfig) *HTTPServer {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zerolog.Nop()
	svc := service.NewBookingService(db, repository.NewMemoryHub(), events.NewEventBus(), nil, &logger)

	return NewHTTPServer(cfg, svc, nil, logger)
}

func doJSON(t *testing.T, srv *HTTPServer, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createBooking(t *testing.T, srv *HTTPServer) models.Booking {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings", map[string]any{
		"customer_id":  42,
		"service_type": "mobile_repair",
		"issue":        "cracked screen",
		"urgency":      "high",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeResponse[models.Booking](t, rec)
}

func TestCreateAndGetBooking(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	booking := createBooking(t, srv)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, int64(1), booking.Version)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeResponse[models.Booking](t, rec)
	assert.Equal(t, booking.ID, got.ID)
	require.Len(t, got.History, 1)
	assert.Equal(t, models.StatusPending, got.History[0].Status)
}

func TestCreateBookingValidation(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings", map[string]any{
		"customer_id":  42,
		"service_type": "submarine_repair",
		"issue":        "leaking",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionEndpoint(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	booking := createBooking(t, srv)

	path := fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID)

	rec := doJSON(t, srv, http.MethodPost, path, map[string]any{"status": "bidding", "note": "bids open"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeResponse[models.Booking](t, rec)
	assert.Equal(t, models.StatusBidding, got.Status)
	assert.Equal(t, int64(2), got.Version)

	// illegal jump is rejected and nothing changes
	rec = doJSON(t, srv, http.MethodPost, path, map[string]any{"status": "in_progress"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeResponse[map[string]any](t, rec)
	assert.Equal(t, "bidding", status["status"])
	assert.Equal(t, float64(2), status["event_seq"])
}

func TestTransitionUnknownStatus(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	booking := createBooking(t, srv)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID),
		map[string]any{"status": "vanished"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingNotFound(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/bookings/9999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/bookings/9999/status", map[string]any{"status": "bidding"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	booking := createBooking(t, srv)

	doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID),
		map[string]any{"status": "bidding"}, nil)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d/history", booking.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[map[string][]models.StatusHistoryEntry](t, rec)
	history := resp["history"]
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, int64(2), history[1].Seq)
	assert.Equal(t, models.StatusBidding, history[1].Status)
}

func TestReviewEndpointIdempotent(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	booking := createBooking(t, srv)

	path := fmt.Sprintf("/api/v1/bookings/%d/review", booking.ID)

	rec := doJSON(t, srv, http.MethodPost, path, map[string]any{"review_id": 77}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// second attach is a no-op, the first review wins
	rec = doJSON(t, srv, http.MethodPost, path, map[string]any{"review_id": 88}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.ID), nil, nil)
	got := decodeResponse[models.Booking](t, rec)
	assert.True(t, got.HasReview)
	assert.Equal(t, int64(77), got.ReviewID)
}

func TestBidEndpoints(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	booking := createBooking(t, srv)

	path := fmt.Sprintf("/api/v1/bookings/%d/bid", booking.ID)

	rec := doJSON(t, srv, http.MethodPost, path, map[string]any{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, path, map[string]any{"bid_id": 5}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", booking.ID), nil, nil)
	got := decodeResponse[models.Booking](t, rec)
	assert.True(t, got.HasBids)
	assert.Equal(t, int64(5), got.SelectedBidID)
}

func TestPaymentEndpoint(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	booking := createBooking(t, srv)

	path := fmt.Sprintf("/api/v1/bookings/%d/payment", booking.ID)

	rec := doJSON(t, srv, http.MethodPost, path, map[string]any{"payment_status": "paid"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, path, map[string]any{"payment_status": "declined"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookings(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	createBooking(t, srv)
	createBooking(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/bookings?status=pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse[map[string][]models.Booking](t, rec)
	assert.Len(t, resp["bookings"], 2)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/bookings?customer_id=42&status=pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeResponse[map[string][]models.Booking](t, rec)
	assert.Len(t, resp["bookings"], 2)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/bookings", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServicesEndpoint(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})
	srv.SetServiceCatalog([]models.ServiceCatalogEntry{
		{Type: models.ServicePCRepair, Title: "Ремонт ПК", Active: true, SortOrder: 2},
		{Type: models.ServiceMobileRepair, Title: "Ремонт телефонов", Active: true, SortOrder: 1},
		{Type: models.ServiceTabletRepair, Title: "Ремонт планшетов", Active: false, SortOrder: 3},
	})

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/services", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse[map[string][]models.ServiceCatalogEntry](t, rec)
	services := resp["services"]
	require.Len(t, services, 2)
	assert.Equal(t, models.ServiceMobileRepair, services[0].Type)
	assert.Equal(t, models.ServicePCRepair, services[1].Type)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{})

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func authedConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "admin-key", Extra: "admin-extra", Name: "ops", Role: "admin"},
				{Key: "cust-key", Extra: "cust-extra", Name: "app", Role: "customer", UserID: 42},
			},
		},
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, authedConfig())

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/healthz", nil, map[string]string{
		"x-api-key":   "admin-key",
		"x-api-extra": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/healthz", nil, map[string]string{
		"x-api-key":   "admin-key",
		"x-api-extra": "admin-extra",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForceTransitionPermissions(t *testing.T) {
	srv := newTestServer(t, authedConfig())

	adminHeaders := map[string]string{"x-api-key": "admin-key", "x-api-extra": "admin-extra"}
	custHeaders := map[string]string{"x-api-key": "cust-key", "x-api-extra": "cust-extra"}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings", map[string]any{
		"customer_id":  42,
		"service_type": "pc_repair",
		"issue":        "no boot",
	}, adminHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decodeResponse[models.Booking](t, rec)

	path := fmt.Sprintf("/api/v1/bookings/%d/status", booking.ID)

	// customer key cannot force
	rec = doJSON(t, srv, http.MethodPost, path, map[string]any{"status": "completed", "force": true}, custHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admin key can
	rec = doJSON(t, srv, http.MethodPost, path, map[string]any{"status": "completed", "force": true}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeResponse[models.Booking](t, rec)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotEmpty(t, got.History)
	assert.True(t, got.History[len(got.History)-1].Forced)
}

func TestCustomerKeyScoping(t *testing.T) {
	srv := newTestServer(t, authedConfig())

	custHeaders := map[string]string{"x-api-key": "cust-key", "x-api-extra": "cust-extra"}

	// customer_id in the body is overridden with the key's user
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings", map[string]any{
		"customer_id":  777,
		"service_type": "laptop_repair",
		"issue":        "keyboard dead",
	}, custHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	booking := decodeResponse[models.Booking](t, rec)
	assert.Equal(t, int64(42), booking.CustomerID)

	// listings are pinned to the key's own bookings
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/bookings?customer_id=777", nil, custHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse[map[string][]models.Booking](t, rec)
	require.Len(t, resp["bookings"], 1)
	assert.Equal(t, int64(42), resp["bookings"][0].CustomerID)
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2}}
	srv := newTestServer(t, cfg)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, nil)
		codes = append(codes, rec.Code)
	}
	assert.Contains(t, codes, http.StatusTooManyRequests)
}
