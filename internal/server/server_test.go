package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TokenVersionGuard用。FindByIDだけ使う
type staticUsers struct {
	repository.UserRepository
	users map[int64]*model.User
}

func (s staticUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func newTestServer(t *testing.T) (*echo.Echo, config.Config) {
	t.Helper()
	cfg := config.Config{JWTSecret: "s", FEURL: "http://localhost:3000", UploadDir: t.TempDir()}
	users := staticUsers{users: map[int64]*model.User{
		1: {ID: 1, Role: model.RoleCustomer},
		2: {ID: 2, Role: model.RoleAdmin},
	}}
	// ガードで止まるリクエストしか投げないのでusecaseは空でよい
	h := Handlers{
		Auth:         handler.NewAuthHandler(nil),
		Product:      handler.NewProductHandler(nil, nil),
		Cart:         handler.NewCartHandler(nil),
		Address:      handler.NewAddressHandler(nil),
		Order:        handler.NewOrderHandler(nil),
		Payment:      handler.NewPaymentHandler(nil),
		Contact:      handler.NewContactHandler(nil),
		Upload:       handler.NewUploadHandler(usecase.NewUploadUsecase(nil, 0, nil)),
		AdminProduct: handler.NewAdminProductHandler(nil, nil),
		AdminOrder:   handler.NewAdminOrderHandler(nil),
		AdminUser:    handler.NewAdminUserHandler(nil, nil),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, log, users, h), cfg
}

func token(t *testing.T, cfg config.Config, sub int64, role model.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub, "role": string(role), "tv": 0, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	return s
}

func do(h http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"}`)
}

func TestServer_Guards(t *testing.T) {
	srv, cfg := newTestServer(t)
	customer := token(t, cfg, 1, model.RoleCustomer)
	admin := token(t, cfg, 2, model.RoleAdmin)
	ghost := token(t, cfg, 3, model.RoleAdmin)

	cases := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
	}{
		{"orders without token", http.MethodGet, "/orders", "", http.StatusUnauthorized},
		{"cart without token", http.MethodGet, "/cart", "", http.StatusUnauthorized},
		{"addresses without token", http.MethodGet, "/addresses", "", http.StatusUnauthorized},
		{"admin as customer", http.MethodGet, "/admin/orders", customer, http.StatusForbidden},
		{"upload as customer", http.MethodPost, "/upload", customer, http.StatusForbidden},
		{"deleted user token", http.MethodGet, "/admin/orders", ghost, http.StatusUnauthorized},
		{"upload without file", http.MethodPost, "/upload", admin, http.StatusBadRequest},
		{"unknown route is not guarded", http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(srv, tc.method, tc.path, tc.bearer)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Idempotency-Key")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-Idempotency-Key"))
}

func TestStart_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, srv, "127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
