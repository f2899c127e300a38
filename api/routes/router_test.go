package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/auth"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/notifications"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/vouchers"
	pkgauth "github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/auth"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/config"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubAuthService struct{}

func (stubAuthService) Login(context.Context, auth.LoginRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "stub"}, nil
}

type stubVoucherService struct{}

func (stubVoucherService) Lookup(context.Context, string) (*vouchers.LookupResult, error) {
	return &vouchers.LookupResult{ReservationID: uuid.New()}, nil
}

func (stubVoucherService) Redeem(context.Context, string) (*vouchers.RedeemResult, error) {
	return &vouchers.RedeemResult{Status: enums.VoucherStatusRedeemed, RedeemedAt: time.Now()}, nil
}

func (stubVoucherService) LinkOrder(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) Notify(context.Context, notifications.NotifyParams) (*models.Notification, error) {
	return nil, nil
}

func (stubNotificationsService) List(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func testRouter(t *testing.T) (http.Handler, config.JWTConfig) {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{Secret: "router-secret", Issuer: "test", ExpirationMinutes: 10}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	handler := NewRouter(cfg, logg, stubPinger{}, nil, stubAuthService{}, stubVoucherService{}, stubNotificationsService{})
	return handler, cfg.JWT
}

func bearerToken(t *testing.T, cfg config.JWTConfig) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRolePatient,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthEndpoints(t *testing.T) {
	handler, _ := testRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", resp.Code)
	}
}

func TestLoginIsPublic(t *testing.T) {
	handler, _ := testRouter(t)

	body := `{"email":"patient@clinic.example","password":"long-enough-pw"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("login returned %d body %s", resp.Code, resp.Body.String())
	}
}

func TestVoucherRoutesRequireAuth(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	paths := map[string]string{
		"/api/v1/vouchers/lookup": `{"code":"WL12-ABC"}`,
		"/api/v1/vouchers/redeem": `{"reservationId":"` + uuid.NewString() + `"}`,
	}

	for path, body := range paths {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token returned %d", path, resp.Code)
		}

		req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Authorization", bearerToken(t, jwtCfg))
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK && resp.Code != http.StatusCreated {
			t.Fatalf("%s with token returned %d body %s", path, resp.Code, resp.Body.String())
		}
	}
}

func TestLinkRouteRequiresAuth(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	path := "/api/v1/vouchers/" + uuid.NewString() + "/link"
	body := `{"orderId":"` + uuid.NewString() + `"}`

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("link without token returned %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, jwtCfg))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("link with token returned %d body %s", resp.Code, resp.Body.String())
	}
}

func TestNotificationRoutesRequireAuth(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("notifications without token returned %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", bearerToken(t, jwtCfg))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("notifications with token returned %d body %s", resp.Code, resp.Body.String())
	}
}
