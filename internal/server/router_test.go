package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
	"github.com/sudo-init-do/gigmarket/internal/store/sqlstore"
)

const secret = "router-test-secret"

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newApp(t *testing.T, store Pinger) *echo.Echo {
	t.Helper()
	st, err := sqlstore.Open(filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if store == nil {
		store = st
	}

	registry := messaging.NewRegistry()
	dispatcher := messaging.NewDispatcher(messaging.DispatcherDeps{Store: st, Pusher: registry})
	return New(Deps{
		Config: config.Config{JWTSecret: secret},
		Store:  store,
		Marketplace: &marketplace.Handler{
			Orders:  marketplace.NewOrderService(marketplace.OrderDeps{Orders: st, Gigs: st, Pusher: registry}),
			Reviews: marketplace.NewReviewService(marketplace.ReviewDeps{Reviews: st, Orders: st, Gigs: st}),
			Gigs:    marketplace.NewGigService(st, nil),
		},
		Messaging: &messaging.Handler{Dispatcher: dispatcher, Registry: registry},
	})
}

func token(t *testing.T, user, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func call(app *echo.Echo, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorResponse {
	t.Helper()
	var out httpx.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthMetricsAndCORS(t *testing.T) {
	app := newApp(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready"} {
		rec := call(app, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}

	rec := call(app, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	out := httptest.NewRecorder()
	app.ServeHTTP(out, req)
	if got := out.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
	if out.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("missing request id")
	}
}

func TestReadyReportsStoreOutage(t *testing.T) {
	app := newApp(t, downStore{})
	rec := call(app, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /ready = %d", rec.Code)
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	app := newApp(t, nil)
	rec := call(app, http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound || envelope(t, rec).Code != httpx.ErrCodeNotFound {
		t.Fatalf("GET /nope = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthBoundaries(t *testing.T) {
	app := newApp(t, nil)

	rec := call(app, http.MethodGet, "/api/orders", "", "")
	if rec.Code != http.StatusUnauthorized || envelope(t, rec).Code != httpx.ErrCodeUnauthorized {
		t.Fatalf("anonymous list = %d", rec.Code)
	}
	rec = call(app, http.MethodGet, "/api/orders", token(t, "u1", marketplace.RoleBuyer), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("buyer list = %d %s", rec.Code, rec.Body.String())
	}

	rec = call(app, http.MethodGet, "/admin/orders", token(t, "u1", marketplace.RoleBuyer), "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("buyer admin list = %d", rec.Code)
	}
	rec = call(app, http.MethodGet, "/admin/orders", token(t, "root", marketplace.RoleAdmin), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list = %d %s", rec.Code, rec.Body.String())
	}

	rec = call(app, http.MethodPost, "/api/gigs", token(t, "u1", marketplace.RoleBuyer), `{"title":"t","price":1}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("buyer create gig = %d", rec.Code)
	}
}

func TestGigOrderAndPresenceRoutes(t *testing.T) {
	app := newApp(t, nil)
	sellerTok := token(t, "seller-1", marketplace.RoleSeller)
	buyerTok := token(t, "buyer-1", marketplace.RoleBuyer)

	rec := call(app, http.MethodPost, "/api/gigs", sellerTok, `{"title":"Logo","price":2000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create gig = %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Gig marketplace.Gig `json:"gig"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	if rec = call(app, http.MethodGet, "/api/gigs/"+created.Gig.ID, "", ""); rec.Code != http.StatusOK {
		t.Fatalf("public gig = %d", rec.Code)
	}
	if rec = call(app, http.MethodGet, "/api/gigs/"+created.Gig.ID+"/reviews", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("public reviews = %d", rec.Code)
	}

	rec = call(app, http.MethodPost, "/api/orders", buyerTok, `{"gig_id":"`+created.Gig.ID+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book = %d %s", rec.Code, rec.Body.String())
	}
	var booked struct {
		Order marketplace.Order `json:"order"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &booked)

	rec = call(app, http.MethodPost, "/api/orders/"+booked.Order.ID+"/complete", buyerTok, "")
	if rec.Code != http.StatusConflict || envelope(t, rec).Code != httpx.ErrCodeInvalidTransition {
		t.Fatalf("complete pending = %d %s", rec.Code, rec.Body.String())
	}

	rec = call(app, http.MethodGet, "/api/presence", buyerTok, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"userIds"`) {
		t.Fatalf("presence = %d %s", rec.Code, rec.Body.String())
	}
	rec = call(app, http.MethodGet, "/api/messages/recent", buyerTok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recent = %d %s", rec.Code, rec.Body.String())
	}
}
