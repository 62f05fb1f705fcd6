package marketplace_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/validation"
)

const webhookSecret = "whsec_test"

// newHTTP routes the handler behind a header-based identity so tests can act
// as any user without minting tokens.
func newHTTP(t *testing.T) (*echo.Echo, *env) {
	t.Helper()
	e := newEnv(t)
	h := &marketplace.Handler{Orders: e.orders, Reviews: e.reviews, Gigs: e.gigs, WebhookSecret: webhookSecret}

	srv := echo.New()
	srv.Validator = validation.New()
	as := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(httpx.KeyUserID, c.Request().Header.Get("X-Test-User"))
			c.Set(httpx.KeyRole, c.Request().Header.Get("X-Test-Role"))
			return next(c)
		}
	}
	srv.POST("/webhooks/payment", h.PaymentWebhook)
	srv.GET("/gigs/:id/reviews", h.ListGigReviews)
	g := srv.Group("", as)
	g.POST("/gigs", h.CreateGig)
	g.POST("/orders", h.CreateOrder)
	g.GET("/orders", h.ListOrders)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/deliver", h.DeliverOrder)
	g.POST("/orders/:id/approve", h.ApproveOrder)
	g.POST("/orders/:id/cancel", h.CancelOrder)
	g.POST("/reviews", h.CreateReview)
	g.GET("/admin/orders", h.AdminListOrders)
	return srv, e
}

func do(t *testing.T, srv *echo.Echo, method, path string, who marketplace.Actor, body string, headers ...string) (int, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", who.ID)
	req.Header.Set("X-Test-Role", who.Role)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestHTTPOrderLifecycle(t *testing.T) {
	srv, _ := newHTTP(t)

	code, body := do(t, srv, http.MethodPost, "/gigs", seller, `{"title":"Landing page","price":2000}`)
	if code != http.StatusCreated {
		t.Fatalf("create gig = %d", code)
	}
	gig := decode[marketplace.Gig](t, body["gig"])

	code, body = do(t, srv, http.MethodPost, "/orders", buyer, `{"gig_id":"`+gig.ID+`"}`)
	if code != http.StatusCreated {
		t.Fatalf("book = %d", code)
	}
	o := decode[marketplace.Order](t, body["order"])
	if o.Status != marketplace.StatusPending || o.Price != 2000 {
		t.Fatalf("booked %+v", o)
	}

	code, body = do(t, srv, http.MethodPost, "/orders/"+o.ID+"/deliver", seller, `{}`)
	if code != http.StatusConflict || decode[string](t, body["code"]) != httpx.ErrCodeInvalidTransition {
		t.Fatalf("deliver unpaid = %d %s", code, body["code"])
	}

	code, _ = do(t, srv, http.MethodPost, "/webhooks/payment", buyer, `{"payment_ref":"pi_9","order_id":"`+o.ID+`"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("webhook without secret = %d", code)
	}
	code, body = do(t, srv, http.MethodPost, "/webhooks/payment", marketplace.Actor{}, `{"payment_ref":"pi_9","order_id":"`+o.ID+`"}`,
		marketplace.WebhookSecretHeader, webhookSecret)
	if code != http.StatusOK || decode[marketplace.Order](t, body["order"]).Status != marketplace.StatusInProgress {
		t.Fatalf("webhook = %d %s", code, body["order"])
	}

	code, body = do(t, srv, http.MethodPost, "/orders/"+o.ID+"/approve", seller, ``)
	if code != http.StatusForbidden || decode[string](t, body["code"]) != httpx.ErrCodeForbidden {
		t.Fatalf("seller approve = %d %s", code, body["code"])
	}
	code, _ = do(t, srv, http.MethodPost, "/orders/"+o.ID+"/deliver", seller, `{"delivery_message":"done"}`)
	if code != http.StatusOK {
		t.Fatalf("deliver = %d", code)
	}
	code, body = do(t, srv, http.MethodPost, "/orders/"+o.ID+"/approve", buyer, ``)
	if code != http.StatusOK || decode[marketplace.Order](t, body["order"]).Status != marketplace.StatusCompleted {
		t.Fatalf("approve = %d %s", code, body["order"])
	}
	code, _ = do(t, srv, http.MethodPost, "/orders/"+o.ID+"/cancel", buyer, ``)
	if code != http.StatusConflict {
		t.Fatalf("cancel completed = %d", code)
	}

	code, body = do(t, srv, http.MethodPost, "/reviews", buyer, `{"gig_id":"`+gig.ID+`","rating":4,"comment":"solid"}`)
	if code != http.StatusCreated {
		t.Fatalf("review = %d", code)
	}
	if rating := decode[marketplace.RatingSummary](t, body["rating"]); rating.AverageRating != 4 || rating.ReviewCount != 1 {
		t.Fatalf("rating = %+v", rating)
	}

	code, body = do(t, srv, http.MethodGet, "/gigs/"+gig.ID+"/reviews", marketplace.Actor{}, ``)
	if code != http.StatusOK || len(decode[[]marketplace.Review](t, body["reviews"])) != 1 {
		t.Fatalf("list reviews = %d %s", code, body["reviews"])
	}
}

func TestHTTPErrors(t *testing.T) {
	srv, e := newHTTP(t)
	o := e.paidOrder(t, e.gig(t, 10))

	cases := []struct {
		name   string
		method string
		path   string
		who    marketplace.Actor
		body   string
		status int
		code   string
	}{
		{"missing order", http.MethodGet, "/orders/nope", buyer, ``, http.StatusNotFound, httpx.ErrCodeNotFound},
		{"stranger reads", http.MethodGet, "/orders/" + o.ID, marketplace.Actor{ID: "x"}, ``, http.StatusForbidden, httpx.ErrCodeForbidden},
		{"book without gig", http.MethodPost, "/orders", buyer, `{}`, http.StatusBadRequest, httpx.ErrCodeValidation},
		{"bad json", http.MethodPost, "/orders", buyer, `{`, http.StatusBadRequest, httpx.ErrCodeValidation},
		{"rating out of range", http.MethodPost, "/reviews", buyer, `{"gig_id":"g","rating":9}`, http.StatusBadRequest, httpx.ErrCodeValidation},
		{"bad role filter", http.MethodGet, "/orders?role=owner", buyer, ``, http.StatusBadRequest, httpx.ErrCodeValidation},
		{"admin list as buyer", http.MethodGet, "/admin/orders", buyer, ``, http.StatusForbidden, httpx.ErrCodeForbidden},
		{"bad limit", http.MethodGet, "/admin/orders?limit=0", admin, ``, http.StatusBadRequest, httpx.ErrCodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, srv, tc.method, tc.path, tc.who, tc.body)
			if code != tc.status || decode[string](t, body["code"]) != tc.code {
				t.Fatalf("got %d %s, want %d %s", code, body["code"], tc.status, tc.code)
			}
		})
	}

	code, body := do(t, srv, http.MethodGet, "/admin/orders?status=in_progress", admin, ``)
	if code != http.StatusOK || len(decode[[]marketplace.Order](t, body["orders"])) != 1 {
		t.Fatalf("admin list = %d %s", code, body["orders"])
	}
	code, body = do(t, srv, http.MethodGet, "/orders?role=seller", buyer, ``)
	if code != http.StatusOK || string(body["orders"]) != "[]" {
		t.Fatalf("empty list = %d %s", code, body["orders"])
	}
}
