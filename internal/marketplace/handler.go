package marketplace

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/validation"
)

// WebhookSecretHeader authenticates payment provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// Handler exposes the marketplace over HTTP.
type Handler struct {
	Orders        *OrderService
	Reviews       *ReviewService
	Gigs          *GigService
	WebhookSecret string
}

func actorFrom(c echo.Context) Actor {
	return Actor{ID: httpx.UserID(c), Role: httpx.Role(c)}
}

// =========================
// Orders
// =========================

type bookRequest struct {
	GigID string `json:"gig_id" validate:"required"`
}

// CreateOrder - buyer books a gig at its listed price
func (h *Handler) CreateOrder(c echo.Context) error {
	var req bookRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return httpx.Fail(c, err)
	}
	o, err := h.Orders.Book(c.Request().Context(), actorFrom(c), req.GigID)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"order": o})
}

// ListOrders - orders where the caller is buyer and/or seller
func (h *Handler) ListOrders(c echo.Context) error {
	orders, err := h.Orders.ListMine(c.Request().Context(), actorFrom(c), c.QueryParam("role"))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": nonNil(orders)})
}

// GetOrder - single order, participants and admins only
func (h *Handler) GetOrder(c echo.Context) error {
	o, err := h.Orders.Get(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

type deliverRequest struct {
	DeliveryMessage string `json:"delivery_message" validate:"max=5000"`
}

// DeliverOrder - seller hands over the work
func (h *Handler) DeliverOrder(c echo.Context) error {
	var req deliverRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return httpx.Fail(c, err)
	}
	return h.transition(c, EventDeliver, TransitionInput{DeliveryMessage: req.DeliveryMessage})
}

// ApproveOrder - buyer accepts the delivery
func (h *Handler) ApproveOrder(c echo.Context) error {
	return h.transition(c, EventApprove, TransitionInput{})
}

// CancelOrder - either party cancels before delivery
func (h *Handler) CancelOrder(c echo.Context) error {
	return h.transition(c, EventCancel, TransitionInput{})
}

func (h *Handler) transition(c echo.Context, ev Event, in TransitionInput) error {
	o, err := h.Orders.Transition(c.Request().Context(), c.Param("id"), ev, actorFrom(c), in)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

// AdminListOrders - GET /admin/orders?buyer_id=&seller_id=&status=&limit=
func (h *Handler) AdminListOrders(c echo.Context) error {
	f := OrderFilter{
		BuyerID:  c.QueryParam("buyer_id"),
		SellerID: c.QueryParam("seller_id"),
		Status:   Status(c.QueryParam("status")),
	}
	if l := c.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return httpx.FailStatus(c, http.StatusBadRequest, httpx.ErrCodeBadRequest, "limit must be a positive integer")
		}
		f.Limit = n
	}
	orders, err := h.Orders.ListAll(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": nonNil(orders)})
}

// AdminStats - GET /admin/stats, order counts by status
func (h *Handler) AdminStats(c echo.Context) error {
	st, err := h.Orders.Stats(c.Request().Context(), actorFrom(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// PaymentWebhook - payment provider reports a successful charge
func (h *Handler) PaymentWebhook(c echo.Context) error {
	if h.WebhookSecret != "" {
		got := c.Request().Header.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
			return httpx.FailStatus(c, http.StatusUnauthorized, httpx.ErrCodeUnauthorized, "invalid webhook secret")
		}
	}
	var p PaymentConfirmation
	if err := validation.BindAndValidate(c, &p); err != nil {
		return httpx.Fail(c, err)
	}
	o, err := h.Orders.ConfirmPayment(c.Request().Context(), p)
	if err != nil {
		return httpx.Fail(c, err)
	}
	httpx.LoggerFrom(c).Info().Str("order_id", o.ID).Str("payment_ref", p.PaymentRef).Msg("payment confirmed")
	return c.JSON(http.StatusOK, echo.Map{"order": o})
}

// =========================
// Gigs and reviews
// =========================

// CreateGig - seller lists a gig
func (h *Handler) CreateGig(c echo.Context) error {
	var req CreateGigInput
	if err := validation.BindAndValidate(c, &req); err != nil {
		return httpx.Fail(c, err)
	}
	g, err := h.Gigs.Create(c.Request().Context(), actorFrom(c), req)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"gig": g})
}

// GetGig - public gig details with rating
func (h *Handler) GetGig(c echo.Context) error {
	g, err := h.Gigs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"gig": g})
}

// CreateReview - buyer of a completed order rates the gig
func (h *Handler) CreateReview(c echo.Context) error {
	var req CreateReviewRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return httpx.Fail(c, err)
	}
	r, g, err := h.Reviews.Create(c.Request().Context(), actorFrom(c), req)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, ReviewResponse{Review: &r, Rating: g.Summary()})
}

// UpdateReview - author edits their review
func (h *Handler) UpdateReview(c echo.Context) error {
	var req UpdateReviewRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return httpx.Fail(c, err)
	}
	r, g, err := h.Reviews.Update(c.Request().Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, ReviewResponse{Review: &r, Rating: g.Summary()})
}

// DeleteReview - author or admin removes a review
func (h *Handler) DeleteReview(c echo.Context) error {
	g, err := h.Reviews.Delete(c.Request().Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, ReviewResponse{Rating: g.Summary()})
}

// ListGigReviews - public reviews of a gig, newest first
func (h *Handler) ListGigReviews(c echo.Context) error {
	rs, g, err := h.Reviews.ListByGig(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, GigReviewsResponse{Rating: g.Summary(), Reviews: nonNil(rs)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
