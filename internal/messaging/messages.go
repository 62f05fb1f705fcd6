package messaging

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/validation"
)

// Handler is the HTTP side of messaging. Sends go through the same
// Dispatcher as the push channel.
type Handler struct {
	Dispatcher *Dispatcher
	Registry   *Registry
}

// SendMessage - HTTP fallback for sendMessage
func (h *Handler) SendMessage(c echo.Context) error {
	userID := httpx.UserID(c)
	var req SendMessagePayload
	if err := validation.BindAndValidate(c, &req); err != nil {
		return httpx.Fail(c, err)
	}
	if req.SenderID != "" && req.SenderID != userID {
		return httpx.FailStatus(c, http.StatusForbidden, httpx.ErrCodeForbidden, "senderId does not match the caller")
	}
	m, err := h.Dispatcher.Send(c.Request().Context(), SendRequest{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Body:       req.Content,
		OrderID:    req.OrderID,
		GigID:      req.GigID,
		JobID:      req.JobID,
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": m})
}

// ListMessages - the conversation with :userId, oldest first
func (h *Handler) ListMessages(c echo.Context) error {
	var since time.Time
	if s := c.QueryParam("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return httpx.FailStatus(c, http.StatusBadRequest, httpx.ErrCodeBadRequest, "invalid since timestamp, use RFC3339")
		}
		since = t
	}
	msgs, err := h.Dispatcher.Fetch(c.Request().Context(), httpx.UserID(c), c.Param("userId"), since)
	if err != nil {
		return httpx.Fail(c, err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// RecentConversations - one entry per counterpart, newest first
func (h *Handler) RecentConversations(c echo.Context) error {
	convs, err := h.Dispatcher.Conversations(c.Request().Context(), httpx.UserID(c))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"conversations": convs})
}

// OnlineUsers - current presence snapshot
func (h *Handler) OnlineUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, OnlineUsersPayload{UserIDs: h.Registry.Snapshot()})
}
