package friends

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/plugins/auth"
	"github.com/keyxmakerx/parley/internal/validation"
)

// Handler serves friend graph endpoints.
type Handler struct {
	service  FriendService
	presence OnlineChecker
}

// NewHandler creates a new friends handler. presence annotates list
// responses with live status.
func NewHandler(service FriendService, presence OnlineChecker) *Handler {
	return &Handler{service: service, presence: presence}
}

// AddFriend handles PUT /api/auth/add-friend.
func (h *Handler) AddFriend(c echo.Context) error {
	var req AddFriendRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	friends, err := h.service.AddFriend(c.Request().Context(), auth.GetUserID(c), req.FriendEmail)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"friends": friends})
}

// List handles GET /api/friends.
func (h *Handler) List(c echo.Context) error {
	friends, err := h.service.ListFriends(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return err
	}

	ids := lo.Map(friends, func(f Friend, _ int) string { return f.ID })
	online := lo.SliceToMap(h.presence.OnlineSubsetOf(ids), func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	statuses := lo.Map(friends, func(f Friend, _ int) FriendStatus {
		_, ok := online[f.ID]
		return FriendStatus{Friend: f, Online: ok}
	})
	return c.JSON(http.StatusOK, map[string]any{"friends": statuses})
}
