package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/platform/auth"
)

// ActorResolver builds a policy actor from the authenticated request.
// The identity service implements it.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID, role string) (authz.Actor, error)
}

type Handler struct {
	svc    *Service
	actors ActorResolver
}

func NewHandler(svc *Service, actors ActorResolver) *Handler {
	return &Handler{svc: svc, actors: actors}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/admin/dashboard", h.Dashboard, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := h.actors.ResolveActor(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	metrics, err := h.svc.Dashboard(ctx, actor)
	if err != nil {
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, metrics)
}
