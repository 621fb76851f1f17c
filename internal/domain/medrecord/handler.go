package medrecord

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/pkg/pagination"
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
	api.POST("/medical-records", h.Create,
		auth.RequireRole(auth.RoleDoctor))
	api.GET("/medical-records", h.List)
	api.GET("/medical-records/:id", h.Get)
	api.PUT("/medical-records/:id", h.Update,
		auth.RequireRole(auth.RoleDoctor))
	api.GET("/patients/:id/medical-records", h.ListForPatient)
}

func (h *Handler) actor(c echo.Context) (authz.Actor, error) {
	ctx := c.Request().Context()
	return h.actors.ResolveActor(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx))
}

func httpError(err error) error {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, ErrNotFound), errors.Is(err, visit.ErrNotFound),
		errors.Is(err, identity.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRecordFrozen):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	rec, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		if errors.Is(err, visit.ErrNotFound) || errors.Is(err, ErrRecordFrozen) || errors.Is(err, ErrUnknownType) {
			return httpError(err)
		}
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := ParseRecordID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	rec, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := ParseRecordID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	rec, err := h.svc.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRecordFrozen) || errors.Is(err, ErrUnknownType) {
			return httpError(err)
		}
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	items, total, err := h.svc.List(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := identity.ParsePatientID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	items, total, err := h.svc.ListForPatient(c.Request().Context(), actor, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
