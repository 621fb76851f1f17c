package visit

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
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
	api.POST("/visits", h.Create,
		auth.RequireRole(auth.RoleDoctor))
	api.GET("/visits", h.List)
	api.GET("/visits/:id", h.Get)
	api.POST("/visits/:id/procedures", h.AddProcedure,
		auth.RequireRole(auth.RoleDoctor))
	api.POST("/visits/:id/complete", h.Complete,
		auth.RequireRole(auth.RoleDoctor))
	api.POST("/visits/:id/cancel", h.Cancel,
		auth.RequireRole(auth.RoleDoctor))
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
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrProcedureNotFound),
		errors.Is(err, identity.ErrPatientNotFound),
		errors.Is(err, identity.ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrNotModifiable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrMixedCurrency), errors.Is(err, ErrCostTooLarge):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
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
	v, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		if errors.Is(err, identity.ErrPatientNotFound) || errors.Is(err, identity.ErrDoctorNotFound) {
			return httpError(err)
		}
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

// visitResponse carries a visit together with its procedures on single
// reads. List responses stay flat.
type visitResponse struct {
	*Visit
	Procedures []*Procedure `json:"procedures"`
}

func (h *Handler) Get(c echo.Context) error {
	id, err := ParseVisitID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	v, procedures, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visitResponse{Visit: v, Procedures: procedures})
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

func (h *Handler) AddProcedure(c echo.Context) error {
	id, err := ParseVisitID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in ProcedureInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	p, err := h.svc.AddProcedure(c.Request().Context(), actor, id, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotModifiable) || errors.Is(err, ErrCostTooLarge) {
			return httpError(err)
		}
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

type closeRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := ParseVisitID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req closeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	v, err := h.svc.Complete(c.Request().Context(), actor, id, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := ParseVisitID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req closeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	v, err := h.svc.Cancel(c.Request().Context(), actor, id, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}
