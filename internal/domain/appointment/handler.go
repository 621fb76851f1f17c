package appointment

import (
	"context"
	"errors"
	"net/http"
	"time"

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
	api.POST("/appointments", h.Create)
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/schedule", h.Schedule,
		auth.RequireRole(auth.RoleFrontdesk))
	api.POST("/appointments/:id/status", h.Transition)
}

func (h *Handler) actor(c echo.Context) (authz.Actor, error) {
	ctx := c.Request().Context()
	return h.actors.ResolveActor(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx))
}

func httpError(err error) error {
	var denied *authz.DeniedError
	var invalid *InvalidTransitionError
	switch {
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.As(err, &invalid):
		return echo.NewHTTPError(http.StatusConflict, invalid.Error())
	case errors.Is(err, ErrNotFound),
		errors.Is(err, identity.ErrPatientNotFound),
		errors.Is(err, identity.ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrScheduledTimeMiss), errors.Is(err, ErrUnknownStatus):
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
	appt, err := h.svc.Create(c.Request().Context(), actor, in)
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
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := ParseAppointmentID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	appt, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
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

type scheduleRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time"`
	Notes         *string    `json:"notes"`
}

func (h *Handler) Schedule(c echo.Context) error {
	id, err := ParseAppointmentID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	appt, err := h.svc.Schedule(c.Request().Context(), actor, id, req.ScheduledTime, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type transitionRequest struct {
	Status Status  `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := ParseAppointmentID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	appt, err := h.svc.Transition(c.Request().Context(), actor, id, req.Status, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}
