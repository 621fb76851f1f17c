package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)

	api.GET("/auth/me", h.Me)

	api.POST("/patients", h.CreatePatient, auth.RequireRole(auth.RoleFrontdesk))
	api.GET("/patients", h.ListPatients, auth.RequireRole(auth.RoleFrontdesk))
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient, auth.RequireRole(auth.RoleAdmin))

	api.POST("/doctors", h.CreateDoctor, auth.RequireRole(auth.RoleAdmin))
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/:id", h.UpdateDoctor)
	api.DELETE("/doctors/:id", h.DeleteDoctor, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) actor(c echo.Context) (authz.Actor, error) {
	ctx := c.Request().Context()
	return h.svc.ResolveActor(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx))
}

// httpError maps domain errors to transport errors. Denials collapse to a
// generic 403 so callers cannot enumerate resource existence.
func httpError(err error) error {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserInactive):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// -- Auth --

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// Staff accounts are provisioned by the seed command, not self-service.
	if in.Role != "" && in.Role != auth.RolePatient && in.Role != auth.RoleDoctor {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be PATIENT or DOCTOR")
	}
	user, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, token, expiry, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiry, User: user})
}

func (h *Handler) Me(c echo.Context) error {
	id, err := ParseUserID(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	user, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// -- Patients --

// CreatePatient lets the front desk register a walk-in patient together
// with their login account.
func (h *Handler) CreatePatient(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.Role = auth.RolePatient
	user, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := ParsePatientID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	p, err := h.svc.GetPatient(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := ParsePatientID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdatePatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), actor, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := ParsePatientID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.DeletePatient(c.Request().Context(), actor, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctors --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.Role = auth.RoleDoctor
	user, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := ParseDoctorID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	doc, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := ParseDoctorID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateDoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	doc, err := h.svc.UpdateDoctor(c.Request().Context(), actor, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := ParseDoctorID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), actor, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
