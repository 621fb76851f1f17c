package billing

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
	api.POST("/invoices", h.Create,
		auth.RequireRole(auth.RoleAdmin))
	api.GET("/invoices", h.List)
	api.GET("/invoices/:id", h.Get)
	api.POST("/invoices/:id/issue", h.Issue,
		auth.RequireRole(auth.RoleAdmin))
	api.POST("/invoices/:id/cancel", h.Cancel,
		auth.RequireRole(auth.RoleAdmin))
	api.POST("/invoices/:id/payments", h.RecordPayment)
	api.DELETE("/invoices/:id", h.Delete,
		auth.RequireRole(auth.RoleAdmin))
	api.GET("/reports/financial", h.Report,
		auth.RequireRole(auth.RoleFrontdesk))
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
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, identity.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotPayable), errors.Is(err, ErrNotCancellable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrOverpayment):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNonPositiveAmount), errors.Is(err, ErrAmountTooLarge),
		errors.Is(err, ErrCurrencyMismatch), errors.Is(err, ErrUnknownMethod):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInvoiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	inv, err := h.svc.CreateInvoice(c.Request().Context(), actor, in)
	if err != nil {
		if errors.Is(err, identity.ErrPatientNotFound) || errors.Is(err, ErrNonPositiveAmount) ||
			errors.Is(err, ErrAmountTooLarge) {
			return httpError(err)
		}
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, inv)
}

// invoiceResponse carries an invoice together with its payment ledger on
// single reads. List responses stay flat.
type invoiceResponse struct {
	*Invoice
	Payments []*Payment `json:"payments"`
}

func (h *Handler) Get(c echo.Context) error {
	id, err := ParseInvoiceID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	inv, payments, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, invoiceResponse{Invoice: inv, Payments: payments})
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

func (h *Handler) Issue(c echo.Context) error {
	id, err := ParseInvoiceID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	inv, err := h.svc.Issue(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := ParseInvoiceID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	inv, err := h.svc.Cancel(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := ParseInvoiceID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	inv, p, err := h.svc.RecordPayment(c.Request().Context(), actor, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, invoiceResponse{Invoice: inv, Payments: []*Payment{p}})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := ParseInvoiceID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Report(c echo.Context) error {
	start, err := time.Parse("2006-01-02", c.QueryParam("start"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", c.QueryParam("end"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end must be YYYY-MM-DD")
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	// End date is inclusive for the caller.
	report, err := h.svc.Report(c.Request().Context(), actor, start, end.Add(24*time.Hour))
	if err != nil {
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
