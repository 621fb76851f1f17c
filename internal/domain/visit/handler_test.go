package visit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/platform/auth"
)

type staticResolver struct {
	actors map[string]authz.Actor
}

func (r *staticResolver) ResolveActor(_ context.Context, userID, role string) (authz.Actor, error) {
	if a, ok := r.actors[userID]; ok {
		return a, nil
	}
	id, _ := uuid.Parse(userID)
	return authz.Actor{UserID: id, Role: role}, nil
}

func newTestHandler() (*Handler, *echo.Echo, *staticResolver) {
	svc, _, _ := newTestService()
	resolver := &staticResolver{actors: map[string]authz.Actor{}}
	return NewHandler(svc, resolver), echo.New(), resolver
}

func requestAs(e *echo.Echo, method, body string, actor authz.Actor) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, actor.UserID.String())
	ctx = context.WithValue(ctx, auth.RoleKey, actor.Role)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Create(t *testing.T) {
	h, e, resolver := newTestHandler()
	actor := doctorActor()
	resolver.actors[actor.UserID.String()] = actor

	body := `{"patient_id":"` + testPatient.String() + `"}`
	c, rec := requestAs(e, http.MethodPost, body, actor)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"SCHEDULED"`) {
		t.Error("response should show SCHEDULED status")
	}
}

func TestHandler_Create_UnknownPatient(t *testing.T) {
	h, e, resolver := newTestHandler()
	actor := doctorActor()
	resolver.actors[actor.UserID.String()] = actor

	body := `{"patient_id":"` + uuid.New().String() + `"}`
	c, _ := requestAs(e, http.MethodPost, body, actor)

	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown patient, got %v", err)
	}
}

func TestHandler_AddProcedure(t *testing.T) {
	h, e, resolver := newTestHandler()
	actor := doctorActor()
	resolver.actors[actor.UserID.String()] = actor

	v, err := h.svc.Create(context.Background(), actor, CreateInput{PatientID: testPatient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec := requestAs(e, http.MethodPost, `{"name":"Consultation","cost_cents":3000}`, actor)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	if err := h.AddProcedure(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"PLANNED"`) {
		t.Error("response should show PLANNED status")
	}
}

func TestHandler_Complete_ConflictWhenDone(t *testing.T) {
	h, e, resolver := newTestHandler()
	actor := doctorActor()
	resolver.actors[actor.UserID.String()] = actor

	v, err := h.svc.Create(context.Background(), actor, CreateInput{PatientID: testPatient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.svc.Complete(context.Background(), actor, v.ID, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := requestAs(e, http.MethodPost, `{}`, actor)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	err = h.Complete(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409 for a completed visit, got %v", err)
	}
}

func TestHandler_Get_HidesDenialReason(t *testing.T) {
	h, e, resolver := newTestHandler()
	owner := doctorActor()
	resolver.actors[owner.UserID.String()] = owner

	v, err := h.svc.Create(context.Background(), owner, CreateInput{PatientID: testPatient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stranger := authz.Actor{UserID: uuid.New(), Role: auth.RolePatient, PatientID: uuid.New()}
	resolver.actors[stranger.UserID.String()] = stranger
	c, _ := requestAs(e, http.MethodGet, "", stranger)
	c.SetParamNames("id")
	c.SetParamValues(v.ID.String())

	err = h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if strings.Contains(httpErr.Message.(string), "NOT_OWNER") {
		t.Error("denial reason must not leak to the client")
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := requestAs(e, http.MethodGet, "", adminActor())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.Get(c); err == nil {
		t.Error("expected error for invalid id")
	}
}
