package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

const testIssuer = "clinicore-test"

func contextWithRole(req *http.Request, role string) context.Context {
	return context.WithValue(req.Context(), RoleKey, role)
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(okHandler)(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testIssuer, time.Hour)
	token, _, err := issuer.Sign("user-1", RoleDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser, gotRole string
	handler := func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}

	if err := JWTMiddleware(testSecret, testIssuer)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "user-1" {
		t.Errorf("expected user-1, got %s", gotUser)
	}
	if gotRole != RoleDoctor {
		t.Errorf("expected DOCTOR, got %s", gotRole)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	rec := doRequest(t, JWTMiddleware(testSecret, testIssuer), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_MalformedHeader(t *testing.T) {
	rec := doRequest(t, JWTMiddleware(testSecret, testIssuer), "Token abc")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("another-secret-another-secret-12"), testIssuer, time.Hour)
	token, _, _ := issuer.Sign("user-1", RolePatient)

	rec := doRequest(t, JWTMiddleware(testSecret, testIssuer), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testIssuer, -time.Hour)
	token, _, _ := issuer.Sign("user-1", RolePatient)

	rec := doRequest(t, JWTMiddleware(testSecret, testIssuer), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, "someone-else", time.Hour)
	token, _, _ := issuer.Sign("user-1", RolePatient)

	rec := doRequest(t, JWTMiddleware(testSecret, testIssuer), "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotRole string
	handler := func(c echo.Context) error {
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}

	if err := DevAuthMiddleware("dev-user")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotRole != RoleAdmin {
		t.Errorf("expected ADMIN, got %s", gotRole)
	}
}

func TestRequireRole_Allows(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetRequest(req.WithContext(contextWithRole(req, RoleFrontdesk)))

	if err := RequireRole(RoleFrontdesk)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminOverride(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetRequest(req.WithContext(contextWithRole(req, RoleAdmin)))

	if err := RequireRole(RoleDoctor)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_Denies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetRequest(req.WithContext(contextWithRole(req, RolePatient)))

	err := RequireRole(RoleDoctor)(okHandler)(c)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}
