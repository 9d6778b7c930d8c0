package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/core/domain"
)

type stubGate struct {
	fn func(header string) (domain.Identity, error)
}

func (s stubGate) Authenticate(header string) (domain.Identity, error) {
	return s.fn(header)
}

func TestAuthMiddleware_InjectsIdentity(t *testing.T) {
	gate := stubGate{fn: func(header string) (domain.Identity, error) {
		if header != "Bearer good" {
			t.Fatalf("unexpected header %q", header)
		}
		return domain.Identity{UserID: "u1", Role: domain.RoleDonor}, nil
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth(gate)(func(c echo.Context) error {
		called = true
		if c.Get(ContextUserID) != "u1" {
			t.Fatalf("user_id not set")
		}
		if c.Get(ContextRole) != domain.RoleDonor {
			t.Fatalf("role not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"missing header", domain.ErrMissingAuthHeader, "missing_header"},
		{"malformed scheme", domain.ErrMalformedAuthScheme, "malformed_scheme"},
		{"invalid token", domain.ErrInvalidToken, "invalid_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := stubGate{fn: func(string) (domain.Identity, error) {
				return domain.Identity{}, tc.err
			}}

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c := e.NewContext(req, httptest.NewRecorder())

			handler := Auth(gate)(func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})

			err := handler(c)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if domain.KindOf(err) != domain.KindUnauthorized {
				t.Fatalf("expected unauthorized kind, got %v", domain.KindOf(err))
			}
			if got := failureReason(err); got != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, got)
			}
		})
	}
}
