package ports

import (
	"context"

	"github.com/redbank/donation-system/internal/core/domain"
)

// RegisterInput carries the self-registration fields.
type RegisterInput struct {
	Name             string
	Email            string
	Password         string
	Role             string
	Phone            string
	BloodGroup       string
	BloodGroupNeeded string
	City             string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	// Authenticate verifies an Authorization header value and returns the
	// identity from the token's signed claims.
	Authenticate(headerValue string) (domain.Identity, error)
}
