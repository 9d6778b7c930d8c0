package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

// DefaultTokenTTL applies when no TTL is configured. Every token expires.
const DefaultTokenTTL = 7 * 24 * time.Hour

const minPasswordLen = 6

// tokenClaims are the signed claims of a credential token. The user id
// travels in the registered "sub" claim.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService implements registration, login and the auth gate.
type AuthService struct {
	repo      ports.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	log       zerolog.Logger
}

func NewAuthService(repo ports.UserRepository, jwtSecret string, tokenTTL time.Duration, log zerolog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &AuthService{repo: repo, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL, log: log}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	name := cleanText(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, domain.Validationf("name, email and password are required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, domain.Validationf("password must be at least %d characters", minPasswordLen)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleDonor
	}
	if role != domain.RoleDonor && role != domain.RoleRecipient {
		return nil, domain.Validationf("role must be one of: donor recipient")
	}

	bloodGroup, err := optionalBloodGroup(in.BloodGroup)
	if err != nil {
		return nil, err
	}
	needed, err := optionalBloodGroup(in.BloodGroupNeeded)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		Name:             name,
		Email:            email,
		PasswordHash:     string(hash),
		Role:             role,
		Phone:            cleanText(in.Phone),
		BloodGroup:       bloodGroup,
		BloodGroupNeeded: needed,
		City:             cleanText(in.City),
		IsActive:         true,
		Donations:        []domain.DonationEntry{},
		Achievements:     []string{},
		Level:            domain.ComputeLevel(0),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", created.ID).Str("role", created.Role).Msg("user registered")
	return created, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}
	if user.IsSuspended {
		return "", nil, domain.ErrAccountSuspended
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// Authenticate is the auth gate. Every verification failure collapses into
// ErrInvalidToken so callers learn nothing about why a token was refused.
func (s *AuthService) Authenticate(headerValue string) (domain.Identity, error) {
	if headerValue == "" {
		return domain.Identity{}, domain.ErrMissingAuthHeader
	}

	parts := strings.Split(headerValue, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return domain.Identity{}, domain.ErrMalformedAuthScheme
	}

	claims := &tokenClaims{}
	tkn, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	return domain.Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// EnsureAdmin makes sure an admin account exists for email, creating it or
// promoting an existing user. Used for bootstrap at startup.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || len(password) < minPasswordLen {
		return nil, domain.Validationf("admin email and a password of at least %d characters are required", minPasswordLen)
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == domain.RoleAdmin {
			return existing, nil
		}
		promoted, err := s.repo.SetRole(ctx, existing.ID, domain.RoleAdmin)
		if err != nil {
			return nil, err
		}
		s.log.Warn().Str("user_id", promoted.ID).Msg("existing user promoted to admin")
		return promoted, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		IsActive:     true,
		Donations:    []domain.DonationEntry{},
		Achievements: []string{},
		Level:        domain.ComputeLevel(0),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", created.ID).Msg("admin account created")
	return created, nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.jwtSecret)
}

func optionalBloodGroup(g string) (string, error) {
	if strings.TrimSpace(g) == "" {
		return "", nil
	}
	if !domain.ValidBloodGroup(g) {
		return "", domain.Validationf("invalid blood group %q", g)
	}
	return domain.NormalizeBloodGroup(g), nil
}
