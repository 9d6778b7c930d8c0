package ports

import (
	"context"
	"io"

	"github.com/redbank/donation-system/internal/core/domain"
)

// ListUsersResult is one page of users.
type ListUsersResult struct {
	Items      []*domain.User
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// ImageUpload describes a profile image received from the transport layer.
// The format is detected from Body; Filename is only used for logging.
type ImageUpload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// UserService covers the credential-store operations exposed to callers.
// Every method takes the caller's identity and enforces access itself.
type UserService interface {
	GetCurrentUser(ctx context.Context, actor domain.Identity) (*domain.User, error)
	ListUsers(ctx context.Context, actor domain.Identity, filter UserFilter) (*ListUsersResult, error)
	GetUser(ctx context.Context, actor domain.Identity, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, actor domain.Identity, id string, patch UserPatch) (*domain.User, error)
	DeleteUser(ctx context.Context, actor domain.Identity, id string) error
	SetUserRole(ctx context.Context, actor domain.Identity, id, role string) (*domain.User, error)
	SetSuspended(ctx context.Context, actor domain.Identity, id string, suspended bool) (*domain.User, error)
	ToggleActive(ctx context.Context, actor domain.Identity, id string) (bool, error)
	ListDonors(ctx context.Context, actor domain.Identity, bloodGroup, city string) ([]*domain.User, error)
	GetTopDonors(ctx context.Context, actor domain.Identity, limit int) ([]*domain.User, error)
	AppendAchievements(ctx context.Context, actor domain.Identity, id string, items []string) ([]string, error)
	UploadProfileImage(ctx context.Context, actor domain.Identity, id string, img ImageUpload) (string, error)
	DeleteProfileImage(ctx context.Context, actor domain.Identity, id string) error
}
