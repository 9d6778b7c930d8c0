package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	defaultTopDonors = 10
	maxTopDonors     = 100

	// DefaultMaxImageBytes caps profile image uploads when no limit is configured.
	DefaultMaxImageBytes int64 = 5 << 20
)

// UserService implements ports.UserService.
type UserService struct {
	repo          ports.UserRepository
	images        ports.ImageStore
	maxImageBytes int64
	log           zerolog.Logger
}

func NewUserService(repo ports.UserRepository, images ports.ImageStore, maxImageBytes int64, log zerolog.Logger) *UserService {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &UserService{repo: repo, images: images, maxImageBytes: maxImageBytes, log: log}
}

func (s *UserService) GetCurrentUser(ctx context.Context, actor domain.Identity) (*domain.User, error) {
	return s.repo.FindByID(ctx, actor.UserID)
}

func (s *UserService) ListUsers(ctx context.Context, actor domain.Identity, filter ports.UserFilter) (*ports.ListUsersResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	if filter.Role != "" && !domain.ValidRole(filter.Role) {
		return nil, domain.Validationf("invalid role %q", filter.Role)
	}
	if filter.BloodGroup != "" {
		if !domain.ValidBloodGroup(filter.BloodGroup) {
			return nil, domain.Validationf("invalid blood group %q", filter.BloodGroup)
		}
		filter.BloodGroup = domain.NormalizeBloodGroup(filter.BloodGroup)
	}
	filter.City = strings.TrimSpace(filter.City)

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if items == nil {
		items = []*domain.User{}
	}

	return &ports.ListUsersResult{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
	}, nil
}

func (s *UserService) GetUser(ctx context.Context, actor domain.Identity, id string) (*domain.User, error) {
	if !actor.CanActOn(id) {
		return nil, domain.ErrForbidden
	}
	return s.repo.FindByID(ctx, id)
}

// UpdateUser applies a partial profile update. Every field is validated
// before anything is written, so the patch lands whole or not at all.
func (s *UserService) UpdateUser(ctx context.Context, actor domain.Identity, id string, patch ports.UserPatch) (*domain.User, error) {
	if !actor.CanActOn(id) {
		return nil, domain.ErrForbidden
	}

	patch.Name = cleanPtr(patch.Name)
	patch.Phone = cleanPtr(patch.Phone)
	patch.City = cleanPtr(patch.City)

	if patch.Name != nil && *patch.Name == "" {
		return nil, domain.Validationf("name must not be empty")
	}
	if patch.Email != nil {
		email := domain.NormalizeEmail(*patch.Email)
		if email == "" {
			return nil, domain.Validationf("email must not be empty")
		}
		patch.Email = &email
	}
	for _, g := range []*string{patch.BloodGroup, patch.BloodGroupNeeded} {
		if g == nil || *g == "" {
			continue
		}
		if !domain.ValidBloodGroup(*g) {
			return nil, domain.Validationf("invalid blood group %q", *g)
		}
		*g = domain.NormalizeBloodGroup(*g)
	}
	if patch.IsEmpty() {
		return nil, domain.Validationf("no fields to update")
	}

	return s.repo.Update(ctx, id, patch)
}

func (s *UserService) DeleteUser(ctx context.Context, actor domain.Identity, id string) error {
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if user.ProfileImage != "" && s.images != nil {
		if err := s.images.Delete(ctx, user.ProfileImage); err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("failed to remove profile image of deleted user")
		}
	}
	s.log.Info().Str("user_id", id).Str("by", actor.UserID).Msg("user deleted")
	return nil
}

func (s *UserService) SetUserRole(ctx context.Context, actor domain.Identity, id, role string) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if !domain.ValidRole(role) {
		return nil, domain.Validationf("role must be one of: donor recipient admin")
	}

	user, err := s.repo.SetRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", id).Str("role", role).Str("by", actor.UserID).Msg("user role changed")
	return user, nil
}

func (s *UserService) SetSuspended(ctx context.Context, actor domain.Identity, id string, suspended bool) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if suspended && actor.UserID == id {
		return nil, domain.Validationf("admins cannot suspend themselves")
	}

	user, err := s.repo.SetSuspended(ctx, id, suspended)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", id).Bool("suspended", suspended).Str("by", actor.UserID).Msg("user suspension changed")
	return user, nil
}

func (s *UserService) ToggleActive(ctx context.Context, actor domain.Identity, id string) (bool, error) {
	if !actor.CanActOn(id) {
		return false, domain.ErrForbidden
	}
	return s.repo.ToggleActive(ctx, id)
}

// ListDonors returns active, non-suspended donors, optionally narrowed by
// blood group and city.
func (s *UserService) ListDonors(ctx context.Context, actor domain.Identity, bloodGroup, city string) ([]*domain.User, error) {
	if actor.UserID == "" {
		return nil, domain.ErrUnauthorized
	}

	filter := ports.UserFilter{
		Role:          domain.RoleDonor,
		City:          strings.TrimSpace(city),
		OnlyAvailable: true,
	}
	if bloodGroup != "" {
		if !domain.ValidBloodGroup(bloodGroup) {
			return nil, domain.Validationf("invalid blood group %q", bloodGroup)
		}
		filter.BloodGroup = domain.NormalizeBloodGroup(bloodGroup)
	}

	donors, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	if donors == nil {
		donors = []*domain.User{}
	}
	return donors, nil
}

func (s *UserService) GetTopDonors(ctx context.Context, actor domain.Identity, limit int) ([]*domain.User, error) {
	if actor.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	if limit < 1 {
		limit = defaultTopDonors
	}
	if limit > maxTopDonors {
		limit = maxTopDonors
	}

	donors, err := s.repo.TopDonors(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top donors: %w", err)
	}
	if donors == nil {
		donors = []*domain.User{}
	}
	return donors, nil
}

// AppendAchievements concatenates items onto the user's achievements.
// Duplicates are kept.
func (s *UserService) AppendAchievements(ctx context.Context, actor domain.Identity, id string, items []string) ([]string, error) {
	if !actor.CanActOn(id) {
		return nil, domain.ErrForbidden
	}

	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		if v := cleanText(it); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return nil, domain.Validationf("achievements must contain at least one non-empty item")
	}

	return s.repo.AppendAchievements(ctx, id, cleaned)
}

func (s *UserService) UploadProfileImage(ctx context.Context, actor domain.Identity, id string, img ports.ImageUpload) (string, error) {
	if !actor.CanActOn(id) {
		return "", domain.ErrForbidden
	}
	if img.Size > s.maxImageBytes {
		return "", domain.Validationf("profile image exceeds %d bytes", s.maxImageBytes)
	}

	// The declared Content-Type and file name are ignored; the stored type
	// and extension come from the bytes.
	kind, body, err := sniffImage(img.Body)
	if err != nil {
		return "", err
	}
	if !imageTypes[kind.String()] {
		s.log.Info().Str("user_id", id).Str("filename", img.Filename).Str("detected", kind.String()).Msg("rejected profile image upload")
		return "", domain.Validationf("profile image must be JPEG, PNG, GIF or WebP, got %s", kind.String())
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return "", err
	}

	path, err := s.images.Put(ctx, "profile"+kind.Extension(), body, kind.String())
	if err != nil {
		return "", fmt.Errorf("store profile image: %w", err)
	}

	prev, err := s.repo.SetProfileImage(ctx, id, path)
	if err != nil {
		if delErr := s.images.Delete(ctx, path); delErr != nil {
			s.log.Warn().Err(delErr).Str("path", path).Msg("failed to remove orphaned profile image")
		}
		return "", err
	}

	if prev != "" && prev != path {
		if err := s.images.Delete(ctx, prev); err != nil {
			s.log.Warn().Err(err).Str("path", prev).Msg("failed to remove replaced profile image")
		}
	}
	return path, nil
}

func (s *UserService) DeleteProfileImage(ctx context.Context, actor domain.Identity, id string) error {
	if !actor.CanActOn(id) {
		return domain.ErrForbidden
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user.ProfileImage == "" {
		return domain.ErrNoProfileImage
	}

	prev, err := s.repo.SetProfileImage(ctx, id, "")
	if err != nil {
		return err
	}
	if prev != "" {
		if err := s.images.Delete(ctx, prev); err != nil {
			s.log.Warn().Err(err).Str("path", prev).Msg("failed to remove profile image")
		}
	}
	return nil
}

// sniffLen matches the read limit mimetype uses for detection.
const sniffLen = 3072

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// sniffImage detects the upload format from its leading bytes and returns a
// reader that still yields the whole body.
func sniffImage(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read profile image: %w", err)
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}
