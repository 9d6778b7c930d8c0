package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/api/middleware"
	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

// Each stub embeds its port so a test only wires the methods it exercises.

type stubAuthService struct {
	ports.AuthService
	registerFn func(ctx context.Context, in ports.RegisterInput) (*domain.User, error)
	loginFn    func(ctx context.Context, email, password string) (string, *domain.User, error)
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	return s.loginFn(ctx, email, password)
}

type stubUserService struct {
	ports.UserService
	listFn         func(ctx context.Context, actor domain.Identity, f ports.UserFilter) (*ports.ListUsersResult, error)
	getFn          func(ctx context.Context, actor domain.Identity, id string) (*domain.User, error)
	updateFn       func(ctx context.Context, actor domain.Identity, id string, p ports.UserPatch) (*domain.User, error)
	deleteFn       func(ctx context.Context, actor domain.Identity, id string) error
	setSuspendedFn func(ctx context.Context, actor domain.Identity, id string, suspended bool) (*domain.User, error)
	topDonorsFn    func(ctx context.Context, actor domain.Identity, limit int) ([]*domain.User, error)
	achievementsFn func(ctx context.Context, actor domain.Identity, id string, items []string) ([]string, error)
	uploadFn       func(ctx context.Context, actor domain.Identity, id string, img ports.ImageUpload) (string, error)
}

func (s *stubUserService) ListUsers(ctx context.Context, actor domain.Identity, f ports.UserFilter) (*ports.ListUsersResult, error) {
	return s.listFn(ctx, actor, f)
}

func (s *stubUserService) GetUser(ctx context.Context, actor domain.Identity, id string) (*domain.User, error) {
	return s.getFn(ctx, actor, id)
}

func (s *stubUserService) UpdateUser(ctx context.Context, actor domain.Identity, id string, p ports.UserPatch) (*domain.User, error) {
	return s.updateFn(ctx, actor, id, p)
}

func (s *stubUserService) DeleteUser(ctx context.Context, actor domain.Identity, id string) error {
	return s.deleteFn(ctx, actor, id)
}

func (s *stubUserService) SetSuspended(ctx context.Context, actor domain.Identity, id string, suspended bool) (*domain.User, error) {
	return s.setSuspendedFn(ctx, actor, id, suspended)
}

func (s *stubUserService) GetTopDonors(ctx context.Context, actor domain.Identity, limit int) ([]*domain.User, error) {
	return s.topDonorsFn(ctx, actor, limit)
}

func (s *stubUserService) AppendAchievements(ctx context.Context, actor domain.Identity, id string, items []string) ([]string, error) {
	return s.achievementsFn(ctx, actor, id, items)
}

func (s *stubUserService) UploadProfileImage(ctx context.Context, actor domain.Identity, id string, img ports.ImageUpload) (string, error) {
	return s.uploadFn(ctx, actor, id, img)
}

type stubDonationService struct {
	ports.DonationService
	submitFn  func(ctx context.Context, actor domain.Identity, in ports.SubmitDonationInput) (*ports.SubmitDonationResult, error)
	approveFn func(ctx context.Context, actor domain.Identity, userID string, donationID int) (*ports.ApproveDonationResult, error)
	summaryFn func(ctx context.Context, actor domain.Identity, userID string) (*ports.DonationSummary, error)
}

func (s *stubDonationService) Submit(ctx context.Context, actor domain.Identity, in ports.SubmitDonationInput) (*ports.SubmitDonationResult, error) {
	return s.submitFn(ctx, actor, in)
}

func (s *stubDonationService) Approve(ctx context.Context, actor domain.Identity, userID string, donationID int) (*ports.ApproveDonationResult, error) {
	return s.approveFn(ctx, actor, userID, donationID)
}

func (s *stubDonationService) Summary(ctx context.Context, actor domain.Identity, userID string) (*ports.DonationSummary, error) {
	return s.summaryFn(ctx, actor, userID)
}

type stubRequestService struct {
	ports.RequestService
	createFn func(ctx context.Context, actor domain.Identity, bloodGroup, city string) (*domain.BloodRequest, error)
	acceptFn func(ctx context.Context, actor domain.Identity, id string) (*domain.BloodRequest, error)
	listFn   func(ctx context.Context, actor domain.Identity, f ports.RequestFilter) ([]*domain.BloodRequest, error)
}

func (s *stubRequestService) Create(ctx context.Context, actor domain.Identity, bloodGroup, city string) (*domain.BloodRequest, error) {
	return s.createFn(ctx, actor, bloodGroup, city)
}

func (s *stubRequestService) Accept(ctx context.Context, actor domain.Identity, id string) (*domain.BloodRequest, error) {
	return s.acceptFn(ctx, actor, id)
}

func (s *stubRequestService) List(ctx context.Context, actor domain.Identity, f ports.RequestFilter) ([]*domain.BloodRequest, error) {
	return s.listFn(ctx, actor, f)
}

// newTestContext builds an echo context with the validator installed.
func newTestContext(method, target string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// withIdentity mimics the Auth middleware.
func withIdentity(c echo.Context, userID, role string) {
	c.Set(middleware.ContextUserID, userID)
	c.Set(middleware.ContextRole, role)
}

// multipartImage encodes a single "image" form file.
func multipartImage(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

// httpStatus returns the status carried by an *echo.HTTPError, or 0.
func httpStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}
