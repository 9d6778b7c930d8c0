package ports

import (
	"context"

	"github.com/redbank/donation-system/internal/core/domain"
)

// SubmitDonationInput is a new ledger entry as submitted by a caller.
type SubmitDonationInput struct {
	UserID         string
	Date           string
	Location       string
	Amount         float64
	IdempotencyKey string
}

// SubmitDonationResult is returned after a submission.
type SubmitDonationResult struct {
	Entry domain.DonationEntry
	// AlreadyExisted is true when the Idempotency-Key matched an earlier submission.
	AlreadyExisted bool
	// Retries counts guarded writes that lost to a concurrent writer.
	Retries int
}

// ApproveDonationResult is returned after an approval.
type ApproveDonationResult struct {
	Entry        domain.DonationEntry
	Level        domain.LevelState
	TotalDonated int
	LeveledUp    bool
	Retries      int
}

// DonationSummary is the ledger view of a single user.
type DonationSummary struct {
	Donations    []domain.DonationEntry
	Achievements []string
	Level        domain.LevelState
	TotalDonated int
	IsActive     bool
}

// DonationService is the donation ledger.
type DonationService interface {
	Submit(ctx context.Context, actor domain.Identity, in SubmitDonationInput) (*SubmitDonationResult, error)
	Approve(ctx context.Context, actor domain.Identity, userID string, donationID int) (*ApproveDonationResult, error)
	Summary(ctx context.Context, actor domain.Identity, userID string) (*DonationSummary, error)
}

// RequestService matches recipients' blood requests with donors.
type RequestService interface {
	Create(ctx context.Context, actor domain.Identity, bloodGroup, city string) (*domain.BloodRequest, error)
	Accept(ctx context.Context, actor domain.Identity, requestID string) (*domain.BloodRequest, error)
	Complete(ctx context.Context, actor domain.Identity, requestID string) (*domain.BloodRequest, error)
	List(ctx context.Context, actor domain.Identity, filter RequestFilter) ([]*domain.BloodRequest, error)
}
