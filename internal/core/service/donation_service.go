package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

// maxLedgerAttempts bounds the read-then-guarded-write loop on a user's ledger.
const maxLedgerAttempts = 3

// DonationService is the donation ledger. Every write is guarded by the
// user's version, so concurrent submissions and approvals never overwrite
// each other.
type DonationService struct {
	repo ports.UserRepository
	idem ports.IdempotencyStore
	log  zerolog.Logger
}

// NewDonationService builds the ledger. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewDonationService(repo ports.UserRepository, idem ports.IdempotencyStore, log zerolog.Logger) *DonationService {
	return &DonationService{repo: repo, idem: idem, log: log}
}

func (s *DonationService) Submit(ctx context.Context, actor domain.Identity, in ports.SubmitDonationInput) (*ports.SubmitDonationResult, error) {
	if !actor.CanActOn(in.UserID) {
		return nil, domain.ErrForbidden
	}

	date := cleanText(in.Date)
	location := cleanText(in.Location)
	if date == "" || location == "" {
		return nil, domain.Validationf("date and location are required")
	}
	if in.Amount <= 0 {
		return nil, domain.Validationf("amount must be greater than zero")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	reserved, existing, err := s.reserve(ctx, in.UserID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ports.SubmitDonationResult{Entry: *existing, AlreadyExisted: true}, nil
	}

	var entry domain.DonationEntry
	retries, err := s.guarded(ctx, in.UserID, func(u *domain.User) error {
		entry = domain.DonationEntry{
			ID:       domain.NextDonationID(u.Donations),
			Date:     date,
			Location: location,
			Amount:   in.Amount,
			Status:   domain.DonationPending,
		}
		return s.repo.AppendDonation(ctx, u.ID, u.Version, entry, nil)
	})
	if err != nil {
		if reserved {
			if relErr := s.idem.Release(ctx, in.UserID, key); relErr != nil {
				s.log.Warn().Err(relErr).Str("user_id", in.UserID).Msg("failed to release idempotency key")
			}
		}
		return nil, err
	}

	if reserved {
		if err := s.idem.Complete(ctx, in.UserID, key, entry.ID); err != nil {
			s.log.Warn().Err(err).Str("user_id", in.UserID).Msg("failed to store idempotency key")
		}
	}

	s.log.Info().
		Str("user_id", in.UserID).
		Int("donation_id", entry.ID).
		Msg("donation submitted")

	return &ports.SubmitDonationResult{Entry: entry, Retries: retries}, nil
}

// Approve completes a Pending entry and recomputes the derived totals in the
// same guarded write. Re-approving a Completed entry is rejected.
func (s *DonationService) Approve(ctx context.Context, actor domain.Identity, userID string, donationID int) (*ports.ApproveDonationResult, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	var result ports.ApproveDonationResult
	retries, err := s.guarded(ctx, userID, func(u *domain.User) error {
		idx := u.FindDonation(donationID)
		if idx < 0 {
			return domain.ErrDonationNotFound
		}
		if u.Donations[idx].Status == domain.DonationCompleted {
			return domain.ErrDonationAlreadyCompleted
		}

		completed := domain.CountCompleted(u.Donations) + 1
		level := domain.ComputeLevel(completed)
		if err := s.repo.CompleteDonation(ctx, u.ID, u.Version, donationID, ports.LedgerTotals{
			TotalDonated: completed,
			Level:        level,
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		entry := u.Donations[idx]
		entry.Status = domain.DonationCompleted
		entry.CompletedAt = &now

		result = ports.ApproveDonationResult{
			Entry:        entry,
			Level:        level,
			TotalDonated: completed,
			LeveledUp:    level.Current > currentLevel(u),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Retries = retries

	s.log.Info().
		Str("user_id", userID).
		Int("donation_id", donationID).
		Int("total_donated", result.TotalDonated).
		Str("badge", string(result.Level.LevelBadge)).
		Msg("donation approved")
	if result.LeveledUp {
		s.log.Info().Str("user_id", userID).Int("level", result.Level.Current).Msg("user leveled up")
	}

	return &result, nil
}

func (s *DonationService) Summary(ctx context.Context, actor domain.Identity, userID string) (*ports.DonationSummary, error) {
	if !actor.CanActOn(userID) {
		return nil, domain.ErrForbidden
	}

	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	level := u.Level
	if level.IsZero() {
		level = domain.ComputeLevel(domain.CountCompleted(u.Donations))
	}
	donations := u.Donations
	if donations == nil {
		donations = []domain.DonationEntry{}
	}
	achievements := u.Achievements
	if achievements == nil {
		achievements = []string{}
	}

	return &ports.DonationSummary{
		Donations:    donations,
		Achievements: achievements,
		Level:        level,
		TotalDonated: u.TotalDonated,
		IsActive:     u.IsActive,
	}, nil
}

// RecordRequestDonation appends a Completed entry for a donor who accepted a
// blood request and recomputes totals through the leveling rule.
func (s *DonationService) RecordRequestDonation(ctx context.Context, donorID string, req *domain.BloodRequest) (domain.DonationEntry, error) {
	var entry domain.DonationEntry
	_, err := s.guarded(ctx, donorID, func(u *domain.User) error {
		now := time.Now().UTC()
		entry = domain.DonationEntry{
			ID:          domain.NextDonationID(u.Donations),
			Date:        now.Format(time.DateOnly),
			Location:    req.City,
			Amount:      1,
			Status:      domain.DonationCompleted,
			CompletedAt: &now,
			RequestID:   req.ID,
		}
		completed := domain.CountCompleted(u.Donations) + 1
		return s.repo.AppendDonation(ctx, u.ID, u.Version, entry, &ports.LedgerTotals{
			TotalDonated: completed,
			Level:        domain.ComputeLevel(completed),
		})
	})
	return entry, err
}

// guarded re-reads the user and runs write until it stops losing the
// version race. It returns how many attempts were lost.
func (s *DonationService) guarded(ctx context.Context, userID string, write func(u *domain.User) error) (int, error) {
	for attempt := 0; attempt < maxLedgerAttempts; attempt++ {
		u, err := s.repo.FindByID(ctx, userID)
		if err != nil {
			return attempt, err
		}

		err = write(u)
		if errors.Is(err, domain.ErrVersionMismatch) {
			s.log.Debug().Str("user_id", userID).Int("attempt", attempt+1).Msg("ledger version conflict, retrying")
			continue
		}
		return attempt, err
	}

	s.log.Warn().Str("user_id", userID).Msg("ledger update gave up after repeated conflicts")
	return maxLedgerAttempts, fmt.Errorf("ledger %s: %w", userID, domain.ErrConcurrentUpdate)
}

// reserve claims key before the ledger write. It returns the earlier entry
// when the key already completed, and ErrSubmissionInFlight while another
// submission holds it. Store failures are logged and the key is ignored.
func (s *DonationService) reserve(ctx context.Context, userID, key string) (bool, *domain.DonationEntry, error) {
	if key == "" || s.idem == nil {
		return false, nil, nil
	}

	reserved, donationID, err := s.idem.Reserve(ctx, userID, key)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("idempotency reserve failed, proceeding")
		return false, nil, nil
	}
	if reserved {
		return true, nil, nil
	}
	if donationID == 0 {
		return false, nil, domain.ErrSubmissionInFlight
	}

	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	idx := u.FindDonation(donationID)
	if idx < 0 {
		s.log.Warn().Str("user_id", userID).Int("donation_id", donationID).Msg("idempotency key points at a missing donation")
		return false, nil, domain.ErrSubmissionInFlight
	}
	entry := u.Donations[idx]
	return false, &entry, nil
}

func currentLevel(u *domain.User) int {
	if u.Level.IsZero() {
		return domain.ComputeLevel(domain.CountCompleted(u.Donations)).Current
	}
	return u.Level.Current
}
