package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

// RequestService matches recipients' blood requests with donors.
type RequestService struct {
	repo   ports.RequestRepository
	ledger *DonationService
	log    zerolog.Logger
}

func NewRequestService(repo ports.RequestRepository, ledger *DonationService, log zerolog.Logger) *RequestService {
	return &RequestService{repo: repo, ledger: ledger, log: log}
}

func (s *RequestService) Create(ctx context.Context, actor domain.Identity, bloodGroup, city string) (*domain.BloodRequest, error) {
	if actor.Role != domain.RoleRecipient {
		return nil, domain.ErrForbidden
	}
	if !domain.ValidBloodGroup(bloodGroup) {
		return nil, domain.Validationf("invalid blood group %q", bloodGroup)
	}
	city = cleanText(city)
	if city == "" {
		return nil, domain.Validationf("city is required")
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.BloodRequest{
		RecipientID: actor.UserID,
		BloodGroup:  domain.NormalizeBloodGroup(bloodGroup),
		City:        city,
		Status:      domain.RequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", created.ID).
		Str("recipient_id", actor.UserID).
		Str("blood_group", created.BloodGroup).
		Msg("blood request created")
	return created, nil
}

// Accept moves a pending request to accepted and records a completed
// donation on the accepting donor's ledger. If the ledger write fails the
// request is put back to pending.
func (s *RequestService) Accept(ctx context.Context, actor domain.Identity, requestID string) (*domain.BloodRequest, error) {
	if actor.Role != domain.RoleDonor {
		return nil, domain.ErrForbidden
	}

	accepted, err := s.repo.Transition(ctx, requestID, domain.RequestPending, domain.RequestAccepted, actor.UserID)
	if errors.Is(err, domain.ErrVersionMismatch) {
		return nil, domain.ErrRequestNotPending
	}
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.RecordRequestDonation(ctx, actor.UserID, accepted)
	if err != nil {
		if _, rbErr := s.repo.Transition(ctx, requestID, domain.RequestAccepted, domain.RequestPending, ""); rbErr != nil {
			s.log.Error().Err(rbErr).Str("request_id", requestID).Msg("failed to reopen request after ledger error")
		}
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("donor_id", actor.UserID).
		Int("donation_id", entry.ID).
		Msg("blood request accepted")
	return accepted, nil
}

// Complete closes an accepted request. Only the recipient who opened it or
// an admin may do so.
func (s *RequestService) Complete(ctx context.Context, actor domain.Identity, requestID string) (*domain.BloodRequest, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && (actor.Role != domain.RoleRecipient || req.RecipientID != actor.UserID) {
		return nil, domain.ErrForbidden
	}

	completed, err := s.repo.Transition(ctx, requestID, domain.RequestAccepted, domain.RequestCompleted, "")
	if errors.Is(err, domain.ErrVersionMismatch) {
		return nil, domain.ErrRequestNotAccepted
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("request_id", requestID).Str("by", actor.UserID).Msg("blood request completed")
	return completed, nil
}

func (s *RequestService) List(ctx context.Context, actor domain.Identity, filter ports.RequestFilter) ([]*domain.BloodRequest, error) {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleDonor:
	case domain.RoleRecipient:
		filter.RecipientID = actor.UserID
	default:
		return nil, domain.ErrForbidden
	}

	if filter.Status != "" {
		switch domain.RequestStatus(filter.Status) {
		case domain.RequestPending, domain.RequestAccepted, domain.RequestCompleted:
		default:
			return nil, domain.Validationf("invalid status %q", filter.Status)
		}
	}
	if filter.BloodGroup != "" {
		if !domain.ValidBloodGroup(filter.BloodGroup) {
			return nil, domain.Validationf("invalid blood group %q", filter.BloodGroup)
		}
		filter.BloodGroup = domain.NormalizeBloodGroup(filter.BloodGroup)
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.BloodRequest{}
	}
	return items, nil
}
