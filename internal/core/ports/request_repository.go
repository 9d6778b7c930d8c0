package ports

import (
	"context"

	"github.com/redbank/donation-system/internal/core/domain"
)

// RequestFilter carries query parameters for listing blood requests.
type RequestFilter struct {
	RecipientID string // empty = all recipients
	Status      string
	BloodGroup  string
	City        string
}

// RequestRepository persists blood requests.
type RequestRepository interface {
	Create(ctx context.Context, r *domain.BloodRequest) (*domain.BloodRequest, error)
	FindByID(ctx context.Context, id string) (*domain.BloodRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]*domain.BloodRequest, error)
	// Transition moves a request from one status to another in one atomic
	// update. acceptedBy is written when moving to accepted and cleared when
	// moving back to pending. Returns
	// domain.ErrRequestNotFound if the id is unknown and
	// domain.ErrVersionMismatch if the request is no longer in from.
	Transition(ctx context.Context, id string, from, to domain.RequestStatus, acceptedBy string) (*domain.BloodRequest, error)
}
