package domain

import "time"

// RequestStatus represents the lifecycle state of a blood request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestCompleted RequestStatus = "completed"
)

// BloodRequest is a recipient's open ask for a donor of a given blood group
// in a given city. It holds non-owning references to two users.
type BloodRequest struct {
	ID          string        `json:"id"`
	RecipientID string        `json:"recipient"`
	BloodGroup  string        `json:"bloodGroup"`
	City        string        `json:"city"`
	Status      RequestStatus `json:"status"`
	AcceptedBy  string        `json:"acceptedBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
