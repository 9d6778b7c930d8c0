package handler

import (
	"github.com/redbank/donation-system/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Auth ---

type registerRequest struct {
	Name             string `json:"name"             validate:"required"`
	Email            string `json:"email"            validate:"required,email"`
	Password         string `json:"password"         validate:"required,min=6"`
	Role             string `json:"role"             validate:"omitempty,oneof=donor recipient"`
	Phone            string `json:"phone"`
	BloodGroup       string `json:"bloodGroup"       validate:"omitempty,bloodgroup"`
	BloodGroupNeeded string `json:"bloodGroupNeeded" validate:"omitempty,bloodgroup"`
	City             string `json:"city"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

// --- Users ---

type updateUserRequest struct {
	Name             *string `json:"name"`
	Email            *string `json:"email"            validate:"omitempty,email"`
	Phone            *string `json:"phone"`
	BloodGroup       *string `json:"bloodGroup"       validate:"omitempty,bloodgroup"`
	BloodGroupNeeded *string `json:"bloodGroupNeeded" validate:"omitempty,bloodgroup"`
	City             *string `json:"city"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=donor recipient admin"`
}

type setSuspendedRequest struct {
	Suspended *bool `json:"suspended" validate:"required"`
}

type listUsersResponse struct {
	Data       []*domain.User `json:"data"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

type toggleActiveResponse struct {
	IsActive bool `json:"isActive"`
}

type profileImageResponse struct {
	ProfileImage string `json:"profileImage"`
}

// --- Donations ---

type submitDonationRequest struct {
	Date     string  `json:"date"     validate:"required"`
	Location string  `json:"location" validate:"required"`
	Amount   float64 `json:"amount"   validate:"required,gt=0"`
}

type submitDonationResponse struct {
	Message  string               `json:"message"`
	Donation domain.DonationEntry `json:"donation"`
}

type approveDonationResponse struct {
	Message      string               `json:"message"`
	Donation     domain.DonationEntry `json:"donation"`
	Level        domain.LevelState    `json:"level"`
	TotalDonated int                  `json:"totalDonated"`
	LeveledUp    bool                 `json:"leveledUp"`
}

type donationSummaryResponse struct {
	Donations    []domain.DonationEntry `json:"donations"`
	Achievements []string               `json:"achievements"`
	Level        domain.LevelState      `json:"level"`
	TotalDonated int                    `json:"totalDonated"`
	IsActive     bool                   `json:"isActive"`
}

type achievementsRequest struct {
	Achievements []string `json:"achievements" validate:"required,min=1,max=50"`
}

type achievementsResponse struct {
	Achievements []string `json:"achievements"`
}

// --- Blood requests ---

type createRequestRequest struct {
	BloodGroup string `json:"bloodGroup" validate:"required,bloodgroup"`
	City       string `json:"city"       validate:"required"`
}
