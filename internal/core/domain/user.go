package domain

import (
	"strings"
	"time"
)

const (
	RoleDonor     = "donor"
	RoleRecipient = "recipient"
	RoleAdmin     = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleDonor, RoleRecipient, RoleAdmin:
		return true
	}
	return false
}

var bloodGroups = map[string]struct{}{
	"A+": {}, "A-": {}, "B+": {}, "B-": {},
	"AB+": {}, "AB-": {}, "O+": {}, "O-": {},
}

// ValidBloodGroup reports whether g is an ABO/Rh group such as "O-" or "AB+".
func ValidBloodGroup(g string) bool {
	_, ok := bloodGroups[strings.ToUpper(strings.TrimSpace(g))]
	return ok
}

// NormalizeBloodGroup trims and upper-cases a blood group for storage and matching.
func NormalizeBloodGroup(g string) string {
	return strings.ToUpper(strings.TrimSpace(g))
}

// NormalizeEmail lower-cases and trims an email so uniqueness is case-insensitive.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Identity is the caller as asserted by a verified credential token.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanActOn reports whether the identity may operate on the given user's
// own records: either it is that user, or it is an admin.
func (i Identity) CanActOn(userID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == userID)
}

// User is the aggregate root of the credential store. It owns its donation
// ledger, achievements and level exclusively.
type User struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	PasswordHash     string          `json:"-"`
	Role             string          `json:"role"`
	Phone            string          `json:"phone"`
	BloodGroup       string          `json:"bloodGroup,omitempty"`
	BloodGroupNeeded string          `json:"bloodGroupNeeded,omitempty"`
	City             string          `json:"city"`
	ProfileImage     string          `json:"profileImage,omitempty"`
	IsActive         bool            `json:"isActive"`
	IsSuspended      bool            `json:"isSuspended"`
	TotalDonated     int             `json:"totalDonated"`
	Donations        []DonationEntry `json:"donations"`
	Achievements     []string        `json:"achievements"`
	Level            LevelState      `json:"level"`
	// Version is the optimistic revision used to serialise ledger writes.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FindDonation returns the index of the donation with the given id, or -1.
func (u *User) FindDonation(id int) int {
	for i, d := range u.Donations {
		if d.ID == id {
			return i
		}
	}
	return -1
}
