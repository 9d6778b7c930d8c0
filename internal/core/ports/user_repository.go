package ports

import (
	"context"

	"github.com/redbank/donation-system/internal/core/domain"
)

// UserFilter carries query parameters for listing users.
type UserFilter struct {
	Role       string // optional
	BloodGroup string // optional: matches bloodGroup (donors) or bloodGroupNeeded (recipients)
	City       string // optional, case-insensitive exact match
	// OnlyAvailable restricts results to active, non-suspended users.
	OnlyAvailable bool
	Page          int // 1-based
	Limit         int
}

// UserPatch is a partial update; nil fields are left untouched.
type UserPatch struct {
	Name             *string
	Email            *string
	Phone            *string
	BloodGroup       *string
	BloodGroupNeeded *string
	City             *string
}

// IsEmpty reports whether the patch would change nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil &&
		p.BloodGroup == nil && p.BloodGroupNeeded == nil && p.City == nil
}

// UserRepository is the credential store. Each call touches one document and
// relies on the store's single-document atomicity.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, id string, patch UserPatch) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) ([]*domain.User, int64, error)
	TopDonors(ctx context.Context, limit int) ([]*domain.User, error)

	SetRole(ctx context.Context, id, role string) (*domain.User, error)
	SetSuspended(ctx context.Context, id string, suspended bool) (*domain.User, error)
	// ToggleActive flips isActive in one atomic update and returns the new value.
	ToggleActive(ctx context.Context, id string) (bool, error)
	// AppendAchievements pushes items onto the end of the sequence and returns
	// the full sequence after the write.
	AppendAchievements(ctx context.Context, id string, items []string) ([]string, error)
	// SetProfileImage stores path (empty clears it) and returns the previous value.
	SetProfileImage(ctx context.Context, id, path string) (string, error)

	// AppendDonation pushes entry if the stored version still equals
	// expectedVersion, bumping the version. When totals is non-nil the derived
	// fields are written in the same update. Returns domain.ErrVersionMismatch
	// when another writer got there first.
	AppendDonation(ctx context.Context, id string, expectedVersion int64, entry domain.DonationEntry, totals *LedgerTotals) error
	// CompleteDonation marks one Pending entry Completed and stores the
	// recomputed totals in a single guarded update.
	CompleteDonation(ctx context.Context, id string, expectedVersion int64, donationID int, update LedgerTotals) error
}

// LedgerTotals are the derived fields written together with a ledger change.
type LedgerTotals struct {
	TotalDonated int
	Level        domain.LevelState
}
