package domain

import "time"

// DonationStatus is the lifecycle state of a ledger entry.
type DonationStatus string

const (
	DonationPending   DonationStatus = "Pending"
	DonationCompleted DonationStatus = "Completed"
)

// DonationEntry is one line of a user's donation ledger. IDs are 1-based and
// unique only within the owning user's sequence. Entries are never removed.
type DonationEntry struct {
	ID          int            `json:"id"`
	Date        string         `json:"date"`
	Location    string         `json:"location"`
	Amount      float64        `json:"amount"`
	Status      DonationStatus `json:"status"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	// RequestID is set when the entry was recorded by accepting a blood request.
	RequestID string `json:"requestId,omitempty"`
}

// NextDonationID returns the id the next appended entry receives.
func NextDonationID(entries []DonationEntry) int {
	return len(entries) + 1
}

// CountCompleted is the single source of truth for a user's totalDonated.
func CountCompleted(entries []DonationEntry) int {
	n := 0
	for _, d := range entries {
		if d.Status == DonationCompleted {
			n++
		}
	}
	return n
}
