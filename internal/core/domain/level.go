package domain

// Badge is the tier label derived from the completed-donation count.
type Badge string

const (
	BadgeBronze Badge = "bronze"
	BadgeSilver Badge = "silver"
	BadgeGold   Badge = "gold"
)

const (
	donationsPerLevel = 5
	silverThreshold   = 5
	goldThreshold     = 10
)

// LevelState is the gamification snapshot stored on a user.
type LevelState struct {
	Current     int   `json:"current"`
	XP          int   `json:"xp"`
	NextLevelXP int   `json:"nextLevelXp"`
	LevelBadge  Badge `json:"levelBadge"`
}

// ComputeLevel derives the level state from the number of completed
// donations. It is total over all ints; negative counts are treated as zero.
func ComputeLevel(completed int) LevelState {
	if completed < 0 {
		completed = 0
	}

	badge := BadgeBronze
	switch {
	case completed >= goldThreshold:
		badge = BadgeGold
	case completed >= silverThreshold:
		badge = BadgeSilver
	}

	current := completed/donationsPerLevel + 1
	return LevelState{
		Current:     current,
		XP:          completed,
		NextLevelXP: current * donationsPerLevel,
		LevelBadge:  badge,
	}
}

// IsZero reports whether the state was never initialised (legacy records).
func (l LevelState) IsZero() bool {
	return l.Current == 0
}
