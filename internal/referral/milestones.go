package referral

// Milestone is one referral-count threshold and its one-time bonus.
type Milestone struct {
	Threshold   int
	Name        string
	BonusMonths int
}

// milestoneTable lists every milestone in ascending threshold order. Bonuses
// are granted exactly when the referral count lands on the threshold; an
// account can therefore earn each milestone at most once.
var milestoneTable = []Milestone{
	{Threshold: 5, Name: "early_influencer", BonusMonths: 2},
	{Threshold: 10, Name: "community_builder", BonusMonths: 3},
	{Threshold: 25, Name: "referral_champion", BonusMonths: 5},
	{Threshold: 50, Name: "viral_force", BonusMonths: 10},
	{Threshold: 100, Name: "super_spreader", BonusMonths: 20},
}

// MilestoneAt reports the milestone reached when a referral count arrives at
// newCount, if any. Only an exact threshold hit qualifies.
func MilestoneAt(newCount int) (name string, bonusMonths int, ok bool) {
	for _, m := range milestoneTable {
		if m.Threshold == newCount {
			return m.Name, m.BonusMonths, true
		}
	}
	return "", 0, false
}

// NextMilestone returns the first milestone above the current referral count,
// used by status endpoints to show users what they are working toward. ok is
// false once every threshold has been passed.
func NextMilestone(currentCount int) (Milestone, bool) {
	for _, m := range milestoneTable {
		if m.Threshold > currentCount {
			return m, true
		}
	}
	return Milestone{}, false
}

// Milestones returns a copy of the full threshold table.
func Milestones() []Milestone {
	out := make([]Milestone, len(milestoneTable))
	copy(out, milestoneTable)
	return out
}
