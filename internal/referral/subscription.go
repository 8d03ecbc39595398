package referral

import "fmt"

// Subscription is the human-facing view of a reward-month balance.
type Subscription struct {
	TotalMonths int    `json:"total_months"`
	Years       int    `json:"years"`
	Months      int    `json:"months"`
	Display     string `json:"display"`
}

// ComputeSubscription splits a reward balance into years and months and
// renders the display string shown on status pages and in emails.
func ComputeSubscription(rewardMonths int) Subscription {
	if rewardMonths < 0 {
		rewardMonths = 0
	}
	sub := Subscription{
		TotalMonths: rewardMonths,
		Years:       rewardMonths / 12,
		Months:      rewardMonths % 12,
	}
	sub.Display = formatSubscription(sub.Years, sub.Months)
	return sub
}

func formatSubscription(years, months int) string {
	switch {
	case years > 0 && months > 0:
		return fmt.Sprintf("%s, %s", plural(years, "year"), plural(months, "month"))
	case years > 0:
		return plural(years, "year")
	default:
		return plural(months, "month")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
