package referral

import (
	"regexp"
	"testing"
)

func TestMilestoneAt(t *testing.T) {
	tests := []struct {
		count     int
		wantName  string
		wantBonus int
		wantOK    bool
	}{
		{1, "", 0, false},
		{4, "", 0, false},
		{5, "early_influencer", 2, true},
		{6, "", 0, false},
		{10, "community_builder", 3, true},
		{25, "referral_champion", 5, true},
		{50, "viral_force", 10, true},
		{100, "super_spreader", 20, true},
		{101, "", 0, false},
	}

	for _, tt := range tests {
		name, bonus, ok := MilestoneAt(tt.count)
		if name != tt.wantName || bonus != tt.wantBonus || ok != tt.wantOK {
			t.Errorf("MilestoneAt(%d) = (%q, %d, %v), want (%q, %d, %v)",
				tt.count, name, bonus, ok, tt.wantName, tt.wantBonus, tt.wantOK)
		}
	}
}

func TestNextMilestone(t *testing.T) {
	next, ok := NextMilestone(0)
	if !ok || next.Threshold != 5 {
		t.Errorf("NextMilestone(0) = (%+v, %v), want threshold 5", next, ok)
	}

	next, ok = NextMilestone(5)
	if !ok || next.Threshold != 10 {
		t.Errorf("NextMilestone(5) = (%+v, %v), want threshold 10", next, ok)
	}

	if _, ok := NextMilestone(100); ok {
		t.Error("expected no milestone past the last threshold")
	}
}

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^DOTCTL[A-Z0-9]{6}$`)
	for i := 0; i < 20; i++ {
		code, err := GenerateCode("DOTCTL", 6)
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("unexpected code format %q", code)
		}
	}
}

func TestComputeSubscription(t *testing.T) {
	tests := []struct {
		months      int
		wantYears   int
		wantMonths  int
		wantDisplay string
	}{
		{0, 0, 0, "0 months"},
		{1, 0, 1, "1 month"},
		{11, 0, 11, "11 months"},
		{12, 1, 0, "1 year"},
		{13, 1, 1, "1 year, 1 month"},
		{14, 1, 2, "1 year, 2 months"},
		{24, 2, 0, "2 years"},
		{27, 2, 3, "2 years, 3 months"},
		{-3, 0, 0, "0 months"},
	}

	for _, tt := range tests {
		sub := ComputeSubscription(tt.months)
		if sub.Years != tt.wantYears || sub.Months != tt.wantMonths || sub.Display != tt.wantDisplay {
			t.Errorf("ComputeSubscription(%d) = {years:%d months:%d %q}, want {years:%d months:%d %q}",
				tt.months, sub.Years, sub.Months, sub.Display, tt.wantYears, tt.wantMonths, tt.wantDisplay)
		}
	}
}
