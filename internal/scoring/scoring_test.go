package scoring

import (
	"math"
	"testing"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func TestScoreIsDeterministic(t *testing.T) {
	in := Input{
		CloudFraction:  0.2,
		SolarZenith:    fp(45),
		ViewZenith:     fp(12),
		ValidFraction:  fp(0.9),
		DaysSinceStart: ip(10),
		WindowDays:     30,
		ResolutionM:    10,
	}
	first := Score(in)
	for i := 0; i < 5; i++ {
		if got := Score(in); got != first {
			t.Fatalf("score changed between calls: %v != %v", got, first)
		}
	}
	if first <= 0 || first > 1 {
		t.Errorf("score %v outside (0,1]", first)
	}
}

func TestScoreRange(t *testing.T) {
	worst := Score(Input{
		CloudFraction:  1.0,
		SolarZenith:    fp(90),
		ViewZenith:     fp(60),
		ValidFraction:  fp(0),
		DaysSinceStart: ip(365),
		WindowDays:     365,
		ResolutionM:    1000,
	})
	best := Score(Input{CloudFraction: 0, ResolutionM: 4})
	if worst <= 0 || math.Abs(best-1.0) > 1e-9 {
		t.Errorf("worst = %v, best = %v", worst, best)
	}
	if worst >= best {
		t.Errorf("worst %v should be below best %v", worst, best)
	}
}

func TestCloudMonotonicity(t *testing.T) {
	base := Input{ResolutionM: 30, WindowDays: 30}
	prev := math.Inf(1)
	for cf := 0.0; cf <= 1.0; cf += 0.05 {
		in := base
		in.CloudFraction = cf
		s := Score(in)
		if s > prev {
			t.Fatalf("score rose from %v to %v as cloud fraction reached %.2f", prev, s, cf)
		}
		prev = s
	}
}

func TestCloudSuperLinearPenalty(t *testing.T) {
	heavy := Input{CloudFraction: 0.7, ResolutionM: 10}
	overcast := Input{CloudFraction: 1.0, ResolutionM: 10}
	// Past two-thirds cover the cloud term is fully spent.
	if Score(heavy) != Score(overcast) {
		t.Errorf("cloud term should bottom out: %v vs %v", Score(heavy), Score(overcast))
	}
}

func TestResolutionTierOrdering(t *testing.T) {
	tiers := []float64{10, 30, 250, 375}
	var prev float64 = 2
	for _, res := range tiers {
		s := Score(Input{CloudFraction: 0.1, ResolutionM: res})
		if s >= prev {
			t.Errorf("resolution %vm scored %v, not below %v", res, s, prev)
		}
		prev = s
	}
}

func TestResolutionSteps(t *testing.T) {
	tests := []struct {
		res  float64
		want float64
	}{
		{4, 1.0}, {10, 0.95}, {15, 0.95}, {30, 0.85},
		{60, 0.60}, {250, 0.40}, {375, 0.25}, {500, 0.15},
	}
	for _, tt := range tests {
		if got := resolutionScore(tt.res); got != tt.want {
			t.Errorf("resolutionScore(%v) = %v, want %v", tt.res, got, tt.want)
		}
	}
}

func TestMissingOptionalsAreNeutral(t *testing.T) {
	sparse := Input{CloudFraction: 0.1, ResolutionM: 10}
	full := Input{
		CloudFraction: 0.1,
		SolarZenith:   fp(20),
		ViewZenith:    fp(5),
		ValidFraction: fp(1.0),
		ResolutionM:   10,
	}
	if Score(sparse) != Score(full) {
		t.Errorf("neutral defaults should match explicit best values: %v vs %v",
			Score(sparse), Score(full))
	}
}

func TestSolarZenithTaper(t *testing.T) {
	if got := solarScore(fp(45)); math.Abs(got-0.85) > 1e-9 {
		t.Errorf("solarScore(45) = %v, want 0.85", got)
	}
	if got := solarScore(fp(120)); got != 0.2 {
		t.Errorf("solarScore(120) = %v, want floor 0.2", got)
	}
}

func TestViewZenithFloor(t *testing.T) {
	if got := viewScore(fp(50)); got != 0.5 {
		t.Errorf("viewScore(50) = %v, want 0.5", got)
	}
	if got := viewScore(fp(10)); got != 1.0 {
		t.Errorf("viewScore(10) = %v, want 1.0", got)
	}
}

func TestApplyPenaltyHalvesScore(t *testing.T) {
	s := Score(Input{CloudFraction: 0.1, ResolutionM: 30})
	if got := ApplyPenalty(s); got != s/2 {
		t.Errorf("ApplyPenalty(%v) = %v, want %v", s, got, s/2)
	}
}
