// Package scoring turns heterogeneous per-image quality signals into one
// sensor-agnostic scalar. The function is pure so scores are reproducible
// across runs and across the catalog/compute split.
package scoring

import (
	"skymosaic/internal/config"
)

// Input carries the quality signals of one candidate image. Optional
// signals are pointers; a nil value means the source does not publish the
// metric and the corresponding sub-score stays at its neutral maximum.
type Input struct {
	CloudFraction  float64
	SolarZenith    *float64 // degrees, 0 = sun overhead
	ViewZenith     *float64 // degrees off nadir
	ValidFraction  *float64 // [0,1]
	DaysSinceStart *int
	WindowDays     int
	ResolutionM    float64
}

// Score computes the weighted quality score in [0,1]. Higher is better.
// Resolution carries the largest weight so that a sharp image with some
// cloud cover outranks a spotless but coarse one.
func Score(in Input) float64 {
	score := cloudScore(in.CloudFraction) * config.WeightCloudFraction
	score += solarScore(in.SolarZenith) * config.WeightSolarZenith
	score += viewScore(in.ViewZenith) * config.WeightViewZenith
	score += validScore(in.ValidFraction) * config.WeightValidPixels
	score += recencyScore(in.DaysSinceStart, in.WindowDays) * config.WeightTemporalRecency
	score += resolutionScore(in.ResolutionM) * config.WeightResolution
	return score
}

// ApplyPenalty halves a score for degraded-mode imagery so it is only
// chosen when nothing better exists.
func ApplyPenalty(score float64) float64 {
	return score * config.DegradedPenalty
}

// cloudScore penalizes cloud cover super-linearly: 67% cover already
// zeroes the contribution.
func cloudScore(fraction float64) float64 {
	s := 1.0 - fraction*1.5
	if s < 0 {
		return 0
	}
	return s
}

// solarScore prefers a high sun. Full score below 30 degrees zenith, a
// gentle taper to 60, then a steeper one with a 0.2 floor.
func solarScore(zenith *float64) float64 {
	if zenith == nil {
		return 1.0
	}
	z := *zenith
	switch {
	case z < 30:
		return 1.0
	case z <= 60:
		return 1.0 - (z-30)/100.0
	default:
		s := 1.0 - (z-60)/60.0
		if s < 0.2 {
			return 0.2
		}
		return s
	}
}

// viewScore prefers near-nadir looks. Full score within 10 degrees, then a
// linear taper reaching the 0.5 floor at 30 degrees off the grace band.
func viewScore(zenith *float64) float64 {
	if zenith == nil {
		return 1.0
	}
	z := *zenith
	if z <= 10 {
		return 1.0
	}
	s := 1.0 - (z-10)/40.0
	if s < 0.5 {
		return 0.5
	}
	return s
}

// validScore passes the valid-pixel fraction through with a 0.3 floor so
// partial coverage never zeroes a candidate on its own.
func validScore(fraction *float64) float64 {
	if fraction == nil {
		return 1.0
	}
	if *fraction < 0.3 {
		return 0.3
	}
	return *fraction
}

// recencyScore decays linearly from 1.0 at the window start to 0.5 at its
// end, a mild bias toward newer acquisitions.
func recencyScore(days *int, windowDays int) float64 {
	if days == nil || windowDays <= 0 {
		return 1.0
	}
	s := 1.0 - (float64(*days)/float64(windowDays))*0.5
	if s < 0.5 {
		return 0.5
	}
	return s
}

// resolutionScore is a step function over native ground sample distance.
func resolutionScore(resolutionM float64) float64 {
	if resolutionM <= 0 {
		return 1.0
	}
	switch {
	case resolutionM <= 4:
		return 1.0
	case resolutionM <= 15:
		return 0.95
	case resolutionM <= 30:
		return 0.85
	case resolutionM <= 60:
		return 0.60
	case resolutionM <= 250:
		return 0.40
	case resolutionM <= 400:
		return 0.25
	default:
		return 0.15
	}
}
