// Package sources defines the closed set of satellite archives the pipeline
// draws from. Each archive is described by a typed profile carrying its
// catalog identifiers, operational range, band mapping, and masking
// strategy, so downstream stages never branch on source names.
package sources

import (
	"time"

	"skymosaic/internal/config"
	"skymosaic/internal/models"
)

// MaskStrategy names how cloud and shadow pixels are removed for a source.
type MaskStrategy string

const (
	// MaskQABitflags decodes a per-pixel QA band bit by bit (Landsat QA_PIXEL).
	MaskQABitflags MaskStrategy = "qa_bitflags"
	// MaskSceneClass filters on a classification-map band (Sentinel-2 SCL).
	MaskSceneClass MaskStrategy = "scene_classification"
	// MaskStateFlags tests single state bits (MODIS state_1km, VIIRS QF1).
	MaskStateFlags MaskStrategy = "state_flags"
	// MaskNone applies no per-pixel mask (ASTER L1T has no QA band).
	MaskNone MaskStrategy = "none"
)

// Profile is the static description of one satellite archive.
type Profile struct {
	ID          string
	DisplayName string

	// Collections are the remote catalog collection identifiers, merged
	// when more than one (MODIS Terra + Aqua).
	Collections []string

	// Operational bounds catalog queries. A nil End means still active.
	OperationalStart time.Time
	OperationalEnd   *time.Time

	// DegradedAfter marks a known sensor defect date. Images acquired
	// after it score at half value.
	DegradedAfter *time.Time

	ResolutionM float64

	// CloudMetadataField is the catalog property holding scene cloud cover
	// in percent. Empty when the archive publishes none.
	CloudMetadataField string
	SolarZenithField   string
	ViewZenithField    string
	// SolarAngleIsElevation marks archives publishing sun elevation
	// instead of zenith; the collector converts with zenith = 90 - elev.
	SolarAngleIsElevation bool

	Mask        MaskStrategy
	QualityBand string

	// BandMap translates native band names to the unified scheme. Sources
	// missing SWIR carry a reduced map and their composites are padded.
	BandMap map[string]string

	// ScaleFactor converts raw digital numbers to reflectance. 1 when the
	// archive already serves reflectance.
	ScaleFactor float64

	// LastResort sources are only consulted to fill gaps: tighter candidate
	// cap, lower score floor, and a built-in score penalty.
	LastResort bool

	// HarmonizeMode names the cross-sensor radiometric transform applied
	// when harmonization is enabled.
	HarmonizeMode string

	MaxCandidates int
}

// Degraded reports whether an acquisition at t falls in the source's
// defect period.
func (p *Profile) Degraded(t time.Time) bool {
	return p.DegradedAfter != nil && t.After(*p.DegradedAfter)
}

// OverlapsWindow reports whether the source was operational at any point
// of the window.
func (p *Profile) OverlapsWindow(w models.TimeWindow) bool {
	return w.Overlaps(p.OperationalStart, p.OperationalEnd)
}

// MinScore returns the quality floor below which candidates are discarded.
func (p *Profile) MinScore() float64 {
	if p.LastResort {
		return config.MinQualityScoreLastResort
	}
	return config.MinQualityScore
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

// slcFailure is the Landsat 7 scan-line-corrector failure date. Scenes
// after it carry data-gap stripes.
var slcFailure = datePtr(2003, time.May, 31)

var sentinel2 = Profile{
	ID:                 "sentinel2",
	DisplayName:        "Sentinel-2",
	Collections:        []string{"COPERNICUS/S2_SR_HARMONIZED"},
	OperationalStart:   date(2015, time.June, 23),
	ResolutionM:        10,
	CloudMetadataField: "CLOUDY_PIXEL_PERCENTAGE",
	SolarZenithField:   "MEAN_SOLAR_ZENITH_ANGLE",
	ViewZenithField:    "MEAN_INCIDENCE_ZENITH_ANGLE",
	Mask:               MaskSceneClass,
	QualityBand:        "SCL",
	BandMap: map[string]string{
		"B4": models.BandRed, "B3": models.BandGreen, "B2": models.BandBlue,
		"B8": models.BandNIR, "B11": models.BandSWIR1, "B12": models.BandSWIR2,
	},
	ScaleFactor:   0.0001,
	HarmonizeMode: "S2_to_LS",
	MaxCandidates: config.MaxCandidatesPerSource,
}

func landsat(id, name, collection string, start time.Time, end, degraded *time.Time) Profile {
	return Profile{
		ID:                    id,
		DisplayName:           name,
		Collections:           []string{collection},
		OperationalStart:      start,
		OperationalEnd:        end,
		DegradedAfter:         degraded,
		ResolutionM:           30,
		CloudMetadataField:    "CLOUD_COVER",
		SolarZenithField:      "SUN_ELEVATION",
		SolarAngleIsElevation: true,
		Mask:                  MaskQABitflags,
		QualityBand:           "QA_PIXEL",
		BandMap: map[string]string{
			"SR_B4": models.BandRed, "SR_B3": models.BandGreen, "SR_B2": models.BandBlue,
			"SR_B5": models.BandNIR, "SR_B6": models.BandSWIR1, "SR_B7": models.BandSWIR2,
		},
		ScaleFactor:   0.0000275,
		MaxCandidates: config.MaxCandidatesPerSource,
	}
}

var landsat9 = landsat("landsat9", "Landsat 9", "LANDSAT/LC09/C02/T1_L2",
	date(2021, time.September, 27), nil, nil)
var landsat8 = landsat("landsat8", "Landsat 8", "LANDSAT/LC08/C02/T1_L2",
	date(2013, time.February, 11), nil, nil)
var landsat7 = func() Profile {
	p := landsat("landsat7", "Landsat 7", "LANDSAT/LE07/C02/T1_L2",
		date(1999, time.April, 15), nil, slcFailure)
	// L7 ETM+ uses the TM band layout.
	p.BandMap = map[string]string{
		"SR_B3": models.BandRed, "SR_B2": models.BandGreen, "SR_B1": models.BandBlue,
		"SR_B4": models.BandNIR, "SR_B5": models.BandSWIR1, "SR_B7": models.BandSWIR2,
	}
	return p
}()
var landsat5 = func() Profile {
	p := landsat("landsat5", "Landsat 5", "LANDSAT/LT05/C02/T1_L2",
		date(1984, time.March, 1), datePtr(2013, time.May, 30), nil)
	p.BandMap = landsat7.BandMap
	return p
}()

var aster = Profile{
	ID:               "aster",
	DisplayName:      "ASTER",
	Collections:      []string{"ASTER/AST_L1T_003"},
	OperationalStart: date(2000, time.March, 1),
	OperationalEnd:   datePtr(2008, time.April, 1),
	ResolutionM:      15,
	Mask:             MaskNone,
	BandMap: map[string]string{
		"VNIR_Band3N": models.BandRed, "VNIR_Band2": models.BandGreen,
		"VNIR_Band1": models.BandBlue,
		"SWIR_Band4": models.BandSWIR1, "SWIR_Band6": models.BandSWIR2,
	},
	ScaleFactor:   1,
	MaxCandidates: config.MaxCandidatesPerSource,
}

var modis = Profile{
	ID:               "modis",
	DisplayName:      "MODIS Terra/Aqua",
	Collections:      []string{"MODIS/061/MOD09GA", "MODIS/061/MYD09GA"},
	OperationalStart: date(2000, time.February, 24),
	ResolutionM:      250,
	Mask:             MaskStateFlags,
	QualityBand:      "state_1km",
	BandMap: map[string]string{
		"sur_refl_b01": models.BandRed, "sur_refl_b04": models.BandGreen,
		"sur_refl_b03": models.BandBlue, "sur_refl_b02": models.BandNIR,
		"sur_refl_b06": models.BandSWIR1, "sur_refl_b07": models.BandSWIR2,
	},
	ScaleFactor:   0.0001,
	LastResort:    true,
	MaxCandidates: config.MaxCandidatesLastResort,
}

var viirs = Profile{
	ID:               "viirs",
	DisplayName:      "VIIRS",
	Collections:      []string{"NASA/VIIRS/002/VNP09GA"},
	OperationalStart: date(2011, time.October, 28),
	ResolutionM:      375,
	Mask:             MaskStateFlags,
	QualityBand:      "QF1",
	BandMap: map[string]string{
		"I1": models.BandRed, "M3": models.BandGreen, "I3": models.BandBlue,
		"I2": models.BandNIR, "M11": models.BandSWIR1, "M12": models.BandSWIR2,
	},
	ScaleFactor:   0.0001,
	MaxCandidates: config.MaxCandidatesPerSource,
}

// Options toggles optional archives on or off.
type Options struct {
	IncludeLandsat7 bool
	IncludeMODIS    bool
	IncludeASTER    bool
	IncludeVIIRS    bool
}

// All returns the enabled profiles in preference order: finest resolution
// first, the last-resort source at the end.
func All(opts Options) []*Profile {
	profiles := []*Profile{&sentinel2, &landsat9, &landsat8}
	if opts.IncludeLandsat7 {
		profiles = append(profiles, &landsat7)
	}
	profiles = append(profiles, &landsat5)
	if opts.IncludeASTER {
		profiles = append(profiles, &aster)
	}
	if opts.IncludeVIIRS {
		profiles = append(profiles, &viirs)
	}
	if opts.IncludeMODIS {
		profiles = append(profiles, &modis)
	}
	return profiles
}

// ForWindow returns the enabled profiles operational during the window.
func ForWindow(opts Options, w models.TimeWindow) []*Profile {
	var out []*Profile
	for _, p := range All(opts) {
		if p.OverlapsWindow(w) {
			out = append(out, p)
		}
	}
	return out
}

// ByID finds a profile regardless of option toggles.
func ByID(id string) *Profile {
	for _, p := range All(Options{IncludeLandsat7: true, IncludeMODIS: true, IncludeASTER: true, IncludeVIIRS: true}) {
		if p.ID == id {
			return p
		}
	}
	return nil
}
