package carm

import "math"

// KappaFromStdDevDeg approximates the von Mises concentration for a small
// angular standard deviation given in degrees: kappa = 1/sigma^2 with sigma
// in radians. A zero deviation yields +Inf.
func KappaFromStdDevDeg(stdDevDeg float64) float64 {
	sigma := degToRad(stdDevDeg)
	return 1 / (sigma * sigma)
}

// AngleExport is the distribution (or fixed value) for one angular DOF.
// Exactly one of Fixed and Kappa is set.
type AngleExport struct {
	Fixed *float64
	Kappa *float64
}

// TranslationExport is the distribution (or fixed value) for one
// translation axis. Exactly one of Fixed and StdDev is set.
type TranslationExport struct {
	Fixed  *float64
	StdDev *float64
}

// SampleAngle maps an angular DOF to its export form. The sign of the
// std-dev is ignored. A randomized DOF whose spread is zero, or so small
// that kappa overflows, exports its fixed value.
func SampleAngle(meanDeg float64, r AxisRandomization) AngleExport {
	if r.Enabled {
		if k := KappaFromStdDevDeg(math.Abs(r.StdDev)); !math.IsInf(k, 0) && !math.IsNaN(k) {
			return AngleExport{Kappa: ptr(k)}
		}
	}
	return AngleExport{Fixed: ptr(meanDeg)}
}

// SampleTranslation maps a translation axis to its export form. The
// magnitude of the standard deviation passes through in millimetres.
func SampleTranslation(meanMm float64, r AxisRandomization) TranslationExport {
	if sd := math.Abs(r.StdDev); r.Enabled && sd > 0 && !math.IsInf(sd, 0) {
		return TranslationExport{StdDev: ptr(sd)}
	}
	return TranslationExport{Fixed: ptr(meanMm)}
}

// Export payload translation axes, as LPS indices.
const (
	PushPullAxis   = 0 // Left
	RaiseLowerAxis = 1 // Posterior
	HeadFootAxis   = 2 // Superior
)

// ExportParameters is the wire payload posted to the simulation endpoint.
// The field table is fixed by the JSON tags; nil fields are omitted.
type ExportParameters struct {
	CarmAlpha                 *float64 `json:"carm_alpha,omitempty"`
	CarmAlphaKappa            *float64 `json:"carm_alpha_kappa,omitempty"`
	CarmBeta                  *float64 `json:"carm_beta,omitempty"`
	CarmBetaKappa             *float64 `json:"carm_beta_kappa,omitempty"`
	CarmPushPullTranslation   *float64 `json:"carm_push_pull_translation,omitempty"`
	CarmHeadFootTranslation   *float64 `json:"carm_head_foot_translation,omitempty"`
	CarmRaiseLowerTranslation *float64 `json:"carm_raise_lower_translation,omitempty"`
	CarmPushPullStdDev        *float64 `json:"carm_push_pull_std_dev,omitempty"`
	CarmHeadFootStdDev        *float64 `json:"carm_head_foot_std_dev,omitempty"`
	CarmRaiseLowerStdDev      *float64 `json:"carm_raise_lower_std_dev,omitempty"`
	SourceToDetectorDistance  float64  `json:"source_to_detector_distance"`
	DetectorDiameter          float64  `json:"detector_diameter"`
	NumSamples                int      `json:"num_samples"`
}

// BuildExport assembles the payload from one pose snapshot. Randomized
// DOFs carry their distribution parameter; the rest carry the fixed value.
// An unset sample count falls back to DefaultNumSamples.
func BuildExport(snap PoseSnapshot) ExportParameters {
	p, r := snap.Pose, snap.Randomization

	alpha := SampleAngle(p.RotationDeg, r.Rotation)
	beta := SampleAngle(p.TiltDeg, r.Tilt)
	pushPull := SampleTranslation(component(p.Translation, PushPullAxis), r.Translation[PushPullAxis])
	headFoot := SampleTranslation(component(p.Translation, HeadFootAxis), r.Translation[HeadFootAxis])
	raiseLower := SampleTranslation(component(p.Translation, RaiseLowerAxis), r.Translation[RaiseLowerAxis])

	n := r.NumSamples
	if n <= 0 {
		n = DefaultNumSamples
	}

	return ExportParameters{
		CarmAlpha:                 alpha.Fixed,
		CarmAlphaKappa:            alpha.Kappa,
		CarmBeta:                  beta.Fixed,
		CarmBetaKappa:             beta.Kappa,
		CarmPushPullTranslation:   pushPull.Fixed,
		CarmHeadFootTranslation:   headFoot.Fixed,
		CarmRaiseLowerTranslation: raiseLower.Fixed,
		CarmPushPullStdDev:        pushPull.StdDev,
		CarmHeadFootStdDev:        headFoot.StdDev,
		CarmRaiseLowerStdDev:      raiseLower.StdDev,
		SourceToDetectorDistance:  p.SourceToDetectorDistanceMm,
		DetectorDiameter:          p.DetectorDiameterMm,
		NumSamples:                n,
	}
}

// Validate checks a received payload: the distance must be positive, each
// angle needs a fixed value or a concentration, distribution parameters
// must be finite and not negative, and the sample count must not be
// negative.
func (e ExportParameters) Validate() error {
	if !(e.SourceToDetectorDistance > 0) || math.IsInf(e.SourceToDetectorDistance, 0) {
		return &FieldError{Field: "source_to_detector_distance", Reason: "must be a positive number"}
	}
	if e.DetectorDiameter < 0 {
		return &FieldError{Field: "detector_diameter", Reason: "must not be negative"}
	}
	if e.NumSamples < 0 {
		return &FieldError{Field: "num_samples", Reason: "must not be negative"}
	}
	if e.CarmAlpha == nil && e.CarmAlphaKappa == nil {
		return &FieldError{Field: "carm_alpha", Reason: "either carm_alpha or carm_alpha_kappa is required"}
	}
	if e.CarmBeta == nil && e.CarmBetaKappa == nil {
		return &FieldError{Field: "carm_beta", Reason: "either carm_beta or carm_beta_kappa is required"}
	}
	checks := []struct {
		name  string
		value *float64
	}{
		{"carm_alpha_kappa", e.CarmAlphaKappa},
		{"carm_beta_kappa", e.CarmBetaKappa},
		{"carm_push_pull_std_dev", e.CarmPushPullStdDev},
		{"carm_head_foot_std_dev", e.CarmHeadFootStdDev},
		{"carm_raise_lower_std_dev", e.CarmRaiseLowerStdDev},
	}
	for _, c := range checks {
		if c.value != nil && (*c.value < 0 || math.IsNaN(*c.value) || math.IsInf(*c.value, 0)) {
			return &FieldError{Field: c.name, Reason: "must be finite and not negative"}
		}
	}
	return nil
}

// FieldError reports an invalid payload field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

func ptr(v float64) *float64 { return &v }
