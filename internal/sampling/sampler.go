// Package sampling draws the C-arm poses a simulation session would render
// from an export payload, and summarises them.
package sampling

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/carm/internal/carm"
)

// DefaultTranslationStdDevMm is the spread used for a translation axis that
// carries no explicit std-dev.
const DefaultTranslationStdDevMm = 10.0

// Sample is one drawn pose. Angles are degrees, translations millimetres.
type Sample struct {
	Alpha      float64 `json:"carm_alpha"`
	Beta       float64 `json:"carm_beta"`
	PushPull   float64 `json:"carm_push_pull_translation"`
	HeadFoot   float64 `json:"carm_head_foot_translation"`
	RaiseLower float64 `json:"carm_raise_lower_translation"`
}

// Fields lists the sample fields in payload order.
var Fields = []string{
	"carm_alpha",
	"carm_beta",
	"carm_push_pull_translation",
	"carm_head_foot_translation",
	"carm_raise_lower_translation",
}

// Value returns the named field, or false for an unknown name.
func (s Sample) Value(field string) (float64, bool) {
	switch field {
	case "carm_alpha":
		return s.Alpha, true
	case "carm_beta":
		return s.Beta, true
	case "carm_push_pull_translation":
		return s.PushPull, true
	case "carm_head_foot_translation":
		return s.HeadFoot, true
	case "carm_raise_lower_translation":
		return s.RaiseLower, true
	}
	return 0, false
}

// IsAngle reports whether field is measured in degrees.
func IsAngle(field string) bool {
	return field == "carm_alpha" || field == "carm_beta"
}

// ParameterSampler draws poses from an export payload. It is not safe for
// concurrent use.
type ParameterSampler struct {
	src     rand.Source
	uniform distuv.Uniform
}

// NewParameterSampler returns a sampler seeded with seed. Equal seeds
// produce equal draws.
func NewParameterSampler(seed uint64) *ParameterSampler {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &ParameterSampler{
		src:     src,
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// Draw returns p.NumSamples poses, or carm.DefaultNumSamples when unset.
// A fixed angle repeats even when a kappa is also present; otherwise the
// angle is von Mises around zero. A translation repeats only when it has a
// coordinate and no std-dev; otherwise it is normal around the coordinate
// (zero when absent) with the std-dev (DefaultTranslationStdDevMm when
// absent).
func (s *ParameterSampler) Draw(p carm.ExportParameters) []Sample {
	n := p.NumSamples
	if n <= 0 {
		n = carm.DefaultNumSamples
	}

	alpha := s.angle(p.CarmAlpha, p.CarmAlphaKappa)
	beta := s.angle(p.CarmBeta, p.CarmBetaKappa)
	pushPull := s.translation(p.CarmPushPullTranslation, p.CarmPushPullStdDev)
	headFoot := s.translation(p.CarmHeadFootTranslation, p.CarmHeadFootStdDev)
	raiseLower := s.translation(p.CarmRaiseLowerTranslation, p.CarmRaiseLowerStdDev)

	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{
			Alpha:      alpha(),
			Beta:       beta(),
			PushPull:   pushPull(),
			HeadFoot:   headFoot(),
			RaiseLower: raiseLower(),
		}
	}
	return out
}

func (s *ParameterSampler) angle(fixed, kappa *float64) func() float64 {
	if fixed != nil || kappa == nil {
		v := 0.0
		if fixed != nil {
			v = *fixed
		}
		return func() float64 { return v }
	}
	k := *kappa
	return func() float64 { return s.vonMises(k) * 180 / math.Pi }
}

// translation repeats a coordinate that has no std-dev. Every other
// combination is normal, with zero and DefaultTranslationStdDevMm filling
// whichever side is missing.
func (s *ParameterSampler) translation(fixed, stdDev *float64) func() float64 {
	if fixed != nil && stdDev == nil {
		v := *fixed
		return func() float64 { return v }
	}
	mean := 0.0
	if fixed != nil {
		mean = *fixed
	}
	sigma := DefaultTranslationStdDevMm
	if stdDev != nil && *stdDev > 0 {
		sigma = *stdDev
	}
	normal := distuv.Normal{Mu: mean, Sigma: sigma, Src: s.src}
	return normal.Rand
}

// Above this concentration the von Mises law is indistinguishable from a
// normal with variance 1/kappa, and the rejection constants lose precision.
const vonMisesNormalKappa = 1e5

// vonMises draws an angle in radians in (-pi, pi] around zero using the
// Best-Fisher rejection sampler.
func (s *ParameterSampler) vonMises(kappa float64) float64 {
	if kappa < 1e-8 {
		return math.Pi * (2*s.uniform.Rand() - 1)
	}
	if kappa > vonMisesNormalKappa {
		n := distuv.Normal{Mu: 0, Sigma: 1 / math.Sqrt(kappa), Src: s.src}
		return n.Rand()
	}

	tau := 1 + math.Sqrt(1+4*kappa*kappa)
	rho := (tau - math.Sqrt(2*tau)) / (2 * kappa)
	r := (1 + rho*rho) / (2 * rho)

	for {
		u1, u2, u3 := s.uniform.Rand(), s.uniform.Rand(), s.uniform.Rand()
		z := math.Cos(math.Pi * u1)
		f := (1 + r*z) / (r + z)
		c := kappa * (r - f)
		if c*(2-c)-u2 > 0 || math.Log(c/u2)+1-c >= 0 {
			theta := math.Acos(math.Max(-1, math.Min(1, f)))
			if u3 < 0.5 {
				theta = -theta
			}
			return theta
		}
	}
}
