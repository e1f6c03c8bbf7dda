package core

import (
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Dynamics selects the stochastic model driving the position parameters,
// mirroring the teacher's PrcOpt.Dynamics / PMODE_PPP_STATIC switch in
// ppp.go's UpdatePosPPP, generalized to the three modes spec.md §6 names.
type Dynamics string

const (
	DynamicsStatic     Dynamics = "static"
	DynamicsKinematic  Dynamics = "kinematic"
	DynamicsRandomWalk Dynamics = "random_walk"
)

// Config is every key spec.md §6 lists the core as consuming, plus the
// spectral densities the stochastic models (C1) need. It is decoded from
// YAML bytes by LoadConfig; locating/reading the file itself is a CLI
// concern (cmd/pppfilter), consistent with "configuration file parsing"
// being named out of core scope in spec.md §1 while "configuration consumed
// by the core" is explicitly in scope per §6.
type Config struct {
	Dynamics Dynamics `yaml:"dynamics"`
	PosSigma float64  `yaml:"posSigma"` // m, white-noise/random-walk sigma
	TropoQ   float64  `yaml:"tropoQ"`   // m^2/s, ZTD random-walk spectral density

	ForwardBackwardCycles int `yaml:"forwardBackwardCycles"` // n; 0 disables the smoother

	CodeLimList  []float64 `yaml:"codeLimList"`  // per-cycle postfit code thresholds (m)
	PhaseLimList []float64 `yaml:"phaseLimList"` // per-cycle postfit phase thresholds (m)

	UseGLN  bool  `yaml:"useGLN"`
	Systems []int `yaml:"systems"` // enabled constellations beyond GPS, enables inter-system bias contributor

	// UseC1 true: ionosphere-free rows (CodeIF/PhaseIF); false: uncombined
	// L1/L2 rows with a per-satellite ionosphere parameter. The core does
	// not itself choose between C1 and P1 code; the prefit values it is
	// given are used as they are.
	UseC1 bool `yaml:"useC1"`

	MinSatellites int `yaml:"minSatellites"` // outlier-rejection floor; 0 defaults to #unknowns

	// AllowMultiPassRejection opts into the original's dead-but-fully-formed
	// multi-pass reject/recheck loop (see SPEC_FULL.md §4.4, Open Question 1).
	// Default false preserves the single-rejection-per-epoch behavior that
	// both the teacher and original_source actually execute.
	AllowMultiPassRejection bool `yaml:"allowMultiPassRejection"`

	// WeightFactors optionally widens the static code/phase weight table
	// (weighttable.go) beyond the package defaults, e.g. to add a custom
	// MeasurementType. Applied once at NewEstimator time.
	WeightFactors map[MeasurementType]float64 `yaml:"-"`
}

// DefaultConfig returns the configuration matching the teacher's own
// defaults (VAR_POS etc. in ppp.go) translated into spec.md's key names.
func DefaultConfig() Config {
	return Config{
		Dynamics:              DynamicsStatic,
		PosSigma:              60.0,
		TropoQ:                SQR(0.01) / 3600.0, // ~1cm/sqrt(hr), Saastamoinen-grade ZTD random walk
		ForwardBackwardCycles: 0,
		CodeLimList:           []float64{20.0, 10.0, 5.0},
		PhaseLimList:          []float64{0.10, 0.05, 0.03},
		MinSatellites:         0,
	}
}

// LoadConfig decodes YAML configuration bytes into a Config seeded with
// DefaultConfig's values, so a sparse YAML document only needs to name the
// keys it overrides — the same "defaults object, then yaml.Unmarshal over
// it" idiom used by the ambient config loaders in the broader example pack.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, wrapErr(ErrKindInvalidConfig, err, "decode yaml config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks internal consistency the estimator depends on: a
// ForwardBackwardCycles > 0 requires threshold lists at least that long
// (KalmanSolverFB::getLimit throws on a missing cycle entry in the
// original; here it is caught once at load time instead of once per
// reprocess access).
func (c Config) Validate() error {
	if c.ForwardBackwardCycles < 0 {
		return newErr(ErrKindInvalidConfig, "forwardBackwardCycles must be >= 0, got %d", c.ForwardBackwardCycles)
	}
	if c.ForwardBackwardCycles > 0 {
		if len(c.CodeLimList) < c.ForwardBackwardCycles || len(c.PhaseLimList) < c.ForwardBackwardCycles {
			return newErr(ErrKindInvalidConfig,
				"forwardBackwardCycles=%d requires at least that many code/phase limit entries (have %d/%d)",
				c.ForwardBackwardCycles, len(c.CodeLimList), len(c.PhaseLimList))
		}
	}
	switch c.Dynamics {
	case DynamicsStatic, DynamicsKinematic, DynamicsRandomWalk:
	default:
		return newErr(ErrKindInvalidConfig, "unknown dynamics mode %q", c.Dynamics)
	}
	return nil
}

// NewEstimatorID mints a fresh identity for one estimator instance, used to
// label logs and metrics so multiple concurrent instances (spec.md §5,
// one per receiver) are distinguishable without any shared mutable state.
func NewEstimatorID() string {
	return uuid.New().String()
}
