package core

// Estimator wires the C1-C6 components into the single external surface
// spec.md §6 names: construct once per receiver from a Config, then call
// Process per epoch. It owns no concurrency primitives itself (spec.md
// §5: safe to run many Estimators concurrently, each with its own
// goroutine, sharing nothing but the package-level read-only weight table
// and the process-wide Metrics registry).
type Estimator struct {
	ID       string
	Config   Config
	Composer *Composer
	Driver   *KalmanDriver
	Smoother *Smoother // nil when Config.ForwardBackwardCycles == 0

	Metrics *Metrics
}

// NewEstimator builds an Estimator from cfg: one contributor per C2
// concern cfg enables, a Composer wiring them together in spec.md §4.2's
// order, a KalmanDriver (C4) with a LAMBDA resolver (C5) attached, and
// (if Config.ForwardBackwardCycles > 0) a Smoother (C6) wrapping the
// driver.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for t, f := range cfg.WeightFactors {
		SetWeightFactor(t, f)
	}

	referenceSys := SysGPS
	contributors := []Contributor{
		NewPositionContributor(cfg.Dynamics, cfg.PosSigma),
		NewClockContributor(referenceSys, 60.0),
		NewTropoContributor(cfg.TropoQ),
		NewAmbiguityContributor(),
	}
	if len(cfg.Systems) > 0 {
		contributors = append(contributors, NewInterSystemBiasContributor(referenceSys, cfg.Systems, 30.0))
	}
	if cfg.UseGLN {
		contributors = append(contributors, NewInterFrequencyBiasContributor(glonassChannels(), 10.0))
	}
	if !cfg.UseC1 {
		// Uncombined L1/L2 observables need a per-satellite ionosphere
		// parameter; the ionosphere-free combination (used when UseC1 is
		// true) cancels first-order ionosphere and needs none.
		contributors = append(contributors, NewIonoContributor(1.0))
	}

	measOrder := []MeasurementType{CodeIF, PhaseIF}
	if !cfg.UseC1 {
		measOrder = []MeasurementType{CodeL1, CodeL2, PhaseL1, PhaseL2}
	}

	composer := NewComposer(contributors, measOrder)
	metrics := GetMetrics()
	driver := NewKalmanDriver(composer, cfg, metrics)
	driver.Resolver = &AmbiguityResolver{}

	est := &Estimator{
		ID:       NewEstimatorID(),
		Config:   cfg,
		Composer: composer,
		Driver:   driver,
		Metrics:  metrics,
	}
	if cfg.ForwardBackwardCycles > 0 {
		est.Smoother = NewSmoother(driver, cfg.ForwardBackwardCycles)
	}
	return est, nil
}

// glonassChannels lists the FDMA frequency channel numbers GLONASS uses
// (-7..+6), matching the teacher's DFRQ1_GLO channel range (common.go).
func glonassChannels() []int {
	channels := make([]int, 0, 14)
	for ch := -7; ch <= 6; ch++ {
		channels = append(channels, ch)
	}
	return channels
}

// Process runs one epoch through the estimator: the live forward filter
// always, and (when a Smoother is configured) buffering for later
// Reprocess calls.
func (e *Estimator) Process(epoch *EpochRecord) error {
	logEpoch(epoch).Debug("processing epoch")
	if e.Smoother != nil {
		_, err := e.Smoother.Process(epoch)
		return err
	}
	return e.Driver.Process(epoch)
}

// Reprocess runs the forward-backward smoothing cycles over the buffered
// epoch sequence. No-op if no Smoother is configured.
func (e *Estimator) Reprocess() ([]*SmoothResult, error) {
	if e.Smoother == nil {
		return nil, nil
	}
	return e.Smoother.Reprocess()
}
