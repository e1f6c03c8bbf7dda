package core

import "math"

// Smoother is the C6 component: alternating-direction (forward-backward)
// batch reprocessing of a buffered epoch sequence. Grounded on
// original_source/POD/src/GPSProcessing/KalmanSolverFB.cpp: Process (which
// buffers a clone of the epoch on the first pass while feeding it through
// the live forward filter), lastProcess (FIFO drain once the forward
// stream ends), and reProcess/ReProcessOneEpoch (one required backward
// pass, then cyclesNumber-1 further forward/backward cycles). Each forward
// re-pass in that loop is preceded by checkLimits, which removes every
// satellite whose previous pass's postfit residual exceeded that cycle's
// code/phase threshold (KalmanSolverFB::checkLimits) — backward passes,
// including the initial required one, run unfiltered.
//
// Unlike a classical Rauch-Tung-Striebel smoother, this does not combine
// forward and backward estimates into a single minimum-variance result —
// it repeatedly refilters the same buffered epochs in alternating
// direction, tightening the outlier thresholds each cycle, exactly as the
// original does (its "smoothing" is repeated alternating-direction
// filtering, not forward/backward combination).
type Smoother struct {
	Driver *KalmanDriver
	Cycles int // Config.ForwardBackwardCycles

	buffer  []*EpochRecord
	results []*SmoothResult
}

// SmoothResult is one epoch's accepted solution after the most recently
// completed pass.
type SmoothResult struct {
	Epoch   *EpochRecord
	Params  []ParamID
	State   []float64
	Cov     *Matrix
	Postfit []float64
	Rows    []measRow // row order matching Postfit, needed by checkLimits
}

func NewSmoother(driver *KalmanDriver, cycles int) *Smoother {
	return &Smoother{Driver: driver, Cycles: cycles}
}

// Process runs one forward-direction filter cycle against epoch and
// buffers a clone for the later reprocessing passes. Call once per epoch
// in time order while epochs are still streaming in.
func (s *Smoother) Process(epoch *EpochRecord) (*SmoothResult, error) {
	buffered := epoch.clone()
	s.buffer = append(s.buffer, buffered)

	if err := s.Driver.ProcessCycle(epoch); err != nil {
		s.results = append(s.results, nil)
		return nil, err
	}
	res := s.snapshot(buffered)
	s.results = append(s.results, res)
	return res, nil
}

// LastProcess drains the oldest still-buffered epoch's result, FIFO,
// mirroring KalmanSolverFB::lastProcess draining ObsData.front()/
// pop_front() once the live input stream has ended. Returns false once
// the buffer is empty.
func (s *Smoother) LastProcess() (*SmoothResult, bool) {
	if len(s.buffer) == 0 {
		return nil, false
	}
	res := s.results[0]
	s.buffer = s.buffer[1:]
	s.results = s.results[1:]
	return res, true
}

// Reprocess runs the configured number of alternating-direction cycles
// over the buffered epoch sequence: one required backward pass, then
// Cycles-1 further forward/backward cycles. Every epoch is reset via
// resetForRepass before each re-pass, matching ReProcessOneEpoch.
func (s *Smoother) Reprocess() ([]*SmoothResult, error) {
	if s.Cycles <= 0 || len(s.buffer) == 0 {
		return s.results, nil
	}

	if err := s.runPass(backward, -1); err != nil {
		return nil, err
	}
	for cycle := 0; cycle < s.Cycles-1; cycle++ {
		if err := s.runPass(forward, cycle); err != nil {
			return nil, err
		}
		if err := s.runPass(backward, -1); err != nil {
			return nil, err
		}
	}
	return s.results, nil
}

type passDirection int

const (
	forward passDirection = iota
	backward
)

// runPass re-feeds every buffered epoch through the driver in the given
// direction. cycle selects the checkLimits threshold for a forward pass;
// -1 skips checkLimits entirely (the required backward passes never
// filter, matching reProcess's unconditional backward loops).
func (s *Smoother) runPass(dir passDirection, cycle int) error {
	n := len(s.buffer)
	results := make([]*SmoothResult, n)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if dir == backward {
		for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
			indices[l], indices[r] = indices[r], indices[l]
		}
	}

	for _, i := range indices {
		if dir == forward && cycle >= 0 {
			s.checkLimits(i, cycle)
		}
		epoch := s.buffer[i]
		epoch.resetForRepass()
		if err := s.Driver.ProcessCycle(epoch); err != nil {
			return err
		}
		results[i] = s.snapshot(epoch)
	}
	s.results = results
	return nil
}

// checkLimits removes every satellite at buffer position i whose previous
// pass's postfit residual exceeded cycle's code/phase threshold —
// grounded verbatim on KalmanSolverFB::checkLimits, which marks every
// satellite over the limit (not just the worst) and removes the whole set
// in one pass, distinct from the Kalman driver's own single-satellite
// sigma/sigmaPos ratio rejection (core/kalman.go).
func (s *Smoother) checkLimits(i, cycle int) {
	prev := s.results[i]
	if prev == nil {
		return
	}
	cfg := s.Driver.Config
	reject := map[SatID]bool{}
	for idx, row := range prev.Rows {
		limits := cfg.CodeLimList
		if row.Type.IsPhase() {
			limits = cfg.PhaseLimList
		}
		if len(limits) == 0 {
			continue
		}
		li := cycle
		if li >= len(limits) {
			li = len(limits) - 1
		}
		if math.Abs(prev.Postfit[idx]) > limits[li] {
			reject[row.SV] = true
		}
	}
	if len(reject) == 0 {
		return
	}

	epoch := s.buffer[i]
	kept := make([]SatObservation, 0, len(epoch.Satellites))
	for _, sat := range epoch.Satellites {
		if !reject[sat.SV] {
			kept = append(kept, sat)
		}
	}
	logEpoch(epoch).WithField("rejected", len(reject)).WithField("cycle", cycle).
		Info("checkLimits: dropping satellites over the per-cycle postfit threshold")
	s.Driver.Metrics.SatellitesReject.Add(float64(len(reject)))
	epoch.Satellites = kept
}

func (s *Smoother) snapshot(epoch *EpochRecord) *SmoothResult {
	return &SmoothResult{
		Epoch:   epoch,
		Params:  s.Driver.Params(),
		State:   append([]float64(nil), s.Driver.lastState...),
		Cov:     s.Driver.lastCov,
		Postfit: append([]float64(nil), s.Driver.lastPostfit...),
		Rows:    append([]measRow(nil), s.Driver.lastMeasRows...),
	}
}
