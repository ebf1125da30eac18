// Package autotune implements the coarse-to-fine frequency search and
// tracking loop that locks the demodulator onto a video carrier and holds
// it there, structured as an explicit state machine the way ka9q_ubersdr's
// RadiodController models tune-state transitions, generalized from a single
// retune call into a hill-climbing search-and-track controller.
package autotune

import (
	"context"

	"github.com/cwsl/vtxcore/internal/fmdemod"
	"github.com/cwsl/vtxcore/internal/iqsource"
	"github.com/cwsl/vtxcore/internal/lineest"
	"github.com/cwsl/vtxcore/internal/metrics"
	"github.com/cwsl/vtxcore/internal/raster"
)

// State is the controller's coarse lifecycle stage (spec §4.7).
type State string

const (
	StateInit        State = "init"
	StateCoarseLock  State = "coarse_lock"
	StateTracking    State = "tracking"
)

// afcStepsHz are the small-step hill-climb offsets tried each tracking
// iteration, per spec §4.7.
var afcStepsHz = []int64{-50_000, -25_000, 25_000, 50_000}

type sweepStage struct {
	radiusHz int64
	stepHz   int64
}

// coarseStages is the widening coarse search: +/-2MHz at 250kHz steps,
// expanding to +/-5MHz at 500kHz steps if nothing clears the lock
// threshold (spec §4.7).
var coarseStages = []sweepStage{
	{radiusHz: 2_000_000, stepHz: 250_000},
	{radiusHz: 5_000_000, stepHz: 500_000},
}

// refineStage narrows around the coarse winner: +/-100kHz at 10kHz steps.
var refineStage = sweepStage{radiusHz: 100_000, stepHz: 10_000}

// Config bundles the controller's tunables (spec §4.7, §6).
type Config struct {
	BaseFreqHz      uint64
	SampleRate      float64
	CaptureSamples  int
	Width, Height   int
	PreferNTSC      *bool // nil = try both standards, pick higher confidence
	DCBlockAlpha    float64
	SmoothTaps      int
	AGCTargetRMS    float64
	LockThreshold   float64
	RelockThreshold float64
	// WarmStartHz, if nonzero, is tried first during coarse lock (e.g. the
	// scanner's last-known-hot channel), short-circuiting the full sweep
	// when it alone already clears LockThreshold.
	WarmStartHz uint64
}

// Controller runs the full search/track/AGC loop against a Source,
// producing raster Frames and exposing current lock state for Prometheus
// export.
type Controller struct {
	cfg     Config
	source  iqsource.Source
	metrics *metrics.Metrics

	state       State
	lockedFreq  uint64
	afcOffsetHz int64
	lastQuality float64
	chain       *fmdemod.Chain
	lineEst     lineest.Estimate

	sweepsSinceRelockCheck int
	sweepsSinceLineReest   int

	// syntheticEmitter is non-nil when source is a *iqsource.Synthetic,
	// whose output never carries recoverable line timing (see
	// synthetic_emit.go). When set, Step bypasses the search/track loop
	// entirely and emits test-pattern frames instead.
	syntheticEmitter *SyntheticEmitter
}

// New constructs a Controller in StateInit.
func New(cfg Config, source iqsource.Source, m *metrics.Metrics) *Controller {
	c := &Controller{
		cfg:     cfg,
		source:  source,
		metrics: m,
		state:   StateInit,
		chain:   fmdemod.NewChain(fmdemod.Config{DCBlockAlpha: cfg.DCBlockAlpha, SmoothTaps: cfg.SmoothTaps}),
	}
	if _, ok := source.(*iqsource.Synthetic); ok {
		c.syntheticEmitter = NewSyntheticEmitter(cfg.Width, cfg.Height)
	}
	return c
}

// State returns the controller's current lifecycle stage.
func (c *Controller) State() State { return c.state }

// LockedFreqHz returns the currently tuned frequency, valid once the
// controller has left StateInit.
func (c *Controller) LockedFreqHz() uint64 { return c.lockedFreq }

// Step runs one iteration of the controller: in StateInit it performs the
// full coarse-to-fine search; thereafter it runs one tracking iteration
// and returns the resulting Frame. A nil Frame means no frame was produced
// this step (e.g. the search failed to clear the lock threshold).
func (c *Controller) Step() *raster.Frame {
	if c.syntheticEmitter != nil {
		if c.state != StateTracking {
			c.enterTracking(c.cfg.BaseFreqHz, 1)
		}
		f := c.syntheticEmitter.Next()
		if c.metrics != nil {
			c.metrics.DemodQuality.Set(f.Quality)
		}
		return &f
	}

	switch c.state {
	case StateInit:
		c.runSearch()
		return nil
	case StateCoarseLock:
		c.runSearch()
		return nil
	case StateTracking:
		return c.runTrackingIteration()
	default:
		return nil
	}
}

// Run drives Step in a loop until ctx is cancelled, invoking onFrame for
// each produced Frame.
func (c *Controller) Run(ctx context.Context, onFrame func(raster.Frame)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		f := c.Step()
		if f != nil && onFrame != nil {
			onFrame(*f)
		}
	}
}

// runSearch performs the full coarse-to-fine frequency sweep (spec §4.7
// COARSE_LOCK). It evaluates WarmStartHz first as a shortcut.
func (c *Controller) runSearch() {
	c.state = StateCoarseLock

	if c.cfg.WarmStartHz != 0 {
		q := c.evaluateFreq(c.cfg.WarmStartHz)
		if q >= c.cfg.LockThreshold {
			c.enterTracking(c.cfg.WarmStartHz, q)
			return
		}
	}

	var bestFreq uint64
	var bestQuality float64
	found := false

	for _, stage := range coarseStages {
		for offset := -stage.radiusHz; offset <= stage.radiusHz; offset += stage.stepHz {
			freq := addOffset(c.cfg.BaseFreqHz, offset)
			q := c.evaluateFreq(freq)
			if !found || q > bestQuality {
				bestQuality = q
				bestFreq = freq
				found = true
			}
		}
		if bestQuality >= c.cfg.LockThreshold {
			break
		}
	}

	if !found {
		return
	}

	// Refine around the coarse winner.
	refineBestFreq := bestFreq
	refineBestQuality := bestQuality
	baseOffset := int64(bestFreq) - int64(c.cfg.BaseFreqHz)
	for offset := baseOffset - refineStage.radiusHz; offset <= baseOffset+refineStage.radiusHz; offset += refineStage.stepHz {
		freq := addOffset(c.cfg.BaseFreqHz, offset)
		q := c.evaluateFreq(freq)
		if q > refineBestQuality {
			refineBestQuality = q
			refineBestFreq = freq
		}
	}

	if refineBestQuality >= c.cfg.LockThreshold {
		c.enterTracking(refineBestFreq, refineBestQuality)
	}
}

func addOffset(base uint64, offset int64) uint64 {
	v := int64(base) + offset
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func (c *Controller) enterTracking(freqHz uint64, quality float64) {
	c.state = StateTracking
	c.lockedFreq = freqHz
	c.afcOffsetHz = 0
	c.lastQuality = quality
	c.chain.ResetDC()
	if c.metrics != nil {
		c.metrics.DemodLockedFreqHz.Set(float64(freqHz))
		c.metrics.DemodAFCOffsetHz.Set(0)
	}
}

// evaluateFreq captures one buffer at freqHz and returns the resulting
// raster quality, without mutating tracking state.
func (c *Controller) evaluateFreq(freqHz uint64) float64 {
	iq := c.source.Capture(freqHz, c.cfg.SampleRate, c.cfg.CaptureSamples)
	if len(iq) < 2 {
		return -1
	}
	conditioned := fmdemod.NewChain(fmdemod.Config{DCBlockAlpha: c.cfg.DCBlockAlpha, SmoothTaps: c.cfg.SmoothTaps}).Process(iq)
	est := c.estimateLine(conditioned)
	if est.PeriodSamp <= 1 {
		return -1
	}
	f := raster.Assemble(conditioned, c.cfg.Width, c.cfg.Height, est.PeriodSamp)
	return f.Quality
}

func (c *Controller) estimateLine(x []float64) lineest.Estimate {
	if c.cfg.PreferNTSC == nil {
		return lineest.EstimateDual(x, c.cfg.SampleRate)
	}
	if *c.cfg.PreferNTSC {
		return lineest.Estimate(x, c.cfg.SampleRate, lineest.NTSCLineHz)
	}
	return lineest.Estimate(x, c.cfg.SampleRate, lineest.PALLineHz)
}

// runTrackingIteration runs one capture-condition-estimate-assemble cycle
// at the current locked frequency plus AFC offset, updates smoothed
// quality, periodically runs AGC and re-estimates line period, hill-climbs
// the AFC offset, and checks the adaptive re-lock condition.
func (c *Controller) runTrackingIteration() *raster.Frame {
	tunedFreq := addOffset(c.lockedFreq, c.afcOffsetHz)
	iq := c.source.Capture(tunedFreq, c.cfg.SampleRate, c.cfg.CaptureSamples)
	if len(iq) < 2 {
		return nil
	}
	conditioned := c.chain.Process(iq)

	c.sweepsSinceLineReest++
	if c.lineEst.PeriodSamp <= 1 || c.sweepsSinceLineReest >= 10 {
		c.lineEst = c.estimateLine(conditioned)
		c.sweepsSinceLineReest = 0
	}
	if c.lineEst.PeriodSamp <= 1 {
		return nil
	}

	f := raster.Assemble(conditioned, c.cfg.Width, c.cfg.Height, c.lineEst.PeriodSamp)

	// Adaptive re-lock (spec §4.7): tested against the pre-smoothing
	// current-frame quality vs. the prior smoothed quality, before the
	// EMA update below folds this frame in.
	prevQuality := c.lastQuality
	needsRelock := f.Quality < prevQuality-c.cfg.RelockThreshold || f.Quality < 0.05

	c.lastQuality = 0.8*prevQuality + 0.2*f.Quality

	c.sweepsSinceRelockCheck++
	if c.sweepsSinceRelockCheck >= 5 {
		c.sweepsSinceRelockCheck = 0
		c.runAGC()
	}

	c.hillClimbAFC()

	if needsRelock {
		if c.metrics != nil {
			c.metrics.DemodRelockTotal.Inc()
		}
		c.state = StateInit
	}

	if c.metrics != nil {
		c.metrics.DemodQuality.Set(c.lastQuality)
		c.metrics.DemodAFCOffsetHz.Set(float64(c.afcOffsetHz))
		c.metrics.DemodLockedFreqHz.Set(float64(tunedFreq))
	}

	return &f
}

// hillClimbAFC tries each small-step offset and keeps whichever yields the
// best quality, including staying put (spec §4.7 AFC).
func (c *Controller) hillClimbAFC() {
	bestOffset := c.afcOffsetHz
	bestQuality := c.lastQuality
	for _, step := range afcStepsHz {
		candidate := c.afcOffsetHz + step
		q := c.evaluateFreq(addOffset(c.lockedFreq, candidate))
		if q > bestQuality+0.02 {
			bestQuality = q
			bestOffset = candidate
		}
	}
	c.afcOffsetHz = bestOffset
}

// runAGC drives the Source's gains toward AGCTargetRMS, per spec §4.7 AGC:
// up to 8 iterations, each moving a gain by 6 steps: VGA down on clipping,
// otherwise VGA (and, for large errors, LNA) toward the target, exiting
// early once within tolerance.
func (c *Controller) runAGC() {
	const maxIterations = 8
	const tolerance = 0.03
	const clipThreshold = 0.01
	const nudge = 6

	lna, vga := 20, 30
	for i := 0; i < maxIterations; i++ {
		_, rms, clip := c.source.ReadSamplesWithStats(c.cfg.CaptureSamples)

		if c.metrics != nil {
			c.metrics.DemodRMS.Set(rms)
			c.metrics.DemodClipFraction.Set(clip)
		}

		if clip > clipThreshold {
			vga = iqsource.ClampVGA(vga - nudge)
			c.applyGains(lna, vga)
			continue
		}

		diff := c.cfg.AGCTargetRMS - rms
		if abs(diff) < tolerance {
			return
		}
		if diff > 0 {
			vga = iqsource.ClampVGA(vga + nudge)
		} else {
			vga = iqsource.ClampVGA(vga - nudge)
		}
		// If the error measured before the VGA nudge is outside +/-20% of
		// target, additionally nudge LNA in the same direction (spec §4.7
		// AGC secondary correction, matching the original auto_gain).
		if abs(diff) > 0.20*c.cfg.AGCTargetRMS {
			if diff > 0 {
				lna = iqsource.ClampLNA(lna + nudge)
			} else {
				lna = iqsource.ClampLNA(lna - nudge)
			}
		}
		c.applyGains(lna, vga)
	}
}

func (c *Controller) applyGains(lna, vga int) {
	c.source.SetGains(iqsource.Gains{LNA: &lna, VGA: &vga})
	if c.metrics != nil {
		c.metrics.DemodLNAGain.Set(float64(lna))
		c.metrics.DemodVGAGain.Set(float64(vga))
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
