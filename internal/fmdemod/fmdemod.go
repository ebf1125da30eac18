// Package fmdemod implements the FM discriminator and baseband conditioning
// chain that turns a tuned IQ stream into a composite video signal,
// following the sample-by-sample discriminator/IIR idiom ka9q_ubersdr's
// audio extensions use for narrowband FM (see audio_extensions' discriminator
// helpers), generalized from voice bandwidth to analog video bandwidth.
package fmdemod

import "math/cmplx"

// Discriminate computes the instantaneous phase difference between
// consecutive IQ samples, i.e. angle(x[n] * conj(x[n-1])), per spec §4.4
// step 1. The returned slice has length len(iq)-1; len(iq) < 2 returns nil.
func Discriminate(iq []complex128) []float64 {
	if len(iq) < 2 {
		return nil
	}
	out := make([]float64, len(iq)-1)
	for n := 1; n < len(iq); n++ {
		out[n-1] = cmplx.Phase(iq[n] * cmplx.Conj(iq[n-1]))
	}
	return out
}

// DCBlocker is a one-pole IIR DC remover: lp <- (1-a)*lp + a*x[n],
// y[n] = x[n] - lp, per spec §4.4 step 2. The zero value is not usable;
// construct with NewDCBlocker.
type DCBlocker struct {
	alpha float64
	lp    float64
	init  bool
}

// NewDCBlocker returns a DCBlocker with the given pole. Spec §6 default is
// 0.001.
func NewDCBlocker(alpha float64) *DCBlocker {
	return &DCBlocker{alpha: alpha}
}

// Apply filters x in place, returning it for convenience. The tracking
// low-pass state initializes to x[0] on first use (spec §4.4 step 2).
func (d *DCBlocker) Apply(x []float64) []float64 {
	for i, v := range x {
		if !d.init {
			d.lp = v
			d.init = true
		} else {
			d.lp = (1-d.alpha)*d.lp + d.alpha*v
		}
		x[i] = v - d.lp
	}
	return x
}

// Reset clears the blocker's tracking state so the next Apply call
// re-initializes from its first sample.
func (d *DCBlocker) Reset() {
	d.lp = 0
	d.init = false
}

// Smooth applies a K-tap moving-average filter centred on each sample
// (for even K the window spans K/2 samples back and K/2-1 forward),
// same-length output via edge truncation of the window at the boundaries,
// per spec §4.4 step 3. Spec §6 default K is 32.
func Smooth(x []float64, taps int) []float64 {
	if taps < 1 {
		taps = 1
	}
	half := taps / 2
	out := make([]float64, len(x))
	for i := range x {
		lo := i - half
		hi := i + taps - 1 - half
		if lo < 0 {
			lo = 0
		}
		if hi >= len(x) {
			hi = len(x) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += x[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// Config bundles the discriminator chain's tunables (spec §6).
type Config struct {
	DCBlockAlpha float64
	SmoothTaps   int
}

// Chain runs the full discriminate -> DC-block -> smooth pipeline on one
// capture buffer.
type Chain struct {
	cfg Config
	dc  *DCBlocker
}

// NewChain constructs a Chain with its own DC-blocker state, persisted
// across successive Process calls on the same tuned stream.
func NewChain(cfg Config) *Chain {
	return &Chain{cfg: cfg, dc: NewDCBlocker(cfg.DCBlockAlpha)}
}

// Process runs one capture buffer through discrimination, DC blocking, and
// smoothing, returning the conditioned composite-video samples.
func (c *Chain) Process(iq []complex128) []float64 {
	disc := Discriminate(iq)
	if disc == nil {
		return nil
	}
	blocked := c.dc.Apply(disc)
	return Smooth(blocked, c.cfg.SmoothTaps)
}

// ResetDC clears the chain's DC-blocker tracking state, used when the
// auto-tune controller re-locks onto a new frequency (spec §4.7).
func (c *Chain) ResetDC() { c.dc.Reset() }
