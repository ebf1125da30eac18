// Package lineest estimates the horizontal line rate of a conditioned
// composite-video signal via FFT-based autocorrelation (Wiener-Khinchin),
// the same inverse-FFT-of-power-spectrum technique ka9q_ubersdr's
// morse/spectrum_analyzer.go uses for periodicity detection, applied here
// to video line timing instead of CW element timing.
package lineest

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Standard analog line rates, in Hz (spec §4.5).
const (
	NTSCLineHz = 15734.264
	PALLineHz  = 15625.0
)

// Estimate is the result of one line-rate estimation.
type Estimate struct {
	LineHz     float64
	PeriodSamp float64
	Confidence float64 // in [0, 1]
	Standard   string  // "ntsc" or "pal" from EstimateDual; empty from Estimate
}

// Estimate finds the dominant line period in x, a conditioned composite
// video signal sampled at sampleRate, searching only within +/-15% of
// expectedLineHz (spec §4.5 steps 1-5).
func Estimate(x []float64, sampleRate, expectedLineHz float64) Estimate {
	if len(x) < 4 {
		return Estimate{}
	}

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	n := len(x)
	padded := nextPow2(2 * n)
	buf := make([]complex128, padded)
	for i, v := range x {
		buf[i] = complex(v-mean, 0)
	}

	fft := fourier.NewCmplxFFT(padded)
	spectrum := fft.Coefficients(nil, buf)

	power := make([]complex128, padded)
	for i, c := range spectrum {
		power[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}

	autocorr := fft.Sequence(nil, power)

	lagLo := int(sampleRate / (expectedLineHz * 1.15))
	lagHi := int(sampleRate / (expectedLineHz * 0.85))
	if lagLo < 1 {
		lagLo = 1
	}
	if lagHi >= padded {
		lagHi = padded - 1
	}
	if lagHi <= lagLo {
		return Estimate{}
	}

	bestLag := lagLo
	bestVal := real(autocorr[lagLo])
	for lag := lagLo; lag <= lagHi; lag++ {
		v := real(autocorr[lag])
		if v > bestVal {
			bestVal = v
			bestLag = lag
		}
	}

	// Neighbor is the local max in a +/-64-lag window around the peak,
	// excluding the peak itself, per spec §4.5 step 5.
	const neighborhood = 64
	neighborLo := bestLag - neighborhood
	if neighborLo < 0 {
		neighborLo = 0
	}
	neighborHi := bestLag + neighborhood
	if neighborHi >= padded {
		neighborHi = padded - 1
	}
	neighbor := math.Inf(-1)
	for lag := neighborLo; lag <= neighborHi; lag++ {
		if lag == bestLag {
			continue
		}
		if v := real(autocorr[lag]); v > neighbor {
			neighbor = v
		}
	}
	if math.IsInf(neighbor, -1) {
		neighbor = 0
	}

	const eps = 1e-9
	prominence := bestVal - neighbor
	if prominence < 0 {
		prominence = 0
	}
	confidence := math.Tanh(prominence / (math.Abs(neighbor) + eps))
	if confidence < 0 {
		confidence = 0
	}

	lineHz := sampleRate / float64(bestLag)
	return Estimate{
		LineHz:     lineHz,
		PeriodSamp: float64(bestLag),
		Confidence: confidence,
	}
}

// EstimateDual runs Estimate against both NTSC and PAL expected line rates
// and returns whichever yields higher confidence, tagging the Standard
// field accordingly (spec §4.5 "prefer_ntsc unspecified" behavior).
func EstimateDual(x []float64, sampleRate float64) Estimate {
	n := Estimate(x, sampleRate, NTSCLineHz)
	n.Standard = "ntsc"
	p := Estimate(x, sampleRate, PALLineHz)
	p.Standard = "pal"
	if p.Confidence > n.Confidence {
		return p
	}
	return n
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
