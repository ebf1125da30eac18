// Package spectral computes windowed-FFT band power and SNR estimates from
// an IQ buffer, the way ka9q_ubersdr's morse/sstv extensions compute power
// and SNR spectra from audio, but over complex baseband samples and with a
// noise-ring median instead of a simple percentile floor.
package spectral

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Metrics is the result of one BandPower evaluation.
type Metrics struct {
	BandPowerDB float64
	SNRMeanDB   float64
	SNRPeakDB   float64
}

// BandPower computes band power and SNR metrics for an IQ buffer, per spec
// §4.2. It returns (-120, 0, 0) when n <= 0, matching the spec's
// degenerate-input contract.
func BandPower(iq []complex128, sampleRate, bandwidth, dcGuard float64) Metrics {
	n := len(iq)
	if n <= 0 {
		return Metrics{BandPowerDB: -120, SNRMeanDB: 0, SNRPeakDB: 0}
	}

	// 1. Remove DC (complex mean).
	var meanRe, meanIm float64
	for _, s := range iq {
		meanRe += real(s)
		meanIm += imag(s)
	}
	meanRe /= float64(n)
	meanIm /= float64(n)

	// 2. Hann window, then complex FFT.
	windowed := make([]complex128, n)
	var windowSumSq float64
	for i, s := range iq {
		w := hann(i, n)
		windowSumSq += w * w
		windowed[i] = complex((real(s)-meanRe)*w, (imag(s)-meanIm)*w)
	}
	if windowSumSq == 0 {
		windowSumSq = 1
	}

	fft := fourier.NewCmplxFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	psd := make([]float64, n)
	for i, c := range coeffs {
		mag := real(c)*real(c) + imag(c)*imag(c)
		psd[i] = mag / windowSumSq
	}

	// 3/4/5. Build in-band and noise-ring masks over the frequency grid.
	nyquist := sampleRate / 2
	halfBW := bandwidth / 2
	inBandLimit := math.Min(halfBW, 0.70*nyquist)
	ringLo := 1.05 * halfBW
	ringHi := math.Min(0.98*nyquist, 1.30*halfBW)

	var inBand, ring []float64
	for i := range psd {
		f := math.Abs(binFreq(i, n, sampleRate))
		if f <= inBandLimit && f >= dcGuard {
			inBand = append(inBand, psd[i])
		}
		if f >= ringLo && f <= ringHi {
			ring = append(ring, psd[i])
		}
	}

	if len(inBand) == 0 {
		return Metrics{BandPowerDB: -120, SNRMeanDB: 0, SNRPeakDB: 0}
	}

	bandLin := stat.Mean(inBand, nil)
	peakLin := inBand[0]
	for _, v := range inBand {
		if v > peakLin {
			peakLin = v
		}
	}

	noiseLin := medianFloor
	if len(ring) > 0 {
		sorted := append([]float64(nil), ring...)
		sort.Float64s(sorted)
		noiseLin = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	}
	if noiseLin <= 0 {
		noiseLin = medianFloor
	}

	bandPowerDB := 10 * math.Log10(bandLin+1e-20)
	snrMeanDB := 10 * math.Log10(bandLin / noiseLin)
	snrPeakDB := 10 * math.Log10(peakLin / noiseLin)

	return Metrics{
		BandPowerDB: clampDB(bandPowerDB),
		SNRMeanDB:   snrMeanDB,
		SNRPeakDB:   snrPeakDB,
	}
}

// medianFloor avoids division by (near) zero noise estimates on
// all-zero/degenerate input.
const medianFloor = 1e-20

func clampDB(db float64) float64 {
	if db < -200 {
		return -200
	}
	if db > 80 {
		return 80
	}
	return db
}

// hann returns the Hann window coefficient for sample i of n.
func hann(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
}

// binFreq returns the signed frequency, in Hz, represented by FFT bin i of
// an n-point transform sampled at sampleRate, following the standard
// fftfreq bin ordering (DC first, ascending positive frequencies, then
// descending negative frequencies near Nyquist).
func binFreq(i, n int, sampleRate float64) float64 {
	if i <= n/2 {
		return float64(i) * sampleRate / float64(n)
	}
	return float64(i-n) * sampleRate / float64(n)
}
