package iqsource

import (
	"math"
	"math/rand"
	"sync"
)

// Synthetic is a deterministic stand-in for hardware: complex Gaussian
// noise at sigma 0.2, plus (iff tuned to HotChannelHz) a 10 kHz complex
// tone at amplitude 0.8, exactly as spec §4.1 describes. Deterministic
// means reproducible from Seed, not that every call returns identical
// samples — each call advances the generator's internal state, matching
// how a real receiver's noise floor evolves sample-to-sample.
type Synthetic struct {
	HotChannelHz uint64
	Seed         int64

	mu     sync.Mutex
	rng    *rand.Rand
	freqHz uint64
	gains  Gains
	phase  float64 // running tone phase, radians
}

// NewSynthetic returns a Synthetic generator. A zero Seed uses a fixed
// default so output is reproducible across runs/tests.
func NewSynthetic(hotChannelHz uint64, seed int64) *Synthetic {
	if seed == 0 {
		seed = 0xC0FFEE
	}
	return &Synthetic{
		HotChannelHz: hotChannelHz,
		Seed:         seed,
		rng:          rand.New(rand.NewSource(seed)),
		gains:        Gains{LNA: intPtr(20), VGA: intPtr(30)},
	}
}

func intPtr(v int) *int { return &v }

func (s *Synthetic) Capture(freqHz uint64, sampleRate float64, numSamples int) []complex128 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freqHz = freqHz
	return s.generateLocked(sampleRate, numSamples)
}

func (s *Synthetic) SetCenterFrequency(freqHz uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freqHz = freqHz
}

func (s *Synthetic) SetGains(g Gains) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.LNA != nil {
		v := ClampLNA(*g.LNA)
		s.gains.LNA = &v
	}
	if g.VGA != nil {
		v := ClampVGA(*g.VGA)
		s.gains.VGA = &v
	}
	if g.Amp != nil {
		v := *g.Amp
		s.gains.Amp = &v
	}
}

func (s *Synthetic) ReadSamplesWithStats(n int) (buf []complex128, rms float64, clipFraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Use a nominal sample rate for the streaming read path; the
	// synthetic tone's wall-clock rate is not load-bearing for any
	// consumer of ReadSamplesWithStats (AGC only cares about level).
	buf = s.generateLocked(8_000_000, n)

	var sumSq float64
	clipped := 0
	for _, v := range buf {
		mag := math.Hypot(real(v), imag(v))
		sumSq += mag * mag
		if mag >= 0.999 {
			clipped++
		}
	}
	if len(buf) > 0 {
		rms = math.Sqrt(sumSq / float64(len(buf)))
		clipFraction = float64(clipped) / float64(len(buf))
	}
	return buf, rms, clipFraction
}

func (s *Synthetic) Clear() error { return nil }

// generateLocked must be called with s.mu held.
func (s *Synthetic) generateLocked(sampleRate float64, numSamples int) []complex128 {
	if numSamples <= 0 {
		return nil
	}
	const sigma = 0.2
	const toneHz = 10_000.0
	const toneAmp = 0.8

	buf := make([]complex128, numSamples)
	hot := s.freqHz == s.HotChannelHz && s.HotChannelHz != 0
	dPhase := 2 * math.Pi * toneHz / sampleRate

	for i := range buf {
		noiseI := s.rng.NormFloat64() * sigma
		noiseQ := s.rng.NormFloat64() * sigma
		v := complex(noiseI, noiseQ)
		if hot {
			s.phase += dPhase
			v += complex(toneAmp*math.Cos(s.phase), toneAmp*math.Sin(s.phase))
		}
		buf[i] = v
	}
	return buf
}
