package iqsource

import (
	"math"
	"testing"
)

func TestSyntheticCaptureLengthMatchesRequest(t *testing.T) {
	s := NewSynthetic(5_806_000_000, 1)
	buf := s.Capture(5_806_000_000, 8_000_000, 1024)
	if len(buf) != 1024 {
		t.Fatalf("len(buf) = %d, want 1024", len(buf))
	}
}

func TestSyntheticHotChannelCarriesMorePowerThanColdChannel(t *testing.T) {
	s := NewSynthetic(5_806_000_000, 7)

	hot := s.Capture(5_806_000_000, 8_000_000, 4096)
	cold := s.Capture(5_695_000_000, 8_000_000, 4096)

	if power(hot) <= power(cold) {
		t.Fatalf("hot channel power %f should exceed cold channel power %f", power(hot), power(cold))
	}
}

func TestSyntheticGainsClampToBounds(t *testing.T) {
	s := NewSynthetic(0, 0)
	lna := 999
	vga := -5
	s.SetGains(Gains{LNA: &lna, VGA: &vga})

	if *s.gains.LNA != LNAMax {
		t.Errorf("LNA = %d, want clamped to %d", *s.gains.LNA, LNAMax)
	}
	if *s.gains.VGA != VGAMin {
		t.Errorf("VGA = %d, want clamped to %d", *s.gains.VGA, VGAMin)
	}
}

func TestSyntheticReadSamplesWithStatsReportsFiniteRMS(t *testing.T) {
	s := NewSynthetic(0, 3)
	buf, rms, clip := s.ReadSamplesWithStats(2048)
	if len(buf) != 2048 {
		t.Fatalf("len(buf) = %d, want 2048", len(buf))
	}
	if math.IsNaN(rms) || math.IsInf(rms, 0) || rms < 0 {
		t.Errorf("rms = %v, want finite non-negative", rms)
	}
	if clip < 0 || clip > 1 {
		t.Errorf("clipFraction = %v, want in [0,1]", clip)
	}
}

func TestSyntheticClearIsIdempotent(t *testing.T) {
	s := NewSynthetic(0, 0)
	if err := s.Clear(); err != nil {
		t.Fatalf("first Clear: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func power(buf []complex128) float64 {
	var sum float64
	for _, v := range buf {
		sum += real(v)*real(v) + imag(v)*imag(v)
	}
	return sum / float64(len(buf))
}
