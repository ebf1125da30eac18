package fmdemod

import (
	"math"
	"testing"
)

func TestDiscriminateConstantToneYieldsConstantPhaseStep(t *testing.T) {
	n := 100
	dPhase := 0.3
	iq := make([]complex128, n)
	phase := 0.0
	for i := range iq {
		iq[i] = complex(math.Cos(phase), math.Sin(phase))
		phase += dPhase
	}
	out := Discriminate(iq)
	if len(out) != n-1 {
		t.Fatalf("len(out) = %d, want %d", len(out), n-1)
	}
	for i, v := range out {
		if math.Abs(v-dPhase) > 1e-9 {
			t.Fatalf("out[%d] = %v, want %v", i, v, dPhase)
		}
	}
}

func TestDiscriminateShortInputReturnsNil(t *testing.T) {
	if Discriminate(nil) != nil {
		t.Error("Discriminate(nil) should be nil")
	}
	if Discriminate([]complex128{1}) != nil {
		t.Error("Discriminate of single sample should be nil")
	}
}

func TestDCBlockerRemovesConstantOffset(t *testing.T) {
	x := make([]float64, 2000)
	for i := range x {
		x[i] = 5.0 + 0.01*math.Sin(float64(i)*0.1)
	}
	d := NewDCBlocker(0.001)
	y := d.Apply(x)

	var tailSum float64
	tailN := 200
	for _, v := range y[len(y)-tailN:] {
		tailSum += v
	}
	mean := tailSum / float64(tailN)
	if math.Abs(mean) > 0.5 {
		t.Errorf("tail mean after DC block = %v, want near 0", mean)
	}
}

func TestSmoothPreservesLength(t *testing.T) {
	x := make([]float64, 50)
	for i := range x {
		x[i] = float64(i)
	}
	out := Smooth(x, 32)
	if len(out) != len(x) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(x))
	}
}

func TestSmoothFlattensNoise(t *testing.T) {
	x := make([]float64, 200)
	for i := range x {
		if i%2 == 0 {
			x[i] = 1
		} else {
			x[i] = -1
		}
	}
	out := Smooth(x, 32)
	for i, v := range out {
		if math.Abs(v) > 0.3 {
			t.Fatalf("out[%d] = %v, want near 0 for alternating input", i, v)
		}
	}
}

func TestChainProcessEndToEnd(t *testing.T) {
	n := 500
	iq := make([]complex128, n)
	phase := 0.0
	for i := range iq {
		iq[i] = complex(5+math.Cos(phase), 5+math.Sin(phase))
		phase += 0.2
	}
	c := NewChain(Config{DCBlockAlpha: 0.001, SmoothTaps: 32})
	out := c.Process(iq)
	if len(out) != n-1 {
		t.Fatalf("len(out) = %d, want %d", len(out), n-1)
	}
}
