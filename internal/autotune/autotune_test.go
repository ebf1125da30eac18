package autotune

import (
	"context"
	"testing"
	"time"

	"github.com/cwsl/vtxcore/internal/iqsource"
	"github.com/cwsl/vtxcore/internal/raster"
)

func testConfig() Config {
	return Config{
		BaseFreqHz:      5806000000,
		SampleRate:      8_000_000,
		CaptureSamples:  4096,
		Width:           64,
		Height:          16,
		DCBlockAlpha:    0.001,
		SmoothTaps:      8,
		AGCTargetRMS:    0.25,
		LockThreshold:   0.35,
		RelockThreshold: 0.15,
	}
}

func TestNewWithSyntheticSourceStartsInTrackingAfterFirstStep(t *testing.T) {
	src := iqsource.NewSynthetic(5806000000, 1)
	c := New(testConfig(), src, nil)
	if c.State() != StateInit {
		t.Fatalf("State() = %v, want %v before first Step", c.State(), StateInit)
	}
	f := c.Step()
	if f == nil {
		t.Fatal("expected synthetic emitter to produce a frame")
	}
	if c.State() != StateTracking {
		t.Errorf("State() = %v, want %v after synthetic emitter step", c.State(), StateTracking)
	}
}

func TestSyntheticEmitterFrameDimensions(t *testing.T) {
	src := iqsource.NewSynthetic(0, 1)
	cfg := testConfig()
	c := New(cfg, src, nil)
	f := c.Step()
	if f.Width != cfg.Width || f.Height != cfg.Height {
		t.Errorf("frame dims = %dx%d, want %dx%d", f.Width, f.Height, cfg.Width, cfg.Height)
	}
	if len(f.Pixels) != cfg.Width*cfg.Height {
		t.Errorf("len(Pixels) = %d, want %d", len(f.Pixels), cfg.Width*cfg.Height)
	}
}

func TestSyntheticEmitterBarSweepsAcrossFrames(t *testing.T) {
	e := NewSyntheticEmitter(8, 2)
	f1 := e.Next()
	f2 := e.Next()
	if equalBytes(f1.Pixels, f2.Pixels) {
		t.Error("expected successive synthetic frames to differ as the bar sweeps")
	}
}

func equalBytes(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := iqsource.NewSynthetic(5806000000, 1)
	c := New(testConfig(), src, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx, func(_ raster.Frame) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
