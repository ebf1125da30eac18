package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAppliesRacebandAndSpecDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Scanner.DwellMS != 15 {
		t.Errorf("DwellMS = %d, want 15", cfg.Scanner.DwellMS)
	}
	if cfg.Scanner.SampleRate != 8_000_000 {
		t.Errorf("SampleRate = %v, want 8e6", cfg.Scanner.SampleRate)
	}
	if cfg.Scanner.MinSNRDB != 6 {
		t.Errorf("MinSNRDB = %v, want 6", cfg.Scanner.MinSNRDB)
	}
	if cfg.Scanner.DCGuardHz != 50_000 {
		t.Errorf("DCGuardHz = %v, want 50000", cfg.Scanner.DCGuardHz)
	}
	if cfg.Scanner.AlertPersistence.Hits != 3 || cfg.Scanner.AlertPersistence.Window != 5 {
		t.Errorf("AlertPersistence = %+v, want {3 5}", cfg.Scanner.AlertPersistence)
	}
	channels := cfg.Scanner.Channels()
	if len(channels) != len(Raceband) {
		t.Fatalf("Channels() returned %d channels, want %d", len(channels), len(Raceband))
	}
	for i, f := range Raceband {
		if channels[i] != f {
			t.Errorf("Channels()[%d] = %d, want %d", i, channels[i], f)
		}
	}
}

func TestLoadPartialYAMLKeepsExplicitFieldsAndFillsRest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
scanner:
  dwell_ms: 25
  min_snr_db: 9
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scanner.DwellMS != 25 {
		t.Errorf("DwellMS = %d, want 25 (explicit)", cfg.Scanner.DwellMS)
	}
	if cfg.Scanner.MinSNRDB != 9 {
		t.Errorf("MinSNRDB = %v, want 9 (explicit)", cfg.Scanner.MinSNRDB)
	}
	if cfg.Scanner.SampleRate != 8_000_000 {
		t.Errorf("SampleRate = %v, want default 8e6", cfg.Scanner.SampleRate)
	}
	if len(cfg.Scanner.Channels()) != len(Raceband) {
		t.Errorf("expected default raceband channels when bands omitted")
	}
}

func TestLoadMissingFileReturnsUsableDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if cfg == nil {
		t.Fatal("expected non-nil default config even on error")
	}
	if cfg.Scanner.DwellMS != 15 {
		t.Errorf("DwellMS = %d, want 15 default", cfg.Scanner.DwellMS)
	}
}

func TestChannelsDeduplicatesAcrossBands(t *testing.T) {
	cfg := &ScannerConfig{
		Bands: []Band{
			{Name: "a", Channels: []uint64{100, 200}},
			{Name: "b", Channels: []uint64{200, 300}},
		},
	}
	got := cfg.Channels()
	want := []uint64{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("Channels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Channels()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
