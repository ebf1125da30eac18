// Package config loads the scanner/demodulator configuration from YAML and
// applies field-level defaults, following the same pattern as ka9q_ubersdr's
// config.go: unmarshal first, then backfill zero-valued fields in code.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Raceband is the default set of eight 5.8 GHz analog FPV channels, in Hz.
var Raceband = []uint64{
	5658000000, 5695000000, 5732000000, 5769000000,
	5806000000, 5843000000, 5880000000, 5917000000,
}

// Band groups a set of channel frequencies under a label, mirroring the
// teacher's Band struct in config.go.
type Band struct {
	Name     string   `yaml:"name"`
	Channels []uint64 `yaml:"channels"`
}

// AlertPersistence is the N-of-M debounce window configuration.
type AlertPersistence struct {
	Hits   int `yaml:"hits"`
	Window int `yaml:"window"`
}

// ScannerConfig is consumed by the scanner at startup (spec §6).
type ScannerConfig struct {
	Bands            []Band           `yaml:"bands"`
	DwellMS          int              `yaml:"dwell_ms"`
	SampleRate       float64          `yaml:"sample_rate"`
	ChannelBWHz      float64          `yaml:"channel_bw_hz"`
	MinSNRDB         float64          `yaml:"min_snr_db"`
	DCGuardHz        float64          `yaml:"dc_guard_hz"`
	AlertPersistence AlertPersistence `yaml:"alert_persistence"`
	EMAAlpha         float64          `yaml:"ema_alpha"`
	SnapshotTopK     int              `yaml:"snapshot_top_k"`
}

// SourceConfig controls sample-source backend selection.
type SourceConfig struct {
	UseHardware  bool   `yaml:"use_hardware"`
	ControlAddr  string `yaml:"control_addr"`  // UDP control endpoint (tune/gain commands)
	DataGroup    string `yaml:"data_group"`    // multicast group carrying RTP IQ payloads
	Interface    string `yaml:"interface"`     // network interface for multicast join
	HotChannelHz uint64 `yaml:"hot_channel_hz"` // synthetic backend: channel that carries a tone
}

// DemodConfig controls the auto-tune demodulator.
type DemodConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	FPS            int     `yaml:"fps"`
	PreferNTSC     *bool   `yaml:"prefer_ntsc"` // nil = try both, pick higher confidence
	SearchRadiusHz uint64  `yaml:"search_radius_hz"`
	CaptureSamples int     `yaml:"capture_samples"`
	DCBlockAlpha   float64 `yaml:"dc_block_alpha"`
	SmoothTaps     int     `yaml:"smooth_taps"`
	AGCTargetRMS   float64 `yaml:"agc_target_rms"`
	LockThreshold  float64 `yaml:"lock_threshold"`
	RelockThreshold float64 `yaml:"relock_threshold"`
}

// MQTTConfig configures the frame/candidate publisher transport.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// WebsocketConfig configures the candidate-snapshot broadcast hub.
type WebsocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// PrometheusConfig controls metrics registration.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds the logging.verbose setting. Neither binary reads it;
// verbosity is set by their -debug flag.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Config is the top-level configuration document.
type Config struct {
	Scanner    ScannerConfig    `yaml:"scanner"`
	Source     SourceConfig     `yaml:"source"`
	Demod      DemodConfig      `yaml:"demod"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Websocket  WebsocketConfig  `yaml:"websocket"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads filename, parses it as YAML, and applies defaults to any
// field left unset. A missing or malformed file is never fatal to the
// caller's startup: Load returns the error, but every default is usable
// on its own via Default().
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a Config populated entirely from defaults, equivalent to
// loading an empty YAML document.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults backfills zero-valued fields per spec §6. Fields already
// set by the caller's YAML are left untouched.
func applyDefaults(cfg *Config) {
	if cfg.Scanner.DwellMS == 0 {
		cfg.Scanner.DwellMS = 15
	}
	if cfg.Scanner.SampleRate == 0 {
		cfg.Scanner.SampleRate = 8_000_000
	}
	if cfg.Scanner.ChannelBWHz == 0 {
		cfg.Scanner.ChannelBWHz = 8_000_000
	}
	if cfg.Scanner.MinSNRDB == 0 {
		cfg.Scanner.MinSNRDB = 6
	}
	if cfg.Scanner.DCGuardHz == 0 {
		cfg.Scanner.DCGuardHz = 50_000
	}
	if cfg.Scanner.AlertPersistence.Hits == 0 {
		cfg.Scanner.AlertPersistence.Hits = 3
	}
	if cfg.Scanner.AlertPersistence.Window == 0 {
		cfg.Scanner.AlertPersistence.Window = 5
	}
	// EMA alpha isn't in the spec's default table; 0.1 matches the
	// worked convergence scenario in spec.md §8 scenario 2.
	if cfg.Scanner.EMAAlpha == 0 {
		cfg.Scanner.EMAAlpha = 0.1
	}
	if cfg.Scanner.SnapshotTopK == 0 {
		cfg.Scanner.SnapshotTopK = 8
	}
	if len(cfg.Scanner.Bands) == 0 {
		cfg.Scanner.Bands = []Band{{Name: "raceband", Channels: Raceband}}
	}

	if cfg.Demod.Width == 0 {
		cfg.Demod.Width = 320
	}
	if cfg.Demod.Height == 0 {
		cfg.Demod.Height = 240
	}
	if cfg.Demod.FPS == 0 {
		cfg.Demod.FPS = 25
	}
	if cfg.Demod.SearchRadiusHz == 0 {
		cfg.Demod.SearchRadiusHz = 5_000_000
	}
	if cfg.Demod.CaptureSamples == 0 {
		cfg.Demod.CaptureSamples = 131_072
	}
	if cfg.Demod.DCBlockAlpha == 0 {
		cfg.Demod.DCBlockAlpha = 0.001
	}
	if cfg.Demod.SmoothTaps == 0 {
		cfg.Demod.SmoothTaps = 32
	}
	if cfg.Demod.AGCTargetRMS == 0 {
		cfg.Demod.AGCTargetRMS = 0.25
	}
	if cfg.Demod.LockThreshold == 0 {
		cfg.Demod.LockThreshold = 0.35
	}
	if cfg.Demod.RelockThreshold == 0 {
		cfg.Demod.RelockThreshold = 0.15
	}

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "vtxcore/frames"
	}
	if cfg.Websocket.Path == "" {
		cfg.Websocket.Path = "/scanner/snapshot"
	}
}

// Channels flattens all configured bands into a single ordered channel
// plan, preserving band order and de-duplicating repeated frequencies.
func (c *ScannerConfig) Channels() []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	for _, band := range c.Bands {
		for _, f := range band.Channels {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
