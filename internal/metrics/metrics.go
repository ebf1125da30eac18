// Package metrics collects the Prometheus gauges/counters exported by the
// scanner and auto-tune controller, following the promauto registration
// idiom used throughout ka9q_ubersdr's prometheus.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every gauge/counter this core exports. Each instance owns
// its own registry so tests can construct as many as they like without
// tripping prometheus's duplicate-registration panic.
type Metrics struct {
	Registry *prometheus.Registry

	ChannelEMASNRDB   *prometheus.GaugeVec
	ChannelEMAPowerDB *prometheus.GaugeVec
	ChannelHits       *prometheus.GaugeVec
	ChannelActive     *prometheus.GaugeVec // 1 if status==active else 0

	DemodQuality       prometheus.Gauge
	DemodAFCOffsetHz   prometheus.Gauge
	DemodLockedFreqHz  prometheus.Gauge
	DemodLNAGain       prometheus.Gauge
	DemodVGAGain       prometheus.Gauge
	DemodRMS           prometheus.Gauge
	DemodClipFraction  prometheus.Gauge
	DemodRelockTotal   prometheus.Counter
	FramesPublished    prometheus.Counter
}

// New creates a fresh, independently-registered Metrics bundle.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ChannelEMASNRDB: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vtxcore_channel_ema_snr_db",
			Help: "EMA-smoothed SNR estimate per scanned channel, in dB.",
		}, []string{"freq_hz"}),

		ChannelEMAPowerDB: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vtxcore_channel_ema_power_db",
			Help: "EMA-smoothed band power estimate per scanned channel, in dB.",
		}, []string{"freq_hz"}),

		ChannelHits: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vtxcore_channel_hits",
			Help: "Count of true observations in the channel's activity window.",
		}, []string{"freq_hz"}),

		ChannelActive: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vtxcore_channel_active",
			Help: "1 if the channel's candidate status is active, else 0.",
		}, []string{"freq_hz"}),

		DemodQuality: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_quality",
			Help: "Smoothed raster quality metric of the locked demodulator session.",
		}),

		DemodAFCOffsetHz: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_afc_offset_hz",
			Help: "Current AFC offset from the session's locked frequency, in Hz.",
		}),

		DemodLockedFreqHz: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_locked_freq_hz",
			Help: "Currently tuned frequency of the demodulator session, in Hz.",
		}),

		DemodLNAGain: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_lna_gain",
			Help: "Current LNA gain setting.",
		}),

		DemodVGAGain: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_vga_gain",
			Help: "Current VGA gain setting.",
		}),

		DemodRMS: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_rms",
			Help: "Most recent RMS measurement used to drive AGC.",
		}),

		DemodClipFraction: fac.NewGauge(prometheus.GaugeOpts{
			Name: "vtxcore_demod_clip_fraction",
			Help: "Most recent clip fraction measurement used to drive AGC.",
		}),

		DemodRelockTotal: fac.NewCounter(prometheus.CounterOpts{
			Name: "vtxcore_demod_relock_total",
			Help: "Number of times the auto-tune controller re-entered coarse lock.",
		}),

		FramesPublished: fac.NewCounter(prometheus.CounterOpts{
			Name: "vtxcore_frames_published_total",
			Help: "Total frames handed to the publisher.",
		}),
	}
}
