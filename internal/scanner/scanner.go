// Package scanner implements the periodic multi-channel power/SNR
// estimator: round-robin dwell-sweep, per-channel EMA smoothing, and N-of-M
// activity debounce, following the polling-loop shape of ka9q_ubersdr's
// NoiseFloorMonitor (stop channel + WaitGroup, per-band rolling state).
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cwsl/vtxcore/internal/candidate"
	"github.com/cwsl/vtxcore/internal/iqsource"
	"github.com/cwsl/vtxcore/internal/metrics"
	"github.com/cwsl/vtxcore/internal/spectral"
)

// EventPublisher receives periodic top-K candidate snapshots. Implementations
// (websocket hub, MQTT, etc.) are external collaborators; the scanner never
// blocks on them.
type EventPublisher interface {
	PublishSnapshot(snapshot []candidate.Candidate)
}

// Config holds the scanner's tunables (spec §4.3, §6).
type Config struct {
	Channels     []uint64
	DwellMS      int
	SampleRate   float64
	BandwidthHz  float64
	MinSNRDB     float64
	EMAAlpha     float64
	AlertHits    int // H
	AlertWindow  int // M, H <= M
	SnapshotTopK int
}

type channelState struct {
	initialized   bool
	emaPowerDB    float64
	emaSNRDB      float64
	window        []bool // bounded FIFO, oldest at index 0
	firstSeen     time.Time
	hits          int // window true-count, drives status only
	monotonicHits int // never decreases; persisted as Candidate.Hits
}

// Scanner sweeps Config.Channels in round-robin order, emitting debounced
// Candidate records to Store and periodic snapshots to an optional
// EventPublisher.
type Scanner struct {
	cfg     Config
	source  iqsource.Source
	store   candidate.Store
	metrics *metrics.Metrics
	events  EventPublisher

	mu                  sync.Mutex
	state               map[uint64]*channelState
	lastSnapshotPublish time.Time
}

// New constructs a Scanner. metrics and events may be nil.
func New(cfg Config, source iqsource.Source, store candidate.Store, m *metrics.Metrics, events EventPublisher) *Scanner {
	if cfg.AlertHits > cfg.AlertWindow {
		cfg.AlertHits = cfg.AlertWindow
	}
	return &Scanner{
		cfg:     cfg,
		source:  source,
		store:   store,
		metrics: m,
		events:  events,
		state:   make(map[uint64]*channelState),
	}
}

// Run begins the sweep loop. It returns when ctx is cancelled, completing
// the in-flight channel and releasing between channels rather than
// stopping mid-capture (spec §5 cancellation semantics).
func (s *Scanner) Run(ctx context.Context) error {
	if len(s.cfg.Channels) == 0 {
		return fmt.Errorf("scanner: no channels configured")
	}
	dwell := time.Duration(s.cfg.DwellMS) * time.Millisecond
	if dwell <= 0 {
		dwell = 15 * time.Millisecond
	}

	for {
		for _, freq := range s.cfg.Channels {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			s.sweepChannel(freq)
			s.maybePublishSnapshot()

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(dwell):
			}
		}
	}
}

func (s *Scanner) sweepChannel(freqHz uint64) {
	numSamples := int(s.cfg.SampleRate * float64(s.cfg.DwellMS) / 1000)
	if numSamples < 1024 {
		numSamples = 1024
	}

	iq := s.source.Capture(freqHz, s.cfg.SampleRate, numSamples)
	dcGuard := s.cfg.BandwidthHz * 0.00625
	m := spectral.BandPower(iq, s.cfg.SampleRate, s.cfg.BandwidthHz, dcGuard)

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.state[freqHz]
	if !ok {
		cs = &channelState{firstSeen: time.Now()}
		s.state[freqHz] = cs
	}

	if !cs.initialized {
		cs.emaPowerDB = m.BandPowerDB
		cs.emaSNRDB = m.SNRMeanDB
		cs.initialized = true
	} else {
		alpha := s.cfg.EMAAlpha
		cs.emaPowerDB = (1-alpha)*cs.emaPowerDB + alpha*m.BandPowerDB
		cs.emaSNRDB = (1-alpha)*cs.emaSNRDB + alpha*m.SNRMeanDB
	}

	isCandidate := cs.emaSNRDB >= s.cfg.MinSNRDB
	cs.window = append(cs.window, isCandidate)
	if len(cs.window) > s.cfg.AlertWindow {
		cs.window = cs.window[len(cs.window)-s.cfg.AlertWindow:]
	}

	hits := 0
	for _, v := range cs.window {
		if v {
			hits++
		}
	}
	cs.hits = hits

	// Candidate.Hits is a monotonic counter mirroring the original
	// storage.upsert_candidate's "hits = prev + (snr_db>=0)": it counts
	// raw-SNR-positive sweeps over the channel's lifetime and never
	// decreases, unlike cs.hits which ages out of the debounce window.
	if m.SNRMeanDB >= 0 {
		cs.monotonicHits++
	}

	status := candidate.StatusLost
	minWindow := s.cfg.AlertHits
	if s.cfg.AlertWindow < minWindow {
		minWindow = s.cfg.AlertWindow
	}
	switch {
	case hits >= s.cfg.AlertHits && len(cs.window) >= minWindow:
		status = candidate.StatusActive
	case isCandidate:
		status = candidate.StatusNew
	}

	now := time.Now()
	rec := candidate.Candidate{
		FreqHz:         freqHz,
		EMAPowerDB:     cs.emaPowerDB,
		EMASNRDB:       cs.emaSNRDB,
		LastRawPowerDB: m.BandPowerDB,
		LastRawSNRDB:   m.SNRMeanDB,
		FirstSeen:      cs.firstSeen,
		LastSeen:       now,
		Hits:           cs.monotonicHits,
		Status:         status,
	}
	s.store.Upsert(rec)

	if s.metrics != nil {
		label := strconv.FormatUint(freqHz, 10)
		s.metrics.ChannelEMASNRDB.WithLabelValues(label).Set(cs.emaSNRDB)
		s.metrics.ChannelEMAPowerDB.WithLabelValues(label).Set(cs.emaPowerDB)
		s.metrics.ChannelHits.WithLabelValues(label).Set(float64(hits))
		active := 0.0
		if status == candidate.StatusActive {
			active = 1.0
		}
		s.metrics.ChannelActive.WithLabelValues(label).Set(active)
	}
}

// maybePublishSnapshot publishes the top-K snapshot to s.events at most
// every 200ms (spec §4.3 step 7, §5 ordering guarantee).
func (s *Scanner) maybePublishSnapshot() {
	if s.events == nil {
		return
	}
	s.mu.Lock()
	due := time.Since(s.lastSnapshotPublish) >= 200*time.Millisecond
	if due {
		s.lastSnapshotPublish = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}
	s.events.PublishSnapshot(s.Snapshot())
}

// Snapshot returns the current top-K candidates ordered by descending
// EMASNRDB (spec §6).
func (s *Scanner) Snapshot() []candidate.Candidate {
	all := s.store.List()
	sort.Slice(all, func(i, j int) bool { return all[i].EMASNRDB > all[j].EMASNRDB })
	k := s.cfg.SnapshotTopK
	if k <= 0 || k > len(all) {
		k = len(all)
	}
	return all[:k]
}
