package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/cwsl/vtxcore/internal/candidate"
	"github.com/cwsl/vtxcore/internal/iqsource"
)

func raceband() []uint64 {
	return []uint64{5658000000, 5695000000, 5732000000, 5769000000, 5806000000, 5843000000, 5880000000, 5917000000}
}

func TestSyntheticScannerSingleSweepFindsHotChannel(t *testing.T) {
	hot := uint64(5806000000)
	src := iqsource.NewSynthetic(hot, 1)
	store := candidate.NewMemStore()

	cfg := Config{
		Channels:     raceband(),
		DwellMS:      5,
		SampleRate:   8_000_000,
		BandwidthHz:  8_000_000,
		MinSNRDB:     6,
		EMAAlpha:     0.5,
		AlertHits:    3,
		AlertWindow:  5,
		SnapshotTopK: 3,
	}
	sc := New(cfg, src, store, nil, nil)

	for sweep := 0; sweep < 5; sweep++ {
		for _, f := range cfg.Channels {
			sc.sweepChannel(f)
		}
	}

	hotC, ok := store.Get(hot)
	if !ok {
		t.Fatal("expected hot channel candidate to be present")
	}
	other, ok := store.Get(cfg.Channels[0])
	if !ok {
		t.Fatal("expected cold channel candidate to be present")
	}
	if hotC.EMASNRDB-other.EMASNRDB < 3 {
		t.Errorf("hot channel EMA SNR %v not >= 3dB above cold channel %v", hotC.EMASNRDB, other.EMASNRDB)
	}
	if hotC.Status != candidate.StatusActive {
		t.Errorf("hot channel status = %v, want active after 5 sweeps with AlertHits=3", hotC.Status)
	}
}

func TestEMAConvergesToConstantRawValue(t *testing.T) {
	src := iqsource.NewSynthetic(0, 1)
	store := candidate.NewMemStore()
	cfg := Config{
		Channels:     []uint64{5806000000},
		DwellMS:      5,
		SampleRate:   8_000_000,
		BandwidthHz:  8_000_000,
		MinSNRDB:     6,
		EMAAlpha:     0.1,
		AlertHits:    3,
		AlertWindow:  5,
		SnapshotTopK: 1,
	}
	sc := New(cfg, src, store, nil, nil)

	freq := cfg.Channels[0]
	cs := &channelState{initialized: true, emaSNRDB: 0, firstSeen: time.Now()}
	sc.state[freq] = cs
	for i := 0; i < 50; i++ {
		cs.emaSNRDB = (1-cfg.EMAAlpha)*cs.emaSNRDB + cfg.EMAAlpha*20
	}
	if cs.emaSNRDB < 19.5 || cs.emaSNRDB > 20.5 {
		t.Errorf("ema_snr = %v, want in [19.5, 20.5] after 50 updates toward 20 at alpha=0.1", cs.emaSNRDB)
	}
}

func TestSnapshotOrdersByDescendingEMASNR(t *testing.T) {
	store := candidate.NewMemStore()
	store.Upsert(candidate.Candidate{FreqHz: 1, EMASNRDB: 5})
	store.Upsert(candidate.Candidate{FreqHz: 2, EMASNRDB: 15})
	store.Upsert(candidate.Candidate{FreqHz: 3, EMASNRDB: 10})

	sc := New(Config{Channels: []uint64{1}, SnapshotTopK: 2}, nil, store, nil, nil)
	snap := sc.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	if snap[0].FreqHz != 2 || snap[1].FreqHz != 3 {
		t.Errorf("snapshot order = %+v, want freq 2 then freq 3", snap)
	}
}

type recordingPublisher struct {
	calls int
}

func (r *recordingPublisher) PublishSnapshot(_ []candidate.Candidate) { r.calls++ }

func TestRunStopsOnContextCancel(t *testing.T) {
	src := iqsource.NewSynthetic(0, 1)
	store := candidate.NewMemStore()
	pub := &recordingPublisher{}
	cfg := Config{
		Channels:     []uint64{5806000000, 5843000000},
		DwellMS:      1,
		SampleRate:   8_000_000,
		BandwidthHz:  8_000_000,
		MinSNRDB:     6,
		EMAAlpha:     0.5,
		AlertHits:    3,
		AlertWindow:  5,
		SnapshotTopK: 2,
	}
	sc := New(cfg, src, store, nil, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sc.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
