package candidate

import (
	"testing"
	"time"
)

func TestMemStoreUpsertAndGet(t *testing.T) {
	s := NewMemStore()
	now := time.Now()
	c := Candidate{FreqHz: 5806000000, EMASNRDB: 12, FirstSeen: now, LastSeen: now, Hits: 1, Status: StatusNew}
	s.Upsert(c)

	got, ok := s.Get(5806000000)
	if !ok {
		t.Fatal("expected candidate to be present")
	}
	if got.EMASNRDB != 12 {
		t.Errorf("EMASNRDB = %v, want 12", got.EMASNRDB)
	}

	if _, ok := s.Get(1); ok {
		t.Error("expected missing candidate to be absent")
	}
}

func TestMemStoreListReturnsAllUpserted(t *testing.T) {
	s := NewMemStore()
	freqs := []uint64{1, 2, 3}
	for _, f := range freqs {
		s.Upsert(Candidate{FreqHz: f})
	}
	list := s.List()
	if len(list) != len(freqs) {
		t.Fatalf("List() len = %d, want %d", len(list), len(freqs))
	}
}

func TestZeroValueMemStoreIsUsable(t *testing.T) {
	var s MemStore
	s.Upsert(Candidate{FreqHz: 42})
	if _, ok := s.Get(42); !ok {
		t.Fatal("expected zero-value MemStore to accept Upsert")
	}
}
