package chainsync

import (
	"context"
	"testing"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
	"github.com/cardano-dex/batcher-monitor/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBlock(t *testing.T, s *store.Store, slot uint64, hash string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginBlock(ctx)
	if err != nil {
		t.Fatalf("BeginBlock: %v", err)
	}
	v := value.New()
	v.Set(value.Lovelace, 1)
	id := hash + "#0"
	if err := tx.UpsertUtxo(store.Utxo{ID: id, Owner: "addr", Value: v, CreatedSlot: slot, BlockHash: hash}); err != nil {
		t.Fatalf("UpsertUtxo: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestRollbackEngineWalksBackwards(t *testing.T) {
	s := openTestStore(t)
	seedBlock(t, s, 98, "h98")
	seedBlock(t, s, 99, "h99")
	seedBlock(t, s, 100, "h100")

	eng, err := NewRollbackEngine(s)
	if err != nil {
		t.Fatalf("NewRollbackEngine: %v", err)
	}
	p, err := eng.PrevBlock()
	if err != nil {
		t.Fatalf("PrevBlock: %v", err)
	}
	if p.Slot != 99 || p.Hash != "h99" {
		t.Fatalf("got %+v, want slot 99/h99", p)
	}
	p, err = eng.PrevBlock()
	if err != nil {
		t.Fatalf("PrevBlock: %v", err)
	}
	if p.Slot != 98 || p.Hash != "h98" {
		t.Fatalf("got %+v, want slot 98/h98", p)
	}
}

func TestRollbackEngineExceedsCap(t *testing.T) {
	s := openTestStore(t)
	seedBlock(t, s, 0, "h0")
	seedBlock(t, s, MaxAllowedRollbackSlots+1, "hFar")

	eng, err := NewRollbackEngine(s)
	if err != nil {
		t.Fatalf("NewRollbackEngine: %v", err)
	}
	_, err = eng.PrevBlock()
	if _, ok := err.(*ExceededRollbackError); !ok {
		t.Fatalf("got %v (%T), want *ExceededRollbackError", err, err)
	}
}

func TestRollbackTruncatesStore(t *testing.T) {
	s := openTestStore(t)
	seedBlock(t, s, 98, "h98")
	seedBlock(t, s, 99, "h99")
	seedBlock(t, s, 100, "h100")

	if err := Rollback(context.Background(), s, 98); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	slot, hash, ok, err := s.FindMaxSlotBlock()
	if err != nil {
		t.Fatalf("FindMaxSlotBlock: %v", err)
	}
	if !ok || slot != 98 || hash != "h98" {
		t.Fatalf("got slot=%d hash=%s ok=%v, want 98/h98", slot, hash, ok)
	}
}

func TestStartupRollbackOnEmptyStoreIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := StartupRollback(context.Background(), s); err != nil {
		t.Fatalf("StartupRollback: %v", err)
	}
}

func TestStartupRollbackDropsLastBlock(t *testing.T) {
	s := openTestStore(t)
	seedBlock(t, s, 98, "h98")
	seedBlock(t, s, 99, "h99")

	if err := StartupRollback(context.Background(), s); err != nil {
		t.Fatalf("StartupRollback: %v", err)
	}
	slot, hash, ok, err := s.FindMaxSlotBlock()
	if err != nil {
		t.Fatalf("FindMaxSlotBlock: %v", err)
	}
	if !ok || slot != 98 || hash != "h98" {
		t.Fatalf("got slot=%d hash=%s ok=%v, want 98/h98", slot, hash, ok)
	}
}
