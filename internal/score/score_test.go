package score

import (
	"testing"
	"time"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewEngine(Config{BasePoints: 100, ComboWindow: 3 * time.Second}, store), store
}

func TestFirstMatchStartsCombo(t *testing.T) {
	e, _ := newTestEngine(t)
	earned := e.OnMatch(1000)
	st := e.State()
	if earned != 100 || st.Current != 100 || st.Combo != 1 {
		t.Fatalf("expected 100 points at combo 1, got earned=%d state=%+v", earned, st)
	}
	if st.LastMatch != 1000 {
		t.Fatalf("expected last match 1000, got %v", st.LastMatch)
	}
}

func TestComboWithinWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	e.OnMatch(10)
	e.OnMatch(12)
	e.OnMatch(15) // exactly on the window edge still counts
	st := e.State()
	if st.Combo != 3 {
		t.Fatalf("expected combo 3, got %d", st.Combo)
	}
	if st.Current != 100+200+300 {
		t.Fatalf("expected 600, got %d", st.Current)
	}
}

func TestComboResetsOutsideWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	e.OnMatch(10)
	e.OnMatch(11)
	e.OnMatch(14.5)
	if got := e.State().Combo; got != 1 {
		t.Fatalf("expected combo reset to 1, got %d", got)
	}
}

func TestMismatchBreaksComboAndPenalizes(t *testing.T) {
	e, _ := newTestEngine(t)
	e.OnMatch(10)
	e.OnMatch(11)
	e.OnMismatch()
	st := e.State()
	if st.Combo != 0 {
		t.Fatalf("expected combo 0, got %d", st.Combo)
	}
	if st.Current != 300-25 {
		t.Fatalf("expected 275, got %d", st.Current)
	}
	// inside the window, but the broken combo restarts at 1
	e.OnMatch(12)
	if got := e.State().Combo; got != 1 {
		t.Fatalf("expected combo 1 after mismatch, got %d", got)
	}
}

func TestMismatchClampsAtZero(t *testing.T) {
	e, _ := newTestEngine(t)
	e.OnMismatch()
	e.OnMismatch()
	if got := e.State().Current; got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestBestScorePersistsOnFlush(t *testing.T) {
	e, store := newTestEngine(t)
	e.OnMatch(10)
	if store.Writes() != 0 {
		t.Fatal("a match should not write to the store by itself")
	}
	e.Flush()
	if got := store.GetInt(DefaultBestKey, -1); got != 100 {
		t.Fatalf("expected stored best 100, got %d", got)
	}
	e.OnMismatch()
	writes := store.Writes()
	e.OnGameOver()
	e.Flush()
	if store.Writes() != writes {
		t.Fatal("game over below best should not write")
	}
	if got := e.State().Best; got != 100 {
		t.Fatalf("expected best 100, got %d", got)
	}
}

func TestTakePendingBest(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, ok := e.TakePendingBest(); ok {
		t.Fatal("fresh engine should have nothing pending")
	}
	e.OnMatch(10)
	e.OnMatch(11)
	best, ok := e.TakePendingBest()
	if !ok || best != 300 {
		t.Fatalf("expected pending best 300, got %d %v", best, ok)
	}
	if _, ok := e.TakePendingBest(); ok {
		t.Fatal("pending best should be taken once")
	}
}

func TestStoredBestNeverDecreases(t *testing.T) {
	store := NewMemoryStore()
	cfg := Config{BasePoints: 100, ComboWindow: 3 * time.Second}
	a := NewEngine(cfg, store)
	b := NewEngine(cfg, store) // created before a sets its best

	a.OnMatch(10)
	a.OnMatch(11)
	a.OnMatch(12)
	a.Flush()
	if got := store.GetInt(DefaultBestKey, 0); got != 600 {
		t.Fatalf("expected stored best 600, got %d", got)
	}

	b.OnMatch(10)
	b.Flush()
	if got := store.GetInt(DefaultBestKey, 0); got != 600 {
		t.Fatalf("stored best went down to %d", got)
	}
	if got := b.State().Best; got != 600 {
		t.Fatalf("expected b to pick up the stored best, got %d", got)
	}

	// an old snapshot's highScore does not lower the store either
	c := NewEngine(cfg, store)
	c.Load(State{Current: 150, Best: 150})
	c.OnMatch(100)
	c.Flush()
	if got := store.GetInt(DefaultBestKey, 0); got != 600 {
		t.Fatalf("stored best went down to %d after restore", got)
	}
}

func TestBestScoreSurvivesReset(t *testing.T) {
	e, store := newTestEngine(t)
	e.OnMatch(10)
	e.Flush()
	e.Reset()
	st := e.State()
	if st.Current != 0 || st.Combo != 0 || st.Best != 100 {
		t.Fatalf("unexpected state after reset: %+v", st)
	}

	e2 := NewEngine(Config{BasePoints: 100, ComboWindow: 3 * time.Second}, store)
	if got := e2.State().Best; got != 100 {
		t.Fatalf("expected best loaded from store, got %d", got)
	}
}

func TestLoadIsVerbatim(t *testing.T) {
	e, store := newTestEngine(t)
	want := State{Current: 40, Best: 900, Combo: 2, LastMatch: 55.5}
	e.Load(want)
	if got := e.State(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if store.Writes() != 0 {
		t.Fatal("load should not touch the store")
	}
	e.OnMatch(57)
	if got := e.State().Combo; got != 3 {
		t.Fatalf("expected loaded combo to continue, got %d", got)
	}
}

func TestSystemClockMonotonic(t *testing.T) {
	c := SystemClock()
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	if b <= a {
		t.Fatalf("expected clock to advance, got %v then %v", a, b)
	}
	if a < float64(time.Now().Add(-time.Hour).Unix()) {
		t.Fatalf("expected epoch-anchored seconds, got %v", a)
	}
}
