package preview

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
)

func newTestStore(t *testing.T, body string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accel.cfg")
	if body != "" {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write profile: %v", err)
		}
	}
	return NewStore(path, accel.CanonicalKeys())
}

func TestStore_LoadAndSnapshot(t *testing.T) {
	s := newTestStore(t, "base=2\npower=oops\n")
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, fallbacks := s.Snapshot()
	if p.Base() != 2 || p.Power() != 2.0 {
		t.Errorf("unexpected profile: %v", accel.ProfileToMapping(p))
	}
	if len(fallbacks) != 1 || fallbacks[0].Key != accel.KeyPower {
		t.Errorf("unexpected fallbacks: %v", fallbacks)
	}
}

func TestStore_LoadMissingKeepsDefaults(t *testing.T) {
	s := newTestStore(t, "")
	if err := s.Load(); !errors.Is(err, accel.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if p, _ := s.Snapshot(); !p.Equal(accel.Defaults()) {
		t.Errorf("expected defaults after failed load")
	}
}

func TestStore_SaveThenReloadIfChanged(t *testing.T) {
	s := newTestStore(t, "")

	p := accel.Defaults()
	_ = p.Set(accel.KeyAccelRate, 0.3)
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Snapshot(); !got.Equal(p) {
		t.Errorf("save did not update snapshot")
	}

	// Our own save is not an external change.
	if changed, err := s.ReloadIfChanged(); err != nil || changed {
		t.Fatalf("expected no change after own save, got changed=%v err=%v", changed, err)
	}

	if err := os.WriteFile(s.Path(), []byte("base=5\n"), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	changed, err := s.ReloadIfChanged()
	if err != nil || !changed {
		t.Fatalf("expected reload after external edit, got changed=%v err=%v", changed, err)
	}
	if got, _ := s.Snapshot(); got.Base() != 5 || got.AccelRate() != 0 {
		t.Errorf("unexpected profile after reload: %v", accel.ProfileToMapping(got))
	}
}

func TestStore_ReloadIfChanged_MissingFile(t *testing.T) {
	s := newTestStore(t, "")
	if changed, err := s.ReloadIfChanged(); err != nil || changed {
		t.Errorf("missing file should be no change, got changed=%v err=%v", changed, err)
	}
}

func TestStore_SaveFailure(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing", "accel.cfg"), accel.CanonicalKeys())
	p := accel.Defaults()
	_ = p.Set(accel.KeyBase, 9)

	if err := s.Save(p); !errors.Is(err, accel.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if got, _ := s.Snapshot(); got.Base() != 1 {
		t.Errorf("failed save must not change the snapshot")
	}
}
