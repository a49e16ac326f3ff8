package cache

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/xtts-go/tts"
)

func newTestManager(t *testing.T, memCap int64) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m, err := NewManager(fs, Config{
		MemoryCapacity:   memCap,
		DiskCapacity:     1 << 20,
		Dir:              "/cache",
		CompressionLevel: 3,
	}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, fs
}

func TestKeyFor(t *testing.T) {
	base := tts.SynthesisRequest{Text: "Olá.", Voice: "Kratos"}
	k := KeyFor(base, "wav")

	if k.Voice != "kratos" {
		t.Errorf("Expected normalized voice, got %q", k.Voice)
	}
	if k.Hash() != KeyFor(tts.SynthesisRequest{Text: "Olá.", Voice: " kratos "}, "wav").Hash() {
		t.Error("Equivalent requests should share a key")
	}

	variants := []Key{
		KeyFor(base, "alaw"),
		KeyFor(tts.SynthesisRequest{Text: "Olá!", Voice: "Kratos"}, "wav"),
		KeyFor(tts.SynthesisRequest{Text: "Olá.", Voice: "Kratos", BoundarySilenceMs: 50}, "wav"),
		KeyFor(tts.SynthesisRequest{Text: "Olá.", Voice: "Kratos", Language: "pt"}, "wav"),
	}
	for _, v := range variants {
		if v.Hash() == k.Hash() {
			t.Errorf("Expected distinct hash for %+v", v)
		}
	}
}

func TestManagerPutGet(t *testing.T) {
	m, _ := newTestManager(t, 1<<10)
	key := Key{Text: "a", Voice: "v", Format: "wav"}

	if err := m.Put(key, []byte("rendered")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := m.Get(key)
	if !ok || string(got) != "rendered" {
		t.Fatalf("Expected rendered, got %q", got)
	}

	if err := m.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := m.Get(key); ok {
		t.Error("Entry survived Delete")
	}
}

func TestManagerPromotesDiskHits(t *testing.T) {
	m, _ := newTestManager(t, 100)
	small := Key{Text: "small"}
	m.Put(small, make([]byte, 60))
	// pushes small out of memory
	m.Put(Key{Text: "other"}, make([]byte, 60))

	if m.memory.Contains(small.Hash()) {
		t.Fatal("Expected small to be evicted from memory")
	}
	if _, ok := m.Get(small); !ok {
		t.Fatal("Expected disk hit")
	}
	if !m.memory.Contains(small.Hash()) {
		t.Error("Disk hit was not promoted")
	}

	stats := m.Stats()
	if len(stats) != 2 || stats[1].Level != LevelDisk || stats[1].Hits != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestManagerLargeValueGoesToDisk(t *testing.T) {
	m, _ := newTestManager(t, 10)
	key := Key{Text: "long"}
	if err := m.Put(key, make([]byte, 100)); err != nil {
		t.Fatalf("Put should fall back to disk: %v", err)
	}
	if _, ok := m.Get(key); !ok {
		t.Error("Expected disk hit")
	}
}

func TestManagerClear(t *testing.T) {
	m, _ := newTestManager(t, 1<<10)
	key := Key{Text: "a"}
	m.Put(key, []byte("x"))

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := m.Get(key); ok {
		t.Error("Entry survived Clear")
	}
}

func TestManagerMemoryOnly(t *testing.T) {
	m, err := NewManager(afero.NewMemMapFs(), Config{MemoryCapacity: 100}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if len(m.Stats()) != 1 {
		t.Error("Expected memory tier only")
	}
	if err := m.Put(Key{Text: "big"}, make([]byte, 200)); err != ErrItemTooLarge {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
}

func TestManagerClosed(t *testing.T) {
	m, _ := newTestManager(t, 100)
	m.Close()
	if err := m.Put(Key{Text: "a"}, []byte("x")); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}
