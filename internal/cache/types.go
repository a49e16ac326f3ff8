package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/xtts-go/tts"
)

var (
	// ErrNotFound is returned when a key has no entry.
	ErrNotFound = errors.New("cache entry not found")

	// ErrItemTooLarge is returned when a value exceeds a tier's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")
)

// Level identifies a storage tier.
type Level int

const (
	LevelMemory Level = iota + 1
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Key identifies one rendered output. Every field that changes the produced
// bytes takes part in the hash.
type Key struct {
	Text              string
	Voice             string
	Language          string
	BoundarySilenceMs int
	Format            string
}

// KeyFor builds the cache key of a request rendered in format.
func KeyFor(req tts.SynthesisRequest, format string) Key {
	req = req.WithDefaults()
	return Key{
		Text:              req.Text,
		Voice:             strings.ToLower(strings.TrimSpace(req.Voice)),
		Language:          req.Language,
		BoundarySilenceMs: req.BoundarySilenceMs,
		Format:            format,
	}
}

// Hash returns the hex sha256 of the key fields.
func (k Key) Hash() string {
	h := sha256.New()
	for _, part := range []string{k.Text, k.Voice, k.Language, strconv.Itoa(k.BoundarySilenceMs), k.Format} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stats reports usage of one tier.
type Stats struct {
	Level     Level
	Entries   int
	Size      int64
	Capacity  int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate is hits over lookups, zero before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config sizes the tiers. A zero DiskCapacity disables the disk tier.
type Config struct {
	MemoryCapacity   int64
	DiskCapacity     int64
	Dir              string
	CompressionLevel int
	TTL              time.Duration
	CleanupInterval  time.Duration
}

// ConfigFrom converts user settings, resolving dir for the disk tier.
func ConfigFrom(cfg tts.CacheConfig, dir string) Config {
	return Config{
		MemoryCapacity:   int64(cfg.MemoryCapacityMB) << 20,
		DiskCapacity:     int64(cfg.DiskCapacityMB) << 20,
		Dir:              dir,
		CompressionLevel: cfg.CompressionLevel,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}
