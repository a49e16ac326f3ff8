package cache

import (
	"encoding/gob"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

const indexFile = "cache.index"

// Disk persists entries as zstd frames, one file per key, with a gob index
// so a restart does not need to stat every file.
type Disk struct {
	fs       afero.Fs
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	size  int64
	index map[string]*diskEntry
	stats Stats
}

type diskEntry struct {
	File       string
	Size       int64
	RawSize    int64
	Created    time.Time
	LastAccess time.Time
}

// NewDisk opens or creates a disk tier under dir on fs.
func NewDisk(fs afero.Fs, dir string, capacity int64, level int) (*Disk, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if level <= 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	d := &Disk{
		fs:       fs,
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*diskEntry),
	}
	d.loadIndex()
	return d, nil
}

// Get decompresses the stored value.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}
	compressed, err := afero.ReadFile(d.fs, filepath.Join(d.dir, e.File))
	if err != nil {
		d.drop(key)
		d.stats.Misses++
		return nil, false
	}
	value, err := d.decoder.DecodeAll(compressed, nil)
	if err != nil {
		d.drop(key)
		d.stats.Misses++
		return nil, false
	}
	e.LastAccess = time.Now()
	d.stats.Hits++
	return value, true
}

// Put compresses and writes value, evicting the least recently accessed
// files until it fits.
func (d *Disk) Put(key string, value []byte) error {
	compressed := d.encoder.EncodeAll(value, nil)
	n := int64(len(compressed))
	if n > d.capacity {
		return ErrItemTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[key]; ok {
		d.drop(key)
	}
	for d.size+n > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	name := key + ".zst"
	path := filepath.Join(d.dir, name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(d.fs, tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := d.fs.Rename(tmp, path); err != nil {
		d.fs.Remove(tmp)
		return fmt.Errorf("commit cache file: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{File: name, Size: n, RawSize: int64(len(value)), Created: now, LastAccess: now}
	d.size += n
	return d.saveIndex()
}

// Delete removes key if present.
func (d *Disk) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[key]; !ok {
		return nil
	}
	d.drop(key)
	return d.saveIndex()
}

// Clear removes every file and the index.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.index {
		d.drop(key)
	}
	return d.saveIndex()
}

// Prune removes entries created before cutoff.
func (d *Disk) Prune(cutoff time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for key, e := range d.index {
		if e.Created.Before(cutoff) {
			d.drop(key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, d.saveIndex()
}

// Stats returns a snapshot of tier usage.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Level = LevelDisk
	s.Entries = len(d.index)
	s.Size = d.size
	s.Capacity = d.capacity
	return s
}

// Close flushes the index and releases the codecs.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.saveIndex()
	d.encoder.Close()
	d.decoder.Close()
	return err
}

// drop removes key from the index and disk. Caller holds d.mu.
func (d *Disk) drop(key string) {
	e := d.index[key]
	delete(d.index, key)
	d.size -= e.Size
	_ = d.fs.Remove(filepath.Join(d.dir, e.File))
}

func (d *Disk) evictOldest() {
	keys := make([]string, 0, len(d.index))
	for k := range d.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return d.index[keys[i]].LastAccess.Before(d.index[keys[j]].LastAccess)
	})
	d.drop(keys[0])
	d.stats.Evictions++
}

func (d *Disk) loadIndex() {
	f, err := d.fs.Open(filepath.Join(d.dir, indexFile))
	if err != nil {
		return
	}
	defer f.Close()

	index := make(map[string]*diskEntry)
	if err := gob.NewDecoder(f).Decode(&index); err != nil {
		return
	}
	for key, e := range index {
		info, err := d.fs.Stat(filepath.Join(d.dir, e.File))
		if err != nil || info.Size() != e.Size {
			continue
		}
		d.index[key] = e
		d.size += e.Size
	}
}

func (d *Disk) saveIndex() error {
	path := filepath.Join(d.dir, indexFile)
	tmp := path + ".tmp"
	f, err := d.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(d.index); err != nil {
		f.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return d.fs.Rename(tmp, path)
}
