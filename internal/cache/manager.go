package cache

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// Manager fronts the disk tier with the memory tier. Disk hits are promoted.
type Manager struct {
	memory *Memory
	disk   *Disk // nil when the disk tier is disabled
	ttl    time.Duration
	logger *log.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

// NewManager builds the tiers described by cfg. The disk tier lives on fs
// under cfg.Dir.
func NewManager(fs afero.Fs, cfg Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		memory: NewMemory(cfg.MemoryCapacity),
		ttl:    cfg.TTL,
		logger: logger.WithPrefix("cache"),
		done:   make(chan struct{}),
	}
	if cfg.DiskCapacity > 0 && cfg.Dir != "" {
		disk, err := NewDisk(fs, cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		m.disk = disk
		m.logger.Debug("disk tier ready", "dir", cfg.Dir, "entries", disk.Stats().Entries)
	}

	if cfg.TTL > 0 && cfg.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(cfg.CleanupInterval)
	}
	return m, nil
}

// Get looks key up in memory, then on disk.
func (m *Manager) Get(key Key) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false
	}

	h := key.Hash()
	if v, ok := m.memory.Get(h); ok {
		return v, true
	}
	if m.disk == nil {
		return nil, false
	}
	v, ok := m.disk.Get(h)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(h, v); err != nil {
		m.logger.Debug("promotion skipped", "key", h[:12], "error", err)
	}
	return v, true
}

// Put stores value in every tier it fits.
func (m *Manager) Put(key Key, value []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	h := key.Hash()
	memErr := m.memory.Put(h, value)
	if m.disk == nil {
		return memErr
	}
	if err := m.disk.Put(h, value); err != nil {
		if memErr != nil {
			return err
		}
		m.logger.Warn("disk cache write failed", "key", h[:12], "error", err)
	}
	return nil
}

// Delete removes key from every tier.
func (m *Manager) Delete(key Key) error {
	h := key.Hash()
	m.memory.Delete(h)
	if m.disk != nil {
		return m.disk.Delete(h)
	}
	return nil
}

// Clear empties every tier.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk != nil {
		return m.disk.Clear()
	}
	return nil
}

// Stats returns one snapshot per active tier, memory first.
func (m *Manager) Stats() []Stats {
	stats := []Stats{m.memory.Stats()}
	if m.disk != nil {
		stats = append(stats, m.disk.Stats())
	}
	return stats
}

// Prune drops entries older than the configured TTL.
func (m *Manager) Prune() {
	if m.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.ttl)
	removed := m.memory.Prune(cutoff)
	if m.disk != nil {
		n, err := m.disk.Prune(cutoff)
		if err != nil {
			m.logger.Warn("disk prune failed", "error", err)
		}
		removed += n
	}
	if removed > 0 {
		m.logger.Debug("pruned expired entries", "removed", removed)
	}
}

// Close stops the cleanup loop and flushes the disk index.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		if m.disk != nil {
			err = m.disk.Close()
		}
	})
	return err
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Prune()
		}
	}
}
