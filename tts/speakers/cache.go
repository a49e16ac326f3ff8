// Package speakers keeps the conditioning data of every reference voice in
// memory, keyed by the lower-cased file stem of its reference clip.
package speakers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/xtts-go/tts"
)

// Extractor derives conditioning from a reference clip. Every tts.Engine is
// an Extractor.
type Extractor interface {
	ExtractConditioning(ctx context.Context, ref tts.ReferenceAudio) (tts.Conditioning, error)
}

// FailedSpeaker is a reference file that could not be loaded.
type FailedSpeaker struct {
	Speaker string
	Path    string
	Err     error
}

// LoadReport describes the outcome of a reload.
type LoadReport struct {
	Loaded   []string
	Failed   []FailedSpeaker
	Duration time.Duration
}

// Cache maps speaker keys to conditioning. Reads run concurrently; a reload
// builds a fresh mapping and swaps it in whole, so readers see either the
// previous set or the new one.
type Cache struct {
	fs         afero.Fs
	dir        string
	extensions []string
	extractor  Extractor
	logger     *log.Logger

	loadMu sync.Mutex // one reload at a time

	mu       sync.RWMutex
	entries  map[string]tts.SpeakerConditioning
	order    []string
	onReload []func(LoadReport)
}

// New returns an empty cache reading reference clips from dir on fs.
func New(fs afero.Fs, cfg tts.SpeakersConfig, extractor Extractor, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	exts := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = []string{".wav"}
	}
	return &Cache{
		fs:         fs,
		dir:        cfg.Dir,
		extensions: exts,
		extractor:  extractor,
		logger:     logger.WithPrefix("speakers"),
		entries:    make(map[string]tts.SpeakerConditioning),
	}
}

// Dir returns the directory the cache loads from.
func (c *Cache) Dir() string {
	return c.dir
}

// OnReload registers fn to run after every successful swap.
func (c *Cache) OnReload(fn func(LoadReport)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReload = append(c.onReload, fn)
}

// Load enumerates the reference directory, extracts conditioning for every
// matching file and replaces the whole mapping.
//
// A file that fails to read or extract is skipped and listed in the report;
// the remaining speakers are still installed and the returned error wraps
// tts.ErrConditioningExtraction. A missing directory leaves an empty cache.
// Cancellation aborts the reload and keeps the previous mapping.
func (c *Cache) Load(ctx context.Context) (LoadReport, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	start := time.Now()
	var report LoadReport

	files, err := c.referenceFiles()
	if err != nil {
		return report, tts.NewTTSError(err, "speakers", "load").WithContext("dir", c.dir)
	}

	entries := make(map[string]tts.SpeakerConditioning, len(files))
	order := make([]string, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, tts.NewTTSError(fmt.Errorf("%w: %v", tts.ErrCanceled, err), "speakers", "load")
		}

		if _, dup := entries[file.speaker]; dup {
			c.logger.Warn("duplicate speaker key, keeping first", "speaker", file.speaker, "path", file.path)
			continue
		}

		cond, err := c.extract(ctx, file)
		if err != nil {
			c.logger.Error("failed to load speaker", "speaker", file.speaker, "path", file.path, "error", err)
			report.Failed = append(report.Failed, FailedSpeaker{Speaker: file.speaker, Path: file.path, Err: err})
			continue
		}

		entries[file.speaker] = tts.SpeakerConditioning{
			Speaker:      file.speaker,
			Conditioning: cond,
			Source:       file.path,
			LoadedAt:     start,
		}
		order = append(order, file.speaker)
		report.Loaded = append(report.Loaded, file.speaker)
		c.logger.Debug("speaker loaded", "speaker", file.speaker)
	}

	c.mu.Lock()
	c.entries = entries
	c.order = order
	hooks := append([]func(LoadReport){}, c.onReload...)
	c.mu.Unlock()

	report.Duration = time.Since(start)
	c.logger.Info("speakers loaded", "count", len(report.Loaded), "failed", len(report.Failed), "took", report.Duration)

	for _, fn := range hooks {
		fn(report)
	}

	if len(report.Failed) > 0 {
		names := make([]string, len(report.Failed))
		for i, f := range report.Failed {
			names[i] = f.Speaker
		}
		return report, tts.NewTTSError(tts.ErrConditioningExtraction, "speakers", "load").
			WithSeverity(tts.SeverityWarning).
			WithContext("failed", names)
	}
	return report, nil
}

type referenceFile struct {
	speaker string
	path    string
}

// referenceFiles lists matching files in lexical order.
func (c *Cache) referenceFiles() ([]referenceFile, error) {
	exists, err := afero.DirExists(c.fs, c.dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		c.logger.Warn("speakers directory not found, no voices available", "dir", c.dir)
		return nil, nil
	}

	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var files []referenceFile
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		ext := filepath.Ext(name)
		if !c.matches(ext) {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(name, ext))
		if stem == "" {
			continue
		}
		files = append(files, referenceFile{speaker: stem, path: filepath.Join(c.dir, name)})
	}
	return files, nil
}

func (c *Cache) matches(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (c *Cache) extract(ctx context.Context, file referenceFile) (tts.Conditioning, error) {
	data, err := afero.ReadFile(c.fs, file.path)
	if err != nil {
		return tts.Conditioning{}, fmt.Errorf("read reference: %w", err)
	}
	cond, err := c.extractor.ExtractConditioning(ctx, tts.ReferenceAudio{
		Speaker: file.speaker,
		Path:    file.path,
		Data:    data,
	})
	if err != nil {
		return tts.Conditioning{}, err
	}
	return cond, nil
}

// Get returns the conditioning for speaker, ignoring case.
func (c *Cache) Get(speaker string) (tts.SpeakerConditioning, bool) {
	key := strings.ToLower(strings.TrimSpace(speaker))
	c.mu.RLock()
	defer c.mu.RUnlock()
	cond, ok := c.entries[key]
	return cond, ok
}

// ListSpeakers returns the loaded keys in enumeration order.
func (c *Cache) ListSpeakers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of loaded speakers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
