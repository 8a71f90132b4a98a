package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/shop-harvester/internal/product"
)

// Store owns the done-set, the in-memory result list, and the processed
// counter as one logical unit under a single mutex. Mutations hold the lock
// briefly; no network I/O ever happens while it is held.
type Store struct {
	outputPath   string
	partialPath  string
	saveInterval int // 0 disables partial persistence
	overwrite    bool
	log          *zap.Logger
	now          func() time.Time

	mu        sync.Mutex
	done      map[string]struct{}
	results   []product.Record
	processed int
}

// NewStore builds a Store persisting to outputPath, with the partial
// snapshot next to it.
func NewStore(outputPath string, saveInterval int, overwrite bool, log *zap.Logger) *Store {
	return &Store{
		outputPath:   outputPath,
		partialPath:  PartialPath(outputPath),
		saveInterval: saveInterval,
		overwrite:    overwrite,
		log:          log,
		now:          time.Now,
		done:         make(map[string]struct{}),
	}
}

// PartialPath derives the partial snapshot path from the committed output
// path: results.csv → results_partial.csv.
func PartialPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "_partial" + ext
}

// Load seeds the done-set from a prior run's committed output and from a
// discovered partial snapshot. Partial records also seed the in-memory
// result set and the processed counter, so resume continues mid-interval.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	committed, err := ReadRecords(s.outputPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read committed output: %w", err)
	}
	for _, rec := range committed {
		s.done[rec.Key()] = struct{}{}
	}

	partial, err := ReadRecords(s.partialPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read partial snapshot: %w", err)
	}
	for _, rec := range partial {
		if _, seen := s.done[rec.Key()]; seen {
			continue
		}
		s.done[rec.Key()] = struct{}{}
		s.results = append(s.results, rec)
	}
	s.processed = len(s.results)

	if len(committed) > 0 || len(partial) > 0 {
		s.log.Info("checkpoint loaded",
			zap.Int("committed", len(committed)),
			zap.Int("partial", len(partial)),
			zap.Int("already_done", len(s.done)))
	}
	return nil
}

// Reserve atomically checks whether the identifier is already done and, if
// not, marks it done before any network work starts. Two workers racing on a
// duplicate identifier cannot both win.
func (s *Store) Reserve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.done[id]; seen {
		return false
	}
	s.done[id] = struct{}{}
	return true
}

// FilterPending returns the identifiers not yet done, preserving order.
// Purely advisory; workers still Reserve before fetching.
func (s *Store) FilterPending(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, seen := s.done[id]; !seen {
			pending = append(pending, id)
		}
	}
	return pending
}

// Record appends a result, bumps the processed counter, and persists a
// partial snapshot when the counter crosses the configured interval.
// Records are append-only; dedup happens only at persistence boundaries.
func (s *Store) Record(rec product.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, rec)
	s.processed++

	if s.saveInterval > 0 && s.processed%s.saveInterval == 0 {
		if err := s.persistPartialLocked(); err != nil {
			// Partial snapshots are best-effort; the run continues.
			s.log.Error("partial persist failed", zap.Error(err))
		}
	}
	return nil
}

// PersistPartial writes the current deduplicated result set to the partial
// path. Called on cancellation; the partial file is deliberately left in
// place for the next run's resume.
func (s *Store) PersistPartial() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistPartialLocked()
}

func (s *Store) persistPartialLocked() error {
	if len(s.results) == 0 {
		return nil
	}
	deduped := Dedupe(s.results)
	if err := WriteRecords(s.partialPath, deduped); err != nil {
		return err
	}
	s.log.Info("partial snapshot written",
		zap.String("path", s.partialPath), zap.Int("records", len(deduped)))
	return nil
}

// Finalize runs the final stable dedup pass, writes the committed output,
// and removes the partial snapshot. When the committed file already exists
// and overwriting is disabled, the output lands under a timestamp-suffixed
// name instead. Returns the committed path, or "" when there was nothing to
// commit.
func (s *Store) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) == 0 {
		s.log.Warn("no results to commit")
		return "", nil
	}

	path := s.outputPath
	if _, err := os.Stat(path); err == nil && !s.overwrite {
		ext := filepath.Ext(path)
		stamp := s.now().Format("20060102_150405")
		path = strings.TrimSuffix(path, ext) + "_" + stamp + ext
	}

	deduped := Dedupe(s.results)
	if err := WriteRecords(path, deduped); err != nil {
		return "", fmt.Errorf("failed to write committed output: %w", err)
	}

	if err := os.Remove(s.partialPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove partial snapshot", zap.Error(err))
	}

	s.log.Info("committed output written",
		zap.String("path", path), zap.Int("records", len(deduped)))
	return path, nil
}

// Processed returns the processed counter.
func (s *Store) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// ResultCount returns the size of the in-memory result set, duplicates
// included.
func (s *Store) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Dedupe removes duplicate records by product number, keeping the first
// occurrence in append order.
func Dedupe(records []product.Record) []product.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]product.Record, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}
