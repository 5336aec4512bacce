package library

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/comicarc/pkg/comic/tuner"
)

// progressInterval throttles OnProgress callbacks.
const progressInterval = 100 * time.Millisecond

// ScanOptions configures a Scanner.
type ScanOptions struct {
	// Root is the directory to scan.
	Root string

	// Workers bounds how many containers are opened at once. Zero picks a
	// count from the machine's cores.
	Workers int

	// Force re-indexes containers whose records are still fresh.
	Force bool

	// Prune deletes records under Root whose containers are gone.
	Prune bool

	// OnProgress is called with progress snapshots from worker goroutines.
	OnProgress func(Progress)
}

// DefaultScanOptions returns options for scanning root.
func DefaultScanOptions(root string) ScanOptions {
	return ScanOptions{
		Root:    root,
		Workers: tuner.Auto().ScanWorkers,
		Prune:   true,
	}
}

// Validate fills in defaults for unset fields.
func (o *ScanOptions) Validate() error {
	if o.Root == "" {
		return os.ErrInvalid
	}
	if o.Workers < 1 {
		o.Workers = tuner.Auto().ScanWorkers
	}
	return nil
}

// Progress is a snapshot of a running scan.
type Progress struct {
	DirsScanned int64  `json:"dirs_scanned"`
	Found       int64  `json:"found"`
	Indexed     int64  `json:"indexed"`
	Skipped     int64  `json:"skipped"`
	Failed      int64  `json:"failed"`
	CurrentPath string `json:"current_path"`
}

// ScanError pairs a container path with the reason it could not be indexed.
type ScanError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ScanResult summarizes a completed scan.
type ScanResult struct {
	Root        string        `json:"root"`
	DirsScanned int64         `json:"dirs_scanned"`
	Found       int64         `json:"found"`
	Indexed     int64         `json:"indexed"`
	Skipped     int64         `json:"skipped"`
	Failed      int64         `json:"failed"`
	Removed     []string      `json:"removed,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	Errors      []ScanError   `json:"errors,omitempty"`
}

// Scanner walks a directory tree and indexes every container in it.
type Scanner struct {
	opts    ScanOptions
	indexer *Indexer

	dirsScanned atomic.Int64
	found       atomic.Int64
	indexed     atomic.Int64
	skipped     atomic.Int64
	failed      atomic.Int64

	currentPath  atomic.Value
	lastProgress atomic.Int64

	errors   []ScanError
	errorsMu sync.Mutex

	candidates   []string
	candidatesMu sync.Mutex
}

// NewScanner creates a Scanner that records into ix.
func NewScanner(ix *Indexer, opts ScanOptions) *Scanner {
	s := &Scanner{opts: opts, indexer: ix}
	s.currentPath.Store("")
	return s
}

// Scan walks the root, indexes stale containers and optionally prunes
// records for containers that disappeared. Per-container failures are
// collected in the result; only walk and cancellation errors are returned.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	start := time.Now()

	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	root, err := validateRoot(s.opts.Root)
	if err != nil {
		return nil, err
	}

	s.currentPath.Store(root)
	s.reportProgressForce()

	if err := s.walk(ctx, root); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, path := range s.candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.process(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScanResult{
		Root:        root,
		DirsScanned: s.dirsScanned.Load(),
		Found:       s.found.Load(),
		Indexed:     s.indexed.Load(),
		Skipped:     s.skipped.Load(),
		Failed:      s.failed.Load(),
		Errors:      s.errors,
	}

	if s.opts.Prune {
		removed, err := s.indexer.validator.Prune(root)
		if err != nil {
			s.addError(root, err)
		}
		result.Removed = removed
		result.Errors = s.errors
	}

	s.reportProgressForce()
	result.Elapsed = time.Since(start)
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, root string) error {
	conf := fastwalk.Config{Follow: false}

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		<-walkCtx.Done()
		close(done)
	}()

	err := fastwalk.Walk(&conf, root, s.walkCallback(root, done))
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return err
	}
	return ctx.Err()
}

func (s *Scanner) walkCallback(root string, done <-chan struct{}) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		select {
		case <-done:
			return fastwalk.ErrSkipFiles
		default:
		}

		if err != nil {
			s.addError(path, err)
			return nil
		}

		if d.IsDir() {
			s.dirsScanned.Add(1)
			s.currentPath.Store(path)
			s.reportProgress()
		}

		info, err := d.Info()
		if err != nil {
			s.addError(path, err)
			return nil
		}
		if !IsContainer(path, info) {
			return nil
		}

		s.found.Add(1)
		s.candidatesMu.Lock()
		s.candidates = append(s.candidates, path)
		s.candidatesMu.Unlock()

		// Folder containers are indexed as a unit.
		if d.IsDir() && path != root {
			return fastwalk.SkipDir
		}
		return nil
	}
}

func (s *Scanner) process(ctx context.Context, path string) {
	s.currentPath.Store(path)
	defer s.reportProgress()

	if !s.opts.Force {
		fresh, err := s.indexer.Fresh(path)
		if err != nil {
			s.failed.Add(1)
			s.addError(path, err)
			return
		}
		if fresh {
			s.skipped.Add(1)
			return
		}
	}

	if _, err := s.indexer.IndexPath(ctx, path); err != nil {
		s.failed.Add(1)
		s.addError(path, err)
		s.indexer.log.Warn("index failed", "path", path, "error", err)
		return
	}
	s.indexed.Add(1)
}

// Progress returns the current counters.
func (s *Scanner) Progress() Progress {
	current, _ := s.currentPath.Load().(string)
	return Progress{
		DirsScanned: s.dirsScanned.Load(),
		Found:       s.found.Load(),
		Indexed:     s.indexed.Load(),
		Skipped:     s.skipped.Load(),
		Failed:      s.failed.Load(),
		CurrentPath: current,
	}
}

func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}
	now := time.Now().UnixNano()
	last := s.lastProgress.Load()
	if now-last < int64(progressInterval) {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return
	}
	s.opts.OnProgress(s.Progress())
}

func (s *Scanner) reportProgressForce() {
	if s.opts.OnProgress == nil {
		return
	}
	s.lastProgress.Store(time.Now().UnixNano())
	s.opts.OnProgress(s.Progress())
}

func (s *Scanner) addError(path string, err error) {
	s.errorsMu.Lock()
	s.errors = append(s.errors, ScanError{Path: path, Error: err.Error()})
	s.errorsMu.Unlock()
}

func validateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", os.ErrInvalid
	}
	return abs, nil
}
