// Package storage keeps every collection in one flat JSON file and serializes
// access to it with a per-collection lock.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultFileMode    = 0o644

	fileExt = ".json"
)

var collectionName = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

var (
	ErrCorruptCollection = errors.New("collection file is corrupt")
	ErrInvalidCollection = fmt.Errorf("invalid collection name: %w", common.ErrInvalidInput)
	ErrNotLocked         = errors.New("collection is not part of this transaction")

	// ErrLockTimeout is returned when a collection lock could not be taken in time.
	// It reports Timeout() == true.
	ErrLockTimeout error = lockTimeoutError{}
)

type lockTimeoutError struct{}

func (lockTimeoutError) Error() string { return "timed out waiting for collection lock" }
func (lockTimeoutError) Timeout() bool { return true }

// Options tunes a Store
type Options struct {
	// LockTimeout bounds how long an operation waits for a collection lock
	LockTimeout time.Duration
	// StrictDecode makes a corrupt collection an error instead of resetting it
	StrictDecode bool
	FileMode     fs.FileMode
	Logger       zerolog.Logger
}

// Store is a directory of collection files
type Store struct {
	dir  string
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// Open returns a Store rooted at dir. Call Init before first use.
func Open(dir string, opts Options) *Store {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.FileMode == 0 {
		opts.FileMode = DefaultFileMode
	}
	return &Store{
		dir:   dir,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "storage").Logger(),
		locks: make(map[string]*semaphore.Weighted),
	}
}

// Init makes sure the data directory exists
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &common.StorageError{Op: "init", Collection: s.dir, Err: err}
	}
	return nil
}

// Dir returns the data directory
func (s *Store) Dir() string { return s.dir }

// ValidName reports whether name is usable as a collection name
func ValidName(name string) bool {
	return collectionName.MatchString(name)
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidCollection)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

// Read returns every document of a collection. An absent collection is
// created empty.
func (s *Store) Read(ctx context.Context, name string) (docs []json.RawMessage, err error) {
	defer observe(name, "read", time.Now(), &err)
	if err = checkName(name); err != nil {
		return nil, err
	}
	if err = s.lock(ctx, name); err != nil {
		return nil, err
	}
	defer s.unlock(name)
	return s.load(name)
}

// Write replaces the whole collection with docs
func (s *Store) Write(ctx context.Context, name string, docs []json.RawMessage) (err error) {
	defer observe(name, "write", time.Now(), &err)
	if err = checkName(name); err != nil {
		return err
	}
	if err = s.lock(ctx, name); err != nil {
		return err
	}
	defer s.unlock(name)
	return s.save(name, docs)
}

// load reads a collection file. Callers must hold the collection lock.
func (s *Store) load(name string) ([]json.RawMessage, error) {
	path := s.path(name)

	var data []byte
	err := retryOnce(func() error {
		var rerr error
		data, rerr = os.ReadFile(path)
		return rerr
	})
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.save(name, nil); err != nil {
			return nil, err
		}
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, &common.StorageError{Op: "read", Collection: name, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		setDocuments(name, 0)
		return []json.RawMessage{}, nil
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return s.recoverCorrupt(name, err)
	}
	if docs == nil {
		docs = []json.RawMessage{}
	}
	setDocuments(name, len(docs))
	return docs, nil
}

// recoverCorrupt moves an unparseable file aside and starts the collection
// over, unless strict decoding is on.
func (s *Store) recoverCorrupt(name string, cause error) ([]json.RawMessage, error) {
	corruptCollections.WithLabelValues(name).Inc()
	if s.opts.StrictDecode {
		return nil, &common.StorageError{
			Op:         "decode",
			Collection: name,
			Err:        fmt.Errorf("%w: %v", ErrCorruptCollection, cause),
		}
	}

	quarantine := filepath.Join(s.dir, fmt.Sprintf("%s.corrupt-%s%s",
		name, time.Now().UTC().Format("20060102T150405.000000000Z"), fileExt))
	if err := os.Rename(s.path(name), quarantine); err != nil {
		return nil, &common.StorageError{Op: "quarantine", Collection: name, Err: err}
	}

	s.log.Error().
		Err(cause).
		Str("collection", name).
		Str("quarantine", quarantine).
		Msg("corrupt collection file quarantined, collection reset to empty")

	if err := s.save(name, nil); err != nil {
		return nil, err
	}
	return []json.RawMessage{}, nil
}

// save persists a collection atomically. Callers must hold the collection lock.
func (s *Store) save(name string, docs []json.RawMessage) error {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return &common.StorageError{Op: "encode", Collection: name, Err: err}
	}

	err = retryOnce(func() error {
		return writeFileAtomic(s.path(name), data, s.opts.FileMode)
	})
	if err != nil {
		s.log.Error().Err(err).Str("collection", name).Msg("collection write failed")
		return &common.StorageError{Op: "write", Collection: name, Err: err}
	}
	setDocuments(name, len(docs))
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it over
// path, so readers never see a partially written file.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// retryOnce runs op a second time when the first attempt fails for any
// reason other than a missing file.
func retryOnce(op func() error) error {
	err := op()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return err
	}
	retriedOps.Inc()
	return op()
}
