package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const backupStampFormat = "20060102T150405.000Z"

// BackupInfo describes a written backup file
type BackupInfo struct {
	Collection string    `json:"collection"`
	Path       string    `json:"path"`
	Documents  int       `json:"documents"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// CollectionStats summarizes one collection file
type CollectionStats struct {
	Name      string    `json:"name"`
	Documents int       `json:"documents"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

// ListCollections returns the names of the collections present on disk
func (s *Store) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &common.StorageError{Op: "list", Collection: s.dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		if ValidName(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Exists reports whether the collection file is present
func (s *Store) Exists(name string) bool {
	if !ValidName(name) {
		return false
	}
	fi, err := os.Stat(s.path(name))
	return err == nil && fi.Mode().IsRegular()
}

// Clear empties a collection, keeping its file
func (s *Store) Clear(ctx context.Context, name string) (err error) {
	defer observe(name, "clear", time.Now(), &err)
	if err = checkName(name); err != nil {
		return err
	}
	if err = s.lock(ctx, name); err != nil {
		return err
	}
	defer s.unlock(name)

	if err = s.save(name, nil); err != nil {
		return err
	}
	s.log.Info().Str("collection", name).Msg("collection cleared")
	return nil
}

// Delete removes a collection file. Deleting an absent collection is not an error.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	defer observe(name, "delete", time.Now(), &err)
	if err = checkName(name); err != nil {
		return err
	}
	if err = s.lock(ctx, name); err != nil {
		return err
	}
	defer s.unlock(name)

	if rerr := os.Remove(s.path(name)); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		return &common.StorageError{Op: "delete", Collection: name, Err: rerr}
	}
	documentsGauge.DeleteLabelValues(name)
	s.log.Info().Str("collection", name).Msg("collection deleted")
	return nil
}

// Backup writes the current contents of a collection to a timestamped file
// in destDir. The live collection is not modified.
func (s *Store) Backup(ctx context.Context, name, destDir string) (info BackupInfo, err error) {
	defer observe(name, "backup", time.Now(), &err)

	docs, err := s.Read(ctx, name)
	if err != nil {
		return BackupInfo{}, err
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return BackupInfo{}, &common.StorageError{Op: "backup", Collection: name, Err: err}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return BackupInfo{}, &common.StorageError{Op: "backup", Collection: name, Err: err}
	}

	now := time.Now().UTC()
	path := filepath.Join(destDir, name+"_"+now.Format(backupStampFormat)+fileExt)
	if err := writeFileAtomic(path, data, s.opts.FileMode); err != nil {
		return BackupInfo{}, &common.StorageError{Op: "backup", Collection: name, Err: err}
	}

	info = BackupInfo{
		Collection: name,
		Path:       path,
		Documents:  len(docs),
		Size:       int64(len(data)),
		CreatedAt:  now,
	}
	s.log.Info().
		Str("collection", name).
		Str("path", path).
		Int("documents", info.Documents).
		Str("size", humanize.Bytes(uint64(info.Size))).
		Msg("collection backed up")
	return info, nil
}

// Stats reads every collection concurrently and reports its size
func (s *Store) Stats(ctx context.Context) ([]CollectionStats, error) {
	names, err := s.ListCollections()
	if err != nil {
		return nil, err
	}

	stats := make([]CollectionStats, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			docs, err := s.Read(gctx, name)
			if err != nil {
				return err
			}
			st := CollectionStats{Name: name, Documents: len(docs)}
			if fi, err := os.Stat(s.path(name)); err == nil {
				st.Size = fi.Size()
				st.ModTime = fi.ModTime().UTC()
			}
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
