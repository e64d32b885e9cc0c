package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Tx is a read/write view over a fixed set of locked collections. Writes are
// staged in memory and committed when the update function returns nil.
type Tx struct {
	store    *Store
	names    []string
	original map[string][]json.RawMessage
	staged   map[string][]json.RawMessage
}

// Update locks every named collection, runs fn and commits what fn staged.
// If fn returns an error nothing is written. If a commit fails partway the
// collections already written are restored to their previous contents.
func (s *Store) Update(ctx context.Context, names []string, fn func(tx *Tx) error) (err error) {
	names = sortedUnique(names)
	if len(names) == 0 {
		return nil
	}
	defer observe(strings.Join(names, ","), "update", time.Now(), &err)

	for _, name := range names {
		if err := checkName(name); err != nil {
			return err
		}
	}

	release, err := s.lockAll(ctx, names)
	if err != nil {
		return err
	}
	defer release()

	tx := &Tx{
		store:    s,
		names:    names,
		original: make(map[string][]json.RawMessage, len(names)),
		staged:   make(map[string][]json.RawMessage, len(names)),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// Names returns the collections locked by this transaction
func (tx *Tx) Names() []string {
	return slices.Clone(tx.names)
}

// Holds reports whether the collection is locked by this transaction
func (tx *Tx) Holds(name string) bool {
	_, found := slices.BinarySearch(tx.names, name)
	return found
}

// Read returns the collection as seen by this transaction, including staged writes
func (tx *Tx) Read(name string) ([]json.RawMessage, error) {
	if !tx.Holds(name) {
		return nil, fmt.Errorf("read %q: %w", name, ErrNotLocked)
	}
	if docs, ok := tx.staged[name]; ok {
		return slices.Clone(docs), nil
	}
	docs, err := tx.snapshot(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(docs), nil
}

// Write stages the new contents of a collection
func (tx *Tx) Write(name string, docs []json.RawMessage) error {
	if !tx.Holds(name) {
		return fmt.Errorf("write %q: %w", name, ErrNotLocked)
	}
	if _, err := tx.snapshot(name); err != nil {
		return err
	}
	tx.staged[name] = slices.Clone(docs)
	return nil
}

// snapshot loads the pre-transaction contents once
func (tx *Tx) snapshot(name string) ([]json.RawMessage, error) {
	if docs, ok := tx.original[name]; ok {
		return docs, nil
	}
	docs, err := tx.store.load(name)
	if err != nil {
		return nil, err
	}
	tx.original[name] = docs
	return docs, nil
}

func (tx *Tx) commit() error {
	committed := make([]string, 0, len(tx.staged))
	for _, name := range tx.names {
		docs, ok := tx.staged[name]
		if !ok {
			continue
		}
		if err := tx.store.save(name, docs); err != nil {
			tx.rollback(committed, name)
			return err
		}
		committed = append(committed, name)
	}
	return nil
}

func (tx *Tx) rollback(committed []string, failed string) {
	log := tx.store.log
	for _, name := range committed {
		if err := tx.store.save(name, tx.original[name]); err != nil {
			rollbackFailures.Inc()
			log.Error().
				Err(err).
				Str("collection", name).
				Str("failed_collection", failed).
				Msg("rollback failed, reconciliation required")
			continue
		}
		log.Warn().
			Str("collection", name).
			Str("failed_collection", failed).
			Msg("transaction rolled back")
	}
}

func sortedUnique(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
