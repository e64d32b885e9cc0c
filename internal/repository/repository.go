// Package repository provides typed record operations over collection storage.
// Every operation loads and scans the whole collection.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/google/uuid"
)

// Now is the clock used for record timestamps
var Now = func() time.Time { return time.Now().UTC() }

// Repository gives typed access to one collection. T is a pointer to a
// struct embedding domain.Record.
type Repository[T domain.Entity] struct {
	store    *storage.Store
	name     string
	tx       *storage.Tx
	notFound error
}

// New creates a Repository over the named collection
func New[T domain.Entity](store *storage.Store, name string) *Repository[T] {
	return &Repository[T]{store: store, name: name, notFound: notFoundFor(name)}
}

// WithTx returns a copy bound to a storage transaction. The collection must be
// one of the transaction's locked collections.
func (r *Repository[T]) WithTx(tx *storage.Tx) *Repository[T] {
	cp := *r
	cp.tx = tx
	return &cp
}

// Collection returns the collection name
func (r *Repository[T]) Collection() string { return r.name }

func notFoundFor(name string) error {
	switch name {
	case domain.CollectionUsers:
		return common.ErrUserNotFound
	case domain.CollectionPosts:
		return common.ErrPostNotFound
	case domain.CollectionComments:
		return common.ErrCommentNotFound
	case domain.CollectionConversations:
		return common.ErrConversationNotFound
	case domain.CollectionMessages:
		return common.ErrMessageNotFound
	case domain.CollectionNotifications:
		return common.ErrNotificationNotFound
	default:
		return &common.NotFoundError{Resource: name}
	}
}

func (r *Repository[T]) newRecord() T {
	var zero T
	return reflect.New(reflect.TypeOf(zero).Elem()).Interface().(T)
}

func (r *Repository[T]) decode(doc json.RawMessage) (T, error) {
	rec := r.newRecord()
	if err := json.Unmarshal(doc, rec); err != nil {
		var zero T
		return zero, &common.StorageError{Op: "decode", Collection: r.name, Err: err}
	}
	return rec, nil
}

func (r *Repository[T]) encode(rec T) (json.RawMessage, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, &common.StorageError{Op: "encode", Collection: r.name, Err: err}
	}
	return data, nil
}

// load returns the raw collection, through the transaction when bound
func (r *Repository[T]) load(ctx context.Context) ([]json.RawMessage, error) {
	if r.tx != nil {
		return r.tx.Read(r.name)
	}
	return r.store.Read(ctx, r.name)
}

// mutate runs fn over the collection under its lock and persists the result
// when fn reports a change.
func (r *Repository[T]) mutate(ctx context.Context, fn func(docs []json.RawMessage) ([]json.RawMessage, bool, error)) error {
	apply := func(tx *storage.Tx) error {
		docs, err := tx.Read(r.name)
		if err != nil {
			return err
		}
		out, changed, err := fn(docs)
		if err != nil || !changed {
			return err
		}
		return tx.Write(r.name, out)
	}
	if r.tx != nil {
		return apply(r.tx)
	}
	return r.store.Update(ctx, []string{r.name}, apply)
}

type idOnly struct {
	ID string `json:"id"`
}

func indexOf(docs []json.RawMessage, id string) int {
	for i, doc := range docs {
		var probe idOnly
		if json.Unmarshal(doc, &probe) == nil && probe.ID == id {
			return i
		}
	}
	return -1
}

// FindMany returns every record matching the filter, in stored order
func (r *Repository[T]) FindMany(ctx context.Context, filter Filter) ([]T, error) {
	m, err := filter.compile()
	if err != nil {
		return nil, common.NewValidationError("filter", err.Error())
	}
	docs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0)
	for _, doc := range docs {
		ok, err := m.match(doc)
		if err != nil {
			return nil, &common.StorageError{Op: "decode", Collection: r.name, Err: err}
		}
		if !ok {
			continue
		}
		rec, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindFunc returns every record for which keep reports true
func (r *Repository[T]) FindFunc(ctx context.Context, keep func(T) bool) ([]T, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, rec := range all {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindOne returns the first record matching the filter
func (r *Repository[T]) FindOne(ctx context.Context, filter Filter) (T, error) {
	var zero T
	m, err := filter.compile()
	if err != nil {
		return zero, common.NewValidationError("filter", err.Error())
	}
	docs, err := r.load(ctx)
	if err != nil {
		return zero, err
	}
	for _, doc := range docs {
		ok, err := m.match(doc)
		if err != nil {
			return zero, &common.StorageError{Op: "decode", Collection: r.name, Err: err}
		}
		if ok {
			return r.decode(doc)
		}
	}
	return zero, r.notFound
}

// FindByID returns the record with the given id
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	docs, err := r.load(ctx)
	if err != nil {
		return zero, err
	}
	if i := indexOf(docs, id); i >= 0 {
		return r.decode(docs[i])
	}
	return zero, r.notFound
}

// All returns every record in stored order
func (r *Repository[T]) All(ctx context.Context) ([]T, error) {
	return r.FindMany(ctx, nil)
}

// Count returns the number of records matching the filter
func (r *Repository[T]) Count(ctx context.Context, filter Filter) (int, error) {
	recs, err := r.FindMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Exists reports whether any record matches the filter
func (r *Repository[T]) Exists(ctx context.Context, filter Filter) (bool, error) {
	_, err := r.FindOne(ctx, filter)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Insert assigns a fresh id and both timestamps, appends the record and
// returns it
func (r *Repository[T]) Insert(ctx context.Context, rec T) (T, error) {
	meta := rec.Meta()
	now := Now()
	meta.ID = uuid.NewString()
	meta.CreatedAt = now
	meta.UpdatedAt = now

	doc, err := r.encode(rec)
	if err != nil {
		var zero T
		return zero, err
	}
	err = r.mutate(ctx, func(docs []json.RawMessage) ([]json.RawMessage, bool, error) {
		return append(docs, doc), true, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// Update merges fields into the record, refreshes updated_at and returns the
// result. id and created_at cannot be changed; fields the record type does not
// have are rejected.
func (r *Repository[T]) Update(ctx context.Context, id string, fields Fields) (T, error) {
	var zero T
	if err := r.checkFields(fields); err != nil {
		return zero, err
	}

	var updated T
	err := r.mutate(ctx, func(docs []json.RawMessage) ([]json.RawMessage, bool, error) {
		i := indexOf(docs, id)
		if i < 0 {
			return nil, false, r.notFound
		}
		var merged map[string]any
		if err := json.Unmarshal(docs[i], &merged); err != nil {
			return nil, false, &common.StorageError{Op: "decode", Collection: r.name, Err: err}
		}
		for k, v := range fields {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, false, common.NewValidationError("fields", err.Error())
		}
		rec, err := r.decode(data)
		if err != nil {
			return nil, false, err
		}
		rec.Meta().UpdatedAt = Now()
		doc, err := r.encode(rec)
		if err != nil {
			return nil, false, err
		}
		docs[i] = doc
		updated = rec
		return docs, true, nil
	})
	if err != nil {
		return zero, err
	}
	return updated, nil
}

// checkFields rejects immutable and unknown fields and values of the wrong type
func (r *Repository[T]) checkFields(fields Fields) error {
	for _, k := range []string{"id", "created_at"} {
		if _, ok := fields[k]; ok {
			return common.NewValidationError(k, "cannot be changed")
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return common.NewValidationError("fields", err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(r.newRecord()); err != nil {
		return common.NewValidationError("fields", err.Error())
	}
	return nil
}

// Modify applies fn to the stored record and persists the result. Changes
// fn makes to id or created_at are discarded.
func (r *Repository[T]) Modify(ctx context.Context, id string, fn func(T) error) (T, error) {
	var updated T
	err := r.mutate(ctx, func(docs []json.RawMessage) ([]json.RawMessage, bool, error) {
		i := indexOf(docs, id)
		if i < 0 {
			return nil, false, r.notFound
		}
		rec, err := r.decode(docs[i])
		if err != nil {
			return nil, false, err
		}
		if err := r.apply(rec, func(T) (bool, error) { return true, fn(rec) }); err != nil {
			return nil, false, err
		}
		doc, err := r.encode(rec)
		if err != nil {
			return nil, false, err
		}
		docs[i] = doc
		updated = rec
		return docs, true, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return updated, nil
}

// apply runs fn on rec, keeping identity fields and refreshing updated_at
// when fn reports a change
func (r *Repository[T]) apply(rec T, fn func(T) (bool, error)) error {
	meta := rec.Meta()
	id, created := meta.ID, meta.CreatedAt
	changed, err := fn(rec)
	if err != nil {
		return err
	}
	meta = rec.Meta()
	meta.ID, meta.CreatedAt = id, created
	if changed {
		meta.UpdatedAt = Now()
	}
	return nil
}

// UpdateMany runs fn on every record matching the filter and persists the
// ones fn reports as changed. It returns how many changed.
func (r *Repository[T]) UpdateMany(ctx context.Context, filter Filter, fn func(T) (bool, error)) (int, error) {
	m, err := filter.compile()
	if err != nil {
		return 0, common.NewValidationError("filter", err.Error())
	}

	n := 0
	err = r.mutate(ctx, func(docs []json.RawMessage) ([]json.RawMessage, bool, error) {
		for i, doc := range docs {
			ok, err := m.match(doc)
			if err != nil {
				return nil, false, &common.StorageError{Op: "decode", Collection: r.name, Err: err}
			}
			if !ok {
				continue
			}
			rec, err := r.decode(doc)
			if err != nil {
				return nil, false, err
			}
			changed := false
			if err := r.apply(rec, func(rec T) (bool, error) {
				var ferr error
				changed, ferr = fn(rec)
				return changed, ferr
			}); err != nil {
				return nil, false, err
			}
			if !changed {
				continue
			}
			if docs[i], err = r.encode(rec); err != nil {
				return nil, false, err
			}
			n++
		}
		return docs, n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Remove deletes the record with the given id and reports whether one was removed
func (r *Repository[T]) Remove(ctx context.Context, id string) (bool, error) {
	removed := false
	err := r.mutate(ctx, func(docs []json.RawMessage) ([]json.RawMessage, bool, error) {
		i := indexOf(docs, id)
		if i < 0 {
			return nil, false, nil
		}
		removed = true
		return append(docs[:i], docs[i+1:]...), true, nil
	})
	return removed, err
}

// RemoveWhere deletes every record for which pred reports true
func (r *Repository[T]) RemoveWhere(ctx context.Context, pred func(T) bool) (int, error) {
	n := 0
	err := r.mutate(ctx, func(docs []json.RawMessage) ([]json.RawMessage, bool, error) {
		kept := docs[:0]
		for _, doc := range docs {
			rec, err := r.decode(doc)
			if err != nil {
				return nil, false, err
			}
			if pred(rec) {
				n++
				continue
			}
			kept = append(kept, doc)
		}
		return kept, n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
