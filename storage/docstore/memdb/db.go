// Package memdb is an in-memory core.DocStore used in development and tests.
package memdb

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore"
)

type (
	DB struct {
		sync.RWMutex
		collections  map[string]collection
		maxBatchSize int
	}

	collection map[string]map[string]interface{}

	docKey struct {
		collection string
		id         string
	}
)

var _ core.DocStore = (*DB)(nil) // interface compliance check

func Open(maxBatchSize int) (*DB, error) {
	db := &DB{
		collections:  make(map[string]collection),
		maxBatchSize: maxBatchSize,
	}
	return db, nil
}

func (db *DB) doc(coll, id string) map[string]interface{} {
	if c, ok := db.collections[coll]; ok {
		return c[id]
	}
	return nil
}

func (db *DB) put(coll, id string, data map[string]interface{}) {
	c, ok := db.collections[coll]
	if !ok {
		c = make(collection)
		db.collections[coll] = c
	}
	if data == nil {
		delete(c, id)
		return
	}
	c[id] = data
}

func (db *DB) write(w core.Write) error {
	next, err := docstore.Apply(db.doc(w.Collection, w.ID), w)
	if err != nil {
		return err
	}
	db.put(w.Collection, w.ID, next)
	return nil
}

func (db *DB) Get(_ context.Context, coll, id string) (core.Document, error) {
	db.RLock()
	defer db.RUnlock()

	data := db.doc(coll, id)
	if data == nil {
		return nil, core.ErrDocNotFound
	}
	return docstore.NewJSONDocument(id, data)
}

func (db *DB) Set(_ context.Context, coll, id string, data interface{}, opts ...core.WriteOption) error {
	db.Lock()
	defer db.Unlock()
	return db.write(core.Write{Op: core.OpSet, Collection: coll, ID: id, Data: data, Options: opts})
}

func (db *DB) Update(_ context.Context, coll, id string, updates []core.FieldUpdate, opts ...core.WriteOption) error {
	db.Lock()
	defer db.Unlock()
	return db.write(core.Write{Op: core.OpUpdate, Collection: coll, ID: id, Updates: updates, Options: opts})
}

func (db *DB) Delete(_ context.Context, coll, id string) error {
	db.Lock()
	defer db.Unlock()
	return db.write(core.Write{Op: core.OpDelete, Collection: coll, ID: id})
}

func (db *DB) entries(coll string) []docstore.Entry {
	c := db.collections[coll]
	entries := make([]docstore.Entry, 0, len(c))
	for id, data := range c {
		entries = append(entries, docstore.Entry{ID: id, Data: data})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

func toDocuments(entries []docstore.Entry) ([]core.Document, error) {
	docs := make([]core.Document, 0, len(entries))
	for _, e := range entries {
		doc, err := docstore.NewJSONDocument(e.ID, e.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (db *DB) Scan(_ context.Context, coll string) ([]core.Document, error) {
	db.RLock()
	defer db.RUnlock()
	return toDocuments(db.entries(coll))
}

func (db *DB) Query(_ context.Context, coll string, q core.Query) ([]core.Document, error) {
	db.RLock()
	defer db.RUnlock()

	entries, err := docstore.Select(db.entries(coll), q)
	if err != nil {
		return nil, err
	}
	return toDocuments(entries)
}

// Commit applies the batch to a staging copy first; nothing is kept when a write fails.
func (db *DB) Commit(_ context.Context, batch *core.Batch) error {
	if batch.Len() > db.maxBatchSize {
		return core.ErrBatchTooLarge
	}

	db.Lock()
	defer db.Unlock()

	staged := make(map[docKey]map[string]interface{}, batch.Len())
	order := make([]docKey, 0, batch.Len())
	for _, w := range batch.Writes() {
		key := docKey{collection: w.Collection, id: w.ID}
		current, ok := staged[key]
		if !ok {
			current = db.doc(w.Collection, w.ID)
			order = append(order, key)
		}
		next, err := docstore.Apply(current, w)
		if err != nil {
			return err
		}
		staged[key] = next
	}

	for _, key := range order {
		db.put(key.collection, key.id, staged[key])
	}
	return nil
}

func (db *DB) MaxBatchSize() int {
	return db.maxBatchSize
}

func (db *DB) Close(context.Context) error {
	return nil
}

// Reset drops every collection.
func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()
	db.collections = make(map[string]collection)
}
