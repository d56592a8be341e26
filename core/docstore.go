package core

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrDocNotFound   = errors.New("document not found")
	ErrBatchTooLarge = errors.New("batch exceeds the store's maximum batch size")
	ErrInvalidPath   = errors.New("invalid field path")
)

// WriteOption alters Set and Update.
type WriteOption int

const (
	// Merge makes Set merge the top-level fields of data into an existing document instead of overwriting it.
	Merge WriteOption = iota + 1
	// Upsert makes Update create the document when it does not exist instead of failing with ErrDocNotFound.
	Upsert
)

func HasOption(opts []WriteOption, opt WriteOption) bool {
	for _, o := range opts {
		if o == opt {
			return true
		}
	}
	return false
}

type UpdateKind int

const (
	UpdateSet UpdateKind = iota + 1
	UpdateDelete
	UpdateArrayUnion
	UpdateArrayRemove
)

// FieldUpdate is one partial-merge instruction targeting a dotted field path.
type FieldUpdate struct {
	Path  string
	Kind  UpdateKind
	Value interface{}   // UpdateSet
	Elems []interface{} // UpdateArrayUnion | UpdateArrayRemove
}

// SetField replaces the value at path, creating intermediate maps as needed.
func SetField(path string, value interface{}) FieldUpdate {
	return FieldUpdate{Path: path, Kind: UpdateSet, Value: value}
}

// DeleteField removes the value at path.
func DeleteField(path string) FieldUpdate {
	return FieldUpdate{Path: path, Kind: UpdateDelete}
}

// ArrayUnion appends each element not already present (deep equality) to the array at path.
func ArrayUnion(path string, elems ...interface{}) FieldUpdate {
	return FieldUpdate{Path: path, Kind: UpdateArrayUnion, Elems: elems}
}

// ArrayRemove removes every element deep-equal to one of elems from the array at path.
func ArrayRemove(path string, elems ...interface{}) FieldUpdate {
	return FieldUpdate{Path: path, Kind: UpdateArrayRemove, Elems: elems}
}

// FieldPath joins path segments with ".".
func FieldPath(segments ...string) string {
	return strings.Join(segments, ".")
}

// SplitPath validates and splits a dotted field path.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" || strings.HasPrefix(p, "$") {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value interface{}
}

type Query struct {
	Where      []Filter // AND
	OrderBy    string   // top-level field; empty orders by document ID
	Descending bool
}

// Document is a stored document.
type Document interface {
	ID() string
	// Decode unmarshals the document into v, using the `json`/`bson` tags of v.
	Decode(v interface{}) error
}

type WriteOp int

const (
	OpSet WriteOp = iota + 1
	OpUpdate
	OpDelete
)

type Write struct {
	Op         WriteOp
	Collection string
	ID         string
	Data       interface{}   // OpSet
	Updates    []FieldUpdate // OpUpdate
	Options    []WriteOption
}

// Batch is an ordered list of writes committed atomically by DocStore.Commit.
// Reads are not part of a Batch.
type Batch struct {
	writes []Write
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Set(collection, id string, data interface{}, opts ...WriteOption) *Batch {
	b.writes = append(b.writes, Write{Op: OpSet, Collection: collection, ID: id, Data: data, Options: opts})
	return b
}

func (b *Batch) Update(collection, id string, updates []FieldUpdate, opts ...WriteOption) *Batch {
	b.writes = append(b.writes, Write{Op: OpUpdate, Collection: collection, ID: id, Updates: updates, Options: opts})
	return b
}

func (b *Batch) Delete(collection, id string) *Batch {
	b.writes = append(b.writes, Write{Op: OpDelete, Collection: collection, ID: id})
	return b
}

func (b *Batch) Len() int {
	return len(b.writes)
}

func (b *Batch) Writes() []Write {
	return b.writes
}

// Split chunks the batch into batches of at most size writes, keeping the write order.
func (b *Batch) Split(size int) []*Batch {
	if size <= 0 || len(b.writes) <= size {
		return []*Batch{b}
	}
	chunks := make([]*Batch, 0, len(b.writes)/size+1)
	for start := 0; start < len(b.writes); start += size {
		end := start + size
		if end > len(b.writes) {
			end = len(b.writes)
		}
		chunks = append(chunks, &Batch{writes: b.writes[start:end]})
	}
	return chunks
}

// DocStore is a schemaless document database.
// Every single-document operation is atomic; Commit is atomic across documents.
type DocStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data interface{}, opts ...WriteOption) error
	Update(ctx context.Context, collection, id string, updates []FieldUpdate, opts ...WriteOption) error
	Delete(ctx context.Context, collection, id string) error
	Scan(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Commit(ctx context.Context, batch *Batch) error
	MaxBatchSize() int
	Close(ctx context.Context) error
}

// CommitChunked commits b in chunks of at most store.MaxBatchSize() writes.
// Each chunk is atomic; the chunks are committed in order and the first failure stops the rest.
func CommitChunked(ctx context.Context, store DocStore, b *Batch) (committed int, err error) {
	for _, chunk := range b.Split(store.MaxBatchSize()) {
		if err = store.Commit(ctx, chunk); err != nil {
			return committed, err
		}
		committed += chunk.Len()
	}
	return committed, nil
}
