// Package docstore holds the document mutation engine shared by the stores that keep
// documents as JSON objects (memdb, pgdb).
package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
)

var (
	ErrNotArray  = errors.New("field is not an array")
	ErrNotObject = errors.New("document data must be an object")
)

// Normalize converts v to its generic JSON form (map[string]interface{}, []interface{}, string, float64, bool, nil).
func Normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling value")
	}
	var out interface{}
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshalling value")
	}
	return out, nil
}

// NormalizeObject is Normalize for document data, which must be a JSON object.
func NormalizeObject(v interface{}) (map[string]interface{}, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	obj, ok := n.(map[string]interface{})
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// Copy deep-copies a normalized value.
func Copy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CopyObject(val)
	case []interface{}:
		arr := make([]interface{}, len(val))
		for i, e := range val {
			arr[i] = Copy(e)
		}
		return arr
	default:
		return val
	}
}

func CopyObject(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		cp[k] = Copy(v)
	}
	return cp
}

// Apply computes the result of w against current (nil when the document does not exist).
// It returns the new document, or nil when w deletes it. current is never modified.
func Apply(current map[string]interface{}, w core.Write) (map[string]interface{}, error) {
	switch w.Op {
	case core.OpSet:
		data, err := NormalizeObject(w.Data)
		if err != nil {
			return nil, err
		}
		if current == nil || !core.HasOption(w.Options, core.Merge) {
			return data, nil
		}
		merged := CopyObject(current)
		for k, v := range data {
			merged[k] = v
		}
		return merged, nil

	case core.OpUpdate:
		if current == nil && !core.HasOption(w.Options, core.Upsert) {
			return nil, core.ErrDocNotFound
		}
		doc := CopyObject(current)
		if doc == nil {
			doc = make(map[string]interface{})
		}
		for _, upd := range w.Updates {
			if err := ApplyUpdate(doc, upd); err != nil {
				return nil, errors.Wrapf(err, "applying update on %q", upd.Path)
			}
		}
		return doc, nil

	case core.OpDelete:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown write op %d", w.Op)
}

// ApplyUpdate applies upd to doc in place.
func ApplyUpdate(doc map[string]interface{}, upd core.FieldUpdate) error {
	parts, err := core.SplitPath(upd.Path)
	if err != nil {
		return err
	}
	parent, key := walk(doc, parts, upd.Kind != core.UpdateDelete && upd.Kind != core.UpdateArrayRemove)
	if parent == nil {
		return nil // nothing to delete / remove from
	}

	switch upd.Kind {
	case core.UpdateSet:
		val, err := Normalize(upd.Value)
		if err != nil {
			return err
		}
		parent[key] = val

	case core.UpdateDelete:
		delete(parent, key)

	case core.UpdateArrayUnion:
		arr, err := arrayAt(parent, key)
		if err != nil {
			return err
		}
		for _, e := range upd.Elems {
			ne, err := Normalize(e)
			if err != nil {
				return err
			}
			if indexOf(arr, ne) < 0 {
				arr = append(arr, ne)
			}
		}
		parent[key] = arr

	case core.UpdateArrayRemove:
		if _, ok := parent[key]; !ok {
			return nil
		}
		arr, err := arrayAt(parent, key)
		if err != nil {
			return err
		}
		elems := make([]interface{}, 0, len(upd.Elems))
		for _, e := range upd.Elems {
			ne, err := Normalize(e)
			if err != nil {
				return err
			}
			elems = append(elems, ne)
		}
		kept := make([]interface{}, 0, len(arr))
		for _, v := range arr {
			if indexOf(elems, v) < 0 {
				kept = append(kept, v)
			}
		}
		parent[key] = kept

	default:
		return fmt.Errorf("unknown update kind %d", upd.Kind)
	}
	return nil
}

// walk returns the map holding the last path segment, creating (or replacing non-map) intermediates when create is set.
func walk(doc map[string]interface{}, parts []string, create bool) (map[string]interface{}, string) {
	curr := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := curr[p].(map[string]interface{})
		if !ok {
			if !create {
				return nil, ""
			}
			next = make(map[string]interface{})
			curr[p] = next
		}
		curr = next
	}
	return curr, parts[len(parts)-1]
}

func arrayAt(parent map[string]interface{}, key string) ([]interface{}, error) {
	v, ok := parent[key]
	if !ok || v == nil {
		return []interface{}{}, nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, ErrNotArray
	}
	return arr, nil
}

func indexOf(arr []interface{}, v interface{}) int {
	for i, e := range arr {
		if reflect.DeepEqual(e, v) {
			return i
		}
	}
	return -1
}

// Match reports whether doc satisfies every filter.
func Match(doc map[string]interface{}, filters []core.Filter) (bool, error) {
	for _, f := range filters {
		want, err := Normalize(f.Value)
		if err != nil {
			return false, err
		}
		if !reflect.DeepEqual(doc[f.Field], want) {
			return false, nil
		}
	}
	return true, nil
}

// Entry is a document with its ID, as kept by the JSON stores.
type Entry struct {
	ID   string
	Data map[string]interface{}
}

// Select filters and orders entries according to q. Entries are expected in ID order.
func Select(entries []Entry, q core.Query) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		ok, err := Match(e.Data, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	} else if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// compare orders nil < bool < number < string; other kinds compare equal.
func compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch va := a.(type) {
	case bool:
		vb := b.(bool)
		if va == vb {
			return 0
		}
		if !va {
			return -1
		}
		return 1
	case float64:
		vb := b.(float64)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
	case string:
		vb := b.(string)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
	}
	return 0
}

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

// JSONDocument is a core.Document backed by JSON bytes.
type JSONDocument struct {
	id  string
	raw []byte
}

var _ core.Document = (*JSONDocument)(nil) // interface compliance check

func NewJSONDocument(id string, data map[string]interface{}) (*JSONDocument, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling document")
	}
	return &JSONDocument{id: id, raw: raw}, nil
}

func RawJSONDocument(id string, raw []byte) *JSONDocument {
	return &JSONDocument{id: id, raw: raw}
}

func (doc *JSONDocument) ID() string { return doc.id }

func (doc *JSONDocument) Decode(v interface{}) error {
	return errors.Wrapf(json.Unmarshal(doc.raw, v), "decoding document %q", doc.id)
}

// Raw returns the JSON encoding of the document data.
func (doc *JSONDocument) Raw() []byte { return doc.raw }
