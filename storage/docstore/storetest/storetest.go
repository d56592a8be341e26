// Package storetest checks that a core.DocStore honors the store contract. Every backend runs it.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presensi/core"
)

// Collections lists the collections the contract writes to; backends empty them between runs.
var Collections = []string{"storetest_docs", "storetest_ledger"}

// Opener returns an empty store limited to maxBatchSize writes per batch.
type Opener func(t *testing.T, maxBatchSize int) core.DocStore

type ref struct {
	NISN string `json:"nisn"`
	Nama string `json:"nama"`
}

func get(t *testing.T, store core.DocStore, coll, id string) map[string]interface{} {
	doc, err := store.Get(context.Background(), coll, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())
	var m map[string]interface{}
	require.NoError(t, doc.Decode(&m))
	return m
}

func ids(docs []core.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID())
	}
	return out
}

// Run runs the contract against stores returned by open.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()
	docs, ledger := Collections[0], Collections[1]

	t.Run("set and merge", func(t *testing.T) {
		store := open(t, 10)

		_, err := store.Get(ctx, docs, "a")
		assert.Equal(t, core.ErrDocNotFound, errors.Cause(err))

		require.NoError(t, store.Set(ctx, docs, "a", map[string]interface{}{"nama": "A", "tingkat": 10}))
		require.NoError(t, store.Set(ctx, docs, "a", map[string]interface{}{"tingkat": 11}, core.Merge))
		assert.Equal(t, map[string]interface{}{"nama": "A", "tingkat": float64(11)}, get(t, store, docs, "a"))

		require.NoError(t, store.Set(ctx, docs, "a", ref{NISN: "1", Nama: "Budi"}))
		assert.Equal(t, map[string]interface{}{"nisn": "1", "nama": "Budi"}, get(t, store, docs, "a"))

		require.NoError(t, store.Set(ctx, docs, "b", map[string]interface{}{"x": true}, core.Merge))
		assert.Equal(t, map[string]interface{}{"x": true}, get(t, store, docs, "b"))
	})

	t.Run("update nested paths", func(t *testing.T) {
		store := open(t, 10)

		err := store.Update(ctx, ledger, "c_2024_03", []core.FieldUpdate{core.SetField("history.01", []ref{})})
		assert.Equal(t, core.ErrDocNotFound, errors.Cause(err))

		require.NoError(t, store.Update(ctx, ledger, "c_2024_03", []core.FieldUpdate{
			core.SetField("class_id", "c"),
			core.SetField("history.01", []ref{{NISN: "1", Nama: "S"}}),
		}, core.Upsert))
		require.NoError(t, store.Update(ctx, ledger, "c_2024_03", []core.FieldUpdate{
			core.SetField("class_id", "c"),
			core.SetField("history.02", []ref{}),
		}, core.Upsert))
		require.NoError(t, store.Update(ctx, ledger, "c_2024_03", []core.FieldUpdate{core.SetField("note", "x")}))
		require.NoError(t, store.Update(ctx, ledger, "c_2024_03", []core.FieldUpdate{core.DeleteField("note")}))

		want := map[string]interface{}{
			"class_id": "c",
			"history": map[string]interface{}{
				"01": []interface{}{map[string]interface{}{"nisn": "1", "nama": "S"}},
				"02": []interface{}{},
			},
		}
		if diff := cmp.Diff(want, get(t, store, ledger, "c_2024_03")); diff != "" {
			t.Errorf("document mismatch (-want +got):\n%s", diff)
		}

		for _, path := range []string{"", "history..01", "history.$x"} {
			assert.Error(t, store.Update(ctx, ledger, "c_2024_03", []core.FieldUpdate{core.SetField(path, 1)}), path)
		}
	})

	t.Run("concurrent first writes", func(t *testing.T) {
		store := open(t, 10)
		days := []string{"01", "02", "03", "04", "05", "06", "07", "08"}

		var wg sync.WaitGroup
		errs := make(chan error, 2*len(days))
		for _, day := range days {
			wg.Add(2)
			go func(day string) {
				defer wg.Done()
				errs <- store.Update(ctx, ledger, "c_2024_04", []core.FieldUpdate{
					core.SetField("class_id", "c"),
					core.SetField(core.FieldPath("history", day), []ref{{NISN: day, Nama: "A"}}),
				}, core.Upsert)
			}(day)
			go func(day string) {
				defer wg.Done()
				errs <- store.Set(ctx, docs, "merged", map[string]interface{}{"d" + day: day}, core.Merge)
			}(day)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		history, ok := get(t, store, ledger, "c_2024_04")["history"].(map[string]interface{})
		require.True(t, ok)
		merged := get(t, store, docs, "merged")
		assert.Len(t, history, len(days))
		assert.Len(t, merged, len(days))
		for _, day := range days {
			assert.Equal(t, []interface{}{map[string]interface{}{"nisn": day, "nama": "A"}}, history[day], day)
			assert.Equal(t, day, merged["d"+day], day)
		}
	})

	t.Run("array union and remove", func(t *testing.T) {
		store := open(t, 10)
		require.NoError(t, store.Set(ctx, docs, "r", map[string]interface{}{"refs": []ref{{"1", "A"}}}))

		require.NoError(t, store.Update(ctx, docs, "r", []core.FieldUpdate{
			core.ArrayUnion("refs", ref{"1", "A"}, ref{"2", "B"}),
			core.ArrayUnion("tags", "x"),
		}))
		assert.Equal(t, []interface{}{
			map[string]interface{}{"nisn": "1", "nama": "A"},
			map[string]interface{}{"nisn": "2", "nama": "B"},
		}, get(t, store, docs, "r")["refs"])
		assert.Equal(t, []interface{}{"x"}, get(t, store, docs, "r")["tags"])

		// removal matches by value: a tuple differing in one field stays
		require.NoError(t, store.Update(ctx, docs, "r", []core.FieldUpdate{
			core.ArrayRemove("refs", ref{"1", "A"}, ref{"2", "Other"}),
			core.ArrayRemove("missing", "x"),
		}))
		assert.Equal(t, []interface{}{map[string]interface{}{"nisn": "2", "nama": "B"}}, get(t, store, docs, "r")["refs"])

		// swap in one update
		require.NoError(t, store.Update(ctx, docs, "r", []core.FieldUpdate{
			core.ArrayRemove("refs", ref{"2", "B"}),
			core.ArrayUnion("refs", ref{"2", "Bee"}),
		}))
		assert.Equal(t, []interface{}{map[string]interface{}{"nisn": "2", "nama": "Bee"}}, get(t, store, docs, "r")["refs"])
		_, hasMissing := get(t, store, docs, "r")["missing"]
		assert.False(t, hasMissing)
	})

	t.Run("scan and query", func(t *testing.T) {
		store := open(t, 10)
		for id, d := range map[string]map[string]interface{}{
			"s3": {"rombel_id": "X-1", "nama": "Andi"},
			"s1": {"rombel_id": "X-1", "nama": "Citra"},
			"s2": {"rombel_id": "X-2", "nama": "Budi"},
			"s4": {"rombel_id": "X-1", "nama": "Budi", "tingkat": 10},
		} {
			require.NoError(t, store.Set(ctx, docs, id, d))
		}

		all, err := store.Scan(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(all))

		got, err := store.Query(ctx, docs, core.Query{Where: []core.Filter{{Field: "rombel_id", Value: "X-1"}}, OrderBy: "nama"})
		require.NoError(t, err)
		assert.Equal(t, []string{"s3", "s4", "s1"}, ids(got))

		got, err = store.Query(ctx, docs, core.Query{OrderBy: "nama", Descending: true})
		require.NoError(t, err)
		assert.Equal(t, "s1", ids(got)[0])
		assert.Equal(t, "s3", ids(got)[3])

		got, err = store.Query(ctx, docs, core.Query{Where: []core.Filter{{Field: "tingkat", Value: 10}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"s4"}, ids(got))

		empty, err := store.Scan(ctx, "storetest_none")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("commit", func(t *testing.T) {
		store := open(t, 3)
		assert.Equal(t, 3, store.MaxBatchSize())

		require.NoError(t, store.Set(ctx, docs, "gone", map[string]interface{}{"x": 1}))
		b := core.NewBatch().
			Set(docs, "a", map[string]interface{}{"n": 1}).
			Update(docs, "a", []core.FieldUpdate{core.SetField("m", 2)}).
			Delete(docs, "gone")
		require.NoError(t, store.Commit(ctx, b))
		assert.Equal(t, map[string]interface{}{"n": float64(1), "m": float64(2)}, get(t, store, docs, "a"))
		_, err := store.Get(ctx, docs, "gone")
		assert.Equal(t, core.ErrDocNotFound, errors.Cause(err))

		require.NoError(t, store.Commit(ctx, core.NewBatch().Delete(docs, "never")))
		require.NoError(t, store.Commit(ctx, core.NewBatch()))

		big := core.NewBatch()
		for _, id := range []string{"1", "2", "3", "4"} {
			big.Set(docs, id, map[string]interface{}{"id": id})
		}
		assert.Equal(t, core.ErrBatchTooLarge, store.Commit(ctx, big))
		_, err = store.Get(ctx, docs, "1")
		assert.Equal(t, core.ErrDocNotFound, errors.Cause(err))

		n, err := core.CommitChunked(ctx, store, big)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, map[string]interface{}{"id": "4"}, get(t, store, docs, "4"))
	})

	t.Run("delete", func(t *testing.T) {
		store := open(t, 10)
		require.NoError(t, store.Set(ctx, docs, "a", map[string]interface{}{"x": 1}))
		require.NoError(t, store.Delete(ctx, docs, "a"))
		require.NoError(t, store.Delete(ctx, docs, "a"))
		_, err := store.Get(ctx, docs, "a")
		assert.Equal(t, core.ErrDocNotFound, errors.Cause(err))
	})
}
