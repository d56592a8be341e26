package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore/storetest"
	"github.com/trezcool/presensi/tests"
)

// Set PRESENSI_TEST_MONGO_URI to run against a live server, e.g. "mongodb://localhost:27017".
// PRESENSI_TEST_MONGO_TX=1 also runs the transactional mode (replica set required).
func openTestDB(t *testing.T, maxBatchSize int) *DB {
	uri := os.Getenv("PRESENSI_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PRESENSI_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	conf := core.MongoConfig{
		URI:         uri,
		Database:    "presensi_test",
		Timeout:     5 * time.Second,
		Transaction: os.Getenv("PRESENSI_TEST_MONGO_TX") == "1",
	}
	db, err := Open(ctx, conf, maxBatchSize, testutil.NewLogger(t))
	require.NoError(t, err)
	for _, coll := range storetest.Collections {
		require.NoError(t, db.Drop(ctx, coll))
	}
	t.Cleanup(func() { _ = db.Close(ctx) })
	return db
}

func TestDB_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, maxBatchSize int) core.DocStore {
		return openTestDB(t, maxBatchSize)
	})
}

func TestUpdateStages(t *testing.T) {
	tests := []struct {
		name    string
		updates []core.FieldUpdate
		want    []bson.D
		wantErr bool
	}{
		{
			name: "disjoint paths share a stage",
			updates: []core.FieldUpdate{
				core.SetField("class_id", "c"),
				core.SetField("history.01", []string{}),
				core.DeleteField("note"),
			},
			want: []bson.D{{
				{Key: "$set", Value: bson.D{{Key: "class_id", Value: "c"}, {Key: "history.01", Value: bson.A{}}}},
				{Key: "$unset", Value: bson.D{{Key: "note", Value: ""}}},
			}},
		},
		{
			name: "same path is split",
			updates: []core.FieldUpdate{
				core.ArrayRemove("refs", "a"),
				core.ArrayUnion("refs", "b"),
			},
			want: []bson.D{
				{{Key: "$pullAll", Value: bson.D{{Key: "refs", Value: bson.A{"a"}}}}},
				{{Key: "$addToSet", Value: bson.D{{Key: "refs", Value: bson.D{{Key: "$each", Value: bson.A{"b"}}}}}}},
			},
		},
		{
			name: "nested path is split",
			updates: []core.FieldUpdate{
				core.SetField("history", map[string]interface{}{}),
				core.SetField("history.02", []string{}),
			},
			want: []bson.D{
				{{Key: "$set", Value: bson.D{{Key: "history", Value: bson.D{}}}}},
				{{Key: "$set", Value: bson.D{{Key: "history.02", Value: bson.A{}}}}},
			},
		},
		{
			name:    "invalid path",
			updates: []core.FieldUpdate{core.SetField("history..01", 1)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := updateStages(tt.updates)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBSONConversion(t *testing.T) {
	v := map[string]interface{}{"nama": "Budi", "nisn": "1", "tags": []interface{}{"x", float64(2)}}
	d := toBSON(v)
	assert.Equal(t, bson.D{
		{Key: "nama", Value: "Budi"},
		{Key: "nisn", Value: "1"},
		{Key: "tags", Value: bson.A{"x", float64(2)}},
	}, d)
	assert.Equal(t, v, fromBSON(d))
	assert.Equal(t, float64(3), fromBSON(int32(3)))
}

func TestHelloReply_supportsTransactions(t *testing.T) {
	tests := []struct {
		name  string
		reply helloReply
		want  bool
	}{
		{"standalone", helloReply{}, false},
		{"replica set member", helloReply{SetName: "rs0"}, true},
		{"mongos", helloReply{Msg: "isdbgrid"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reply.supportsTransactions())
		})
	}
}
