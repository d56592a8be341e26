// Package mongodb is a core.DocStore on MongoDB. A collection maps to a Mongo collection and a
// document ID to its _id.
package mongodb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore"
)

type DB struct {
	client       *mongo.Client
	db           *mongo.Database
	logger       core.Logger
	maxBatchSize int
	transaction  bool
}

var _ core.DocStore = (*DB)(nil) // interface compliance check

// Open connects to conf.URI and waits for the server to answer.
func Open(ctx context.Context, conf core.MongoConfig, maxBatchSize int, logger core.Logger) (*DB, error) {
	opts := options.Client().ApplyURI(conf.URI)
	if conf.Timeout > 0 {
		opts.SetConnectTimeout(conf.Timeout).SetServerSelectionTimeout(conf.Timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = ping(ctx, client); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	reply, err := hello(ctx, client)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if conf.Transaction && !reply.supportsTransactions() {
		_ = client.Disconnect(ctx)
		return nil, ErrNoTransactions
	}
	if !conf.Transaction {
		logger.Warn("mongo transactions are disabled: batches and multi-stage updates are NOT atomic", map[string]interface{}{"database": conf.Database})
	}
	logger.Info("connected to mongo", map[string]interface{}{"database": conf.Database, "transaction": conf.Transaction, "replicaSet": reply.SetName})
	return &DB{
		client:       client,
		db:           client.Database(conf.Database),
		logger:       logger,
		maxBatchSize: maxBatchSize,
		transaction:  conf.Transaction,
	}, nil
}

// ping waits for the server to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, client *mongo.Client) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = client.Ping(ctx, readpref.Primary()); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "mongo ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "mongo ping timeout")
}

// ErrNoTransactions is returned by Open when transactions are enabled but the server cannot run them.
var ErrNoTransactions = errors.New("mongo: transactions need a replica set or a sharded cluster (set mongo.transaction=false to run without atomic batches)")

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// supportsTransactions is false for standalone servers: only replica set members and mongos run transactions.
func (r helloReply) supportsTransactions() bool {
	return r.SetName != "" || r.Msg == "isdbgrid"
}

// hello describes the server topology. Servers older than 4.4.2 only know isMaster.
func hello(ctx context.Context, client *mongo.Client) (helloReply, error) {
	var reply helloReply
	admin := client.Database("admin")
	err := admin.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	if err != nil {
		err = admin.RunCommand(ctx, bson.D{{Key: "isMaster", Value: 1}}).Decode(&reply)
	}
	return reply, errors.Wrap(err, "describing mongo topology")
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func (db *DB) Get(ctx context.Context, coll, id string) (core.Document, error) {
	var m bson.M
	if err := db.db.Collection(coll).FindOne(ctx, byID(id)).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, core.ErrDocNotFound
		}
		return nil, errors.Wrap(err, "finding document")
	}
	return toDocument(m)
}

func (db *DB) Set(ctx context.Context, coll, id string, data interface{}, opts ...core.WriteOption) error {
	return db.write(ctx, core.Write{Op: core.OpSet, Collection: coll, ID: id, Data: data, Options: opts})
}

func (db *DB) Update(ctx context.Context, coll, id string, updates []core.FieldUpdate, opts ...core.WriteOption) error {
	w := core.Write{Op: core.OpUpdate, Collection: coll, ID: id, Updates: updates, Options: opts}
	stages, err := updateStages(updates)
	if err != nil {
		return err
	}
	if len(stages) > 1 {
		return db.inTransaction(ctx, func(ctx context.Context) error { return db.write(ctx, w) })
	}
	return db.write(ctx, w)
}

func (db *DB) Delete(ctx context.Context, coll, id string) error {
	return db.write(ctx, core.Write{Op: core.OpDelete, Collection: coll, ID: id})
}

func (db *DB) write(ctx context.Context, w core.Write) error {
	c := db.db.Collection(w.Collection)
	switch w.Op {
	case core.OpSet:
		data, err := docstore.NormalizeObject(w.Data)
		if err != nil {
			return err
		}
		delete(data, "_id")
		switch {
		case core.HasOption(w.Options, core.Merge) && len(data) == 0:
			return db.touch(ctx, c, w.ID, true)
		case core.HasOption(w.Options, core.Merge):
			_, err = c.UpdateOne(ctx, byID(w.ID), bson.D{{Key: "$set", Value: toBSON(data)}}, options.Update().SetUpsert(true))
		default:
			_, err = c.ReplaceOne(ctx, byID(w.ID), toBSON(data), options.Replace().SetUpsert(true))
		}
		return errors.Wrap(err, "setting document")

	case core.OpUpdate:
		stages, err := updateStages(w.Updates)
		if err != nil {
			return err
		}
		upsert := core.HasOption(w.Options, core.Upsert)
		for i, upd := range stages {
			res, err := c.UpdateOne(ctx, byID(w.ID), upd, options.Update().SetUpsert(upsert))
			if err != nil {
				return errors.Wrap(err, "updating document")
			}
			if i == 0 && res.MatchedCount == 0 && res.UpsertedCount == 0 {
				return core.ErrDocNotFound
			}
		}
		if len(stages) == 0 {
			return db.touch(ctx, c, w.ID, upsert)
		}
		return nil

	case core.OpDelete:
		_, err := c.DeleteOne(ctx, byID(w.ID))
		return errors.Wrap(err, "deleting document")
	}
	return errors.Errorf("unknown write op %d", w.Op)
}

// touch handles an update without field updates: it fails on a missing document, or creates it with upsert.
func (db *DB) touch(ctx context.Context, c *mongo.Collection, id string, upsert bool) error {
	if upsert {
		_, err := c.UpdateOne(ctx, byID(id), bson.D{{Key: "$setOnInsert", Value: byID(id)}}, options.Update().SetUpsert(true))
		return errors.Wrap(err, "upserting document")
	}
	n, err := c.CountDocuments(ctx, byID(id))
	if err != nil {
		return errors.Wrap(err, "counting documents")
	}
	if n == 0 {
		return core.ErrDocNotFound
	}
	return nil
}

var operators = []string{"$set", "$unset", "$addToSet", "$pullAll"}

// stage is one Mongo update document. Mongo rejects two operators on conflicting paths within one
// update, so such updates go to separate stages applied in order.
type stage struct {
	fields map[string]bson.D
	paths  []string
}

func (s *stage) conflicts(path string) bool {
	for _, p := range s.paths {
		if p == path || strings.HasPrefix(p, path+".") || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}

func (s *stage) doc() bson.D {
	d := make(bson.D, 0, len(s.fields))
	for _, op := range operators {
		if f, ok := s.fields[op]; ok {
			d = append(d, bson.E{Key: op, Value: f})
		}
	}
	return d
}

func updateStages(updates []core.FieldUpdate) ([]bson.D, error) {
	var stages []bson.D
	curr := &stage{fields: make(map[string]bson.D)}
	for _, upd := range updates {
		if _, err := core.SplitPath(upd.Path); err != nil {
			return nil, err
		}
		if curr.conflicts(upd.Path) {
			stages = append(stages, curr.doc())
			curr = &stage{fields: make(map[string]bson.D)}
		}

		var op string
		var val interface{}
		switch upd.Kind {
		case core.UpdateSet:
			n, err := docstore.Normalize(upd.Value)
			if err != nil {
				return nil, err
			}
			op, val = "$set", toBSON(n)
		case core.UpdateDelete:
			op, val = "$unset", ""
		case core.UpdateArrayUnion, core.UpdateArrayRemove:
			elems := make(bson.A, 0, len(upd.Elems))
			for _, e := range upd.Elems {
				n, err := docstore.Normalize(e)
				if err != nil {
					return nil, err
				}
				elems = append(elems, toBSON(n))
			}
			if upd.Kind == core.UpdateArrayUnion {
				op, val = "$addToSet", bson.D{{Key: "$each", Value: elems}}
			} else {
				op, val = "$pullAll", elems
			}
		default:
			return nil, errors.Errorf("unknown update kind %d", upd.Kind)
		}
		curr.fields[op] = append(curr.fields[op], bson.E{Key: upd.Path, Value: val})
		curr.paths = append(curr.paths, upd.Path)
	}
	if len(curr.paths) > 0 {
		stages = append(stages, curr.doc())
	}
	return stages, nil
}

func (db *DB) find(ctx context.Context, coll string, filter, order bson.D) ([]core.Document, error) {
	cur, err := db.db.Collection(coll).Find(ctx, filter, options.Find().SetSort(order))
	if err != nil {
		return nil, errors.Wrap(err, "finding documents")
	}
	var rows []bson.M
	if err = cur.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "decoding documents")
	}
	docs := make([]core.Document, 0, len(rows))
	for _, m := range rows {
		doc, err := toDocument(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (db *DB) Scan(ctx context.Context, coll string) ([]core.Document, error) {
	return db.find(ctx, coll, bson.D{}, bson.D{{Key: "_id", Value: 1}})
}

func (db *DB) Query(ctx context.Context, coll string, q core.Query) ([]core.Document, error) {
	filter := make(bson.D, 0, len(q.Where))
	for _, f := range q.Where {
		n, err := docstore.Normalize(f.Value)
		if err != nil {
			return nil, err
		}
		filter = append(filter, bson.E{Key: f.Field, Value: toBSON(n)})
	}
	dir := 1
	if q.Descending {
		dir = -1
	}
	order := bson.D{{Key: "_id", Value: dir}}
	if q.OrderBy != "" {
		order = bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}}
	}
	return db.find(ctx, coll, filter, order)
}

// Commit applies the batch in a multi-document transaction when enabled, sequentially otherwise.
func (db *DB) Commit(ctx context.Context, batch *core.Batch) error {
	if batch.Len() > db.maxBatchSize {
		return core.ErrBatchTooLarge
	}
	if batch.Len() == 0 {
		return nil
	}
	return db.inTransaction(ctx, func(ctx context.Context) error {
		for _, w := range batch.Writes() {
			if err := db.write(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !db.transaction {
		return fn(ctx)
	}
	sess, err := db.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (db *DB) MaxBatchSize() int {
	return db.maxBatchSize
}

func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Drop drops a collection; used by tests.
func (db *DB) Drop(ctx context.Context, coll string) error {
	return db.db.Collection(coll).Drop(ctx)
}

// toBSON converts a normalized value. Object keys are sorted so that equal objects encode to equal
// documents, which $addToSet and $pullAll compare field by field.
func toBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(val))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: toBSON(val[k])})
		}
		return d
	case []interface{}:
		arr := make(bson.A, 0, len(val))
		for _, e := range val {
			arr = append(arr, toBSON(e))
		}
		return arr
	default:
		return val
	}
}

// fromBSON converts a decoded value back to its generic JSON form.
func fromBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.M:
		m := make(map[string]interface{}, len(val))
		for k, e := range val {
			m[k] = fromBSON(e)
		}
		return m
	case primitive.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case primitive.A:
		arr := make([]interface{}, 0, len(val))
		for _, e := range val {
			arr = append(arr, fromBSON(e))
		}
		return arr
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return val.Hex()
	default:
		return val
	}
}

func toDocument(m bson.M) (core.Document, error) {
	id, _ := m["_id"].(string)
	delete(m, "_id")
	data, _ := fromBSON(primitive.M(m)).(map[string]interface{})
	return docstore.NewJSONDocument(id, data)
}
