// Package pgdb is a core.DocStore on PostgreSQL: every document is a JSONB row of a single
// documents table, keyed by (collection, id).
package pgdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	PRIMARY KEY (collection, id)
)`

type DB struct {
	db           *sqlx.DB
	logger       core.Logger
	maxBatchSize int
}

var _ core.DocStore = (*DB)(nil) // interface compliance check

// URL builds the connection URL of dbName.
func URL(conf core.DatabaseConfig, dbName string, admin bool) string {
	user := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		user = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}

	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Engine,
		User:     user,
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects to the configured database and creates the documents table if needed.
func Open(ctx context.Context, conf core.DatabaseConfig, maxBatchSize int, logger core.Logger) (*DB, error) {
	db, err := sqlx.Open("postgres", URL(conf, conf.Name, false))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating documents table")
	}
	logger.Info("connected to postgres", map[string]interface{}{"database": conf.Name})
	return &DB{db: db, logger: logger, maxBatchSize: maxBatchSize}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

type row struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (db *DB) Get(ctx context.Context, coll, id string) (core.Document, error) {
	var raw []byte
	err := db.db.GetContext(ctx, &raw, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, coll, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrDocNotFound
		}
		return nil, errors.Wrap(err, "selecting document")
	}
	return docstore.RawJSONDocument(id, raw), nil
}

func (db *DB) Set(ctx context.Context, coll, id string, data interface{}, opts ...core.WriteOption) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		return write(ctx, tx, core.Write{Op: core.OpSet, Collection: coll, ID: id, Data: data, Options: opts})
	})
}

func (db *DB) Update(ctx context.Context, coll, id string, updates []core.FieldUpdate, opts ...core.WriteOption) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		return write(ctx, tx, core.Write{Op: core.OpUpdate, Collection: coll, ID: id, Updates: updates, Options: opts})
	})
}

func (db *DB) Delete(ctx context.Context, coll, id string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, coll, id)
	return errors.Wrap(err, "deleting document")
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// write locks the current row, applies w to it and stores the result.
// A missing row is first inserted empty so that concurrent writers to a new document queue on its lock
// instead of both starting from nothing.
func write(ctx context.Context, tx *sqlx.Tx, w core.Write) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, '{}'::jsonb)
		ON CONFLICT (collection, id) DO NOTHING`,
		w.Collection, w.ID,
	)
	if err != nil {
		return errors.Wrap(err, "reserving document")
	}
	created, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reserving document")
	}

	var current map[string]interface{}
	if created == 0 {
		var raw []byte
		err = tx.GetContext(ctx, &raw, `SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, w.Collection, w.ID)
		switch {
		case err == sql.ErrNoRows: // deleted since the insert
		case err != nil:
			return errors.Wrap(err, "selecting document")
		default:
			if err = json.Unmarshal(raw, &current); err != nil {
				return errors.Wrap(err, "unmarshalling document")
			}
		}
	}

	next, err := docstore.Apply(current, w)
	if err != nil {
		return err
	}
	if next == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, w.Collection, w.ID)
		return errors.Wrap(err, "deleting document")
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "marshalling document")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`,
		w.Collection, w.ID, string(raw),
	)
	return errors.Wrap(err, "upserting document")
}

func (db *DB) entries(ctx context.Context, coll string) ([]docstore.Entry, error) {
	var rows []row
	if err := db.db.SelectContext(ctx, &rows, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`, coll); err != nil {
		return nil, errors.Wrap(err, "selecting documents")
	}
	entries := make([]docstore.Entry, 0, len(rows))
	for _, r := range rows {
		var data map[string]interface{}
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, errors.Wrapf(err, "unmarshalling document %q", r.ID)
		}
		entries = append(entries, docstore.Entry{ID: r.ID, Data: data})
	}
	return entries, nil
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

func (db *DB) Scan(ctx context.Context, coll string) ([]core.Document, error) {
	var rows []row
	if err := db.db.SelectContext(ctx, &rows, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`, coll); err != nil {
		return nil, errors.Wrap(err, "selecting documents")
	}
	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, docstore.RawJSONDocument(r.ID, r.Data))
	}
	return docs, nil
}

// Query filters the collection in process, with the same matching rules as the in-memory store.
func (db *DB) Query(ctx context.Context, coll string, q core.Query) ([]core.Document, error) {
	entries, err := db.entries(ctx, coll)
	if err != nil {
		return nil, err
	}
	if entries, err = docstore.Select(entries, q); err != nil {
		return nil, err
	}
	return toDocuments(entries)
}

// Commit applies the batch in one transaction.
func (db *DB) Commit(ctx context.Context, batch *core.Batch) error {
	if batch.Len() > db.maxBatchSize {
		return core.ErrBatchTooLarge
	}
	if batch.Len() == 0 {
		return nil
	}
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, w := range batch.Writes() {
			if err := write(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) MaxBatchSize() int {
	return db.maxBatchSize
}

func (db *DB) Close(context.Context) error {
	return db.db.Close()
}

// Truncate empties a collection; used by tests.
func (db *DB) Truncate(ctx context.Context, coll string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1`, coll)
	return errors.Wrap(err, "truncating collection")
}
