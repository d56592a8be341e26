// Package storage opens the configured document store.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore/memdb"
	"github.com/trezcool/presensi/storage/docstore/mongodb"
	"github.com/trezcool/presensi/storage/docstore/pgdb"
)

var ErrUnknownEngine = errors.New("unknown store engine")

// Open returns the store selected by conf.Store.Engine.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (core.DocStore, error) {
	size := conf.Store.MaxBatchSize
	var (
		store core.DocStore
		err   error
	)
	switch conf.Store.Engine {
	case core.EngineMemory, "":
		logger.Warn("using the in-memory store: data is lost on shutdown")
		store, err = memdb.Open(size)
	case core.EngineMongo:
		store, err = mongodb.Open(ctx, conf.Mongo, size, logger)
	case core.EnginePostgres:
		store, err = pgdb.Open(ctx, conf.Database, size, logger)
	default:
		return nil, errors.Wrap(ErrUnknownEngine, conf.Store.Engine)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s store", conf.Store.Engine)
	}
	return store, nil
}
