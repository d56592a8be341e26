package main

import (
	"context"
	"fmt"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore/pgdb"
)

var createDBFunc = pgdb.CreateIfNotExist // mockable

// migrate prepares the postgres store. The documents table itself is created when the store opens.
func (cli *commandLine) migrate() error {
	if cli.conf.Store.Engine != core.EnginePostgres {
		fmt.Fprintf(cli.out, "nothing to migrate for the %q store\n", cli.conf.Store.Engine)
		return nil
	}
	if err := createDBFunc(context.Background(), cli.conf.Database); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "database %q is ready\n", cli.conf.Database.Name)
	return nil
}
