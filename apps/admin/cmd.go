package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
)

var (
	errHelp           = errors.New("help provided")
	errEphemeralStore = errors.New("the memory store is discarded on exit: set store.engine to mongo or postgres")
)

type commandLine struct {
	conf      *core.Config
	out       io.Writer
	ephemeral bool // the store does not outlive the process
	roster    *roster.Service
	classes   *class.Service
	recap     *recap.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  import -file ROWS.json - import students from a JSON array of rows")
	fmt.Fprintln(cli.out, "  rebuild - rebuild the rombel and program projections from the student records")
	fmt.Fprintln(cli.out, "  sync -class ID - refresh a class session's roster from its rombel")
	fmt.Fprintln(cli.out, "  recap -class ID -year YYYY -month MM - print a class session's monthly recap")
	fmt.Fprintln(cli.out, "  migrate - create the postgres user and database")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := cli.newFlagSet("import")
	importFile := importCmd.String("file", "", "Path of the JSON rows file.")

	syncCmd := cli.newFlagSet("sync")
	syncClass := syncCmd.String("class", "", "The class session ID.")

	now := time.Now()
	recapCmd := cli.newFlagSet("recap")
	recapClass := recapCmd.String("class", "", "The class session ID.")
	recapYear := recapCmd.Int("year", now.Year(), "The year of the recap.")
	recapMonth := recapCmd.Int("month", int(now.Month()), "The month of the recap (1-12).")

	switch args[1] {
	case "import", "rebuild", "sync":
		if cli.ephemeral {
			return errEphemeralStore
		}
	}

	switch args[1] {
	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importStudents(*importFile)
	case "rebuild":
		return cli.rebuild()
	case "sync":
		if err := syncCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *syncClass == "" {
			syncCmd.Usage()
			return errHelp
		}
		return cli.sync(*syncClass)
	case "recap":
		if err := recapCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *recapClass == "" {
			recapCmd.Usage()
			return errHelp
		}
		return cli.printRecap(*recapClass, recap.Period{Year: *recapYear, Month: time.Month(*recapMonth)})
	case "migrate":
		return cli.migrate()
	default:
		cli.printUsage()
		return errHelp
	}
}
