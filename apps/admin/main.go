package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
	logsvc "github.com/trezcool/presensi/services/logger"
	"github.com/trezcool/presensi/storage"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	cli := &commandLine{
		conf:      conf,
		out:       os.Stdout,
		ephemeral: conf.Store.Engine == core.EngineMemory,
	}

	// migrate runs before the store can be opened
	var store core.DocStore
	if len(os.Args) < 2 || os.Args[1] != "migrate" {
		var err error
		if store, err = storage.Open(context.Background(), conf, logger); err != nil {
			logger.Fatal("opening store", err)
		}

		validate := validator.New()
		core.InitValidators(validate, newTranslator())

		cli.roster = roster.NewService(store, logger, validate)
		cli.classes = class.NewService(store, cli.roster, logger, validate)
		ledger := attendance.NewService(store, logger, validate, conf.Attendance.Semester)
		cli.recap = recap.NewService(cli.classes, cli.roster, ledger)
	}

	err := cli.run(os.Args)
	if store != nil {
		if cErr := store.Close(context.Background()); cErr != nil {
			logger.Error("closing store", cErr)
		}
	}
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
