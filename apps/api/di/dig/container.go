package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/presensi/apps/api/echo"
	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
	logsvc "github.com/trezcool/presensi/services/logger"
	"github.com/trezcool/presensi/services/metrics"
	"github.com/trezcool/presensi/storage"
)

type StoreLoggerParam struct {
	dig.In
	Logger core.Logger `name:"storeLogger"`
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Translator ut.Translator
	Metrics    *metrics.Metrics
	Roster     *roster.Service
	Classes    *class.Service
	Attendance *attendance.Service
	Recap      *recap.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStoreLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStore(conf *core.Config, loggerParam StoreLoggerParam) core.DocStore {
	store, err := storage.Open(context.Background(), conf, loggerParam.Logger)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up store: %v", err), err)
	}
	return store
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newClassService(store core.DocStore, rosterSvc *roster.Service, logger core.Logger, validate *validator.Validate) *class.Service {
	return class.NewService(store, rosterSvc, logger, validate)
}

func newLedger(conf *core.Config, store core.DocStore, logger core.Logger, validate *validator.Validate) *attendance.Service {
	return attendance.NewService(store, logger, validate, conf.Attendance.Semester)
}

func newRecapService(classSvc *class.Service, rosterSvc *roster.Service, ledger *attendance.Service) *recap.Service {
	return recap.NewService(classSvc, rosterSvc, ledger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Translator: p.Translator,
		Metrics:    p.Metrics,
		Roster:     p.Roster,
		Classes:    p.Classes,
		Attendance: p.Attendance,
		Recap:      p.Recap,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStoreLogger, dig.Name("storeLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(metrics.New))
	must(c.Provide(roster.NewService))
	must(c.Provide(newClassService))
	must(c.Provide(newLedger))
	must(c.Provide(newRecapService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
