package logsvc

import (
	"log"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/presensi/core"
)

// RollbarLogger reports to Rollbar (when enabled) and always prints to std.
// Rollbar's person is process-global, so reports are serialized.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
	mu    *sync.Mutex
}

var _ core.Logger = (*RollbarLogger)(nil) // interface compliance check

var configure sync.Once

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	configure.Do(func() {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
	})
	return &RollbarLogger{std: std, debug: conf.Debug, mu: new(sync.Mutex)}
}

// Enable toggles reporting. Reporting without a token is never enabled.
func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled && rollbar.Token() != "")
}

// expected fmt: msg | error, map[string]interface{}, core.Actor
func (l RollbarLogger) prepare(msg string, args []interface{}) (rbArgs, printed []interface{}) {
	var actorSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	printed = make([]interface{}, 0, len(args))
	for _, arg := range args {
		if actor, ok := arg.(core.Actor); ok {
			if !actorSet { // only one person per report
				rollbar.SetPerson(actor.ID, actor.Email, actor.Email)
				actorSet = true
			}
			continue
		}
		rbArgs = append(rbArgs, arg)
		printed = append(printed, arg)
	}
	if !actorSet {
		rollbar.ClearPerson()
	}
	return rbArgs, printed
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		l.std.Printf("%+v", arg)
	}
}

func (l RollbarLogger) report(level string, send func(...interface{}), msg string, args []interface{}) {
	l.mu.Lock()
	rbArgs, printed := l.prepare(msg, args)
	send(rbArgs...)
	l.mu.Unlock()
	l.print(level, msg, printed)
}

// Debug is a no-op unless the config enables debugging.
func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.report("DEBUG", rollbar.Debug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report("INFO", rollbar.Info, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report("WARN", rollbar.Warning, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report("ERROR", rollbar.Error, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report("FATAL", rollbar.Critical, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
