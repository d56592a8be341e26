package testutil

import (
	"fmt"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/storage/docstore/memdb"
)

// OpenStore opens an empty in-memory document store.
func OpenStore(t *testing.T, maxBatchSize ...int) *memdb.DB {
	size := 500
	if len(maxBatchSize) > 0 {
		size = maxBatchSize[0]
	}
	db, err := memdb.Open(size)
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	return db
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with the core validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	return validate, translator
}

// Logger is a core.Logger writing to the test log.
type Logger struct {
	t *testing.T
}

var _ core.Logger = (*Logger)(nil) // interface compliance check

func NewLogger(t *testing.T) *Logger {
	return &Logger{t: t}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	if len(args) > 0 {
		msg += fmt.Sprintf(" %v", args)
	}
	l.t.Logf("%s: %s", level, msg)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	l.t.FailNow()
}
