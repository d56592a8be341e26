package core

// Logger is implemented by the logging services.
// args may hold errors, map[string]interface{} extras and at most one Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the authenticated caller of an operation.
// Its Email is the opaque audit identity recorded by ledger writes.
type Actor struct {
	ID    string
	Email string
	Role  string
}
