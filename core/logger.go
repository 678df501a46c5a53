package core

// Logger is any leveled logging service.
// Optional args may carry an error, a map of extra fields and/or the acting user
// for services that support them (see services/logger).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
