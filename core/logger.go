package core

// Logger is the application logger.
// expected args: error, map[string]interface{} or any value worth printing.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogPerson identifies who triggered a logged event, when known.
type LogPerson struct {
	ID       string
	Username string
	Email    string
}
