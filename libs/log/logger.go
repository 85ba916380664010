package log

import (
	"io"

	kitlog "github.com/go-kit/kit/log"
)

// Logger is what every component of the service takes at construction.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})

	With(keyvals ...interface{}) Logger
}

// NewSyncWriter returns a writer that is safe for concurrent use by multiple
// goroutines. Writes to the returned writer are passed on to w.
func NewSyncWriter(w io.Writer) io.Writer {
	return kitlog.NewSyncWriter(w)
}
