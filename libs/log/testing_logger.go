package log

import (
	"os"
	"sync"
	"testing"
)

var (
	// reuse the same logger across all tests
	testingLoggerMtx sync.Mutex
	testingLogger    Logger
)

// TestingLogger returns a Logger which writes debug output to stdout when the
// tests run with -v, and a no-op logger otherwise.
//
// It must be called inside a test (not in an init func) because the verbose
// flag is only set once testing has started.
func TestingLogger() Logger {
	testingLoggerMtx.Lock()
	defer testingLoggerMtx.Unlock()
	if testingLogger != nil {
		return testingLogger
	}

	if testing.Verbose() {
		l, err := NewLogger(NewSyncWriter(os.Stdout), LogFormatPlain, LogLevelDebug)
		if err != nil {
			panic(err)
		}
		testingLogger = l
	} else {
		testingLogger = NewNopLogger()
	}

	return testingLogger
}
