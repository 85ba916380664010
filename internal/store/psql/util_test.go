package psql

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForInterrupt blocks until SIGINT or SIGTERM.
func waitForInterrupt() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
