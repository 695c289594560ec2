//go:build windows

package main

import (
	"os"
	"syscall"
)

var daemonSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// isReloadSignal always returns false; Windows has no SIGHUP.
func isReloadSignal(os.Signal) bool {
	return false
}
