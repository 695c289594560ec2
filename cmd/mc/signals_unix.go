//go:build unix

package main

import (
	"os"
	"syscall"
)

var daemonSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP}

// isReloadSignal returns true if the signal is SIGHUP.
func isReloadSignal(sig os.Signal) bool {
	return sig == syscall.SIGHUP
}
