//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals stop the server gracefully. Process managers send SIGTERM.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
