//go:build !windows

package main

import (
	"os"
	"syscall"
)

var (
	backgroundSignal os.Signal = syscall.SIGUSR1
	foregroundSignal os.Signal = syscall.SIGUSR2
)

func lifecycleSignals() []os.Signal {
	return []os.Signal{backgroundSignal, foregroundSignal}
}
