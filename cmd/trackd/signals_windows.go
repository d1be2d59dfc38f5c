//go:build windows

package main

import "os"

// windows has no user signals, so the daemon only syncs on start
var (
	backgroundSignal os.Signal
	foregroundSignal os.Signal
)

func lifecycleSignals() []os.Signal {
	return nil
}
