package compiler

import (
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
)

// Package-wide debug switch for verbose logging in the JIT compiler.
// Default is off to keep logs clean unless explicitly enabled by tests or
// callers.
var DebugLogsEnabled = false

func init() {
	if os.Getenv("EVMJIT_DEBUG") == "1" || os.Getenv("EVMJIT_DEBUG") == "true" {
		DebugLogsEnabled = true
	}
}

// EnableDebugLogs toggles verbose JIT compiler logging.
func EnableDebugLogs(on bool) { DebugLogsEnabled = on }

func debugInfo(msg string, ctx ...interface{}) {
	if DebugLogsEnabled {
		ethlog.Info(msg, ctx...)
	}
}

func debugWarn(msg string, ctx ...interface{}) {
	if DebugLogsEnabled {
		ethlog.Warn(msg, ctx...)
	}
}
