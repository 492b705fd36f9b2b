package compiler

import "github.com/ethereum/go-ethereum/metrics"

var (
	modulesCompiledCounter = metrics.NewRegisteredCounter("evmjit/modules", nil)
	blocksEmittedCounter   = metrics.NewRegisteredCounter("evmjit/blocks", nil)
	directJumpsCounter     = metrics.NewRegisteredCounter("evmjit/jumps/direct", nil)
	cacheHitCounter        = metrics.NewRegisteredCounter("evmjit/cache/hit", nil)
)
