package compiler

import (
	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// Arith128 delegates 128-bit arithmetic with no direct IR lowering to host
// helpers.
type Arith128 struct {
	bld *ir.Builder
	mod *ir.Module
}

func newArith128(bld *ir.Builder, mod *ir.Module) *Arith128 {
	return &Arith128{bld: bld, mod: mod}
}

// Exp computes base ** exponent mod 2^128.
func (a *Arith128) Exp(base, exponent ir.Value) ir.Value {
	f := a.mod.DeclareFunc("arith128.exp", ir.Word, ir.Word, ir.Word)
	f.SetNoThrow()
	return a.bld.CreateCall(f, []ir.Value{base, exponent}, "exp")
}
