package compiler

import (
	"fmt"

	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// Values in the runtime struct and at the host boundary are big-endian on
// the wire; the stack representation is native. A single byte swap
// brackets every crossing.

func byteswap(bld *ir.Builder, mod *ir.Module, v ir.Value) ir.Value {
	bits := v.Type().Bits()
	f := mod.DeclareFunc(fmt.Sprintf("llvm.bswap.i%d", bits), v.Type(), v.Type())
	return bld.CreateCall(f, []ir.Value{v}, "bswap")
}

func toNative(bld *ir.Builder, mod *ir.Module, v ir.Value) ir.Value {
	return byteswap(bld, mod, v)
}

func toBE(bld *ir.Builder, mod *ir.Module, v ir.Value) ir.Value {
	return byteswap(bld, mod, v)
}
