package compiler

import (
	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// Memory emits calls to the host's linear-memory symbols. mem.require
// expands memory and returns the expansion cost already priced in gas
// units; the cost flows through gas.check, and the host sets gas_out
// itself on absurd sizes, so the compiler's post-pass polls the flag
// after every such call. Copy costs are priced here, per word copied.
type Memory struct {
	bld *ir.Builder
	rt  *RuntimeManager
	gm  *GasMeter
}

func newMemory(bld *ir.Builder, rt *RuntimeManager, gm *GasMeter) *Memory {
	return &Memory{bld: bld, rt: rt, gm: gm}
}

func (m *Memory) declare(name string, ret *ir.Type, paramTypes ...*ir.Type) *ir.Func {
	paramTypes = append([]*ir.Type{ir.BytePtr}, paramTypes...)
	f := m.rt.Module().DeclareFunc(name, ret, paramTypes...)
	f.SetNoThrow()
	return f
}

// Require expands memory to cover [offset, offset+size) and charges the
// expansion cost the host reports.
func (m *Memory) Require(offset, size ir.Value) *ir.Instr {
	f := m.declare("mem.require", ir.Gas, ir.Word, ir.Word)
	call := m.bld.CreateCall(f, []ir.Value{m.rt.Runtime(), offset, size}, "mem.expandcost")
	m.gm.CountMemory(call, nil, nil)
	return call
}

func (m *Memory) LoadWord(addr ir.Value) ir.Value {
	m.Require(addr, constWord(32))
	f := m.declare("mem.loadword", ir.Word, ir.Word)
	return m.bld.CreateCall(f, []ir.Value{m.rt.Runtime(), addr}, "mload")
}

func (m *Memory) StoreWord(addr, word ir.Value) {
	m.Require(addr, constWord(32))
	f := m.declare("mem.storeword", ir.Void, ir.Word, ir.Word)
	m.bld.CreateCall(f, []ir.Value{m.rt.Runtime(), addr, word})
}

func (m *Memory) StoreByte(addr, word ir.Value) {
	m.Require(addr, constWord(1))
	f := m.declare("mem.storebyte", ir.Void, ir.Word, ir.Word)
	m.bld.CreateCall(f, []ir.Value{m.rt.Runtime(), addr, word})
}

func (m *Memory) Size() ir.Value {
	f := m.declare("mem.size", ir.Word)
	return m.bld.CreateCall(f, []ir.Value{m.rt.Runtime()}, "msize")
}

// countCopyWords charges the per-word copy cost for reqBytes bytes.
func (m *Memory) countCopyWords(reqBytes ir.Value) {
	words := m.bld.CreateUDiv(
		m.bld.CreateNUWAdd(reqBytes, constWord(31)), constWord(32), "copy.words")
	m.gm.CountCopy(words)
}

// CopyBytes copies reqBytes from a host byte buffer into memory at
// destMemIdx, zero-padding reads past srcSize.
func (m *Memory) CopyBytes(srcPtr, srcSize, srcIdx, destMemIdx, reqBytes ir.Value) {
	m.Require(destMemIdx, reqBytes)
	m.countCopyWords(reqBytes)
	f := m.declare("mem.copybytes", ir.Void, ir.BytePtr, ir.Word, ir.Word, ir.Word, ir.Word)
	m.bld.CreateCall(f, []ir.Value{m.rt.Runtime(), srcPtr, srcSize, srcIdx, destMemIdx, reqBytes})
}

// CopyBytesNoPadding is CopyBytes without the zero-padding; reads past the
// source fault at run time (RETURNDATACOPY semantics).
func (m *Memory) CopyBytesNoPadding(srcPtr, srcSize, srcIdx, destMemIdx, reqBytes ir.Value) {
	m.Require(destMemIdx, reqBytes)
	m.countCopyWords(reqBytes)
	f := m.declare("mem.copybytes.nopad", ir.Void, ir.BytePtr, ir.Word, ir.Word, ir.Word, ir.Word)
	m.bld.CreateCall(f, []ir.Value{m.rt.Runtime(), srcPtr, srcSize, srcIdx, destMemIdx, reqBytes})
}
