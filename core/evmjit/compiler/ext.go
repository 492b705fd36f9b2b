package compiler

import (
	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// Call kinds of the host ABI.
const (
	evmCall         = 0
	evmDelegateCall = 1
	evmCallCode     = 2
	evmCreate       = 3
	evmStaticCall   = 4
)

// Ext emits calls to the host's blockchain-state symbols. Words travel by
// value; 256-bit quantities (addresses, hashes) through out-pointers, as
// the host ABI cannot return them.
type Ext struct {
	bld *ir.Builder
	rt  *RuntimeManager
}

func newExt(bld *ir.Builder, rt *RuntimeManager) *Ext {
	return &Ext{bld: bld, rt: rt}
}

func (e *Ext) declare(name string, ret *ir.Type, paramTypes ...*ir.Type) *ir.Func {
	paramTypes = append([]*ir.Type{ir.BytePtr}, paramTypes...)
	f := e.rt.Module().DeclareFunc(name, ret, paramTypes...)
	f.SetNoThrow()
	return f
}

// outWord256 allocates a result slot for a 256-bit out-parameter.
func (e *Ext) outWord256(name string) *ir.Instr {
	return e.bld.CreateAlloca(ir.Word256, nil, name)
}

func (e *Ext) SLoad(key ir.Value) ir.Value {
	f := e.declare("ext.sload", ir.Word, ir.Word)
	return e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), key}, "sload")
}

func (e *Ext) SStore(key, value ir.Value) {
	f := e.declare("ext.sstore", ir.Void, ir.Word, ir.Word)
	e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), key, value})
}

func (e *Ext) CallDataLoad(idx ir.Value) ir.Value {
	f := e.declare("ext.calldataload", ir.Word, ir.Word)
	return e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), idx}, "calldataload")
}

// Sha3 hashes memory [off, off+size); the caller must have required the
// range already.
func (e *Ext) Sha3(off, size ir.Value) ir.Value {
	f := e.declare("ext.sha3", ir.Void, ir.Word, ir.Word, ir.PtrTo(ir.Word256))
	ret := e.outWord256("sha3.ret")
	e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), off, size, ret})
	return e.bld.CreateLoad(ret, "sha3")
}

func (e *Ext) Balance(addr ir.Value) ir.Value {
	f := e.declare("ext.balance", ir.Word, ir.Word256)
	return e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), addr}, "balance")
}

func (e *Ext) Exists(addr ir.Value) ir.Value {
	f := e.declare("ext.exists", ir.Bool, ir.Word256)
	return e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), addr}, "exists")
}

func (e *Ext) ExtCodeSize(addr ir.Value) ir.Value {
	f := e.declare("ext.extcodesize", ir.Word, ir.Word256)
	return e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), addr}, "extcodesize")
}

// ExtCode returns the pointer and size of another account's code.
func (e *Ext) ExtCode(addr ir.Value) (ptr, size ir.Value) {
	f := e.declare("ext.extcode", ir.BytePtr, ir.Word256, ir.SizePtr)
	sizeSlot := e.bld.CreateAlloca(ir.Size, nil, "extcode.size.ptr")
	codePtr := e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), addr, sizeSlot}, "extcode.ptr")
	size64 := e.bld.CreateLoad(sizeSlot)
	return codePtr, e.bld.CreateZExt(size64, ir.Word, "extcode.size")
}

func (e *Ext) BlockHash(number ir.Value) ir.Value {
	f := e.declare("ext.blockhash", ir.Void, ir.Word, ir.PtrTo(ir.Word256))
	ret := e.outWord256("blockhash.ret")
	e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), number, ret})
	return e.bld.CreateLoad(ret, "blockhash")
}

func (e *Ext) Selfdestruct(addr ir.Value) {
	f := e.declare("ext.selfdestruct", ir.Void, ir.Word256)
	e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), addr})
}

// Log emits a log record with numTopics 256-bit topics, each passed as two
// stacked words (high half first).
func (e *Ext) Log(off, size ir.Value, topics []ir.Value) {
	f := e.declare("ext.log", ir.Void, ir.Word, ir.Word, ir.Size, ir.WordPtr)
	arr := e.bld.CreateAlloca(ir.Word, ir.ConstInt(ir.Size, int64(len(topics))), "log.topics")
	for i, t := range topics {
		slot := e.bld.CreateConstGEP1_64(arr, int64(i))
		e.bld.CreateStore(t, slot)
	}
	e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), off, size,
		ir.ConstInt(ir.Size, int64(len(topics)/2)), arr})
}

// Call performs a sub-call of the given kind and returns the host's result
// word r: non-negative r is the remaining gas, negative r flags failure
// with the remaining gas offset by the CallFailure magic.
func (e *Ext) Call(kind int, gas, addr, value, inOff, inSize, outOff, outSize ir.Value) ir.Value {
	f := e.declare("ext.call", ir.Gas,
		ir.I32, ir.Gas, ir.Word256, ir.Word, ir.Word, ir.Word, ir.Word, ir.Word)
	return e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(),
		ir.ConstInt(ir.I32, int64(kind)), gas, addr, value, inOff, inSize, outOff, outSize},
		"call.r")
}

// Create deploys a contract; r decodes like Call. The created address is
// written big-endian behind the returned slot.
func (e *Ext) Create(gas, endowment, initOff, initSize ir.Value) (r ir.Value, pAddr ir.Value) {
	f := e.declare("ext.create", ir.Gas, ir.Gas, ir.Word, ir.Word, ir.Word, ir.WordPtr)
	addrSlot := e.bld.CreateAlloca(ir.Word, nil, "create.addr")
	res := e.bld.CreateCall(f, []ir.Value{e.rt.Runtime(), gas, endowment, initOff, initSize, addrSlot},
		"create.r")
	return res, addrSlot
}
