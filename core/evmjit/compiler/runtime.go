package compiler

import (
	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// ReturnCode is the i32 result of the emitted execute function.
type ReturnCode int

const (
	ReturnCodeStop ReturnCode = iota
	ReturnCodeReturn
	ReturnCodeRevert
	ReturnCodeOutOfGas
)

// Runtime struct field indices. The host allocates the runtime struct and
// the JIT-compiled code addresses it by field; both sides must agree on
// this layout.
const (
	rtFieldGas = iota
	rtFieldStackBase
	rtFieldStackSize
	rtFieldCode
	rtFieldCodeSize
	rtFieldCallData
	rtFieldCallDataSize
	rtFieldAddress
	rtFieldCaller
	rtFieldCallValue
	rtFieldTxContext
	rtFieldReturnBufData
	rtFieldReturnBufSize
	rtFieldReturnDataOffset
	rtFieldReturnDataSize
)

// Tx context item indices, as the host lays them out.
const (
	txCtxGasPrice = iota
	txCtxOrigin
	txCtxCoinbase
	txCtxNumber
	txCtxTimestamp
	txCtxGasLimit
	txCtxDifficulty
)

// RuntimeManager emits accesses to the runtime struct behind the rt
// parameter of the main function. It produces IR only; the host owns the
// memory.
type RuntimeManager struct {
	bld    *ir.Builder
	mod    *ir.Module
	mainFn *ir.Func
	rt     *ir.Param
	jmpBuf ir.Value
}

func newRuntimeManager(bld *ir.Builder, mod *ir.Module, mainFn *ir.Func) *RuntimeManager {
	return &RuntimeManager{bld: bld, mod: mod, mainFn: mainFn, rt: mainFn.Param(0)}
}

func (rt *RuntimeManager) Module() *ir.Module { return rt.mod }
func (rt *RuntimeManager) Runtime() ir.Value  { return rt.rt }

// SetJmpBuf records the byte pointer of the setjmp area; every helper that
// may fail receives it.
func (rt *RuntimeManager) SetJmpBuf(v ir.Value) { rt.jmpBuf = v }
func (rt *RuntimeManager) JmpBuf() ir.Value     { return rt.jmpBuf }

func (rt *RuntimeManager) field(t *ir.Type, idx int, name string) *ir.Instr {
	return rt.bld.CreateStructGEP(t, rt.rt, idx, name)
}

// GasPtr is the address of the signed 64-bit gas counter.
func (rt *RuntimeManager) GasPtr() ir.Value {
	return rt.field(ir.Gas, rtFieldGas, "gas.ptr")
}

func (rt *RuntimeManager) Gas() ir.Value {
	return rt.bld.CreateLoad(rt.GasPtr(), "gas")
}

func (rt *RuntimeManager) SetGas(v ir.Value) {
	rt.bld.CreateStore(v, rt.GasPtr())
}

// StackBase is the base pointer of the global word stack.
func (rt *RuntimeManager) StackBase() ir.Value {
	return rt.bld.CreateLoad(rt.field(ir.WordPtr, rtFieldStackBase, "stack.base.ptr"), "stack.base")
}

// StackSizePtr is the address of the global stack size counter.
func (rt *RuntimeManager) StackSizePtr() ir.Value {
	return rt.field(ir.Size, rtFieldStackSize, "stack.size.ptr")
}

func (rt *RuntimeManager) Code() ir.Value {
	return rt.bld.CreateLoad(rt.field(ir.BytePtr, rtFieldCode, "code.ptr"), "code")
}

func (rt *RuntimeManager) CodeSize() ir.Value {
	sz := rt.bld.CreateLoad(rt.field(ir.Size, rtFieldCodeSize, "codesize.ptr"), "codesize")
	return rt.bld.CreateZExt(sz, ir.Word)
}

func (rt *RuntimeManager) CallData() ir.Value {
	return rt.bld.CreateLoad(rt.field(ir.BytePtr, rtFieldCallData, "calldata.ptr"), "calldata")
}

func (rt *RuntimeManager) CallDataSize() ir.Value {
	sz := rt.bld.CreateLoad(rt.field(ir.Size, rtFieldCallDataSize, "calldatasize.ptr"), "calldatasize")
	return rt.bld.CreateZExt(sz, ir.Word)
}

// Address is the executing account's address, big-endian as on the wire.
func (rt *RuntimeManager) Address() ir.Value {
	return rt.bld.CreateLoad(rt.field(ir.Word256, rtFieldAddress, "address.ptr"), "address")
}

func (rt *RuntimeManager) Caller() ir.Value {
	return rt.bld.CreateLoad(rt.field(ir.Word256, rtFieldCaller, "caller.ptr"), "caller")
}

// Value is the call value, big-endian.
func (rt *RuntimeManager) Value() ir.Value {
	return rt.bld.CreateLoad(rt.field(ir.Word, rtFieldCallValue, "callvalue.ptr"), "callvalue")
}

// txContextItemType gives each tx context slot its host-side width:
// addresses are two words, block scalars are 64-bit, prices are words.
func txContextItemType(item int) *ir.Type {
	switch item {
	case txCtxOrigin, txCtxCoinbase:
		return ir.Word256
	case txCtxNumber, txCtxTimestamp, txCtxGasLimit:
		return ir.Size
	}
	return ir.Word
}

// TxContextItem loads the item-th slot of the host tx context. Slots are
// laid out contiguously, each padded to 32 bytes.
func (rt *RuntimeManager) TxContextItem(item int) ir.Value {
	ctx := rt.bld.CreateLoad(rt.field(ir.BytePtr, rtFieldTxContext, "txctx.ptr"), "txctx")
	t := txContextItemType(item)
	slot := rt.bld.CreateConstGEP1_64(ctx, int64(item)*32)
	ptr := rt.bld.CreateBitCast(slot, ir.PtrTo(t))
	return rt.bld.CreateLoad(ptr)
}

func (rt *RuntimeManager) ReturnBufDataPtr() ir.Value {
	return rt.field(ir.BytePtr, rtFieldReturnBufData, "returnbuf.data.ptr")
}

func (rt *RuntimeManager) ReturnBufSizePtr() ir.Value {
	return rt.field(ir.Size, rtFieldReturnBufSize, "returnbuf.size.ptr")
}

// RegisterReturnData stores the memory range RETURN/REVERT hands back to
// the host.
func (rt *RuntimeManager) RegisterReturnData(offset, size ir.Value) {
	off64 := rt.bld.CreateTrunc(offset, ir.Size, "returndata.offset")
	size64 := rt.bld.CreateTrunc(size, ir.Size, "returndata.size")
	rt.bld.CreateStore(off64, rt.field(ir.Size, rtFieldReturnDataOffset, "returndata.offset.ptr"))
	rt.bld.CreateStore(size64, rt.field(ir.Size, rtFieldReturnDataSize, "returndata.size.ptr"))
}

// Exit terminates the emitted function with the given return code.
func (rt *RuntimeManager) Exit(code ReturnCode) {
	rt.bld.CreateRet(ir.ConstInt(ir.I32, int64(code)))
}
