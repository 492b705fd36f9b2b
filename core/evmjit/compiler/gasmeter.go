package compiler

import (
	"github.com/aionnetwork/fastvm/core/evmjit/ir"
	"github.com/aionnetwork/fastvm/params"
)

// GasMeter aggregates the deterministic cost of a basic block into a single
// gas.check emitted at block entry, and prices dynamic costs inline. The
// deferred check is created with an undef cost on the first count and
// patched at the next commit point.
type GasMeter struct {
	bld    *ir.Builder
	rt     *RuntimeManager
	rev    Revision
	gasOut *ir.Global

	checkFunc *ir.Func
	checkCall *ir.Instr
	blockCost int64
}

// newGasMeter emits the module-private gas.check helper: subtract the cost
// when affordable and return 0, else set gas_out and return 1. The jmpBuf
// argument keeps the ABI stable for targets that lower the longjmp path.
func newGasMeter(bld *ir.Builder, rt *RuntimeManager, rev Revision, gasOut *ir.Global) *GasMeter {
	m := rt.Module()
	f := m.NewFunc("gas.check", ir.Bool, ir.PrivateLinkage, ir.GasPtr, ir.Gas, ir.BytePtr)
	f.SetNoThrow()
	gasPtr := f.Param(0)
	gasPtr.SetName("gasPtr")
	gasPtr.AddAttrs("nocapture")
	f.Param(1).SetName("cost")
	f.Param(2).SetName("jmpBuf")

	checkBB := f.NewBlock("Check")
	updateBB := f.NewBlock("Update")
	outOfGasBB := f.NewBlock("OutOfGas")

	b := ir.NewBuilder()
	b.SetInsertPoint(checkBB)
	gas := b.CreateLoad(gasPtr, "gas")
	gasUpdated := b.CreateNSWSub(gas, f.Param(1), "gasUpdated")
	// gas == 0 can still run 0 cost instructions
	gasOk := b.CreateICmp(ir.PredSGE, gasUpdated, ir.ConstInt(ir.Gas, 0), "gasOk")
	b.CreateCondBrExpectTrue(gasOk, updateBB, outOfGasBB)

	b.SetInsertPoint(updateBB)
	b.CreateStore(gasUpdated, gasPtr)
	b.CreateRet(ir.ConstInt(ir.Bool, 0))

	b.SetInsertPoint(outOfGasBB)
	b.CreateStore(ir.ConstInt(ir.Bool, 1), gasOut)
	b.CreateRet(ir.ConstInt(ir.Bool, 1))

	return &GasMeter{bld: bld, rt: rt, rev: rev, gasOut: gasOut, checkFunc: f}
}

// Count adds the static cost of an opcode to the current cost block,
// opening one if none is pending.
func (g *GasMeter) Count(op ByteCode) {
	if g.checkCall == nil {
		g.checkCall = g.bld.CreateCall(g.checkFunc,
			[]ir.Value{g.rt.GasPtr(), ir.NewUndef(ir.Gas), g.rt.JmpBuf()})
	}
	g.blockCost += g.StepCost(op)
}

// CountValue checks a dynamic cost immediately. Word-typed costs are capped
// at GasMax before truncation. jmpBuf and gasPtr default to the runtime's
// when nil.
func (g *GasMeter) CountValue(cost ir.Value, jmpBuf, gasPtr ir.Value) {
	if cost.Type().Equal(ir.Word) {
		gasMax := ir.ConstInt(ir.Gas, params.GasMax)
		gasMax128 := g.bld.CreateZExt(gasMax, ir.Word)
		tooHigh := g.bld.CreateICmp(ir.PredUGT, cost, gasMax128, "costTooHigh")
		cost64 := g.bld.CreateTrunc(cost, ir.Gas)
		cost = g.bld.CreateSelect(tooHigh, gasMax, cost64, "cost")
	}
	if gasPtr == nil {
		gasPtr = g.rt.GasPtr()
	}
	if jmpBuf == nil {
		jmpBuf = g.rt.JmpBuf()
	}
	g.bld.CreateCall(g.checkFunc, []ir.Value{gasPtr, cost, jmpBuf})
}

// CountExp prices the exponent at one unit per significant byte:
// cost = ((128 - clz(exp)) + 7) / 8 * perByte.
func (g *GasMeter) CountExp(exponent ir.Value) {
	ctlz := g.rt.Module().DeclareFunc("llvm.ctlz.i128", ir.Word, ir.Word, ir.Bool)
	lz128 := g.bld.CreateCall(ctlz, []ir.Value{exponent, ir.ConstInt(ir.Bool, 0)})
	lz := g.bld.CreateTrunc(lz128, ir.Gas, "lz")
	sigBits := g.bld.CreateSub(ir.ConstInt(ir.Gas, 128), lz, "sigBits")
	sigBytes := g.bld.CreateUDiv(
		g.bld.CreateAdd(sigBits, ir.ConstInt(ir.Gas, 7)),
		ir.ConstInt(ir.Gas, 8))

	perByte := params.ExpByteGas
	switch {
	case g.rev >= Aion:
		perByte = params.AionExpByteGas
	case g.rev >= SpuriousDragon:
		perByte = params.ExpByteGasSpurious
	}
	g.CountValue(g.bld.CreateNUWMul(sigBytes, ir.ConstInt(ir.Gas, perByte)), nil, nil)
}

// CountSStore distinguishes inserts from resets by pre-fetching the old
// value through the host.
func (g *GasMeter) CountSStore(ext *Ext, key, newValue ir.Value) {
	oldValue := ext.SLoad(key)
	oldValueIsZero := g.bld.CreateICmp(ir.PredEQ, oldValue, constWord(0), "oldValueIsZero")
	newValueIsntZero := g.bld.CreateICmp(ir.PredNE, newValue, constWord(0), "newValueIsntZero")
	isInsert := g.bld.CreateAnd(oldValueIsZero, newValueIsntZero, "isInsert")
	reset := params.SstoreResetGas
	if g.rev >= Aion {
		reset = params.AionSstoreResetGas
	}
	cost := g.bld.CreateSelect(isInsert,
		ir.ConstInt(ir.Gas, params.SstoreSetGas),
		ir.ConstInt(ir.Gas, reset), "cost")
	g.CountValue(cost, nil, nil)
}

func (g *GasMeter) CountLogData(dataLength ir.Value) {
	perByte := params.LogDataGas
	if g.rev >= Aion {
		perByte = params.AionLogDataGas
	}
	g.CountValue(g.bld.CreateNUWMul(dataLength, constWord(perByte)), nil, nil)
}

func (g *GasMeter) CountSha3Data(dataLength ir.Value) {
	dataLength64 := g.bld.CreateTrunc(dataLength, ir.Gas)
	words64 := g.bld.CreateUDiv(
		g.bld.CreateNUWAdd(dataLength64, ir.ConstInt(ir.Gas, 31)),
		ir.ConstInt(ir.Gas, 32))
	g.CountValue(g.bld.CreateNUWMul(ir.ConstInt(ir.Gas, params.Sha3WordGas), words64), nil, nil)
}

// CountMemory charges memory expansion already priced in words by Memory.
func (g *GasMeter) CountMemory(additionalWords, jmpBuf, gasPtr ir.Value) {
	g.CountValue(additionalWords, jmpBuf, gasPtr)
}

func (g *GasMeter) CountCopy(copyWords ir.Value) {
	g.CountValue(g.bld.CreateNUWMul(copyWords, constWord(params.CopyGas)), nil, nil)
}

// GiveBack refunds gas returned by a sub-call.
func (g *GasMeter) GiveBack(gas ir.Value) {
	g.rt.SetGas(g.bld.CreateAdd(g.rt.Gas(), gas))
}

// CommitCostBlock patches the pending gas.check with the aggregated block
// cost, or removes it when the cost is zero. Committing twice in a row is
// a no-op after the first.
func (g *GasMeter) CommitCostBlock() {
	if g.checkCall == nil {
		return
	}
	if g.blockCost == 0 {
		g.checkCall.EraseFromParent()
		g.checkCall = nil
		return
	}
	g.checkCall.SetArg(1, ir.ConstInt(ir.Gas, g.blockCost))
	g.checkCall = nil
	g.blockCost = 0
}

// StepCost is the deterministic tier cost of an opcode under the meter's
// revision.
func (g *GasMeter) StepCost(op ByteCode) int64 {
	aion := g.rev >= Aion
	flat := func(cost int64) int64 {
		if aion {
			return params.AionFlatStepGas
		}
		return cost
	}

	switch op {
	// Tier 0
	case STOP, RETURN, REVERT, SSTORE: // SSTORE is priced in CountSStore
		return params.StepGas0

	// Tier 1
	case ADDRESS, ORIGIN, CALLER, CALLVALUE, CALLDATASIZE, RETURNDATASIZE,
		CODESIZE, GASPRICE, COINBASE, TIMESTAMP, NUMBER, DIFFICULTY,
		GASLIMIT, POP, PC, MSIZE, GAS:
		return flat(params.StepGas1)

	// Tier 2
	case ADD, SUB, LT, GT, SLT, SGT, EQ, ISZERO, AND, OR, XOR, NOT, BYTE,
		CALLDATALOAD, CALLDATACOPY, RETURNDATACOPY, CODECOPY,
		MLOAD, MSTORE, MSTORE8:
		return flat(params.StepGas2)

	// Tier 3
	case MUL, DIV, SDIV, MOD, SMOD, SIGNEXTEND:
		return flat(params.StepGas3)

	// Tier 4
	case ADDMOD, MULMOD, JUMP:
		return flat(params.StepGas4)

	// Tier 5
	case EXP, JUMPI:
		return flat(params.StepGas5)

	// Tier 6
	case BALANCE:
		if aion {
			return params.AionStateAccessGas
		}
		if g.rev >= TangerineWhistle {
			return params.BalanceGasEIP150
		}
		return params.StepGas6

	case EXTCODESIZE, EXTCODECOPY:
		if aion {
			return params.AionStateAccessGas
		}
		if g.rev >= TangerineWhistle {
			return params.ExtcodeGasEIP150
		}
		return params.StepGas6

	case BLOCKHASH:
		return params.StepGas6

	case SHA3:
		return params.Sha3Gas

	case SLOAD:
		if aion {
			return params.AionStateAccessGas
		}
		if g.rev >= TangerineWhistle {
			return params.SloadGasEIP150
		}
		return params.SloadGas

	case JUMPDEST:
		return params.JumpdestGas

	case LOG0, LOG1, LOG2, LOG3, LOG4:
		numTopics := int64(op - LOG0)
		if aion {
			return params.AionLogGas + numTopics*params.AionLogTopicGas
		}
		return params.LogGas + numTopics*params.LogTopicGas

	case CALL, CALLCODE, DELEGATECALL, STATICCALL:
		if aion {
			return params.AionStateAccessGas
		}
		if g.rev >= TangerineWhistle {
			return params.CallGasEIP150
		}
		return params.CallGas

	case CREATE:
		if aion {
			return params.AionCreateGas
		}
		return params.CreateGas

	case SELFDESTRUCT:
		if g.rev >= TangerineWhistle {
			return params.SelfdestructGasEIP150
		}
		return params.StepGas0
	}

	switch {
	case op.IsPush(),
		op >= DUP1 && op <= DUP16, op >= SWAP1 && op <= SWAP16,
		op >= DUP17 && op <= DUP32, op >= SWAP17 && op <= SWAP32:
		return flat(params.StepGas2)
	}

	// Invalid instruction: costs nothing, the emitted code exits instead.
	return 0
}
