package compiler

import (
	"math"

	"github.com/holiman/uint256"

	"github.com/aionnetwork/fastvm/core/evmjit/ir"
	"github.com/aionnetwork/fastvm/params"
)

const destIdxLabel = "destIdx"

// Config selects the revision the module is compiled for and whether the
// code runs in static-call mode, where state-mutating instructions compile
// to an out-of-gas exit.
type Config struct {
	Revision   Revision
	StaticCall bool
}

// Compiler translates one bytecode stream into one IR module. A compiler
// instance is single-use and not safe for concurrent use; independent
// instances may run in parallel on disjoint inputs.
type Compiler struct {
	cfg Config
	bld *ir.Builder

	mod         *ir.Module
	mainFn      *ir.Func
	jumpTableBB *ir.Block
	blockStarts bitmap
}

func New(cfg Config) *Compiler {
	return &Compiler{cfg: cfg, bld: ir.NewBuilder()}
}

func constWord(v int64) *ir.Const { return ir.ConstInt(ir.Word, v) }

// Compile emits the module exposing execute(rt) -> i32 whose semantics
// mirror the bytecode's execution.
func (c *Compiler) Compile(code []byte, id string) *ir.Module {
	mod := ir.NewModule(id)
	c.mod = mod
	c.blockStarts = bitmap{}

	c.mainFn = mod.NewFunc("execute", ir.I32, ir.ExternalLinkage, ir.BytePtr)
	c.mainFn.Param(0).SetName("rt")

	gasOut := mod.NewGlobal("gas_out", ir.Bool, ir.ConstInt(ir.Bool, 0), ir.CommonLinkage)

	entryBB := c.mainFn.NewBlock("Entry")

	blocks := c.createBasicBlocks(code)

	// Special "Stop" block guarantees a next block after the code blocks,
	// also when there are none.
	stopBB := c.mainFn.NewBlock("Stop")
	c.jumpTableBB = c.mainFn.NewBlock("JumpTable")
	abortBB := c.mainFn.NewBlock("Abort")

	// Must be set up before basic blocks compilation.
	c.bld.SetInsertPoint(c.jumpTableBB)
	target := c.bld.CreatePhi(ir.Word, "target")
	c.bld.CreateSwitch(target, abortBB)

	c.bld.SetInsertPoint(entryBB)
	c.bld.CreateStore(ir.ConstInt(ir.Bool, 0), gasOut)

	rt := newRuntimeManager(c.bld, mod, c.mainFn)
	gm := newGasMeter(c.bld, rt, c.cfg.Revision, gasOut)
	mem := newMemory(c.bld, rt, gm)
	ext := newExt(c.bld, rt)
	arith := newArith128(c.bld, mod)

	// jmp_buf: {frameaddress, resume addr (filled by setjmp), stacksave}.
	jmpBufWords := c.bld.CreateAlloca(ir.BytePtr, ir.ConstInt(ir.Size, 3), "jmpBuf.words")
	frameaddress := mod.DeclareFunc("llvm.frameaddress", ir.BytePtr, ir.I32)
	fp := c.bld.CreateCall(frameaddress, []ir.Value{ir.ConstInt(ir.I32, 0)}, "fp")
	c.bld.CreateStore(fp, jmpBufWords)
	stacksave := mod.DeclareFunc("llvm.stacksave", ir.BytePtr)
	sp := c.bld.CreateCall(stacksave, nil, "sp")
	jmpBufSp := c.bld.CreateConstGEP1_64(jmpBufWords, 2, "jmpBuf.sp")
	c.bld.CreateStore(sp, jmpBufSp)
	setjmp := mod.DeclareFunc("llvm.eh.sjlj.setjmp", ir.I32, ir.BytePtr)
	jmpBuf := c.bld.CreateBitCast(jmpBufWords, ir.BytePtr, "jmpBuf")
	r := c.bld.CreateCall(setjmp, []ir.Value{jmpBuf})
	normalFlow := c.bld.CreateICmp(ir.PredEQ, r, ir.ConstInt(ir.I32, 0))
	rt.SetJmpBuf(jmpBuf)
	firstCode := stopBB
	if len(blocks) > 0 {
		firstCode = blocks[0].IRBlock()
	}
	c.bld.CreateCondBrExpectTrue(normalFlow, firstCode, abortBB)

	for _, bb := range blocks {
		c.compileBasicBlock(bb, code, rt, arith, mem, ext, gm, gasOut)
	}

	c.bld.SetInsertPoint(stopBB)
	rt.Exit(ReturnCodeStop)

	c.bld.SetInsertPoint(abortBB)
	rt.Exit(ReturnCodeOutOfGas)

	c.resolveJumps()

	c.makeGasOutSupport(abortBB, gasOut)

	modulesCompiledCounter.Inc(1)
	blocksEmittedCounter.Inc(int64(len(blocks)))
	debugInfo("compiled module", "id", id, "codeLen", len(code), "blocks", len(blocks))

	return mod
}

// pushWord256 pushes an IR integer wider than the stack word as two items,
// high half on top.
func (c *Compiler) pushWord256(stack *LocalStack, word ir.Value) {
	w16_31 := c.bld.CreateTrunc(word, ir.Word)
	stack.push(w16_31)

	w0_16 := c.bld.CreateTrunc(c.bld.CreateLShr(word, ir.NewConst(ir.Word256, uint256.NewInt(128))), ir.Word)
	stack.push(w0_16)
}

// popWord256 pops two items and joins them into a single i256.
func (c *Compiler) popWord256(stack *LocalStack) ir.Value {
	w0_15 := c.bld.CreateZExt(stack.pop(), ir.Word256)
	w0_15 = c.bld.CreateShl(w0_15, ir.NewConst(ir.Word256, uint256.NewInt(128)))

	w16_32 := c.bld.CreateZExt(stack.pop(), ir.Word256)

	return c.bld.CreateOr(w0_15, w16_32)
}

// readPushData decodes the big-endian immediate of the PUSHn at pc. A
// truncated push consumes only the available bytes.
func readPushData(code []byte, pc int) *uint256.Int {
	end := pc + 1 + ByteCode(code[pc]).PushDataSize()
	if end > len(code) {
		end = len(code)
	}
	return new(uint256.Int).SetBytes(code[pc+1 : end])
}

func (c *Compiler) compileBasicBlock(bb *BasicBlock, code []byte, rt *RuntimeManager,
	arith *Arith128, mem *Memory, ext *Ext, gm *GasMeter, gasOut *ir.Global) {

	c.bld.SetInsertPoint(bb.IRBlock())
	stack := newLocalStack(c.bld, rt, gasOut)

	// Invalid instructions and revision violations compile to a runtime
	// out-of-gas fault and end the block.
	invalid := func() {
		rt.Exit(ReturnCodeOutOfGas)
	}

	pc := bb.Begin()
opcodes:
	for pc < bb.End() {
		op := ByteCode(code[pc])

		gm.Count(op)

		switch {
		case op == ADD:
			lhs := stack.pop()
			rhs := stack.pop()
			stack.push(c.bld.CreateAdd(lhs, rhs))

		case op == SUB:
			lhs := stack.pop()
			rhs := stack.pop()
			stack.push(c.bld.CreateSub(lhs, rhs))

		case op == MUL:
			lhs := stack.pop()
			rhs := stack.pop()
			stack.push(c.bld.CreateMul(lhs, rhs))

		case op == DIV:
			d := stack.pop()
			n := stack.pop()
			divByZero := c.bld.CreateICmp(ir.PredEQ, n, constWord(0))
			n = c.bld.CreateSelect(divByZero, constWord(1), n) // protect against hardware signal
			res := c.bld.CreateUDiv(d, n)
			stack.push(c.bld.CreateSelect(divByZero, constWord(0), res))

		case op == SDIV:
			d := stack.pop()
			n := stack.pop()
			divByZero := c.bld.CreateICmp(ir.PredEQ, n, constWord(0))
			divByMinusOne := c.bld.CreateICmp(ir.PredEQ, n, constWord(-1))
			n = c.bld.CreateSelect(divByZero, constWord(1), n) // protect against hardware signal
			res := c.bld.CreateSDiv(d, n)
			res = c.bld.CreateSelect(divByZero, constWord(0), res)
			dNeg := c.bld.CreateSub(constWord(0), d)
			res = c.bld.CreateSelect(divByMinusOne, dNeg, res) // protect against undef min / -1
			stack.push(res)

		case op == MOD:
			d := stack.pop()
			n := stack.pop()
			divByZero := c.bld.CreateICmp(ir.PredEQ, n, constWord(0))
			n = c.bld.CreateSelect(divByZero, constWord(1), n)
			res := c.bld.CreateURem(d, n)
			stack.push(c.bld.CreateSelect(divByZero, constWord(0), res))

		case op == SMOD:
			d := stack.pop()
			n := stack.pop()
			divByZero := c.bld.CreateICmp(ir.PredEQ, n, constWord(0))
			divByMinusOne := c.bld.CreateICmp(ir.PredEQ, n, constWord(-1))
			n = c.bld.CreateSelect(divByZero, constWord(1), n)
			res := c.bld.CreateSRem(d, n)
			res = c.bld.CreateSelect(divByZero, constWord(0), res)
			res = c.bld.CreateSelect(divByMinusOne, constWord(0), res)
			stack.push(res)

		case op == ADDMOD:
			a := stack.pop()
			b := stack.pop()
			m := stack.pop()
			divByZero := c.bld.CreateICmp(ir.PredEQ, m, constWord(0))
			a256 := c.bld.CreateZExt(a, ir.Word256)
			b256 := c.bld.CreateZExt(b, ir.Word256)
			m256 := c.bld.CreateZExt(m, ir.Word256)
			s := c.bld.CreateNUWAdd(a256, b256)
			s = c.bld.CreateURem(s, m256)
			sw := c.bld.CreateTrunc(s, ir.Word)
			stack.push(c.bld.CreateSelect(divByZero, constWord(0), sw))

		case op == MULMOD:
			a := stack.pop()
			b := stack.pop()
			m := stack.pop()
			divByZero := c.bld.CreateICmp(ir.PredEQ, m, constWord(0))
			a256 := c.bld.CreateZExt(a, ir.Word256)
			b256 := c.bld.CreateZExt(b, ir.Word256)
			m256 := c.bld.CreateZExt(m, ir.Word256)
			p := c.bld.CreateNUWMul(a256, b256)
			p = c.bld.CreateURem(p, m256)
			pw := c.bld.CreateTrunc(p, ir.Word)
			stack.push(c.bld.CreateSelect(divByZero, constWord(0), pw))

		case op == EXP:
			base := stack.pop()
			exponent := stack.pop()
			gm.CountExp(exponent)
			stack.push(arith.Exp(base, exponent))

		case op == SIGNEXTEND:
			idx := stack.pop()
			word := stack.pop()

			k16_ := c.bld.CreateTrunc(idx, ir.IntType(4), "k_16")
			k16 := c.bld.CreateZExt(k16_, ir.Size)
			k16x8 := c.bld.CreateMul(k16, ir.ConstInt(ir.Size, 8), "kx8")

			// test for word >> (k * 8 + 7)
			bitpos := c.bld.CreateAdd(k16x8, ir.ConstInt(ir.Size, 7), "bitpos")
			bitposEx := c.bld.CreateZExt(bitpos, ir.Word)
			bitval := c.bld.CreateLShr(word, bitposEx, "bitval")
			bittest := c.bld.CreateTrunc(bitval, ir.Bool, "bittest")

			mask := c.bld.CreateShl(constWord(1), bitposEx)
			mask = c.bld.CreateSub(mask, constWord(1), "mask")

			negmask := c.bld.CreateXor(mask, ir.ConstAllOnes(ir.Word), "negmask")
			val1 := c.bld.CreateOr(word, negmask)
			val0 := c.bld.CreateAnd(word, mask)

			kInRange := c.bld.CreateICmp(ir.PredULE, idx, constWord(14))
			result := c.bld.CreateSelect(kInRange,
				c.bld.CreateSelect(bittest, val1, val0),
				word)
			stack.push(result)

		case op == NOT:
			value := stack.pop()
			stack.push(c.bld.CreateXor(value, ir.ConstAllOnes(ir.Word), "bnot"))

		case op == LT:
			c.compileComparison(stack, ir.PredULT)
		case op == GT:
			c.compileComparison(stack, ir.PredUGT)
		case op == SLT:
			c.compileComparison(stack, ir.PredSLT)
		case op == SGT:
			c.compileComparison(stack, ir.PredSGT)
		case op == EQ:
			c.compileComparison(stack, ir.PredEQ)

		case op == ISZERO:
			top := stack.pop()
			iszero := c.bld.CreateICmp(ir.PredEQ, top, constWord(0), "iszero")
			stack.push(c.bld.CreateZExt(iszero, ir.Word))

		case op == AND:
			lhs := stack.pop()
			rhs := stack.pop()
			stack.push(c.bld.CreateAnd(lhs, rhs))

		case op == OR:
			lhs := stack.pop()
			rhs := stack.pop()
			stack.push(c.bld.CreateOr(lhs, rhs))

		case op == XOR:
			lhs := stack.pop()
			rhs := stack.pop()
			stack.push(c.bld.CreateXor(lhs, rhs))

		case op == BYTE:
			idx := stack.pop()
			value := toBE(c.bld, c.mod, stack.pop())

			idxValid := c.bld.CreateICmp(ir.PredULT, idx, constWord(16), "idxValid")
			bytes := c.bld.CreateBitCast(value, ir.Byte16Vec, "bytes")
			// Workaround for DAG builder index handling: truncate to 4
			// bits, then zero-extend to the platform index width. Keep
			// both casts.
			safeIdx := c.bld.CreateTrunc(idx, ir.IntType(4))
			safeIdxExt := c.bld.CreateZExt(safeIdx, ir.Size)
			byteVal := c.bld.CreateExtractElement(bytes, safeIdxExt, "byte")
			v := c.bld.CreateZExt(byteVal, ir.Word)
			stack.push(c.bld.CreateSelect(idxValid, v, constWord(0)))

		case op == SHA3:
			inOff := stack.pop()
			inSize := stack.pop()
			mem.Require(inOff, inSize)
			gm.CountSha3Data(inSize)
			hash := ext.Sha3(inOff, inSize)
			c.pushWord256(stack, hash)

		case op == POP:
			stack.pop()

		case op.IsPush():
			value := readPushData(code, pc)
			if op.PushDataSize() > 16 {
				c.pushWord256(stack, ir.NewConst(ir.Word256, value))
			} else {
				stack.push(ir.NewConst(ir.Word, value))
			}

		case op >= DUP1 && op <= DUP16:
			stack.dup(int(op - DUP1))

		case op >= DUP17 && op <= DUP32:
			if c.cfg.Revision < AionV1 {
				invalid()
				break opcodes
			}
			stack.dup(int(op-DUP17) + 16)

		case op >= SWAP1 && op <= SWAP16:
			stack.swap(int(op-SWAP1) + 1)

		case op >= SWAP17 && op <= SWAP32:
			if c.cfg.Revision < AionV1 {
				invalid()
				break opcodes
			}
			stack.swap(int(op-SWAP17) + 17)

		case op == MLOAD:
			addr := stack.pop()
			stack.push(mem.LoadWord(addr))

		case op == MSTORE:
			addr := stack.pop()
			word := stack.pop()
			mem.StoreWord(addr, word)

		case op == MSTORE8:
			addr := stack.pop()
			word := stack.pop()
			mem.StoreByte(addr, word)

		case op == MSIZE:
			stack.push(mem.Size())

		case op == SLOAD:
			index := stack.pop()
			stack.push(ext.SLoad(index))

		case op == SSTORE:
			if c.cfg.StaticCall {
				invalid()
				break opcodes
			}
			index := stack.pop()
			value := stack.pop()
			gm.CommitCostBlock() // the SSTORE cost is dynamic
			gm.CountSStore(ext, index, value)
			ext.SStore(index, value)

		case op == JUMP || op == JUMPI:
			destIdx := stack.pop()

			// Branch to the jump table; resolveJumps rewrites the edge to
			// a direct jump when the destination is a known constant.
			var jumpInst *ir.Instr
			if op == JUMP {
				jumpInst = c.bld.CreateBr(c.jumpTableBB)
			} else {
				cond := c.bld.CreateICmp(ir.PredNE, stack.pop(), constWord(0), "jump.check")
				jumpInst = c.bld.CreateCondBr(cond, c.jumpTableBB, nil)
			}
			jumpInst.SetMetadata(destIdxLabel, destIdx)

		case op == JUMPDEST:
			// JUMPDEST starts a block; register it in the jump table.
			jumpTable := c.jumpTableBB.Terminator()
			jumpTable.AddCase(ir.ConstUint(ir.Word, bb.FirstInstrIdx()), bb.IRBlock())

		case op == PC:
			stack.push(constWord(int64(pc)))

		case op == GAS:
			gm.CommitCostBlock()
			stack.push(c.bld.CreateZExt(rt.Gas(), ir.Word))

		case op == ADDRESS:
			addr := toNative(c.bld, c.mod, rt.Address())
			c.pushWord256(stack, addr)

		case op == CALLER:
			addr := toNative(c.bld, c.mod, rt.Caller())
			c.pushWord256(stack, addr)

		case op == ORIGIN:
			addr := toNative(c.bld, c.mod, rt.TxContextItem(txCtxOrigin))
			c.pushWord256(stack, addr)

		case op == COINBASE:
			addr := toNative(c.bld, c.mod, rt.TxContextItem(txCtxCoinbase))
			c.pushWord256(stack, addr)

		case op == GASPRICE:
			stack.push(toNative(c.bld, c.mod, rt.TxContextItem(txCtxGasPrice)))

		case op == DIFFICULTY:
			stack.push(toNative(c.bld, c.mod, rt.TxContextItem(txCtxDifficulty)))

		case op == GASLIMIT:
			stack.push(c.bld.CreateZExt(rt.TxContextItem(txCtxGasLimit), ir.Word))

		case op == NUMBER:
			stack.push(c.bld.CreateZExt(rt.TxContextItem(txCtxNumber), ir.Word))

		case op == TIMESTAMP:
			stack.push(c.bld.CreateZExt(rt.TxContextItem(txCtxTimestamp), ir.Word))

		case op == CALLVALUE:
			stack.push(toNative(c.bld, c.mod, rt.Value()))

		case op == CODESIZE:
			stack.push(rt.CodeSize())

		case op == CALLDATASIZE:
			stack.push(rt.CallDataSize())

		case op == RETURNDATASIZE:
			if c.cfg.Revision < Byzantium {
				invalid()
				break opcodes
			}
			returnBufSize := c.bld.CreateLoad(rt.ReturnBufSizePtr())
			stack.push(c.bld.CreateZExt(returnBufSize, ir.Word))

		case op == BLOCKHASH:
			number := stack.pop()
			// If number is bigger than int64 assume the result is 0.
			limit := c.bld.CreateZExt(ir.ConstInt(ir.Size, math.MaxInt64), ir.Word)
			isBigNumber := c.bld.CreateICmp(ir.PredUGT, number, limit)
			hash := ext.BlockHash(number)
			hash = c.bld.CreateSelect(isBigNumber, ir.ConstInt(ir.Word256, 0), hash)
			c.pushWord256(stack, hash)

		case op == BALANCE:
			addr := c.popWord256(stack)
			stack.push(ext.Balance(addr))

		case op == EXTCODESIZE:
			addr := c.popWord256(stack)
			stack.push(ext.ExtCodeSize(addr))

		case op == CALLDATACOPY:
			destMemIdx := stack.pop()
			srcIdx := stack.pop()
			reqBytes := stack.pop()

			srcPtr := rt.CallData()
			srcSize := rt.CallDataSize()

			mem.CopyBytes(srcPtr, srcSize, srcIdx, destMemIdx, reqBytes)

		case op == RETURNDATACOPY:
			if c.cfg.Revision < Byzantium {
				invalid()
				break opcodes
			}
			destMemIdx := stack.pop()
			srcIdx := stack.pop()
			reqBytes := stack.pop()

			srcPtr := c.bld.CreateLoad(rt.ReturnBufDataPtr())
			srcSize := c.bld.CreateZExt(c.bld.CreateLoad(rt.ReturnBufSizePtr()), ir.Word)

			mem.CopyBytesNoPadding(srcPtr, srcSize, srcIdx, destMemIdx, reqBytes)

		case op == CODECOPY:
			destMemIdx := stack.pop()
			srcIdx := stack.pop()
			reqBytes := stack.pop()

			srcPtr := rt.Code()
			srcSize := rt.CodeSize()

			mem.CopyBytes(srcPtr, srcSize, srcIdx, destMemIdx, reqBytes)

		case op == EXTCODECOPY:
			addr := c.popWord256(stack)
			destMemIdx := stack.pop()
			srcIdx := stack.pop()
			reqBytes := stack.pop()

			codePtr, codeSize := ext.ExtCode(addr)
			mem.CopyBytes(codePtr, codeSize, srcIdx, destMemIdx, reqBytes)

		case op == CALLDATALOAD:
			idx := stack.pop()
			stack.push(ext.CallDataLoad(idx))

		case op == CREATE:
			if c.cfg.StaticCall {
				invalid()
				break opcodes
			}
			c.compileCreate(stack, rt, mem, ext, gm)

		case op == CALL || op == CALLCODE || op == DELEGATECALL || op == STATICCALL:
			if op == DELEGATECALL && c.cfg.Revision < Homestead {
				invalid()
				break opcodes
			}
			if op == STATICCALL && c.cfg.Revision < Byzantium {
				invalid()
				break opcodes
			}
			c.compileCall(op, stack, rt, mem, ext, gm)

		case op == RETURN || op == REVERT:
			isRevert := op == REVERT
			if isRevert && c.cfg.Revision < Byzantium {
				invalid()
				break opcodes
			}

			index := stack.pop()
			size := stack.pop()

			mem.Require(index, size)
			rt.RegisterReturnData(index, size)

			if isRevert {
				rt.Exit(ReturnCodeRevert)
			} else {
				rt.Exit(ReturnCodeReturn)
			}

		case op == SELFDESTRUCT:
			if c.cfg.StaticCall {
				invalid()
				break opcodes
			}
			dest := c.popWord256(stack)
			if c.cfg.Revision >= TangerineWhistle {
				destExists := ext.Exists(dest)
				noPenaltyCond := destExists
				if c.cfg.Revision >= SpuriousDragon {
					addr := toNative(c.bld, c.mod, rt.Address())
					balance := ext.Balance(addr)
					noTransfer := c.bld.CreateICmp(ir.PredEQ, balance, constWord(0))
					noPenaltyCond = c.bld.CreateOr(destExists, noTransfer)
				}
				penalty := c.bld.CreateSelect(noPenaltyCond,
					ir.ConstInt(ir.Gas, 0),
					ir.ConstInt(ir.Gas, params.CallNewAccountGas))
				gm.CountValue(penalty, nil, nil)
			}
			ext.Selfdestruct(dest)
			rt.Exit(ReturnCodeStop)

		case op == STOP:
			rt.Exit(ReturnCodeStop)

		case op >= LOG0 && op <= LOG4:
			if c.cfg.StaticCall {
				invalid()
				break opcodes
			}

			beginIdx := stack.pop()
			numBytes := stack.pop()
			mem.Require(beginIdx, numBytes)

			// This commits the current cost block.
			gm.CommitCostBlock()
			gm.CountLogData(numBytes)

			numTopics := int(op - LOG0)
			topics := make([]ir.Value, 0, 2*numTopics)
			for i := 0; i < numTopics; i++ {
				// Each topic takes two stack items.
				topics = append(topics, stack.pop())
				topics = append(topics, stack.pop())
			}

			ext.Log(beginIdx, numBytes, topics)

		default:
			// Invalid instruction - abort.
			invalid()
			break opcodes
		}

		pc = skipPushData(code, pc)
	}

	gm.CommitCostBlock()

	stack.finalize()
}

func (c *Compiler) compileComparison(stack *LocalStack, pred ir.Pred) {
	lhs := stack.pop()
	rhs := stack.pop()
	res1 := c.bld.CreateICmp(pred, lhs, rhs)
	stack.push(c.bld.CreateZExt(res1, ir.Word))
}

func (c *Compiler) compileCreate(stack *LocalStack, rt *RuntimeManager, mem *Memory, ext *Ext, gm *GasMeter) {
	endowment := stack.pop()
	initOff := stack.pop()
	initSize := stack.pop()
	mem.Require(initOff, initSize)

	gm.CommitCostBlock()
	gas := rt.Gas()
	var gasKept ir.Value = ir.ConstInt(ir.Gas, 0)
	if c.cfg.Revision >= TangerineWhistle {
		gasKept = c.bld.CreateLShr(gas, ir.ConstInt(ir.Gas, 6))
	}
	createGas := c.bld.CreateNUWNSWSub(gas, gasKept, "create.gas")

	r, pAddr := ext.Create(createGas, endowment, initOff, initSize)

	ret := c.bld.CreateICmp(ir.PredSGE, r, ir.ConstInt(ir.Gas, 0), "create.ret")
	rmagic := c.bld.CreateSelect(ret,
		ir.ConstInt(ir.Gas, 0), ir.ConstInt(ir.Gas, params.CallFailure), "call.rmagic")
	gasLeft := c.bld.CreateSub(r, rmagic, "create.gasleft")
	rt.SetGas(c.bld.CreateAdd(gasLeft, gasKept))

	addrLoaded := c.bld.CreateLoad(pAddr)
	addr := toNative(c.bld, c.mod, addrLoaded)
	addrWide := c.bld.CreateZExt(addr, ir.Word256)
	selected := c.bld.CreateSelect(ret, addrWide, ir.ConstInt(ir.Word256, 0))
	c.pushWord256(stack, selected)
}

func (c *Compiler) compileCall(op ByteCode, stack *LocalStack, rt *RuntimeManager, mem *Memory, ext *Ext, gm *GasMeter) {
	callGas := stack.pop()
	address := c.popWord256(stack)
	hasValue := op == CALL || op == CALLCODE
	var value ir.Value = constWord(0)
	if hasValue {
		value = stack.pop()
	}

	inOff := stack.pop()
	inSize := stack.pop()
	outOff := stack.pop()
	outSize := stack.pop()

	gm.CommitCostBlock()

	// Require memory for the in and out buffers; out first as we guess it
	// will be after the in one.
	mem.Require(outOff, outSize)
	mem.Require(inOff, inSize)

	noTransfer := c.bld.CreateICmp(ir.PredEQ, value, constWord(0))

	// In static-call mode a CALL with value transfer draws an infinite
	// penalty instead of compiling to invalid.
	transferGas := params.CallValueTransferGas
	if c.cfg.Revision >= Aion {
		transferGas = params.AionValueTransferGas
	}
	if op == CALL && c.cfg.StaticCall {
		transferGas = math.MaxInt64
	}
	transferCost := c.bld.CreateSelect(noTransfer,
		ir.ConstInt(ir.Gas, 0), ir.ConstInt(ir.Gas, transferGas))
	gm.CountValue(transferCost, rt.JmpBuf(), rt.GasPtr())

	if op == CALL {
		accountExists := ext.Exists(address)
		noPenaltyCond := accountExists
		if c.cfg.Revision >= SpuriousDragon {
			noPenaltyCond = c.bld.CreateOr(accountExists, noTransfer)
		}
		penalty := c.bld.CreateSelect(noPenaltyCond,
			ir.ConstInt(ir.Gas, 0), ir.ConstInt(ir.Gas, params.CallNewAccountGas))
		gm.CountValue(penalty, rt.JmpBuf(), rt.GasPtr())
	}

	if c.cfg.Revision >= TangerineWhistle {
		gas := rt.Gas()
		gas64th := c.bld.CreateLShr(gas, ir.ConstInt(ir.Gas, 6))
		gasMaxAllowed := c.bld.CreateZExt(
			c.bld.CreateNUWNSWSub(gas, gas64th, "gas.maxallowed"), ir.Word)
		cmp := c.bld.CreateICmp(ir.PredUGT, callGas, gasMaxAllowed)
		callGas = c.bld.CreateSelect(cmp, gasMaxAllowed, callGas)
	}

	gm.CountValue(callGas, rt.JmpBuf(), rt.GasPtr())
	stipend := c.bld.CreateSelect(noTransfer,
		ir.ConstInt(ir.Gas, 0), ir.ConstInt(ir.Gas, params.CallStipend))
	gas := c.bld.CreateTrunc(callGas, ir.Gas, "call.gas.declared")
	gas = c.bld.CreateAddFlags(gas, stipend, true, true, "call.gas")

	var kind int
	switch op {
	case CALL:
		kind = evmCall
	case CALLCODE:
		kind = evmCallCode
	case DELEGATECALL:
		kind = evmDelegateCall
	default:
		kind = evmStaticCall
	}

	r := ext.Call(kind, gas, address, value, inOff, inSize, outOff, outSize)
	ret := c.bld.CreateICmp(ir.PredSGE, r, ir.ConstInt(ir.Gas, 0), "call.ret")
	rmagic := c.bld.CreateSelect(ret,
		ir.ConstInt(ir.Gas, 0), ir.ConstInt(ir.Gas, params.CallFailure), "call.rmagic")
	finalGas := c.bld.CreateSub(r, rmagic, "call.finalgas")
	gm.GiveBack(finalGas)
	stack.push(c.bld.CreateZExt(ret, ir.Word))
}

// resolveJumps runs after all blocks are emitted: it closes open blocks
// with fall-through branches, rewrites statically-known jump targets to
// direct edges and feeds the rest into the jump-table phi.
func (c *Compiler) resolveJumps() {
	jumpTable := c.jumpTableBB.Terminator()
	jumpTableInput := c.jumpTableBB.First()

	fb := c.mainFn.Blocks()
	// Code blocks sit between Entry and the three trailing special blocks.
	for i := 1; i < len(fb)-3; i++ {
		current := fb[i]
		next := fb[i+1] // for the last code block that is "Stop"

		term := current.Terminator()
		if term == nil {
			// No terminator: the next instruction is a jump destination.
			bld := ir.NewBuilder()
			bld.SetInsertPoint(current)
			bld.CreateBr(next)
			continue
		}

		if term.Op() != ir.OpBr || term.Succ(0) != c.jumpTableBB {
			continue
		}

		destIdx := term.Metadata(destIdxLabel)
		if constant, ok := destIdx.(*ir.Const); ok {
			if target := jumpTable.FindCase(constant.Val()); target != nil {
				// Constant destination: direct jump to the target block.
				term.SetSucc(0, target)
				directJumpsCounter.Inc(1)
			} else {
				jumpTableInput.AddIncoming(destIdx, current)
			}
		} else {
			jumpTableInput.AddIncoming(destIdx, current)
		}

		if term.IsConditional() {
			term.SetSucc(1, next)
		}
	}

	if len(jumpTableInput.Incomings()) == 0 {
		jumpTableInput.ReplaceAllUsesWith(ir.NewUndef(ir.Word))
		jumpTableInput.EraseFromParent()
	} else if constant := jumpTableInput.ConstantValue(); constant != nil {
		jumpTableInput.ReplaceAllUsesWith(constant)
		jumpTableInput.EraseFromParent()
	}
}

// makeGasOutSupport inserts a gas_out poll after every mem.require and
// gas.check call, branching to Abort when the flag is set. This is the
// portable fallback for targets that cannot lower the SJLJ longjmp.
func (c *Compiler) makeGasOutSupport(abortBB *ir.Block, gasOut *ir.Global) {
	var checkCalls []*ir.Instr

	fb := c.mainFn.Blocks()
	for i := 1; i < len(fb)-3; i++ {
		instrs := fb[i].Instrs()
		for n, ins := range instrs {
			if ins.Op() != ir.OpCall {
				continue
			}
			name := ins.Callee().Name()
			if (name == "mem.require" || name == "gas.check") && n+1 < len(instrs) {
				checkCalls = append(checkCalls, ins)
			}
		}
	}

	bld := ir.NewBuilder()
	for _, call := range checkCalls {
		blk := call.Block()
		cont := blk.SplitAfter(call, blk.Name()+".cont")
		thenBB := c.mainFn.InsertBlockAfter(blk, blk.Name()+".gasout")

		bld.SetInsertPoint(blk)
		isGasOut := bld.CreateLoad(gasOut)
		flow := bld.CreateICmp(ir.PredEQ, isGasOut, ir.ConstInt(ir.Bool, 1))
		bld.CreateCondBr(flow, thenBB, cont)

		bld.SetInsertPoint(thenBB)
		bld.CreateBr(abortBB)
	}
}

// CompileCached compiles through the module cache, keyed by code hash and
// config.
func CompileCached(cfg Config, code []byte) *ir.Module {
	hash := CodeHash(code)
	key := cacheKey{hash: hash, rev: cfg.Revision, static: cfg.StaticCall}
	if mod := getModuleCacheInstance().Get(key); mod != nil {
		cacheHitCounter.Inc(1)
		return mod
	}
	mod := New(cfg).Compile(code, hash.Hex())
	getModuleCacheInstance().Add(key, mod)
	return mod
}
