package compiler

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

func compileHex(t *testing.T, cfg Config, hexCode string) (*ir.Module, *ir.Func) {
	t.Helper()
	mod := New(cfg).Compile(common.Hex2Bytes(hexCode), "test")
	fn := mod.FuncByName("execute")
	require.NotNil(t, fn)
	return mod, fn
}

func blockByName(fn *ir.Func, name string) *ir.Block {
	for _, b := range fn.Blocks() {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

func isSpecialBlock(name string) bool {
	switch name {
	case "Entry", "Stop", "JumpTable", "Abort":
		return true
	}
	return false
}

func callsTo(fn *ir.Func, callee string) []*ir.Instr {
	var calls []*ir.Instr
	for _, b := range fn.Blocks() {
		for _, ins := range b.Instrs() {
			if ins.Op() == ir.OpCall && ins.Callee() != nil && ins.Callee().Name() == callee {
				calls = append(calls, ins)
			}
		}
	}
	return calls
}

// codeRetCodes collects the constant return codes emitted inside code
// blocks, excluding the Stop/Abort epilogues every module carries.
func codeRetCodes(fn *ir.Func) []int64 {
	var codes []int64
	for _, b := range fn.Blocks() {
		if isSpecialBlock(b.Name()) {
			continue
		}
		for _, ins := range b.Instrs() {
			if ins.Op() == ir.OpRet {
				if c, ok := ins.Arg(0).(*ir.Const); ok {
					codes = append(codes, int64(c.Uint64()))
				}
			}
		}
	}
	return codes
}

// findJumpBranch returns the branch instruction carrying a jump
// destination, wherever the gas_out pass left it.
func findJumpBranch(fn *ir.Func) *ir.Instr {
	for _, b := range fn.Blocks() {
		for _, ins := range b.Instrs() {
			if ins.Op() == ir.OpBr && ins.Metadata("destIdx") != nil {
				return ins
			}
		}
	}
	return nil
}

func singleRetCode(t *testing.T, b *ir.Block) int64 {
	t.Helper()
	term := b.Terminator()
	require.NotNil(t, term)
	require.Equal(t, ir.OpRet, term.Op())
	c, ok := term.Arg(0).(*ir.Const)
	require.True(t, ok)
	return int64(c.Uint64())
}

func TestCompileAddStop(t *testing.T) {
	// PUSH1 1, PUSH1 2, ADD, STOP
	mod, fn := compileHex(t, Config{Revision: Frontier}, "6001600201"+"00")

	gasOut := mod.GlobalByName("gas_out")
	require.NotNil(t, gasOut)

	require.NotNil(t, blockByName(fn, "Entry"))
	require.NotNil(t, blockByName(fn, ".0"))

	// The epilogue blocks carry the fixed exits.
	require.EqualValues(t, ReturnCodeStop, singleRetCode(t, blockByName(fn, "Stop")))
	require.EqualValues(t, ReturnCodeOutOfGas, singleRetCode(t, blockByName(fn, "Abort")))

	// The block touches the global stack exactly once.
	preps := callsTo(fn, "stack.prepare")
	require.Len(t, preps, 1)
	requireConstArg(t, preps[0], 2, 0) // min
	requireConstArg(t, preps[0], 3, 2) // max
	requireConstArg(t, preps[0], 4, 1) // diff: caller sees one new item

	// One pre-check carrying the whole block cost: 3+3+3+0.
	checks := callsTo(fn, "gas.check")
	require.Len(t, checks, 1)
	requireConstArg(t, checks[0], 1, 9)

	require.Contains(t, codeRetCodes(fn), int64(ReturnCodeStop))
}

func TestCompileAddStopAion(t *testing.T) {
	// Same program under AION: flat tier costs.
	_, fn := compileHex(t, Config{Revision: Aion}, "6001600201"+"00")
	checks := callsTo(fn, "gas.check")
	require.Len(t, checks, 1)
	requireConstArg(t, checks[0], 1, 3)
}

func TestDirectJumpResolution(t *testing.T) {
	// PUSH1 3, JUMP, JUMPDEST, STOP: the constant destination becomes a
	// direct edge and the jump-table phi disappears.
	_, fn := compileHex(t, Config{Revision: Frontier}, "600356"+"5b00")

	jump := findJumpBranch(fn)
	require.NotNil(t, jump)
	require.False(t, jump.IsConditional())
	dest := blockByName(fn, ".3")
	require.NotNil(t, dest)
	require.Same(t, dest, jump.Succ(0))

	jt := blockByName(fn, "JumpTable")
	require.Equal(t, ir.OpSwitch, jt.First().Op(), "unused phi is erased")
}

func TestJumpTableCompleteness(t *testing.T) {
	// JUMPDEST, JUMPDEST, STOP: one switch case per JUMPDEST offset.
	_, fn := compileHex(t, Config{Revision: Frontier}, "5b5b00")

	jt := blockByName(fn, "JumpTable")
	sw := jt.Terminator()
	require.Equal(t, ir.OpSwitch, sw.Op())
	require.Equal(t, "Abort", sw.Succ(0).Name(), "default arm aborts")

	cases := sw.Cases()
	require.Len(t, cases, 2)
	require.Same(t, blockByName(fn, ".0"), sw.FindCase(uint256.NewInt(0)))
	require.Same(t, blockByName(fn, ".1"), sw.FindCase(uint256.NewInt(1)))
	require.Nil(t, sw.FindCase(uint256.NewInt(2)), "non-JUMPDEST offsets stay unreachable")
}

func TestConditionalJumpWiring(t *testing.T) {
	// PUSH1 1, PUSH1 6, JUMPI, STOP, JUMPDEST, STOP
	_, fn := compileHex(t, Config{Revision: Frontier}, "6001600657"+"00"+"5b00")

	jump := findJumpBranch(fn)
	require.NotNil(t, jump)
	require.True(t, jump.IsConditional())
	require.Same(t, blockByName(fn, ".6"), jump.Succ(0), "taken edge resolved directly")
	require.Same(t, blockByName(fn, ".5"), jump.Succ(1), "fall-through edge is the next block")
}

func TestJumpiUnderflowCompiles(t *testing.T) {
	// PUSH1 1, JUMPI: the condition comes from below the block entry, so
	// stack.prepare must check one slot deep and fault at run time on an
	// empty stack.
	_, fn := compileHex(t, Config{Revision: Frontier}, "600157")

	preps := callsTo(fn, "stack.prepare")
	require.Len(t, preps, 1)
	requireConstArg(t, preps[0], 2, -1)
}

func TestMemoryReturnScenario(t *testing.T) {
	// PUSH1 0xFF, PUSH1 10, PUSH1 0, MSTORE, PUSH1 32, PUSH1 0, RETURN
	_, fn := compileHex(t, Config{Revision: Frontier}, "60ff600a60005260206000"+"f3")

	require.NotEmpty(t, callsTo(fn, "mem.storeword"))
	require.GreaterOrEqual(t, len(callsTo(fn, "mem.require")), 2,
		"MSTORE and RETURN both require memory")
	require.Contains(t, codeRetCodes(fn), int64(ReturnCodeReturn))
}

func TestGasOutPolling(t *testing.T) {
	// Every mem.require/gas.check call with a successor instruction is
	// followed by a load of gas_out and a conditional branch to Abort.
	mod, fn := compileHex(t, Config{Revision: Frontier}, "60ff600a60005260206000"+"f3")
	gasOut := mod.GlobalByName("gas_out")

	abort := blockByName(fn, "Abort")
	polls := 0
	for _, b := range fn.Blocks() {
		if isSpecialBlock(b.Name()) {
			continue
		}
		term := b.Terminator()
		if term == nil || term.Op() != ir.OpBr || !term.IsConditional() {
			continue
		}
		cmp, ok := term.Arg(0).(*ir.Instr)
		if !ok || cmp.Op() != ir.OpICmp {
			continue
		}
		flag, ok := cmp.Arg(0).(*ir.Instr)
		if !ok || flag.Op() != ir.OpLoad || flag.Arg(0) != ir.Value(gasOut) {
			continue
		}
		polls++
		// The raised-flag edge reaches Abort through its stub block.
		stub := term.Succ(0)
		require.Same(t, abort, stub.Terminator().Succ(0))
	}
	require.GreaterOrEqual(t, polls, 3, "one poll per fallible call")
}

func TestStaticCallViolations(t *testing.T) {
	cases := map[string]string{
		"sstore":       "6000600055",
		"create":       "600060006000f0",
		"log0":         "60006000a0",
		"selfdestruct": "6000600060006000ff",
	}
	for name, hexCode := range cases {
		_, fn := compileHex(t, Config{Revision: Aion, StaticCall: true}, hexCode)
		require.Contains(t, codeRetCodes(fn), int64(ReturnCodeOutOfGas), "case %s", name)
		require.Empty(t, callsTo(fn, "ext.sstore"), "case %s", name)
		require.Empty(t, callsTo(fn, "ext.create"), "case %s", name)
		require.Empty(t, callsTo(fn, "ext.log"), "case %s", name)
		require.Empty(t, callsTo(fn, "ext.selfdestruct"), "case %s", name)
	}
}

func TestStaticCallValueTransferPenalty(t *testing.T) {
	// CALL with value in static mode selects an infinite transfer cost
	// instead of compiling to invalid.
	push := "6000"
	_, fn := compileHex(t, Config{Revision: Aion, StaticCall: true},
		push+push+push+push+push+push+push+push+"f1"+"00")

	require.NotEmpty(t, callsTo(fn, "ext.call"), "the call itself still compiles")

	infinite := false
	maxInt64 := int64(^uint64(0) >> 1)
	for _, b := range fn.Blocks() {
		for _, ins := range b.Instrs() {
			if ins.Op() != ir.OpSelect {
				continue
			}
			if c, ok := ins.Arg(2).(*ir.Const); ok && c.IsUint64() && int64(c.Uint64()) == maxInt64 {
				infinite = true
			}
		}
	}
	require.True(t, infinite, "transfer gas selects MaxInt64")
}

func TestExtendedDupSwapRevisionGate(t *testing.T) {
	// DUP17 compiles on AION_V1 and reaches 17 slots below the entry.
	_, fn := compileHex(t, Config{Revision: AionV1}, "b0"+"00")
	preps := callsTo(fn, "stack.prepare")
	require.Len(t, preps, 1)
	requireConstArg(t, preps[0], 2, -17)
	requireConstArg(t, preps[0], 4, 1)

	// Below AION_V1 it falls through to the invalid-instruction arm.
	_, fn = compileHex(t, Config{Revision: Aion}, "b0"+"00")
	require.Contains(t, codeRetCodes(fn), int64(ReturnCodeOutOfGas))
}

func TestInvalidInstruction(t *testing.T) {
	_, fn := compileHex(t, Config{Revision: Frontier}, "fe")
	require.Contains(t, codeRetCodes(fn), int64(ReturnCodeOutOfGas))
}

func TestRevisionGates(t *testing.T) {
	// REVERT, RETURNDATASIZE and RETURNDATACOPY appear with Byzantium.
	byz := map[string]string{
		"revert":         "60006000fd",
		"returndatasize": "3d00",
		"returndatacopy": "6000600060003e00",
	}
	for name, hexCode := range byz {
		_, fn := compileHex(t, Config{Revision: SpuriousDragon}, hexCode)
		require.Contains(t, codeRetCodes(fn), int64(ReturnCodeOutOfGas), "pre-Byzantium %s", name)

		_, fn = compileHex(t, Config{Revision: Byzantium}, hexCode)
		require.NotContains(t, codeRetCodes(fn), int64(ReturnCodeOutOfGas),
			"post-Byzantium %s compiles", name)
	}

	// REVERT registers its buffer and exits with the revert code.
	_, fn := compileHex(t, Config{Revision: Byzantium}, "60006000fd")
	require.Contains(t, codeRetCodes(fn), int64(ReturnCodeRevert))
}

func TestSStoreCommitsCostBlock(t *testing.T) {
	// PUSH1 1, PUSH1 0, SSTORE: the deferred check is patched before the
	// dynamic SSTORE pricing, which pre-fetches the old value.
	_, fn := compileHex(t, Config{Revision: Aion}, "6001600055")

	checks := callsTo(fn, "gas.check")
	require.Len(t, checks, 2, "static pre-check plus the dynamic SSTORE check")
	requireConstArg(t, checks[0], 1, 2) // two pushes; SSTORE base is tier 0

	_, patched := checks[1].Arg(1).(*ir.Const)
	require.False(t, patched, "SSTORE cost is a runtime select")

	require.Len(t, callsTo(fn, "ext.sload"), 1, "old value fetched for insert/reset split")
	require.Len(t, callsTo(fn, "ext.sstore"), 1)
}

func TestLogCountsDataAndTopics(t *testing.T) {
	// PUSH1 0 x6, LOG2: two topics, four words popped for them.
	_, fn := compileHex(t, Config{Revision: Aion}, "600060006000600060006000"+"a2"+"00")

	logs := callsTo(fn, "ext.log")
	require.Len(t, logs, 1)
	requireConstArg(t, logs[0], 3, 2)

	preps := callsTo(fn, "stack.prepare")
	require.Len(t, preps, 1)
	requireConstArg(t, preps[0], 3, 6) // six pushes
	requireConstArg(t, preps[0], 4, 0) // all consumed
}

func TestPushWideValueSplits(t *testing.T) {
	// PUSH32 pushes two stack words; the block's net diff is 2.
	_, fn := compileHex(t, Config{Revision: Frontier},
		"7f"+"0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"+"00")

	preps := callsTo(fn, "stack.prepare")
	require.Len(t, preps, 1)
	requireConstArg(t, preps[0], 3, 2)
	requireConstArg(t, preps[0], 4, 2)
}

func TestCompileEmptyCode(t *testing.T) {
	_, fn := compileHex(t, Config{Revision: Frontier}, "")
	entry := blockByName(fn, "Entry")
	term := entry.Terminator()
	require.True(t, term.IsConditional())
	require.Same(t, blockByName(fn, "Stop"), term.Succ(0), "no code: fall through to Stop")
	require.Same(t, blockByName(fn, "Abort"), term.Succ(1))
}

func TestCreateLowering(t *testing.T) {
	// PUSH1 0 x3, CREATE on AION.
	_, fn := compileHex(t, Config{Revision: Aion}, "600060006000"+"f0"+"00")

	require.Len(t, callsTo(fn, "ext.create"), 1)
	checks := callsTo(fn, "gas.check")
	require.NotEmpty(t, checks)
	requireConstArg(t, checks[0], 1, 3+200000) // pushes + AION CREATE
}

func TestModuleCacheRoundTrip(t *testing.T) {
	code := common.Hex2Bytes("6001600201" + "00")

	first := CompileCached(Config{Revision: Aion}, code)
	second := CompileCached(Config{Revision: Aion}, code)
	require.Same(t, first, second)

	other := CompileCached(Config{Revision: Frontier}, code)
	require.NotSame(t, first, other, "config is part of the cache key")
}

func TestOutOfGasLattice(t *testing.T) {
	// Once gas_out is raised nothing inside execute resets it: the only
	// store of 0 is the Entry initialization.
	mod, fn := compileHex(t, Config{Revision: Frontier}, "60ff600a60005260206000"+"f3")
	gasOut := mod.GlobalByName("gas_out")

	for _, f := range mod.Funcs() {
		if f.IsDecl() {
			continue
		}
		for _, b := range f.Blocks() {
			for _, ins := range b.Instrs() {
				if ins.Op() != ir.OpStore || ins.Arg(1) != ir.Value(gasOut) {
					continue
				}
				c, ok := ins.Arg(0).(*ir.Const)
				require.True(t, ok)
				if c.IsZero() {
					require.Same(t, fn.EntryBlock(), b, "gas_out is cleared only in Entry")
				}
			}
		}
	}
}
