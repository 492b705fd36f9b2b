package ir

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestTypes(t *testing.T) {
	require.Equal(t, "i128", Word.String())
	require.Equal(t, "i128*", WordPtr.String())
	require.Equal(t, "<16 x i8>", Byte16Vec.String())
	require.True(t, PtrTo(Word).Equal(WordPtr))
	require.False(t, Word.Equal(Word256))
	require.Same(t, Word, IntType(128))
}

func TestConstTwosComplement(t *testing.T) {
	minusOne := ConstInt(Size, -1)
	require.Equal(t, uint64(0xffffffffffffffff), minusOne.Uint64())
	require.True(t, minusOne.Eq(ConstInt(Size, -1)))
	require.False(t, minusOne.Eq(ConstInt(Size, 1)))
	require.Equal(t, "-1", minusOne.Ident())

	wide := NewConst(Word, uint256.NewInt(42))
	require.Equal(t, uint64(42), wide.Uint64())
}

func TestBuilderEmitsInOrder(t *testing.T) {
	mod := NewModule("test")
	fn := mod.NewFunc("f", Word, ExternalLinkage, Word, Word)
	fn.Param(0).SetName("a")
	fn.Param(1).SetName("b")
	bb := fn.NewBlock("entry")

	bld := NewBuilder()
	bld.SetInsertPoint(bb)
	sum := bld.CreateNSWAdd(fn.Param(0), fn.Param(1), "sum")
	bld.CreateRet(sum)

	require.Len(t, bb.Instrs(), 2)
	require.Equal(t, OpAdd, bb.Instrs()[0].Op())
	require.True(t, bb.Instrs()[0].HasNSW())
	require.Equal(t, OpRet, bb.Terminator().Op())
}

func TestInsertBefore(t *testing.T) {
	mod := NewModule("test")
	fn := mod.NewFunc("f", Void, ExternalLinkage)
	bb := fn.NewBlock("entry")

	bld := NewBuilder()
	bld.SetInsertPoint(bb)
	ret := bld.CreateRetVoid()

	bld.SetInsertPointBefore(ret)
	bld.CreateStore(ConstInt(Size, 1), NewUndef(SizePtr))
	bld.CreateStore(ConstInt(Size, 2), NewUndef(SizePtr))

	instrs := bb.Instrs()
	require.Len(t, instrs, 3)
	require.Equal(t, OpStore, instrs[0].Op())
	require.Equal(t, OpStore, instrs[1].Op())
	require.Equal(t, OpRet, instrs[2].Op())
}

func TestCallArgPatching(t *testing.T) {
	mod := NewModule("test")
	callee := mod.DeclareFunc("check", Bool, SizePtr, Size)
	fn := mod.NewFunc("f", Void, ExternalLinkage)
	bb := fn.NewBlock("entry")

	bld := NewBuilder()
	bld.SetInsertPoint(bb)
	call := bld.CreateCall(callee, []Value{NewUndef(SizePtr), NewUndef(Size)})

	_, isUndef := call.Arg(1).(*Undef)
	require.True(t, isUndef)
	call.SetArg(1, ConstInt(Size, 77))
	c, ok := call.Arg(1).(*Const)
	require.True(t, ok)
	require.Equal(t, uint64(77), c.Uint64())

	call.EraseFromParent()
	require.Empty(t, bb.Instrs())
}

func TestPhiConstantValue(t *testing.T) {
	mod := NewModule("test")
	fn := mod.NewFunc("f", Void, ExternalLinkage)
	a := fn.NewBlock("a")
	b := fn.NewBlock("b")
	merge := fn.NewBlock("merge")

	bld := NewBuilder()
	bld.SetInsertPoint(merge)
	phi := bld.CreatePhi(Word, "x")

	phi.AddIncoming(NewConst(Word, uint256.NewInt(4)), a)
	require.NotNil(t, phi.ConstantValue())

	phi.AddIncoming(NewConst(Word, uint256.NewInt(4)), b)
	require.NotNil(t, phi.ConstantValue(), "all-equal incomings fold")

	phi.AddIncoming(NewConst(Word, uint256.NewInt(5)), a)
	require.Nil(t, phi.ConstantValue())
}

func TestReplaceAllUsesWith(t *testing.T) {
	mod := NewModule("test")
	fn := mod.NewFunc("f", Void, ExternalLinkage)
	bb := fn.NewBlock("entry")
	tail := fn.NewBlock("tail")

	bld := NewBuilder()
	bld.SetInsertPoint(bb)
	phi := bld.CreatePhi(Word, "x")
	sw := bld.CreateSwitch(phi, tail)

	phi.ReplaceAllUsesWith(NewConst(Word, uint256.NewInt(9)))
	phi.EraseFromParent()

	c, ok := sw.Arg(0).(*Const)
	require.True(t, ok)
	require.Equal(t, uint64(9), c.Uint64())
	require.Equal(t, OpSwitch, bb.First().Op(), "phi erased from the block")
}

func TestSplitAfterRetargetsPhis(t *testing.T) {
	mod := NewModule("test")
	fn := mod.NewFunc("f", Void, ExternalLinkage)
	bb := fn.NewBlock("entry")
	succ := fn.NewBlock("succ")

	bld := NewBuilder()
	bld.SetInsertPoint(succ)
	phi := bld.CreatePhi(Word, "x")
	phi.AddIncoming(NewConst(Word, uint256.NewInt(1)), bb)
	bld.CreateRetVoid()

	bld.SetInsertPoint(bb)
	marker := bld.CreateStore(ConstInt(Size, 0), NewUndef(SizePtr))
	bld.CreateBr(succ)

	tail := bb.SplitAfter(marker, "entry.cont")
	require.Len(t, bb.Instrs(), 1)
	require.Equal(t, OpBr, tail.Terminator().Op())
	require.Same(t, tail, phi.Incomings()[0].Pred, "phi predecessor follows the terminator")

	// The new block sits right after the original in function order.
	blocks := fn.Blocks()
	require.Equal(t, []*Block{bb, tail, succ}, blocks)
}

func TestPrinterSmoke(t *testing.T) {
	mod := NewModule("demo")
	mod.NewGlobal("gas_out", Bool, ConstInt(Bool, 0), CommonLinkage)
	decl := mod.DeclareFunc("mem.require", Void, BytePtr, Word, Word)

	fn := mod.NewFunc("execute", I32, ExternalLinkage, BytePtr)
	fn.Param(0).SetName("rt")
	bb := fn.NewBlock("Entry")
	bld := NewBuilder()
	bld.SetInsertPoint(bb)
	bld.CreateCall(decl, []Value{fn.Param(0), NewConst(Word, uint256.NewInt(0)), NewConst(Word, uint256.NewInt(32))})
	bld.CreateRet(ConstInt(I32, 0))

	out := mod.String()
	require.Contains(t, out, "@gas_out = common global i1 0")
	require.Contains(t, out, "declare void @mem.require(i8*, i128, i128)")
	require.Contains(t, out, "define i32 @execute(i8* %rt)")
	require.Contains(t, out, "call void @mem.require(")
	require.Contains(t, out, "ret i32 0")
	require.False(t, strings.Contains(out, "<?>"), "every instruction prints")
}
