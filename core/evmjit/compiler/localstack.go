package compiler

import (
	"github.com/aionnetwork/fastvm/core/evmjit/ir"
	"github.com/aionnetwork/fastvm/params"
)

const stackItemAlign = 16

// LocalStack is the per-block symbolic stack. Values produced and consumed
// within the block never touch memory; reads below the block entry are
// loaded lazily through sp and the net effect is written back by finalize.
// The global stack is bounds-checked exactly once per block, inside
// stack.prepare.
type LocalStack struct {
	bld *ir.Builder
	sp  *ir.Instr

	local      []ir.Value
	input      []ir.Value // overwrites of slots below the entry; nil = untouched
	loaded     []ir.Value // cached lazy loads of slots below the entry
	globalPops int

	minSize int64
	maxSize int64
}

// newLocalStack emits the stack.prepare call for the current block. The
// min, max and diff arguments stay undef until finalize patches them.
func newLocalStack(bld *ir.Builder, rt *RuntimeManager, gasOut *ir.Global) *LocalStack {
	undef := ir.NewUndef(ir.Size)
	prep := stackPrepareFunc(rt.Module(), gasOut)
	sp := bld.CreateCall(prep,
		[]ir.Value{rt.StackBase(), rt.StackSizePtr(), undef, undef, undef, rt.JmpBuf()},
		"sp."+bld.GetInsertBlock().Name())
	return &LocalStack{bld: bld, sp: sp}
}

// size is the current stack depth relative to the block entry.
func (s *LocalStack) size() int64 {
	return int64(len(s.local) - s.globalPops)
}

func (s *LocalStack) push(v ir.Value) {
	s.local = append(s.local, v)
	if sz := s.size(); sz > s.maxSize {
		s.maxSize = sz
	}
}

func (s *LocalStack) pop() ir.Value {
	item := s.get(0)
	if len(s.local) > 0 {
		s.local = s.local[:len(s.local)-1]
	} else {
		s.globalPops++
	}
	if sz := s.size(); sz < s.minSize {
		s.minSize = sz
	}
	return item
}

// dup copies the index-th element and pushes it on the top.
func (s *LocalStack) dup(index int) {
	s.push(s.get(index))
}

// swap exchanges the top with the index-th element. index must not be 0.
func (s *LocalStack) swap(index int) {
	val := s.get(index)
	tos := s.get(0)
	s.set(index, tos)
	s.set(0, val)
}

// get returns the index-th element counted from the top. Reading below the
// block entry loads the slot from the global stack once and caches it; the
// read is recorded in minSize so stack.prepare checks it.
func (s *LocalStack) get(index int) ir.Value {
	if index < len(s.local) {
		return s.local[len(s.local)-1-index]
	}

	idx := index - len(s.local) + s.globalPops
	if idx >= len(s.input) {
		grow := make([]ir.Value, idx+1-len(s.input))
		s.input = append(s.input, grow...)
		s.loaded = append(s.loaded, make([]ir.Value, idx+1-len(s.loaded))...)
	}
	if s.input[idx] != nil {
		return s.input[idx]
	}
	if s.loaded[idx] == nil {
		globalIdx := -int64(idx) - 1
		slot := s.bld.CreateConstGEP1_64(s.sp, globalIdx)
		s.loaded[idx] = s.bld.CreateAlignedLoad(slot, stackItemAlign)
		if globalIdx < s.minSize {
			s.minSize = globalIdx
		}
	}
	return s.loaded[idx]
}

func (s *LocalStack) set(index int, word ir.Value) {
	if index < len(s.local) {
		s.local[len(s.local)-1-index] = word
		return
	}
	idx := index - len(s.local) + s.globalPops
	s.input[idx] = word
}

// finalize patches the stack.prepare placeholder arguments and writes the
// net stack delta back to the global stack. Slots read but never
// overwritten are skipped.
func (s *LocalStack) finalize() {
	s.sp.SetArg(2, ir.ConstInt(ir.Size, s.minSize))
	s.sp.SetArg(3, ir.ConstInt(ir.Size, s.maxSize))
	s.sp.SetArg(4, ir.ConstInt(ir.Size, s.size()))

	if term := s.bld.GetInsertBlock().Terminator(); term != nil {
		s.bld.SetInsertPointBefore(term)
	}

	inputIdx := len(s.input) - 1
	localIdx := 0
	for g := -int64(len(s.input)); g < s.size(); g++ {
		var item ir.Value
		if g < -int64(s.globalPops) {
			item = s.input[inputIdx] // nil when the slot was only read
			inputIdx--
			if item == nil {
				continue
			}
		} else {
			item = s.local[localIdx] // new item to persist
			localIdx++
		}
		slot := s.bld.CreateConstGEP1_64(s.sp, g)
		s.bld.CreateAlignedStore(item, slot, stackItemAlign)
	}
}

// stackPrepareFunc emits the module-private stack.prepare helper on first
// use. It loads the global stack size, checks the block's min/max depth
// against it, bumps the size by the block's net diff and returns the
// pointer just above the entry top. On violation it sets gas_out and still
// performs the update so downstream IR stays well-formed; the caller's
// gas_out poll diverts to Abort.
func stackPrepareFunc(m *ir.Module, gasOut *ir.Global) *ir.Func {
	const funcName = "stack.prepare"
	if f := m.FuncByName(funcName); f != nil {
		return f
	}

	f := m.NewFunc(funcName, ir.WordPtr, ir.PrivateLinkage,
		ir.WordPtr, ir.SizePtr, ir.Size, ir.Size, ir.Size, ir.BytePtr)
	f.SetNoThrow()
	base := f.Param(0)
	base.SetName("base")
	base.AddAttrs("readnone")
	sizePtr := f.Param(1)
	sizePtr.SetName("size.ptr")
	sizePtr.AddAttrs("noalias", "nocapture")
	min := f.Param(2)
	min.SetName("min")
	max := f.Param(3)
	max.SetName("max")
	diff := f.Param(4)
	diff.SetName("diff")
	f.Param(5).SetName("jmpBuf")

	checkBB := f.NewBlock("Check")
	updateBB := f.NewBlock("Update")
	outOfStackBB := f.NewBlock("OutOfStack")

	bld := ir.NewBuilder()
	bld.SetInsertPoint(checkBB)
	size := bld.CreateAlignedLoad(sizePtr, 8, "size")
	sizeMin := bld.CreateAddFlags(size, min, false, true, "size.min")
	sizeMax := bld.CreateAddFlags(size, max, true, true, "size.max")
	minOk := bld.CreateICmp(ir.PredSGE, sizeMin, ir.ConstInt(ir.Size, 0), "ok.min")
	maxOk := bld.CreateICmp(ir.PredULE, sizeMax, ir.ConstInt(ir.Size, params.StackLimit), "ok.max")
	ok := bld.CreateAnd(minOk, maxOk, "ok")
	bld.CreateCondBrExpectTrue(ok, updateBB, outOfStackBB)

	bld.SetInsertPoint(updateBB)
	newSize := bld.CreateNSWAdd(size, diff, "size.next")
	bld.CreateAlignedStore(newSize, sizePtr, 8)
	sp := bld.CreateGEP(base, size, "sp")
	bld.CreateRet(sp)

	bld.SetInsertPoint(outOfStackBB)
	bld.CreateStore(ir.ConstInt(ir.Bool, 1), gasOut)
	newSize = bld.CreateNSWAdd(size, diff, "size.next")
	bld.CreateAlignedStore(newSize, sizePtr, 8)
	sp = bld.CreateGEP(base, size, "sp")
	bld.CreateRet(sp)

	return f
}
