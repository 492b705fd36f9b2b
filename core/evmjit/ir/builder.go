package ir

// Builder appends instructions at an insertion point, mirroring the
// IRBuilder surface the emitter code is written against. The zero value is
// not usable; call NewBuilder.
type Builder struct {
	blk *Block
	pos int // insertion index; -1 appends at the end
}

func NewBuilder() *Builder {
	return &Builder{pos: -1}
}

// SetInsertPoint makes the builder append at the end of b.
func (bld *Builder) SetInsertPoint(b *Block) {
	bld.blk = b
	bld.pos = -1
}

// SetInsertPointBefore makes the builder insert before i, in i's block.
func (bld *Builder) SetInsertPointBefore(i *Instr) {
	bld.blk = i.Block()
	bld.pos = bld.blk.index(i)
}

func (bld *Builder) GetInsertBlock() *Block { return bld.blk }

func (bld *Builder) insert(i *Instr) *Instr {
	if i.typ != Void && i.name == "" {
		i.name = bld.blk.fn.nextValueName()
	}
	if bld.pos < 0 {
		bld.blk.append(i)
	} else {
		bld.blk.insertAt(bld.pos, i)
		bld.pos++
	}
	return i
}

func name1(names []string) string {
	if len(names) > 0 {
		return names[0]
	}
	return ""
}

func (bld *Builder) binary(op Op, a, b Value, nuw, nsw bool, name string) *Instr {
	return bld.insert(&Instr{op: op, typ: a.Type(), name: name, args: []Value{a, b}, nuw: nuw, nsw: nsw})
}

func (bld *Builder) CreateAdd(a, b Value, name ...string) *Instr {
	return bld.binary(OpAdd, a, b, false, false, name1(name))
}

func (bld *Builder) CreateNSWAdd(a, b Value, name ...string) *Instr {
	return bld.binary(OpAdd, a, b, false, true, name1(name))
}

func (bld *Builder) CreateNUWAdd(a, b Value, name ...string) *Instr {
	return bld.binary(OpAdd, a, b, true, false, name1(name))
}

// CreateAddFlags exposes both wrap flags, as the stack size checks need
// asymmetric nuw/nsw combinations.
func (bld *Builder) CreateAddFlags(a, b Value, nuw, nsw bool, name ...string) *Instr {
	return bld.binary(OpAdd, a, b, nuw, nsw, name1(name))
}

func (bld *Builder) CreateSub(a, b Value, name ...string) *Instr {
	return bld.binary(OpSub, a, b, false, false, name1(name))
}

func (bld *Builder) CreateNSWSub(a, b Value, name ...string) *Instr {
	return bld.binary(OpSub, a, b, false, true, name1(name))
}

func (bld *Builder) CreateNUWNSWSub(a, b Value, name ...string) *Instr {
	return bld.binary(OpSub, a, b, true, true, name1(name))
}

func (bld *Builder) CreateMul(a, b Value, name ...string) *Instr {
	return bld.binary(OpMul, a, b, false, false, name1(name))
}

func (bld *Builder) CreateNUWMul(a, b Value, name ...string) *Instr {
	return bld.binary(OpMul, a, b, true, false, name1(name))
}

func (bld *Builder) CreateUDiv(a, b Value, name ...string) *Instr {
	return bld.binary(OpUDiv, a, b, false, false, name1(name))
}

func (bld *Builder) CreateSDiv(a, b Value, name ...string) *Instr {
	return bld.binary(OpSDiv, a, b, false, false, name1(name))
}

func (bld *Builder) CreateURem(a, b Value, name ...string) *Instr {
	return bld.binary(OpURem, a, b, false, false, name1(name))
}

func (bld *Builder) CreateSRem(a, b Value, name ...string) *Instr {
	return bld.binary(OpSRem, a, b, false, false, name1(name))
}

func (bld *Builder) CreateAnd(a, b Value, name ...string) *Instr {
	return bld.binary(OpAnd, a, b, false, false, name1(name))
}

func (bld *Builder) CreateOr(a, b Value, name ...string) *Instr {
	return bld.binary(OpOr, a, b, false, false, name1(name))
}

func (bld *Builder) CreateXor(a, b Value, name ...string) *Instr {
	return bld.binary(OpXor, a, b, false, false, name1(name))
}

func (bld *Builder) CreateShl(a, b Value, name ...string) *Instr {
	return bld.binary(OpShl, a, b, false, false, name1(name))
}

func (bld *Builder) CreateLShr(a, b Value, name ...string) *Instr {
	return bld.binary(OpLShr, a, b, false, false, name1(name))
}

func (bld *Builder) CreateAShr(a, b Value, name ...string) *Instr {
	return bld.binary(OpAShr, a, b, false, false, name1(name))
}

func (bld *Builder) CreateICmp(p Pred, a, b Value, name ...string) *Instr {
	return bld.insert(&Instr{op: OpICmp, typ: Bool, pred: p, name: name1(name), args: []Value{a, b}})
}

func (bld *Builder) CreateSelect(cond, t, f Value, name ...string) *Instr {
	return bld.insert(&Instr{op: OpSelect, typ: t.Type(), name: name1(name), args: []Value{cond, t, f}})
}

func (bld *Builder) CreateZExt(v Value, to *Type, name ...string) *Instr {
	return bld.insert(&Instr{op: OpZExt, typ: to, name: name1(name), args: []Value{v}})
}

func (bld *Builder) CreateTrunc(v Value, to *Type, name ...string) *Instr {
	return bld.insert(&Instr{op: OpTrunc, typ: to, name: name1(name), args: []Value{v}})
}

func (bld *Builder) CreateBitCast(v Value, to *Type, name ...string) *Instr {
	return bld.insert(&Instr{op: OpBitCast, typ: to, name: name1(name), args: []Value{v}})
}

func (bld *Builder) CreateExtractElement(vec, idx Value, name ...string) *Instr {
	return bld.insert(&Instr{op: OpExtractElement, typ: vec.Type().Elem(), name: name1(name), args: []Value{vec, idx}})
}

func (bld *Builder) CreateLoad(ptr Value, name ...string) *Instr {
	return bld.insert(&Instr{op: OpLoad, typ: ptr.Type().Elem(), name: name1(name), args: []Value{ptr}})
}

func (bld *Builder) CreateAlignedLoad(ptr Value, align int, name ...string) *Instr {
	return bld.insert(&Instr{op: OpLoad, typ: ptr.Type().Elem(), align: align, name: name1(name), args: []Value{ptr}})
}

func (bld *Builder) CreateStore(v, ptr Value) *Instr {
	return bld.insert(&Instr{op: OpStore, typ: Void, args: []Value{v, ptr}})
}

func (bld *Builder) CreateAlignedStore(v, ptr Value, align int) *Instr {
	return bld.insert(&Instr{op: OpStore, typ: Void, align: align, args: []Value{v, ptr}})
}

// CreateGEP indexes ptr by idx elements of its pointee type.
func (bld *Builder) CreateGEP(ptr, idx Value, name ...string) *Instr {
	return bld.insert(&Instr{op: OpGEP, typ: ptr.Type(), name: name1(name), args: []Value{ptr, idx}})
}

// CreateConstGEP1_64 indexes ptr by a constant element offset.
func (bld *Builder) CreateConstGEP1_64(ptr Value, idx int64, name ...string) *Instr {
	return bld.CreateGEP(ptr, ConstInt(Size, idx), name...)
}

// CreateStructGEP produces a pointer to field number field of the aggregate
// behind ptr; fieldType is the type of that field.
func (bld *Builder) CreateStructGEP(fieldType *Type, ptr Value, field int, name ...string) *Instr {
	return bld.insert(&Instr{op: OpStructGEP, typ: PtrTo(fieldType), field: field, name: name1(name), args: []Value{ptr}})
}

func (bld *Builder) CreateAlloca(t *Type, count Value, name ...string) *Instr {
	args := []Value{}
	if count != nil {
		args = append(args, count)
	}
	return bld.insert(&Instr{op: OpAlloca, typ: PtrTo(t), name: name1(name), args: args})
}

func (bld *Builder) CreateCall(callee *Func, args []Value, name ...string) *Instr {
	return bld.insert(&Instr{op: OpCall, typ: callee.ret, callee: callee, name: name1(name), args: args})
}

func (bld *Builder) CreateBr(dest *Block) *Instr {
	return bld.insert(&Instr{op: OpBr, typ: Void, succs: []*Block{dest}})
}

// CreateCondBr branches on cond. onFalse may be nil; resolveJumps fills it.
func (bld *Builder) CreateCondBr(cond Value, onTrue, onFalse *Block) *Instr {
	return bld.insert(&Instr{op: OpBr, typ: Void, args: []Value{cond}, succs: []*Block{onTrue, onFalse}})
}

// CreateCondBrExpectTrue is CreateCondBr with a branch weight predicting
// the true edge, as emitted for the slow-path checks.
func (bld *Builder) CreateCondBrExpectTrue(cond Value, onTrue, onFalse *Block) *Instr {
	br := bld.CreateCondBr(cond, onTrue, onFalse)
	br.expectTrue = true
	return br
}

func (bld *Builder) CreateSwitch(v Value, def *Block) *Instr {
	return bld.insert(&Instr{op: OpSwitch, typ: Void, args: []Value{v}, succs: []*Block{def}})
}

func (bld *Builder) CreatePhi(t *Type, name ...string) *Instr {
	return bld.insert(&Instr{op: OpPhi, typ: t, name: name1(name)})
}

func (bld *Builder) CreateRet(v Value) *Instr {
	return bld.insert(&Instr{op: OpRet, typ: Void, args: []Value{v}})
}

func (bld *Builder) CreateRetVoid() *Instr {
	return bld.insert(&Instr{op: OpRet, typ: Void})
}

func (bld *Builder) CreateUnreachable() *Instr {
	return bld.insert(&Instr{op: OpUnreachable, typ: Void})
}
