package ir

import (
	"github.com/holiman/uint256"
)

// Op enumerates the instruction set the JIT core emits.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpICmp
	OpSelect
	OpZExt
	OpTrunc
	OpBitCast
	OpExtractElement
	OpLoad
	OpStore
	OpGEP
	OpStructGEP
	OpAlloca
	OpCall
	OpBr
	OpSwitch
	OpPhi
	OpRet
	OpUnreachable
)

var opNames = map[Op]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul",
	OpUDiv: "udiv", OpSDiv: "sdiv", OpURem: "urem", OpSRem: "srem",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpShl: "shl", OpLShr: "lshr", OpAShr: "ashr",
	OpICmp: "icmp", OpSelect: "select",
	OpZExt: "zext", OpTrunc: "trunc", OpBitCast: "bitcast",
	OpExtractElement: "extractelement",
	OpLoad:           "load", OpStore: "store",
	OpGEP: "getelementptr", OpStructGEP: "structgep", OpAlloca: "alloca",
	OpCall: "call", OpBr: "br", OpSwitch: "switch", OpPhi: "phi",
	OpRet: "ret", OpUnreachable: "unreachable",
}

// Pred is an icmp predicate.
type Pred int

const (
	PredEQ Pred = iota
	PredNE
	PredULT
	PredULE
	PredUGT
	PredUGE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
)

var predNames = map[Pred]string{
	PredEQ: "eq", PredNE: "ne",
	PredULT: "ult", PredULE: "ule", PredUGT: "ugt", PredUGE: "uge",
	PredSLT: "slt", PredSLE: "sle", PredSGT: "sgt", PredSGE: "sge",
}

// Incoming is one phi alternative.
type Incoming struct {
	Val  Value
	Pred *Block
}

// Case is one switch arm.
type Case struct {
	Val    *Const
	Target *Block
}

// Instr is a single IR instruction. Value-producing instructions are also
// Values; their identity is the instruction itself.
type Instr struct {
	op   Op
	typ  *Type
	name string
	args []Value

	pred       Pred
	nuw, nsw   bool
	align      int
	field      int
	callee     *Func
	succs      []*Block
	expectTrue bool
	cases      []Case
	incs       []Incoming
	md         map[string]Value

	blk *Block
}

func (i *Instr) Op() Op       { return i.op }
func (i *Instr) Type() *Type  { return i.typ }
func (i *Instr) Name() string { return i.name }
func (i *Instr) Ident() string {
	return "%" + i.name
}

// Block returns the block currently holding the instruction.
func (i *Instr) Block() *Block { return i.blk }

func (i *Instr) NumArgs() int      { return len(i.args) }
func (i *Instr) Arg(n int) Value   { return i.args[n] }
func (i *Instr) Args() []Value     { return i.args }
func (i *Instr) SetArg(n int, v Value) { i.args[n] = v }

func (i *Instr) Pred() Pred    { return i.pred }
func (i *Instr) HasNUW() bool  { return i.nuw }
func (i *Instr) HasNSW() bool  { return i.nsw }
func (i *Instr) Align() int    { return i.align }
func (i *Instr) Field() int    { return i.field }
func (i *Instr) Callee() *Func { return i.callee }

// Succ returns the n-th successor of a terminator. For a conditional branch
// successor 1 may be nil until resolveJumps wires it.
func (i *Instr) Succ(n int) *Block {
	if n >= len(i.succs) {
		return nil
	}
	return i.succs[n]
}

func (i *Instr) NumSuccs() int            { return len(i.succs) }
func (i *Instr) SetSucc(n int, b *Block)  { i.succs[n] = b }
func (i *Instr) IsConditional() bool      { return i.op == OpBr && len(i.args) == 1 }
func (i *Instr) ExpectTrue() bool         { return i.expectTrue }

// AddCase appends a switch arm. The default target is successor 0.
func (i *Instr) AddCase(v *Const, target *Block) {
	i.cases = append(i.cases, Case{Val: v, Target: target})
}

func (i *Instr) Cases() []Case { return i.cases }

// FindCase returns the target of the arm matching v, or nil.
func (i *Instr) FindCase(v *uint256.Int) *Block {
	for _, c := range i.cases {
		if c.Val.val.Eq(v) {
			return c.Target
		}
	}
	return nil
}

// AddIncoming appends a phi alternative.
func (i *Instr) AddIncoming(v Value, pred *Block) {
	i.incs = append(i.incs, Incoming{Val: v, Pred: pred})
}

func (i *Instr) Incomings() []Incoming { return i.incs }

// ConstantValue returns the single constant all phi alternatives share, or
// nil when the phi is not trivially constant.
func (i *Instr) ConstantValue() *Const {
	var common *Const
	for _, in := range i.incs {
		c, ok := in.Val.(*Const)
		if !ok {
			return nil
		}
		if common == nil {
			common = c
		} else if !common.Eq(c) {
			return nil
		}
	}
	return common
}

// SetMetadata attaches a value under a string key (e.g. the jump destIdx).
func (i *Instr) SetMetadata(key string, v Value) {
	if i.md == nil {
		i.md = make(map[string]Value, 1)
	}
	i.md[key] = v
}

func (i *Instr) Metadata(key string) Value {
	return i.md[key]
}

// IsTerminator reports whether the instruction ends a block.
func (i *Instr) IsTerminator() bool {
	switch i.op {
	case OpBr, OpSwitch, OpRet, OpUnreachable:
		return true
	}
	return false
}

// EraseFromParent unlinks the instruction from its block.
func (i *Instr) EraseFromParent() {
	if i.blk != nil {
		i.blk.remove(i)
		i.blk = nil
	}
}

// ReplaceAllUsesWith rewrites every use of the instruction inside its
// function to v, including phi incomings and call arguments.
func (i *Instr) ReplaceAllUsesWith(v Value) {
	fn := i.fn()
	if fn == nil {
		return
	}
	for _, b := range fn.blocks {
		for _, ins := range b.instrs {
			for n, a := range ins.args {
				if a == Value(i) {
					ins.args[n] = v
				}
			}
			for n := range ins.incs {
				if ins.incs[n].Val == Value(i) {
					ins.incs[n].Val = v
				}
			}
		}
	}
}

func (i *Instr) fn() *Func {
	if i.blk == nil {
		return nil
	}
	return i.blk.fn
}
