package ir

// Block is a basic block: an ordered list of instructions owned by a
// function. Edges between blocks are held by terminator instructions only.
type Block struct {
	name   string
	fn     *Func
	instrs []*Instr
}

func (b *Block) Name() string     { return b.name }
func (b *Block) Func() *Func      { return b.fn }
func (b *Block) Instrs() []*Instr { return b.instrs }

// Terminator returns the block's terminator, or nil if the block is still
// open (the driver closes such blocks with a fall-through branch).
func (b *Block) Terminator() *Instr {
	if n := len(b.instrs); n > 0 && b.instrs[n-1].IsTerminator() {
		return b.instrs[n-1]
	}
	return nil
}

// First returns the first instruction, or nil for an empty block.
func (b *Block) First() *Instr {
	if len(b.instrs) == 0 {
		return nil
	}
	return b.instrs[0]
}

func (b *Block) append(i *Instr) {
	i.blk = b
	b.instrs = append(b.instrs, i)
}

func (b *Block) insertAt(pos int, i *Instr) {
	i.blk = b
	b.instrs = append(b.instrs, nil)
	copy(b.instrs[pos+1:], b.instrs[pos:])
	b.instrs[pos] = i
}

func (b *Block) index(i *Instr) int {
	for n, ins := range b.instrs {
		if ins == i {
			return n
		}
	}
	return -1
}

func (b *Block) remove(i *Instr) {
	if n := b.index(i); n >= 0 {
		b.instrs = append(b.instrs[:n], b.instrs[n+1:]...)
	}
}

// SplitAfter moves every instruction after i into a fresh block inserted
// right after b in the function's block list, and returns the new block.
// No terminator is added to b; phi nodes in the moved terminator's
// successors are retargeted at the new block.
func (b *Block) SplitAfter(i *Instr, name string) *Block {
	pos := b.index(i)
	if pos < 0 {
		return nil
	}
	tail := b.fn.insertBlockAfter(b, name)
	moved := b.instrs[pos+1:]
	b.instrs = b.instrs[:pos+1]
	for _, ins := range moved {
		tail.append(ins)
	}
	if term := tail.Terminator(); term != nil {
		retargetPhis(term, b, tail)
	}
	return tail
}

// retargetPhis updates phi incomings in every successor of term whose
// predecessor was from, to refer to to.
func retargetPhis(term *Instr, from, to *Block) {
	seen := map[*Block]bool{}
	visit := func(s *Block) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		for _, ins := range s.instrs {
			if ins.op != OpPhi {
				continue
			}
			for n := range ins.incs {
				if ins.incs[n].Pred == from {
					ins.incs[n].Pred = to
				}
			}
		}
	}
	for _, s := range term.succs {
		visit(s)
	}
	for _, c := range term.cases {
		visit(c.Target)
	}
}
