package ir

import "strconv"

// Linkage of functions and globals.
type Linkage int

const (
	ExternalLinkage Linkage = iota
	PrivateLinkage
	CommonLinkage
)

// Func is a function definition or declaration. Declarations model external
// host symbols and backend intrinsics; they have no blocks.
type Func struct {
	name    string
	ret     *Type
	params  []*Param
	blocks  []*Block
	linkage Linkage
	nothrow bool
	decl    bool
	mod     *Module

	nval int
	nblk int
}

func (f *Func) Name() string      { return f.name }
func (f *Func) RetType() *Type    { return f.ret }
func (f *Func) Linkage() Linkage  { return f.linkage }
func (f *Func) IsDecl() bool      { return f.decl }
func (f *Func) SetNoThrow()       { f.nothrow = true }
func (f *Func) NoThrow() bool     { return f.nothrow }
func (f *Func) Blocks() []*Block  { return f.blocks }
func (f *Func) NumParams() int    { return len(f.params) }
func (f *Func) Param(n int) *Param { return f.params[n] }

// As a Value a function denotes its address; only calls consume it.
func (f *Func) Type() *Type   { return PtrTo(Void) }
func (f *Func) Ident() string { return "@" + f.name }

// NewBlock appends a new basic block to the function.
func (f *Func) NewBlock(name string) *Block {
	b := f.makeBlock(name)
	f.blocks = append(f.blocks, b)
	return b
}

func (f *Func) makeBlock(name string) *Block {
	if name == "" {
		name = "bb" + strconv.Itoa(f.nblk)
	}
	f.nblk++
	return &Block{name: name, fn: f}
}

// InsertBlockAfter creates a new block placed right after the given one in
// the function's block order.
func (f *Func) InsertBlockAfter(after *Block, name string) *Block {
	return f.insertBlockAfter(after, name)
}

func (f *Func) insertBlockAfter(after *Block, name string) *Block {
	b := f.makeBlock(name)
	for n, blk := range f.blocks {
		if blk == after {
			f.blocks = append(f.blocks, nil)
			copy(f.blocks[n+2:], f.blocks[n+1:])
			f.blocks[n+1] = b
			return b
		}
	}
	f.blocks = append(f.blocks, b)
	return b
}

// EntryBlock returns the first block of a definition.
func (f *Func) EntryBlock() *Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

func (f *Func) nextValueName() string {
	n := f.nval
	f.nval++
	return "v" + strconv.Itoa(n)
}

// Module owns functions and globals. A module is built by exactly one
// compiler instance and is not safe for concurrent mutation.
type Module struct {
	name    string
	funcs   []*Func
	globals []*Global
}

func NewModule(name string) *Module {
	return &Module{name: name}
}

func (m *Module) Name() string       { return m.name }
func (m *Module) Funcs() []*Func     { return m.funcs }
func (m *Module) Globals() []*Global { return m.globals }

// NewFunc creates a function definition with named-later parameters.
func (m *Module) NewFunc(name string, ret *Type, linkage Linkage, paramTypes ...*Type) *Func {
	f := &Func{name: name, ret: ret, linkage: linkage, mod: m}
	for n, pt := range paramTypes {
		f.params = append(f.params, &Param{typ: pt, name: "p" + strconv.Itoa(n), fn: f, idx: n})
	}
	m.funcs = append(m.funcs, f)
	return f
}

// DeclareFunc adds (or returns the existing) external declaration.
func (m *Module) DeclareFunc(name string, ret *Type, paramTypes ...*Type) *Func {
	if f := m.FuncByName(name); f != nil {
		return f
	}
	f := m.NewFunc(name, ret, ExternalLinkage, paramTypes...)
	f.decl = true
	return f
}

func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.funcs {
		if f.name == name {
			return f
		}
	}
	return nil
}

// NewGlobal adds a module-level variable with an initializer.
func (m *Module) NewGlobal(name string, typ *Type, init *Const, linkage Linkage) *Global {
	g := &Global{name: name, typ: typ, init: init, linkage: linkage}
	m.globals = append(m.globals, g)
	return g
}

func (m *Module) GlobalByName(name string) *Global {
	for _, g := range m.globals {
		if g.name == name {
			return g
		}
	}
	return nil
}
