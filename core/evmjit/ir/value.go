package ir

import (
	"math"
	"strconv"

	"github.com/holiman/uint256"
)

// Value is anything an instruction may consume: constants, undef, function
// parameters, globals (as pointers) and the results of other instructions.
type Value interface {
	Type() *Type
	Ident() string
}

// Const is an integer constant of a given type.
type Const struct {
	typ *Type
	val *uint256.Int
}

// NewConst builds a constant from a uint256, truncated to the type width.
func NewConst(typ *Type, v *uint256.Int) *Const {
	u := new(uint256.Int).Set(v)
	truncTo(u, typ.bits)
	return &Const{typ: typ, val: u}
}

// ConstInt builds a constant from a signed value; negative values are
// represented in two's complement at the type width.
func ConstInt(typ *Type, v int64) *Const {
	u := new(uint256.Int)
	if v < 0 {
		u.SetUint64(uint64(-v))
		u.Neg(u)
	} else {
		u.SetUint64(uint64(v))
	}
	truncTo(u, typ.bits)
	return &Const{typ: typ, val: u}
}

// ConstUint builds an unsigned constant.
func ConstUint(typ *Type, v uint64) *Const {
	u := new(uint256.Int).SetUint64(v)
	truncTo(u, typ.bits)
	return &Const{typ: typ, val: u}
}

// ConstAllOnes is the all-bits-set value of typ.
func ConstAllOnes(typ *Type) *Const {
	return ConstInt(typ, -1)
}

func truncTo(u *uint256.Int, bits int) {
	if bits <= 0 || bits >= 256 {
		return
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
	mask.SubUint64(mask, 1)
	u.And(u, mask)
}

func (c *Const) Type() *Type        { return c.typ }
func (c *Const) Val() *uint256.Int  { return new(uint256.Int).Set(c.val) }
func (c *Const) Uint64() uint64     { return c.val.Uint64() }
func (c *Const) IsUint64() bool     { return c.val.IsUint64() }
func (c *Const) Eq(o *Const) bool   { return c.typ.Equal(o.typ) && c.val.Eq(o.val) }
func (c *Const) IsZero() bool       { return c.val.IsZero() }

func (c *Const) Ident() string {
	// Show i64 constants with the sign bit set in signed form.
	if c.typ.bits == 64 && c.val.IsUint64() && c.val.Uint64() > math.MaxInt64 {
		return strconv.FormatInt(int64(c.val.Uint64()), 10)
	}
	return c.val.Dec()
}

// Undef is the undefined value of a type, used as a placeholder argument
// until finalize/commit passes patch in the real constant.
type Undef struct {
	typ *Type
}

func NewUndef(typ *Type) *Undef { return &Undef{typ: typ} }

func (u *Undef) Type() *Type   { return u.typ }
func (u *Undef) Ident() string { return "undef" }

// Param is a formal parameter of a function.
type Param struct {
	typ   *Type
	name  string
	attrs []string
	fn    *Func
	idx   int
}

func (p *Param) Type() *Type    { return p.typ }
func (p *Param) Ident() string  { return "%" + p.name }
func (p *Param) Name() string   { return p.name }
func (p *Param) SetName(n string) { p.name = n }

// AddAttrs attaches parameter attributes (readnone, noalias, nocapture, ...).
func (p *Param) AddAttrs(attrs ...string) { p.attrs = append(p.attrs, attrs...) }

// Global is a module-level variable. As a Value it denotes the address of
// the variable, so its value type is a pointer to the declared type.
type Global struct {
	name    string
	typ     *Type
	init    *Const
	linkage Linkage
}

func (g *Global) Type() *Type   { return PtrTo(g.typ) }
func (g *Global) Ident() string { return "@" + g.name }
func (g *Global) Name() string  { return g.name }
func (g *Global) ValueType() *Type { return g.typ }
