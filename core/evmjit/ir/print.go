package ir

import (
	"fmt"
	"strings"
)

// String renders the module in an LLVM-flavoured textual form. The output
// is for humans and tests; nothing parses it back.
func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; module %s\n", m.name)
	for _, g := range m.globals {
		init := "zeroinitializer"
		if g.init != nil {
			init = g.init.Ident()
		}
		fmt.Fprintf(&sb, "@%s = %s global %s %s\n", g.name, linkageName(g.linkage), g.typ, init)
	}
	if len(m.globals) > 0 {
		sb.WriteByte('\n')
	}
	for _, f := range m.funcs {
		f.print(&sb)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func linkageName(l Linkage) string {
	switch l {
	case PrivateLinkage:
		return "private"
	case CommonLinkage:
		return "common"
	}
	return "external"
}

func (f *Func) print(sb *strings.Builder) {
	var ps []string
	for _, p := range f.params {
		s := p.typ.String()
		for _, a := range p.attrs {
			s += " " + a
		}
		if !f.decl {
			s += " %" + p.name
		}
		ps = append(ps, s)
	}
	kw := "define"
	if f.decl {
		kw = "declare"
	}
	attrs := ""
	if f.nothrow {
		attrs = " nounwind"
	}
	link := ""
	if f.linkage == PrivateLinkage {
		link = "private "
	}
	fmt.Fprintf(sb, "%s %s%s @%s(%s)%s", kw, link, f.ret, f.name, strings.Join(ps, ", "), attrs)
	if f.decl {
		sb.WriteByte('\n')
		return
	}
	sb.WriteString(" {\n")
	for _, b := range f.blocks {
		fmt.Fprintf(sb, "%s:\n", b.name)
		for _, ins := range b.instrs {
			sb.WriteString("  ")
			sb.WriteString(ins.String())
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
}

func typed(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Type().String() + " " + v.Ident()
}

// String renders a single instruction.
func (i *Instr) String() string {
	switch i.op {
	case OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr:
		flags := ""
		if i.nuw {
			flags += " nuw"
		}
		if i.nsw {
			flags += " nsw"
		}
		return fmt.Sprintf("%s = %s%s %s, %s", i.Ident(), opNames[i.op], flags, typed(i.args[0]), i.args[1].Ident())
	case OpICmp:
		return fmt.Sprintf("%s = icmp %s %s, %s", i.Ident(), predNames[i.pred], typed(i.args[0]), i.args[1].Ident())
	case OpSelect:
		return fmt.Sprintf("%s = select %s, %s, %s", i.Ident(), typed(i.args[0]), typed(i.args[1]), typed(i.args[2]))
	case OpZExt, OpTrunc, OpBitCast:
		return fmt.Sprintf("%s = %s %s to %s", i.Ident(), opNames[i.op], typed(i.args[0]), i.typ)
	case OpExtractElement:
		return fmt.Sprintf("%s = extractelement %s, %s", i.Ident(), typed(i.args[0]), typed(i.args[1]))
	case OpLoad:
		s := fmt.Sprintf("%s = load %s, %s", i.Ident(), i.typ, typed(i.args[0]))
		if i.align > 0 {
			s += fmt.Sprintf(", align %d", i.align)
		}
		return s
	case OpStore:
		s := fmt.Sprintf("store %s, %s", typed(i.args[0]), typed(i.args[1]))
		if i.align > 0 {
			s += fmt.Sprintf(", align %d", i.align)
		}
		return s
	case OpGEP:
		return fmt.Sprintf("%s = getelementptr %s, %s, %s", i.Ident(), i.args[0].Type().Elem(), typed(i.args[0]), typed(i.args[1]))
	case OpStructGEP:
		return fmt.Sprintf("%s = getelementptr inbounds %s, field %d", i.Ident(), typed(i.args[0]), i.field)
	case OpAlloca:
		if len(i.args) == 1 {
			return fmt.Sprintf("%s = alloca %s, %s", i.Ident(), i.typ.Elem(), typed(i.args[0]))
		}
		return fmt.Sprintf("%s = alloca %s", i.Ident(), i.typ.Elem())
	case OpCall:
		var args []string
		for _, a := range i.args {
			args = append(args, typed(a))
		}
		call := fmt.Sprintf("call %s @%s(%s)", i.callee.ret, i.callee.name, strings.Join(args, ", "))
		if i.typ == Void {
			return call
		}
		return i.Ident() + " = " + call
	case OpBr:
		if len(i.args) == 0 {
			return fmt.Sprintf("br label %%%s", blockName(i.succs[0]))
		}
		s := fmt.Sprintf("br %s, label %%%s, label %%%s", typed(i.args[0]), blockName(i.succs[0]), blockName(i.succs[1]))
		if i.expectTrue {
			s += " ; expect true"
		}
		return s
	case OpSwitch:
		var arms []string
		for _, c := range i.cases {
			arms = append(arms, fmt.Sprintf("%s %s, label %%%s", c.Val.typ, c.Val.Ident(), blockName(c.Target)))
		}
		return fmt.Sprintf("switch %s, label %%%s [%s]", typed(i.args[0]), blockName(i.succs[0]), strings.Join(arms, " "))
	case OpPhi:
		var ins []string
		for _, in := range i.incs {
			ins = append(ins, fmt.Sprintf("[ %s, %%%s ]", in.Val.Ident(), blockName(in.Pred)))
		}
		return fmt.Sprintf("%s = phi %s %s", i.Ident(), i.typ, strings.Join(ins, ", "))
	case OpRet:
		if len(i.args) == 0 {
			return "ret void"
		}
		return "ret " + typed(i.args[0])
	case OpUnreachable:
		return "unreachable"
	}
	return "<?>"
}

func blockName(b *Block) string {
	if b == nil {
		return "<unset>"
	}
	return b.name
}
