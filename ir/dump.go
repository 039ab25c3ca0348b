// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the function as deterministic text. Value names (t0, t1...)
// are assigned in definition order and block labels (b0, b1...) in block
// order, so two structurally identical functions dump identically regardless
// of cosmetic names.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(%s)", f.Name, paramList(f.Params))
	if f.IsDeclaration() {
		sb.WriteString(" external\n")
		return sb.String()
	}
	sb.WriteString(":\n")

	d := &dumper{
		names:  make(map[Value]string),
		labels: make(map[*Block]string),
	}
	for i, b := range f.Blocks {
		d.labels[b] = "b" + strconv.Itoa(i)
	}
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			if v, ok := instr.(Value); ok && v.Type() != Void {
				d.define(v)
			}
		}
		if inv, ok := b.Term.(*Invoke); ok && inv.Typ != Void {
			d.define(inv)
		}
	}

	for _, b := range f.Blocks {
		if b.Name != "" {
			fmt.Fprintf(&sb, "%s: ; %s\n", d.labels[b], b.Name)
		} else {
			fmt.Fprintf(&sb, "%s:\n", d.labels[b])
		}
		for _, instr := range b.Instrs {
			sb.WriteString("\t" + d.instrString(instr) + "\n")
		}
		sb.WriteString("\t" + d.termString(b.Term) + "\n")
	}
	return sb.String()
}

func paramList(params []*Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Name + " " + p.Typ.String()
	}
	return strings.Join(parts, ", ")
}

type dumper struct {
	names  map[Value]string
	labels map[*Block]string
	next   int
}

func (d *dumper) define(v Value) {
	if _, ok := d.names[v]; ok {
		return
	}
	d.names[v] = "t" + strconv.Itoa(d.next)
	d.next++
}

// rand renders a value in operand position.
func (d *dumper) rand(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case *Const:
		if v.Typ == Bool {
			if v.Val != 0 {
				return "true"
			}
			return "false"
		}
		return strconv.FormatInt(v.Val, 10)
	case *Param:
		return v.Name
	case *BlockAddress:
		return "&" + d.labels[v.Target]
	default:
		if name, ok := d.names[v]; ok {
			return name
		}
		return "t?"
	}
}

func (d *dumper) rands(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = d.rand(v)
	}
	return strings.Join(parts, ", ")
}

func (d *dumper) instrString(instr Instruction) string {
	switch instr := instr.(type) {
	case *Alloca:
		s := d.names[instr] + " = alloca " + instr.Elem.String()
		if instr.Count > 1 {
			s += ", " + strconv.Itoa(instr.Count)
		}
		return s
	case *IndexAddr:
		return fmt.Sprintf("%s = index %s, %s", d.names[instr], d.rand(instr.X), d.rand(instr.Index))
	case *Load:
		return fmt.Sprintf("%s = load %s", d.names[instr], d.rand(instr.X))
	case *Store:
		return fmt.Sprintf("store %s, %s", d.rand(instr.Val), d.rand(instr.Addr))
	case *BinOp:
		return fmt.Sprintf("%s = %s %s, %s", d.names[instr], instr.Op, d.rand(instr.X), d.rand(instr.Y))
	case *Select:
		return fmt.Sprintf("%s = select %s, %s, %s", d.names[instr], d.rand(instr.Cond), d.rand(instr.T), d.rand(instr.F))
	case *Phi:
		parts := make([]string, len(instr.Edges))
		for i, e := range instr.Edges {
			parts[i] = d.labels[e.Pred] + ": " + d.rand(e.Val)
		}
		s := fmt.Sprintf("%s = phi [%s]", d.names[instr], strings.Join(parts, ", "))
		if instr.Comment != "" {
			s += " ; " + instr.Comment
		}
		return s
	case *Call:
		call := fmt.Sprintf("call %s(%s)", instr.Fn, d.rands(instr.Args))
		if instr.Typ == Void {
			return call
		}
		return d.names[instr] + " = " + call
	case *Pad:
		return d.names[instr] + " = pad"
	default:
		panic(fmt.Sprintf("ir: unknown instruction %T", instr))
	}
}

func (d *dumper) termString(term Terminator) string {
	switch term := term.(type) {
	case nil:
		return "<no terminator>"
	case *Return:
		if term.Val == nil {
			return "return"
		}
		return "return " + d.rand(term.Val)
	case *Unreachable:
		return "unreachable"
	case *Resume:
		return "resume " + d.rand(term.X)
	case *Jump:
		return "jump " + d.labels[term.Target]
	case *If:
		return fmt.Sprintf("if %s goto %s else %s", d.rand(term.Cond), d.labels[term.Then], d.labels[term.Else])
	case *Switch:
		parts := make([]string, len(term.Cases))
		for i, c := range term.Cases {
			parts[i] = d.rand(c.Val) + ": " + d.labels[c.Target]
		}
		return fmt.Sprintf("switch %s [%s], default %s", d.rand(term.X), strings.Join(parts, ", "), d.labels[term.Default])
	case *IndirectBr:
		parts := make([]string, len(term.Dests))
		for i, dest := range term.Dests {
			parts[i] = d.labels[dest]
		}
		return fmt.Sprintf("indirectbr %s [%s]", d.rand(term.Addr), strings.Join(parts, ", "))
	case *Invoke:
		call := fmt.Sprintf("invoke %s(%s) to %s unwind %s", term.Fn, d.rands(term.Args), d.labels[term.Normal], d.labels[term.Unwind])
		if term.Typ == Void {
			return call
		}
		return d.names[term] + " = " + call
	default:
		panic(fmt.Sprintf("ir: unknown terminator %T", term))
	}
}
