// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

// Package ir holds the in-memory control-flow graph that the flattening
// transform operates on. A Function owns an ordered list of basic blocks;
// each block owns an ordered list of instructions and ends in exactly one
// terminator. Values may be produced in one block and consumed in another,
// and such cross-block uses are queryable and rewritable through the
// Operands convention.
//
// The shape of the model follows LLVM rather than go/ssa on purpose: the
// transform needs invoke edges, landing pads, switch and indirectbr
// terminators, and first-class block addresses, none of which go/ssa can
// represent.
package ir

import (
	"golang.org/x/exp/slices"
)

// Type is the closed set of scalar kinds a Value may have.
type Type uint8

const (
	Void Type = iota
	Bool
	Int
	Addr  // pointer into an alloca frame, or a block address
	Token // exception token produced by a landing pad
)

var typeNames = [...]string{
	Void:  "void",
	Bool:  "bool",
	Int:   "int",
	Addr:  "addr",
	Token: "token",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Value is anything usable as an instruction operand: constants, parameters,
// block addresses, and the value-producing instructions. Invoke terminators
// are values too, carrying their call result.
type Value interface {
	Type() Type
}

// Instruction is the closed set of non-terminator instructions. Operands
// appends pointers to every value operand to rands and returns it, so callers
// can inspect or rewrite uses in place.
type Instruction interface {
	Operands(rands []*Value) []*Value
	instr()
}

// Terminator ends a basic block and determines its successors. The set of
// implementations is closed; rewriting code type-switches over it
// exhaustively and panics on anything else.
type Terminator interface {
	Successors() []*Block
	Operands(rands []*Value) []*Value
	term()
}

// Const is an integer or boolean constant.
type Const struct {
	Val int64
	Typ Type
}

func (c *Const) Type() Type { return c.Typ }

// IntConst returns an integer constant.
func IntConst(v int64) *Const { return &Const{Val: v, Typ: Int} }

// BoolConst returns a boolean constant.
func BoolConst(v bool) *Const {
	c := &Const{Typ: Bool}
	if v {
		c.Val = 1
	}
	return c
}

// Param is a function parameter.
type Param struct {
	Name string
	Typ  Type
}

func (p *Param) Type() Type { return p.Typ }

// BlockAddress is the address of a basic block, usable as a jump-table
// payload and as an indirectbr target.
type BlockAddress struct {
	Target *Block
}

func (a *BlockAddress) Type() Type { return Addr }

// Block is a basic block. Identity is by pointer; Name is cosmetic and may be
// empty. Index tracks the block's position in Function.Blocks.
type Block struct {
	Name   string
	Index  int
	Instrs []Instruction
	Term   Terminator
}

// Append adds instructions at the end of the block, before the terminator.
func (b *Block) Append(instrs ...Instruction) {
	b.Instrs = append(b.Instrs, instrs...)
}

// InsertAt inserts an instruction at position i.
func (b *Block) InsertAt(i int, instr Instruction) {
	b.Instrs = slices.Insert(b.Instrs, i, instr)
}

// Remove deletes the first occurrence of instr, preserving order.
func (b *Block) Remove(instr Instruction) {
	if i := slices.Index(b.Instrs, instr); i >= 0 {
		b.Instrs = slices.Delete(b.Instrs, i, i+1)
	}
}

// Phis returns the merge nodes at the head of the block.
func (b *Block) Phis() []*Phi {
	var phis []*Phi
	for _, instr := range b.Instrs {
		phi, ok := instr.(*Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
}

// firstNonPhi returns the position of the first instruction after the leading
// merge nodes and landing-pad marker.
func (b *Block) firstNonPhi() int {
	for i, instr := range b.Instrs {
		switch instr.(type) {
		case *Phi, *Pad:
		default:
			return i
		}
	}
	return len(b.Instrs)
}

// IsLandingPad reports whether the block is the target of exception
// unwinding: its first instruction after any merge nodes is a Pad.
func (b *Block) IsLandingPad() bool {
	for _, instr := range b.Instrs {
		switch instr.(type) {
		case *Phi:
		case *Pad:
			return true
		default:
			return false
		}
	}
	return false
}

// Function owns an ordered sequence of blocks. Blocks[0] is the entry block.
// A function with no blocks is an external declaration and is never
// transformed.
type Function struct {
	Name   string
	Params []*Param
	Blocks []*Block
}

// NewFunction returns a function with the given parameters and no blocks.
func NewFunction(name string, params ...*Param) *Function {
	return &Function{Name: name, Params: params}
}

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Entry returns the entry block, or nil for a declaration.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends a fresh block to the function and returns it. The first
// block created becomes the entry.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{Name: name, Index: len(f.Blocks)}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Preds returns the predecessors of b in block order, one entry per incoming
// edge, so a conditional branch with both targets equal to b contributes two
// entries.
func (f *Function) Preds(b *Block) []*Block {
	var preds []*Block
	for _, p := range f.Blocks {
		if p.Term == nil {
			continue
		}
		for _, s := range p.Term.Successors() {
			if s == b {
				preds = append(preds, p)
			}
		}
	}
	return preds
}

// SplitTerminator splits b in two: a fresh block takes over b's terminator
// and b ends with an unconditional jump to it. Merge nodes in the old
// successors are rewired to the new block.
func (f *Function) SplitTerminator(b *Block) *Block {
	tail := f.NewBlock(b.Name + ".split")
	tail.Term = b.Term
	b.Term = &Jump{Target: tail}
	for _, s := range tail.Term.Successors() {
		for _, phi := range s.Phis() {
			for i := range phi.Edges {
				if phi.Edges[i].Pred == b {
					phi.Edges[i].Pred = tail
				}
			}
		}
	}
	return tail
}

// ReplaceUses rewrites every operand equal to old, anywhere in the function,
// to new.
func (f *Function) ReplaceUses(old, new Value) {
	var rands []*Value
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			rands = instr.Operands(rands[:0])
			for _, p := range rands {
				if *p == old {
					*p = new
				}
			}
		}
		if b.Term == nil {
			continue
		}
		rands = b.Term.Operands(rands[:0])
		for _, p := range rands {
			if *p == old {
				*p = new
			}
		}
	}
}
