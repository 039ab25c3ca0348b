// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir

// Return leaves the function, optionally carrying a value.
type Return struct {
	Val Value // nil for a void return
}

// Unreachable marks a point control must never reach.
type Unreachable struct{}

// Resume re-propagates the in-flight exception token X up the call stack.
type Resume struct {
	X Value
}

// Jump branches unconditionally to Target.
type Jump struct {
	Target *Block
}

// If branches to Then when Cond holds, to Else otherwise.
type If struct {
	Cond Value
	Then *Block
	Else *Block
}

// SwitchCase pairs a case value with its target block.
type SwitchCase struct {
	Val    Value // a *Const in well-formed functions
	Target *Block
}

// Switch is a multi-way branch over X. Functions containing one are rejected
// by the flattening filter rather than partially transformed.
type Switch struct {
	X       Value
	Default *Block
	Cases   []SwitchCase
}

// IndirectBr jumps through the block address Addr. Dests declares every block
// the jump may reach; transferring to an undeclared block is undefined.
type IndirectBr struct {
	Addr  Value
	Dests []*Block
}

// Invoke calls the host function Fn. Control continues at Normal on ordinary
// return and at Unwind (a landing pad) when the callee raises. The invoke is
// also a Value: its call result.
type Invoke struct {
	Fn     string
	Args   []Value
	Typ    Type
	Normal *Block
	Unwind *Block
}

func (i *Invoke) Type() Type { return i.Typ }

func (t *Return) Successors() []*Block      { return nil }
func (t *Unreachable) Successors() []*Block { return nil }
func (t *Resume) Successors() []*Block      { return nil }
func (t *Jump) Successors() []*Block        { return []*Block{t.Target} }
func (t *If) Successors() []*Block          { return []*Block{t.Then, t.Else} }
func (t *Switch) Successors() []*Block {
	succs := make([]*Block, 0, len(t.Cases)+1)
	succs = append(succs, t.Default)
	for _, c := range t.Cases {
		succs = append(succs, c.Target)
	}
	return succs
}
func (t *IndirectBr) Successors() []*Block { return t.Dests }
func (t *Invoke) Successors() []*Block     { return []*Block{t.Normal, t.Unwind} }

func (t *Return) Operands(rands []*Value) []*Value {
	if t.Val != nil {
		rands = append(rands, &t.Val)
	}
	return rands
}
func (t *Unreachable) Operands(rands []*Value) []*Value { return rands }
func (t *Resume) Operands(rands []*Value) []*Value      { return append(rands, &t.X) }
func (t *Jump) Operands(rands []*Value) []*Value        { return rands }
func (t *If) Operands(rands []*Value) []*Value          { return append(rands, &t.Cond) }
func (t *Switch) Operands(rands []*Value) []*Value {
	rands = append(rands, &t.X)
	for i := range t.Cases {
		rands = append(rands, &t.Cases[i].Val)
	}
	return rands
}
func (t *IndirectBr) Operands(rands []*Value) []*Value { return append(rands, &t.Addr) }
func (t *Invoke) Operands(rands []*Value) []*Value {
	for i := range t.Args {
		rands = append(rands, &t.Args[i])
	}
	return rands
}

func (t *Return) term()      {}
func (t *Unreachable) term() {}
func (t *Resume) term()      {}
func (t *Jump) term()        {}
func (t *If) term()          {}
func (t *Switch) term()      {}
func (t *IndirectBr) term()  {}
func (t *Invoke) term()      {}
