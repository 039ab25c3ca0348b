// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir

// Op is a binary operator.
type Op uint8

const (
	Add Op = iota
	Sub
	Mul
	Div
	Xor
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
)

var opNames = [...]string{
	Add: "add",
	Sub: "sub",
	Mul: "mul",
	Div: "div",
	Xor: "xor",
	Eq:  "eq",
	Ne:  "ne",
	Lt:  "lt",
	Le:  "le",
	Gt:  "gt",
	Ge:  "ge",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// IsComparison reports whether the operator yields a boolean.
func (op Op) IsComparison() bool { return op >= Eq }

// Alloca reserves Count slots of Elem values in the function frame and yields
// their address. A Count of zero means a single slot. The allocation is
// static: it happens once per function activation, not once per execution of
// the instruction's block.
type Alloca struct {
	Elem  Type
	Count int
}

func (a *Alloca) Type() Type { return Addr }

// NumSlots returns the number of slots the allocation holds.
func (a *Alloca) NumSlots() int {
	if a.Count < 1 {
		return 1
	}
	return a.Count
}

// IndexAddr yields the address of slot Index within the allocation X points
// at.
type IndexAddr struct {
	X     Value
	Index Value
}

func (i *IndexAddr) Type() Type { return Addr }

// Load reads the value stored at address X.
type Load struct {
	X   Value
	Typ Type
}

func (l *Load) Type() Type { return l.Typ }

// Store writes Val to address Addr. It produces no value.
type Store struct {
	Val  Value
	Addr Value
}

// BinOp applies Op to X and Y.
type BinOp struct {
	Op   Op
	X, Y Value
}

func (b *BinOp) Type() Type {
	if b.Op.IsComparison() {
		return Bool
	}
	return Int
}

// Select yields T when Cond holds, F otherwise.
type Select struct {
	Cond Value
	T, F Value
}

func (s *Select) Type() Type { return s.T.Type() }

// PhiEdge is one incoming edge of a merge node: the value that flows in when
// control arrives from Pred.
type PhiEdge struct {
	Pred *Block
	Val  Value
}

// Phi is a merge node at a block's head, selecting a value based on which
// predecessor branched in. Comment is cosmetic.
type Phi struct {
	Typ     Type
	Edges   []PhiEdge
	Comment string
}

func (p *Phi) Type() Type { return p.Typ }

// AddEdge records that Val flows in along the edge from pred.
func (p *Phi) AddEdge(pred *Block, val Value) {
	p.Edges = append(p.Edges, PhiEdge{Pred: pred, Val: val})
}

// HasEdge reports whether the node has an incoming edge from pred.
func (p *Phi) HasEdge(pred *Block) bool {
	for _, e := range p.Edges {
		if e.Pred == pred {
			return true
		}
	}
	return false
}

// Call invokes the host function Fn. A Void result means the call is only
// executed for its side effects.
type Call struct {
	Fn   string
	Args []Value
	Typ  Type
}

func (c *Call) Type() Type { return c.Typ }

// Pad marks a block as an exception-landing target and yields the in-flight
// exception token. Blocks starting with a Pad are never flattened.
type Pad struct{}

func (p *Pad) Type() Type { return Token }

func (a *Alloca) Operands(rands []*Value) []*Value { return rands }
func (i *IndexAddr) Operands(rands []*Value) []*Value {
	return append(rands, &i.X, &i.Index)
}
func (l *Load) Operands(rands []*Value) []*Value  { return append(rands, &l.X) }
func (s *Store) Operands(rands []*Value) []*Value { return append(rands, &s.Val, &s.Addr) }
func (b *BinOp) Operands(rands []*Value) []*Value { return append(rands, &b.X, &b.Y) }
func (s *Select) Operands(rands []*Value) []*Value {
	return append(rands, &s.Cond, &s.T, &s.F)
}
func (p *Phi) Operands(rands []*Value) []*Value {
	for i := range p.Edges {
		rands = append(rands, &p.Edges[i].Val)
	}
	return rands
}
func (c *Call) Operands(rands []*Value) []*Value {
	for i := range c.Args {
		rands = append(rands, &c.Args[i])
	}
	return rands
}
func (p *Pad) Operands(rands []*Value) []*Value { return rands }

func (a *Alloca) instr()    {}
func (i *IndexAddr) instr() {}
func (l *Load) instr()      {}
func (s *Store) instr()     {}
func (b *BinOp) instr()     {}
func (s *Select) instr()    {}
func (p *Phi) instr()       {}
func (c *Call) instr()      {}
func (p *Pad) instr()       {}
