// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"mvdan.cc/flatten/ir"
)

// nestedLoops builds two loops, one inside the other:
//
//	b0 -> b1 (outer header) -> b2 (inner header) -> b3 -> b2
//	                                 \-> b4 -> b1
//	      b1 -> b5 (exit)
func nestedLoops() (*ir.Function, []*ir.Block) {
	fn := ir.NewFunction("nested")
	b := make([]*ir.Block, 6)
	for i := range b {
		b[i] = fn.NewBlock("")
	}
	cond := ir.BoolConst(true)
	b[0].Term = &ir.Jump{Target: b[1]}
	b[1].Term = &ir.If{Cond: cond, Then: b[2], Else: b[5]}
	b[2].Term = &ir.If{Cond: cond, Then: b[3], Else: b[4]}
	b[3].Term = &ir.Jump{Target: b[2]}
	b[4].Term = &ir.Jump{Target: b[1]}
	b[5].Term = &ir.Return{}
	return fn, b
}

func TestReversePostOrder(t *testing.T) {
	fn, b := nestedLoops()
	rpo := ir.ReversePostOrder(fn)

	qt.Assert(t, qt.Equals(len(rpo), 6))
	qt.Assert(t, qt.Equals(rpo[0], b[0]))

	pos := make(map[*ir.Block]int)
	for i, blk := range rpo {
		pos[blk] = i
	}
	// Every forward edge goes left to right.
	qt.Assert(t, qt.IsTrue(pos[b[0]] < pos[b[1]]))
	qt.Assert(t, qt.IsTrue(pos[b[1]] < pos[b[2]]))
	qt.Assert(t, qt.IsTrue(pos[b[2]] < pos[b[3]]))
	qt.Assert(t, qt.IsTrue(pos[b[2]] < pos[b[4]]))
	qt.Assert(t, qt.IsTrue(pos[b[1]] < pos[b[5]]))

	// Blocks with no path from the entry are excluded.
	fn.NewBlock("").Term = &ir.Return{}
	qt.Assert(t, qt.Equals(len(ir.ReversePostOrder(fn)), 6))
}

func TestDominators(t *testing.T) {
	fn, b := nestedLoops()
	idom := ir.Dominators(fn)

	qt.Assert(t, qt.IsNil(idom[b[0]]))
	qt.Assert(t, qt.Equals(idom[b[1]], b[0]))
	qt.Assert(t, qt.Equals(idom[b[2]], b[1]))
	qt.Assert(t, qt.Equals(idom[b[3]], b[2]))
	qt.Assert(t, qt.Equals(idom[b[4]], b[2]))
	qt.Assert(t, qt.Equals(idom[b[5]], b[1]))
}

func TestDominatorsDiamond(t *testing.T) {
	fn := ir.NewFunction("diamond")
	entry := fn.NewBlock("")
	left := fn.NewBlock("")
	right := fn.NewBlock("")
	exit := fn.NewBlock("")
	entry.Term = &ir.If{Cond: ir.BoolConst(true), Then: left, Else: right}
	left.Term = &ir.Jump{Target: exit}
	right.Term = &ir.Jump{Target: exit}
	exit.Term = &ir.Return{}

	idom := ir.Dominators(fn)
	qt.Assert(t, qt.Equals(idom[left], entry))
	qt.Assert(t, qt.Equals(idom[right], entry))
	// Neither branch dominates the join.
	qt.Assert(t, qt.Equals(idom[exit], entry))
}

func TestFindLoops(t *testing.T) {
	fn, b := nestedLoops()
	li := ir.FindLoops(fn)

	loops := li.Loops()
	qt.Assert(t, qt.Equals(len(loops), 2))
	outer, inner := loops[0], loops[1]
	qt.Assert(t, qt.Equals(outer.Header, b[1]))
	qt.Assert(t, qt.Equals(inner.Header, b[2]))

	qt.Assert(t, qt.IsNil(outer.Parent))
	qt.Assert(t, qt.Equals(inner.Parent, outer))
	qt.Assert(t, qt.Equals(outer.Depth(), 1))
	qt.Assert(t, qt.Equals(inner.Depth(), 2))

	qt.Assert(t, qt.Equals(outer.NumBlocks(), 4))
	qt.Assert(t, qt.Equals(inner.NumBlocks(), 2))

	// LoopFor reports the innermost containing loop.
	qt.Assert(t, qt.Equals(li.LoopFor(b[1]), outer))
	qt.Assert(t, qt.Equals(li.LoopFor(b[2]), inner))
	qt.Assert(t, qt.Equals(li.LoopFor(b[3]), inner))
	qt.Assert(t, qt.Equals(li.LoopFor(b[4]), outer))
	qt.Assert(t, qt.IsNil(li.LoopFor(b[0])))
	qt.Assert(t, qt.IsNil(li.LoopFor(b[5])))

	qt.Assert(t, qt.IsTrue(outer.Contains(b[3])))
	qt.Assert(t, qt.IsFalse(inner.Contains(b[4])))
}

func TestFindLoopsNone(t *testing.T) {
	fn := ir.NewFunction("straight")
	entry := fn.NewBlock("")
	exit := fn.NewBlock("")
	entry.Term = &ir.Jump{Target: exit}
	exit.Term = &ir.Return{}

	li := ir.FindLoops(fn)
	qt.Assert(t, qt.Equals(len(li.Loops()), 0))
	qt.Assert(t, qt.IsNil(li.LoopFor(entry)))
}
