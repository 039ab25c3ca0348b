// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"mvdan.cc/flatten/ir"
	"mvdan.cc/flatten/ir/vm"
)

// diamondPhi builds max-like control flow merging two values into one node:
//
//	if n < 10 { v = n * 2 } else { v = n + 100 }; return v
func diamondPhi() *ir.Function {
	n := &ir.Param{Name: "n", Typ: ir.Int}
	fn := ir.NewFunction("pick", n)
	entry := fn.NewBlock("")
	small := fn.NewBlock("")
	large := fn.NewBlock("")
	exit := fn.NewBlock("")

	cond := &ir.BinOp{Op: ir.Lt, X: n, Y: ir.IntConst(10)}
	entry.Append(cond)
	entry.Term = &ir.If{Cond: cond, Then: small, Else: large}

	dbl := &ir.BinOp{Op: ir.Mul, X: n, Y: ir.IntConst(2)}
	small.Append(dbl)
	small.Term = &ir.Jump{Target: exit}

	bump := &ir.BinOp{Op: ir.Add, X: n, Y: ir.IntConst(100)}
	large.Append(bump)
	large.Term = &ir.Jump{Target: exit}

	phi := &ir.Phi{Typ: ir.Int, Edges: []ir.PhiEdge{
		{Pred: small, Val: dbl},
		{Pred: large, Val: bump},
	}}
	exit.Append(phi)
	exit.Term = &ir.Return{Val: phi}
	return fn
}

func TestDemotePhi(t *testing.T) {
	fn := diamondPhi()
	small, large, exit := fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	phi := exit.Phis()[0]

	load := ir.DemotePhi(fn, exit, phi)

	qt.Assert(t, qt.Equals(len(exit.Phis()), 0))
	slot, ok := fn.Entry().Instrs[0].(*ir.Alloca)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(slot.Elem, ir.Int))

	// One store per incoming edge, at the end of each predecessor.
	for _, pred := range []*ir.Block{small, large} {
		store, ok := pred.Instrs[len(pred.Instrs)-1].(*ir.Store)
		qt.Assert(t, qt.IsTrue(ok))
		qt.Assert(t, qt.Equals[ir.Value](store.Addr, slot))
	}

	// The load takes over the node's uses.
	qt.Assert(t, qt.Equals[ir.Value](load.X, slot))
	ret := exit.Term.(*ir.Return)
	qt.Assert(t, qt.Equals[ir.Value](ret.Val, load))

	// Behavior is unchanged on both paths.
	var m vm.Machine
	for _, n := range []int64{3, 50} {
		want, err := m.Run(diamondPhi(), n)
		qt.Assert(t, qt.IsNil(err))
		got, err := m.Run(fn, n)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(got, want))
	}
}

func TestDemotePhiLoopCarried(t *testing.T) {
	// for i := 0; i < n; i++ {}; return i
	n := &ir.Param{Name: "n", Typ: ir.Int}
	fn := ir.NewFunction("count", n)
	entry := fn.NewBlock("")
	head := fn.NewBlock("")
	body := fn.NewBlock("")
	exit := fn.NewBlock("")

	i := &ir.Phi{Typ: ir.Int}
	next := &ir.BinOp{Op: ir.Add, X: i, Y: ir.IntConst(1)}
	i.AddEdge(entry, ir.IntConst(0))
	i.AddEdge(body, next)

	entry.Term = &ir.Jump{Target: head}
	cond := &ir.BinOp{Op: ir.Lt, X: i, Y: n}
	head.Append(i, cond)
	head.Term = &ir.If{Cond: cond, Then: body, Else: exit}
	body.Append(next)
	body.Term = &ir.Jump{Target: head}
	exit.Term = &ir.Return{Val: i}

	load := ir.DemotePhi(fn, head, i)

	// The load lands where the node was, ahead of the rest of the block.
	qt.Assert(t, qt.Equals[ir.Instruction](head.Instrs[0], load))

	var m vm.Machine
	got, err := m.Run(fn, 4)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(got, int64(4)))
}

func TestDemotePhiInvokeEdge(t *testing.T) {
	// The incoming value is the invoke's own result, so the store must run
	// in the normal destination, not before the invoke.
	a := &ir.Param{Name: "a", Typ: ir.Int}
	fn := ir.NewFunction("guarded", a)
	entry := fn.NewBlock("")
	other := fn.NewBlock("")
	merge := fn.NewBlock("")
	pad := fn.NewBlock("")

	inv := &ir.Invoke{Fn: "h", Args: []ir.Value{a}, Typ: ir.Int, Normal: merge, Unwind: pad}
	entry.Term = inv

	other.Term = &ir.Jump{Target: merge}

	phi := &ir.Phi{Typ: ir.Int, Edges: []ir.PhiEdge{
		{Pred: entry, Val: inv},
		{Pred: other, Val: ir.IntConst(7)},
	}}
	merge.Append(phi)
	merge.Term = &ir.Return{Val: phi}

	token := &ir.Pad{}
	pad.Append(token)
	pad.Term = &ir.Resume{X: token}

	ir.DemotePhi(fn, merge, phi)

	// merge now starts with the invoke-result store, then the load.
	store, ok := merge.Instrs[0].(*ir.Store)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals[ir.Value](store.Val, inv))
	load, ok := merge.Instrs[1].(*ir.Load)
	qt.Assert(t, qt.IsTrue(ok))
	ret := merge.Term.(*ir.Return)
	qt.Assert(t, qt.Equals[ir.Value](ret.Val, load))

	m := vm.Machine{Host: map[string]vm.HostFunc{
		"h": func(args []int64) (int64, error) { return args[0] * 3, nil },
	}}
	got, err := m.Run(fn, 5)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(got, int64(15)))
}
