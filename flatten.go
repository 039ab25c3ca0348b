// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

// Package flatten obfuscates a function's control flow by flattening it:
// every block branches unconditionally to one shared dispatcher, which jumps
// through a table of block addresses to whichever block logically follows.
// The loop and branch structure disappears from the graph shape; only the
// dispatcher's jump table encodes the real flow.
//
// The transform either rewrites the whole function or leaves it untouched,
// and reports which of the two happened. It never partially transforms.
package flatten

import (
	"fmt"
	"log"
	mathrand "math/rand"
	"slices"
	"time"

	"mvdan.cc/flatten/ir"
)

// Options configures a Transformer.
type Options struct {
	// Functions restricts the transform to the named functions. Empty means
	// every function is a candidate.
	Functions []string

	// Seed seeds the transformer's random engine. The zero value seeds from
	// the system clock.
	Seed SeedFlag
}

// Transformer flattens functions one at a time. It is not safe for
// concurrent use on the same function; callers own the serialization.
type Transformer struct {
	targets []string
	rand    *mathrand.Rand
}

// New returns a Transformer with its random engine seeded per opts.
func New(opts Options) *Transformer {
	var seed int64
	if opts.Seed.present() {
		seed = opts.Seed.engineSeed()
	} else {
		seed = time.Now().UnixNano()
	}
	return &Transformer{
		targets: slices.Clone(opts.Functions),
		rand:    mathrand.New(mathrand.NewSource(seed)),
	}
}

// Rand exposes the transformer's random engine. Flattening itself is fully
// deterministic and does not consult it; the engine seeds the randomized
// passes (opaque predicates, bogus branches) that stack on top of
// flattening.
func (t *Transformer) Rand() *mathrand.Rand { return t.rand }

// Apply flattens fn in place and reports whether it modified anything. A
// false result guarantees fn is untouched: declarations, functions excluded
// by the name filter, functions with switch or indirectbr terminators,
// functions with fewer than two flattenable blocks, and functions whose
// control flow is already trivially flat are all left as they were.
func (t *Transformer) Apply(fn *ir.Function) bool {
	if fn.IsDeclaration() {
		return false
	}
	if len(t.targets) > 0 && !slices.Contains(t.targets, fn.Name) {
		log.Printf("flatten: %s not requested, skipping", fn.Name)
		return false
	}

	blocks, ok := eligibleBlocks(fn)
	if !ok {
		return false
	}
	if len(blocks) < 2 {
		log.Printf("flatten: %s has nothing left to flatten", fn.Name)
		return false
	}
	entry := fn.Entry()
	if n := len(entry.Term.Successors()); n == 0 || n == len(blocks) {
		log.Printf("flatten: %s is trivial, control flow already flat", fn.Name)
		return false
	}

	// Merge nodes depend on one incoming value per predecessor edge, and the
	// dispatcher is about to collapse every predecessor into itself. Demote
	// them all to stack slots first.
	for _, b := range blocks {
		for _, phi := range b.Phis() {
			ir.DemotePhi(fn, b, phi)
		}
	}

	// The initial block is the first one the dispatcher sends control to.
	// An entry with several successors is split so that its terminator
	// moves into a fresh flattenable block; an entry with one successor is
	// a pure trampoline already.
	var initial *ir.Block
	if len(entry.Term.Successors()) > 1 {
		initial = fn.SplitTerminator(entry)
		blocks = append(blocks, initial)
	} else {
		initial = entry.Term.Successors()[0]
	}

	// Decide every rewrite before mutating any terminator; mutating the
	// graph mid-inspection would invalidate the inspection.
	plans := make([]rewrite, len(blocks))
	for i, b := range blocks {
		plans[i] = planRewrite(blocks, b)
	}

	entry.Term = nil // replaced with a jump to the dispatcher below

	dispatcher := fn.NewBlock("flatten.dispatch")
	selector := &ir.Phi{
		Typ:     ir.Int,
		Comment: "flatten.selector",
		Edges:   make([]ir.PhiEdge, 0, len(blocks)+1),
	}

	// The jump table lives in the entry frame and is populated there, so
	// the writes run exactly once no matter how many times control passes
	// through the dispatcher.
	table := &ir.Alloca{Elem: ir.Addr, Count: len(blocks)}
	entry.Append(table)

	slot := &ir.IndexAddr{X: table, Index: selector}
	target := &ir.Load{X: slot, Typ: ir.Addr}
	branch := &ir.IndirectBr{Addr: target, Dests: make([]*ir.Block, 0, len(blocks))}
	dispatcher.Append(selector, slot, target)
	dispatcher.Term = branch

	for i, b := range blocks {
		index := ir.IntConst(int64(i))
		if b == initial {
			selector.AddEdge(entry, index)
		}

		switch plan := plans[i]; plan.kind {
		case rewriteNone:
			// A block with no successors never reaches the dispatcher.
		case rewriteJump:
			selector.AddEdge(b, plan.index)
			b.Term = &ir.Jump{Target: dispatcher}
		case rewriteCond:
			b.Append(plan.sel)
			selector.AddEdge(b, plan.sel)
			b.Term = &ir.Jump{Target: dispatcher}
		case rewriteInvoke:
			// The exception edge must bypass the dispatcher, so the invoke
			// keeps its terminator; only the normal edge is detoured
			// through a trampoline that reports where control was headed.
			inv := b.Term.(*ir.Invoke)
			tramp := fn.NewBlock("flatten.tramp")
			inv.Normal = tramp
			tramp.Term = &ir.Jump{Target: dispatcher}
			selector.AddEdge(tramp, plan.normal)
		}

		// Jump-table bookkeeping is unconditional: return blocks are
		// dispatch destinations too.
		addr := &ir.IndexAddr{X: table, Index: index}
		entry.Append(addr, &ir.Store{Val: &ir.BlockAddress{Target: b}, Addr: addr})
		branch.Dests = append(branch.Dests, b)
	}
	entry.Term = &ir.Jump{Target: dispatcher}

	for i, b := range blocks {
		if plans[i].kind == rewriteNone {
			continue // nothing executes after a 0-successor block
		}
		relayBlockValues(fn, b, dispatcher, selector)
	}

	fillDispatcherEdges(fn, dispatcher, selector)

	log.Printf("flatten: %s: flattened %d blocks", fn.Name, len(blocks))
	return true
}

// eligibleBlocks walks every block once and returns the flattening set. It
// runs to completion before any mutation begins. The whole function is
// rejected when any block ends in a terminator the rewriter does not model.
func eligibleBlocks(fn *ir.Function) ([]*ir.Block, bool) {
	entry := fn.Entry()
	var blocks []*ir.Block
	for _, b := range fn.Blocks {
		switch b.Term.(type) {
		case *ir.Switch:
			log.Printf("flatten: %s has a switch terminator, skipping", fn.Name)
			return nil, false
		case *ir.IndirectBr:
			log.Printf("flatten: %s has an indirectbr terminator, skipping", fn.Name)
			return nil, false
		}
		if b.IsLandingPad() || b == entry {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, true
}

type rewriteKind uint8

const (
	rewriteNone rewriteKind = iota
	rewriteJump
	rewriteCond
	rewriteInvoke
)

// rewrite is one block's planned terminator replacement.
type rewrite struct {
	kind   rewriteKind
	index  *ir.Const  // rewriteJump: the successor's block index
	sel    *ir.Select // rewriteCond: index selection over the original condition
	normal *ir.Const  // rewriteInvoke: the original normal destination's index
}

func planRewrite(blocks []*ir.Block, b *ir.Block) rewrite {
	switch term := b.Term.(type) {
	case *ir.Return, *ir.Unreachable, *ir.Resume:
		return rewrite{kind: rewriteNone}
	case *ir.Jump:
		return rewrite{kind: rewriteJump, index: blockIndex(blocks, term.Target)}
	case *ir.If:
		sel := &ir.Select{
			Cond: term.Cond,
			T:    blockIndex(blocks, term.Then),
			F:    blockIndex(blocks, term.Else),
		}
		return rewrite{kind: rewriteCond, sel: sel}
	case *ir.Invoke:
		return rewrite{kind: rewriteInvoke, normal: blockIndex(blocks, term.Normal)}
	default:
		// The filter admits no other terminator; reaching this is a bug in
		// the transform, not bad input.
		panic(fmt.Sprintf("flatten: unexpected terminator %T after filtering", term))
	}
}

// blockIndex returns b's position in the flattening set as a constant. Every
// branch target of an eligible block must itself be eligible, so a miss is a
// transform bug.
func blockIndex(blocks []*ir.Block, b *ir.Block) *ir.Const {
	i := slices.Index(blocks, b)
	if i < 0 {
		panic("flatten: block is not in the flattening set")
	}
	return ir.IntConst(int64(i))
}

// relayBlockValues threads every value defined in b but used outside it
// through a merge node at the dispatcher, immediately demoted to a stack
// slot, so the value stays valid no matter which block executed last.
func relayBlockValues(fn *ir.Function, b *ir.Block, dispatcher *ir.Block, selector *ir.Phi) {
	for _, instr := range slices.Clone(b.Instrs) {
		v, ok := instr.(ir.Value)
		if !ok || v.Type() == ir.Void {
			continue
		}
		relayValue(fn, b, v, dispatcher, selector)
	}
	// The invoke's call result is defined by the terminator itself; its
	// relay store lands in the trampoline, the only point where the result
	// both exists and heads for the dispatcher.
	if inv, ok := b.Term.(*ir.Invoke); ok && inv.Typ != ir.Void {
		relayValue(fn, b, inv, dispatcher, selector)
	}
}

func relayValue(fn *ir.Function, b *ir.Block, v ir.Value, dispatcher *ir.Block, selector *ir.Phi) {
	var ptrs []*ir.Value
	var rands []*ir.Value
	for _, ub := range fn.Blocks {
		for _, user := range ub.Instrs {
			if ir.Instruction(selector) == user {
				continue // the selector's edge values are handled by the rewriter
			}
			rands = user.Operands(rands[:0])
			for _, p := range rands {
				if *p == v && ub != b {
					ptrs = append(ptrs, p)
				}
			}
		}
		if ub.Term == nil || ub == b {
			continue
		}
		rands = ub.Term.Operands(rands[:0])
		for _, p := range rands {
			if *p == v {
				ptrs = append(ptrs, p)
			}
		}
	}
	if len(ptrs) == 0 {
		return
	}

	phi := &ir.Phi{Typ: v.Type(), Comment: "flatten.relay"}
	phi.AddEdge(b, v)
	dispatcher.InsertAt(0, phi)
	for _, p := range ptrs {
		*p = phi
	}
	ir.DemotePhi(fn, dispatcher, phi)
}

// fillDispatcherEdges gives every merge node still at the dispatcher a
// self-referential edge for each predecessor it lacks one for, so node arity
// matches predecessor count. The filled value is never observed: control
// only reaches a merge through the edges that legitimately set it.
func fillDispatcherEdges(fn *ir.Function, dispatcher *ir.Block, selector *ir.Phi) {
	preds := fn.Preds(dispatcher)
	for _, phi := range dispatcher.Phis() {
		if phi == selector {
			continue
		}
		for _, p := range preds {
			if !phi.HasEdge(p) {
				phi.AddEdge(p, phi)
			}
		}
	}
}
