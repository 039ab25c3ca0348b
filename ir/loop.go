// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir

import (
	"golang.org/x/exp/slices"
	"golang.org/x/tools/container/intsets"
)

// Loop is a natural loop: a header block plus every block that can reach one
// of the header's back edges without leaving through the header.
type Loop struct {
	Header *Block
	Parent *Loop // enclosing loop, nil for a top-level loop

	blocks intsets.Sparse // member block indexes
}

// Contains reports whether b belongs to the loop body (header included).
func (l *Loop) Contains(b *Block) bool { return l.blocks.Has(b.Index) }

// NumBlocks returns the size of the loop body.
func (l *Loop) NumBlocks() int { return l.blocks.Len() }

// Depth returns the loop's nesting depth; a top-level loop has depth 1.
func (l *Loop) Depth() int {
	depth := 0
	for ; l != nil; l = l.Parent {
		depth++
	}
	return depth
}

// LoopInfo is the loop tree of one function.
type LoopInfo struct {
	loops   []*Loop
	byBlock map[*Block]*Loop // innermost containing loop
}

// LoopFor returns the innermost loop containing b, or nil.
func (li *LoopInfo) LoopFor(b *Block) *Loop { return li.byBlock[b] }

// Loops returns every loop, outermost first.
func (li *LoopInfo) Loops() []*Loop { return li.loops }

// FindLoops discovers the natural loops of f from its dominator tree: every
// edge n->h where h dominates n is a back edge, and the loop body is
// collected by walking predecessors backwards from n until h. Loops sharing
// a header are merged, as in LLVM's LoopInfo.
func FindLoops(f *Function) *LoopInfo {
	idom := Dominators(f)
	byIndex := make(map[int]*Block, len(f.Blocks))
	for _, b := range f.Blocks {
		byIndex[b.Index] = b
	}

	byHeader := make(map[*Block]*Loop)
	var loops []*Loop
	for _, n := range ReversePostOrder(f) {
		if n.Term == nil {
			continue
		}
		for _, h := range n.Term.Successors() {
			if !dominates(idom, h, n) {
				continue
			}
			loop := byHeader[h]
			if loop == nil {
				loop = &Loop{Header: h}
				loop.blocks.Insert(h.Index)
				byHeader[h] = loop
				loops = append(loops, loop)
			}
			collectBody(f, loop, n)
		}
	}

	// Nest loops by body containment: the parent of a loop is the smallest
	// strictly larger loop holding its header.
	slices.SortFunc(loops, func(a, b *Loop) int {
		return b.blocks.Len() - a.blocks.Len() // big loops first
	})
	for i, l := range loops {
		for j := i - 1; j >= 0; j-- {
			outer := loops[j]
			if outer.blocks.Len() > l.blocks.Len() && outer.Contains(l.Header) {
				l.Parent = outer
				break
			}
		}
	}

	li := &LoopInfo{loops: loops, byBlock: make(map[*Block]*Loop)}
	for _, l := range loops { // outermost first: inner loops overwrite
		for _, idx := range l.blocks.AppendTo(nil) {
			li.byBlock[byIndex[idx]] = l
		}
	}
	return li
}

// collectBody walks backwards from the back-edge source n, adding every block
// that reaches n without passing through the loop header.
func collectBody(f *Function, loop *Loop, n *Block) {
	if !loop.blocks.Insert(n.Index) {
		return
	}
	work := []*Block{n}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range f.Preds(b) {
			if loop.blocks.Insert(p.Index) {
				work = append(work, p)
			}
		}
	}
}
