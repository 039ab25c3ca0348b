// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir

import (
	"golang.org/x/tools/container/intsets"
)

// ReversePostOrder returns the reachable blocks of f in reverse post-order,
// starting from the entry. Unreachable blocks are excluded.
func ReversePostOrder(f *Function) []*Block {
	if f.IsDeclaration() {
		return nil
	}
	var visited intsets.Sparse
	var order []*Block
	var dfs func(b *Block)
	dfs = func(b *Block) {
		if !visited.Insert(b.Index) {
			return
		}
		if b.Term != nil {
			for _, s := range b.Term.Successors() {
				dfs(s)
			}
		}
		order = append(order, b)
	}
	dfs(f.Entry())

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Dominators computes the immediate dominator of every reachable block using
// Cooper, Harvey, and Kennedy's "A Simple, Fast Dominance Algorithm". The
// entry block maps to nil.
func Dominators(f *Function) map[*Block]*Block {
	rpo := ReversePostOrder(f)
	idom := make(map[*Block]*Block, len(rpo))
	if len(rpo) == 0 {
		return idom
	}

	rpoNum := make(map[*Block]int, len(rpo))
	for i, b := range rpo {
		rpoNum[b] = i
	}

	intersect := func(b1, b2 *Block) *Block {
		for b1 != b2 {
			for rpoNum[b1] > rpoNum[b2] {
				b1 = idom[b1]
			}
			for rpoNum[b2] > rpoNum[b1] {
				b2 = idom[b2]
			}
		}
		return b1
	}

	entry := rpo[0]
	idom[entry] = entry // sentinel while iterating

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *Block
			for _, p := range f.Preds(b) {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	idom[entry] = nil
	return idom
}

// dominates reports whether a dominates b under the given idom map. Every
// block dominates itself.
func dominates(idom map[*Block]*Block, a, b *Block) bool {
	for b != nil {
		if a == b {
			return true
		}
		b = idom[b]
	}
	return false
}
