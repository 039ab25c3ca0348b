// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package ir

// DemotePhi lowers a merge node in block to a stack slot: an Alloca in the
// entry frame, a Store of the incoming value before each predecessor's
// terminator, and a Load where the node used to be. Every use of the node is
// rewritten to the load, so value identity is preserved while the dependency
// on predecessor identity disappears.
//
// Self-referential edges produce no store: the slot then keeps its previous
// value, which is exactly the merge node's own semantics for such an edge.
// An incoming edge from a block terminated by an Invoke stores at the top of
// the invoke's normal destination instead, since the invoke's result does not
// exist before the terminator runs.
func DemotePhi(f *Function, block *Block, phi *Phi) *Load {
	slot := &Alloca{Elem: phi.Typ}
	entry := f.Entry()
	entry.InsertAt(0, slot)

	block.Remove(phi)

	for _, e := range phi.Edges {
		if e.Val == phi {
			continue
		}
		store := &Store{Val: e.Val, Addr: slot}
		if inv, ok := e.Pred.Term.(*Invoke); ok && inv == e.Val {
			dest := inv.Normal
			dest.InsertAt(dest.firstNonPhi(), store)
		} else {
			e.Pred.Append(store)
		}
	}

	load := &Load{X: slot, Typ: phi.Typ}
	// A store for an edge from this very block may have just landed at the
	// head insertion point; the load has to follow it.
	at := block.firstNonPhi()
	for at < len(block.Instrs) {
		if s, ok := block.Instrs[at].(*Store); ok && s.Addr == slot {
			at++
			continue
		}
		break
	}
	block.InsertAt(at, load)

	f.ReplaceUses(phi, load)
	return load
}
