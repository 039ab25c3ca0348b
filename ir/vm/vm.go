// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

// Package vm executes ir functions directly. It exists so tests can run a
// function before and after a transform on the same inputs and compare
// results, side effects, and propagated exceptions.
package vm

import (
	"fmt"

	"mvdan.cc/flatten/ir"
)

// HostFunc implements a call or invoke target. A non-nil error counts as a
// raised exception: a Call propagates it out of Run, an Invoke transfers
// control to its unwind block.
type HostFunc func(args []int64) (int64, error)

// Machine executes one function at a time. The zero value is usable; Host
// functions must be registered before any call or invoke runs.
type Machine struct {
	Host map[string]HostFunc

	// MaxSteps bounds the number of executed instructions, so a transform
	// bug that produces an endless dispatch loop fails the test instead of
	// hanging it. Zero means the default of 1 << 20.
	MaxSteps int
}

// cell is one alloca's storage.
type cell struct {
	slots []any
}

// addr is a runtime address: a cell plus a slot offset.
type addr struct {
	c   *cell
	off int
}

type state struct {
	m     *Machine
	env   map[ir.Value]any
	steps int

	// pending holds the raised exception between an invoke's unwind edge
	// and the landing pad that consumes it.
	pending error
}

// Run executes fn with the given arguments. The returned error is either a
// propagated exception (from a host function or a Resume) or an execution
// fault such as an exhausted step budget.
func (m *Machine) Run(fn *ir.Function, args ...int64) (int64, error) {
	if fn.IsDeclaration() {
		return 0, fmt.Errorf("vm: %s is a declaration", fn.Name)
	}
	if len(args) != len(fn.Params) {
		return 0, fmt.Errorf("vm: %s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	st := &state{m: m, env: make(map[ir.Value]any)}
	for i, p := range fn.Params {
		st.env[p] = args[i]
	}

	maxSteps := m.MaxSteps
	if maxSteps == 0 {
		maxSteps = 1 << 20
	}

	var prev *ir.Block
	block := fn.Entry()
	for {
		// Terminators count against the budget too, so that a cycle of
		// empty blocks cannot spin forever.
		if st.steps++; st.steps > maxSteps {
			return 0, fmt.Errorf("vm: step budget exceeded in %s", fn.Name)
		}
		if err := st.runPhis(block, prev); err != nil {
			return 0, err
		}
		for _, instr := range block.Instrs {
			if _, ok := instr.(*ir.Phi); ok {
				continue
			}
			if st.steps++; st.steps > maxSteps {
				return 0, fmt.Errorf("vm: step budget exceeded in %s", fn.Name)
			}
			if err := st.runInstr(instr); err != nil {
				return 0, err
			}
		}

		next, ret, err := st.runTerm(block)
		if err != nil || next == nil {
			return ret, err
		}
		prev, block = block, next
	}
}

// runPhis evaluates the block's merge nodes as a group: all incoming values
// are read before any node is assigned, matching simultaneous-assignment
// semantics.
func (st *state) runPhis(block, prev *ir.Block) error {
	var phis []*ir.Phi
	var vals []any
	for _, phi := range block.Phis() {
		found := false
		for _, e := range phi.Edges {
			if e.Pred != prev {
				continue
			}
			v, err := st.eval(e.Val)
			if err != nil {
				return err
			}
			phis = append(phis, phi)
			vals = append(vals, v)
			found = true
			break
		}
		if !found {
			return fmt.Errorf("vm: phi has no edge for predecessor b%d", prev.Index)
		}
	}
	for i, phi := range phis {
		st.env[phi] = vals[i]
	}
	return nil
}

func (st *state) runInstr(instr ir.Instruction) error {
	switch instr := instr.(type) {
	case *ir.Alloca:
		st.env[instr] = addr{c: &cell{slots: make([]any, instr.NumSlots())}}
	case *ir.IndexAddr:
		base, err := st.evalAddr(instr.X)
		if err != nil {
			return err
		}
		idx, err := st.evalInt(instr.Index)
		if err != nil {
			return err
		}
		if n := base.off + int(idx); n < 0 || n >= len(base.c.slots) {
			return fmt.Errorf("vm: index %d out of range for %d slots", n, len(base.c.slots))
		}
		st.env[instr] = addr{c: base.c, off: base.off + int(idx)}
	case *ir.Load:
		a, err := st.evalAddr(instr.X)
		if err != nil {
			return err
		}
		st.env[instr] = a.c.slots[a.off]
	case *ir.Store:
		a, err := st.evalAddr(instr.Addr)
		if err != nil {
			return err
		}
		v, err := st.eval(instr.Val)
		if err != nil {
			return err
		}
		a.c.slots[a.off] = v
	case *ir.BinOp:
		v, err := st.binop(instr)
		if err != nil {
			return err
		}
		st.env[instr] = v
	case *ir.Select:
		cond, err := st.evalBool(instr.Cond)
		if err != nil {
			return err
		}
		pick := instr.T
		if !cond {
			pick = instr.F
		}
		v, err := st.eval(pick)
		if err != nil {
			return err
		}
		st.env[instr] = v
	case *ir.Call:
		ret, err := st.call(instr.Fn, instr.Args)
		if err != nil {
			return err
		}
		st.env[instr] = ret
	case *ir.Pad:
		if st.pending == nil {
			return fmt.Errorf("vm: landing pad reached with no exception in flight")
		}
		st.env[instr] = st.pending
		st.pending = nil
	default:
		return fmt.Errorf("vm: unknown instruction %T", instr)
	}
	return nil
}

// runTerm executes the block's terminator. It returns the next block, or a
// nil block with the function result when execution finishes.
func (st *state) runTerm(block *ir.Block) (*ir.Block, int64, error) {
	switch term := block.Term.(type) {
	case *ir.Return:
		if term.Val == nil {
			return nil, 0, nil
		}
		v, err := st.evalInt(term.Val)
		return nil, v, err
	case *ir.Unreachable:
		return nil, 0, fmt.Errorf("vm: reached unreachable in b%d", block.Index)
	case *ir.Resume:
		v, err := st.eval(term.X)
		if err != nil {
			return nil, 0, err
		}
		token, ok := v.(error)
		if !ok {
			return nil, 0, fmt.Errorf("vm: resume of a non-token value %v", v)
		}
		return nil, 0, token
	case *ir.Jump:
		return term.Target, 0, nil
	case *ir.If:
		cond, err := st.evalBool(term.Cond)
		if err != nil {
			return nil, 0, err
		}
		if cond {
			return term.Then, 0, nil
		}
		return term.Else, 0, nil
	case *ir.Switch:
		x, err := st.evalInt(term.X)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range term.Cases {
			cv, err := st.evalInt(c.Val)
			if err != nil {
				return nil, 0, err
			}
			if cv == x {
				return c.Target, 0, nil
			}
		}
		return term.Default, 0, nil
	case *ir.IndirectBr:
		v, err := st.eval(term.Addr)
		if err != nil {
			return nil, 0, err
		}
		target, ok := v.(*ir.Block)
		if !ok {
			return nil, 0, fmt.Errorf("vm: indirectbr through a non-address value %v", v)
		}
		for _, dest := range term.Dests {
			if dest == target {
				return target, 0, nil
			}
		}
		return nil, 0, fmt.Errorf("vm: indirectbr to undeclared block b%d", target.Index)
	case *ir.Invoke:
		ret, err := st.call(term.Fn, term.Args)
		if err != nil {
			st.pending = err
			return term.Unwind, 0, nil
		}
		st.env[term] = ret
		return term.Normal, 0, nil
	default:
		return nil, 0, fmt.Errorf("vm: unknown terminator %T", block.Term)
	}
}

func (st *state) call(fn string, args []ir.Value) (int64, error) {
	host, ok := st.m.Host[fn]
	if !ok {
		return 0, fmt.Errorf("vm: no host function %q", fn)
	}
	vals := make([]int64, len(args))
	for i, a := range args {
		v, err := st.evalInt(a)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	return host(vals)
}

func (st *state) binop(b *ir.BinOp) (any, error) {
	x, err := st.evalInt(b.X)
	if err != nil {
		return nil, err
	}
	y, err := st.evalInt(b.Y)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case ir.Add:
		return x + y, nil
	case ir.Sub:
		return x - y, nil
	case ir.Mul:
		return x * y, nil
	case ir.Div:
		if y == 0 {
			return nil, fmt.Errorf("vm: division by zero")
		}
		return x / y, nil
	case ir.Xor:
		return x ^ y, nil
	case ir.Eq:
		return x == y, nil
	case ir.Ne:
		return x != y, nil
	case ir.Lt:
		return x < y, nil
	case ir.Le:
		return x <= y, nil
	case ir.Gt:
		return x > y, nil
	case ir.Ge:
		return x >= y, nil
	default:
		return nil, fmt.Errorf("vm: unknown operator %v", b.Op)
	}
}

// eval resolves a value to its runtime representation.
func (st *state) eval(v ir.Value) (any, error) {
	switch v := v.(type) {
	case *ir.Const:
		if v.Typ == ir.Bool {
			return v.Val != 0, nil
		}
		return v.Val, nil
	case *ir.BlockAddress:
		return v.Target, nil
	default:
		rv, ok := st.env[v]
		if !ok {
			return nil, fmt.Errorf("vm: use of an undefined value %T", v)
		}
		return rv, nil
	}
}

func (st *state) evalInt(v ir.Value) (int64, error) {
	rv, err := st.eval(v)
	if err != nil {
		return 0, err
	}
	i, ok := rv.(int64)
	if !ok {
		return 0, fmt.Errorf("vm: expected an integer, got %T", rv)
	}
	return i, nil
}

func (st *state) evalAddr(v ir.Value) (addr, error) {
	rv, err := st.eval(v)
	if err != nil {
		return addr{}, err
	}
	a, ok := rv.(addr)
	if !ok {
		return addr{}, fmt.Errorf("vm: expected an address, got %T", rv)
	}
	return a, nil
}

func (st *state) evalBool(v ir.Value) (bool, error) {
	rv, err := st.eval(v)
	if err != nil {
		return false, err
	}
	b, ok := rv.(bool)
	if !ok {
		return false, fmt.Errorf("vm: expected a boolean, got %T", rv)
	}
	return b, nil
}
