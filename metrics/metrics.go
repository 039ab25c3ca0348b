// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

// Package metrics measures the static complexity of ir functions. It is a
// read-only analysis: the same counters can be taken before and after a
// transform to quantify how much the control flow grew.
package metrics

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"mvdan.cc/flatten/ir"
)

// Counters are the three potency metrics of one or more functions.
type Counters struct {
	// Length counts every instruction plus its operands, with a branch's
	// destination labels counting as operands.
	Length uint64

	// Cyclomatic approximates McCabe complexity: one per conditional
	// branch, one per switch case, one per return, one per natural loop,
	// and two per function.
	Cyclomatic uint64

	// Nesting accumulates loop depth beyond the first level, conditional
	// nesting outside loops, and the cyclomatic count.
	Nesting uint64
}

// Add accumulates o into c, so per-function counters can be folded into a
// whole-program total.
func (c *Counters) Add(o Counters) {
	c.Length += o.Length
	c.Cyclomatic += o.Cyclomatic
	c.Nesting += o.Nesting
}

// Analyze computes the counters of fn using its loop tree. Declarations
// count as zero.
func Analyze(fn *ir.Function, li *ir.LoopInfo) Counters {
	var c Counters
	if fn.IsDeclaration() {
		return c
	}

	seen := make(map[*ir.Loop]bool)
	var rands []*ir.Value
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			rands = instr.Operands(rands[:0])
			c.Length += uint64(1 + len(rands))
		}
		rands = b.Term.Operands(rands[:0])
		c.Length += uint64(1 + len(rands) + len(b.Term.Successors()))

		switch term := b.Term.(type) {
		case *ir.If:
			c.Cyclomatic++
		case *ir.Switch:
			c.Cyclomatic += uint64(len(term.Cases))
		case *ir.Return:
			c.Cyclomatic++
		}

		// Each distinct loop counts once, no matter how many of its blocks
		// we walk through.
		if loop := li.LoopFor(b); loop != nil && !seen[loop] {
			seen[loop] = true
			c.Cyclomatic++
			c.Nesting += uint64(loop.Depth() - 1)
		}
	}

	if nest := entryNest(fn, li); nest > 0 {
		c.Nesting += uint64(nest - 1)
	}
	c.Cyclomatic += 2
	c.Nesting += c.Cyclomatic
	return c
}

// entryNest takes the maximum conditional nesting over the acyclic region
// reachable from the entry without entering a loop. Blocks inside a loop are
// pruned, not descended into. The walk is an explicit stack with per-block
// memoization, so deep functions cannot exhaust the goroutine stack; a block
// revisited while still on the stack contributes zero.
func entryNest(fn *ir.Function, li *ir.LoopInfo) int {
	const inProgress = -1
	memo := make(map[*ir.Block]int)

	type frame struct {
		b    *ir.Block
		succ []*ir.Block
		next int
		nest int
	}
	var stack []frame

	push := func(b *ir.Block) bool {
		if _, ok := memo[b]; ok {
			return false
		}
		if li.LoopFor(b) != nil {
			memo[b] = 0
			return false
		}
		memo[b] = inProgress
		nest := 0
		if isConditional(b.Term) {
			nest = 1
		}
		stack = append(stack, frame{b: b, succ: b.Term.Successors(), nest: nest})
		return true
	}

	entry := fn.Entry()
	push(entry)
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next < len(f.succ) {
			s := f.succ[f.next]
			f.next++
			if !push(s) {
				if n := memo[s]; n != inProgress && n > f.nest {
					f.nest = n
				}
			}
			continue
		}
		memo[f.b] = f.nest
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := &stack[len(stack)-1]
			if f.nest > parent.nest {
				parent.nest = f.nest
			}
		}
	}
	return memo[entry]
}

func isConditional(term ir.Terminator) bool {
	switch term.(type) {
	case *ir.If, *ir.Switch:
		return true
	}
	return false
}

// Reporter writes counters to a configurable sink. The zero value writes to
// standard error.
type Reporter struct {
	// Output is the destination file path. Empty means standard error.
	Output string

	// Truncate replaces the output file instead of appending to it.
	Truncate bool

	// Format is the line template, applied to the counters in the order
	// length, cyclomatic, nesting. Empty means "%d %d %d\n".
	Format string
}

// Report formats and emits c. Failures to reach the sink are returned to the
// caller's diagnostic handling; they never affect the analyzed function.
func (r *Reporter) Report(c Counters) error {
	format := r.Format
	if format == "" {
		format = "%d %d %d\n"
	}
	if r.Output == "" {
		_, err := fmt.Fprintf(os.Stderr, format, c.Length, c.Cyclomatic, c.Nesting)
		return err
	}

	// Appending hosts may run in parallel over one shared output file, so
	// serialize writers through a sidecar lock.
	lock := flock.New(r.Output + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("cannot lock metrics output: %w", err)
	}
	defer lock.Unlock()

	flags := os.O_WRONLY | os.O_CREATE
	if r.Truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(r.Output, flags, 0o666)
	if err != nil {
		return fmt.Errorf("cannot open metrics output: %w", err)
	}
	if _, err := fmt.Fprintf(f, format, c.Length, c.Cyclomatic, c.Nesting); err != nil {
		f.Close()
		return fmt.Errorf("cannot write metrics output: %w", err)
	}
	return f.Close()
}
