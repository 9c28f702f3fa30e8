// Package dap adapts the Debug Adapter Protocol onto the perl -d driver:
// it maintains the breakpoint table, mints variable-reference handles, and
// maps prompt transitions to DAP events.
package dap

import (
	"sync"

	"github.com/ganezdragon/perl-language-server/pkg/debugger"
)

type handleKind int

const (
	handleLocals handleKind = iota
	handleGlobals
	handleNested
)

// variableHandle is the tagged variant behind a variablesReference: the
// Locals or Globals scope, or a nested container payload awaiting one more
// level of expansion.
type variableHandle struct {
	kind      handleKind
	valueKind debugger.ValueKind
	raw       string
}

// handleTable mints monotonically increasing reference ids. Handles are
// only valid while the debuggee is stopped: invalidate forgets the live
// set without rewinding the counter, so a stale id dereferences to
// nothing.
type handleTable struct {
	mu   sync.Mutex
	next int
	live map[int]variableHandle
}

func newHandleTable() *handleTable {
	return &handleTable{live: make(map[int]variableHandle)}
}

func (t *handleTable) mint(h variableHandle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.live[t.next] = h
	return t.next
}

func (t *handleTable) get(ref int) (variableHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.live[ref]
	return h, ok
}

func (t *handleTable) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = make(map[int]variableHandle)
}
