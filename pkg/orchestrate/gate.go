package orchestrate

import "sync"

// Op identifies one of the workflows serialized by the busy gate.
type Op string

const (
	OpRecognition     Op = "recognition"
	OpAutoLabelBatch  Op = "autoLabelBatch"
	OpSingleAutoLabel Op = "singleAutoLabel"
)

// Gate is the single-slot gate serializing batch workflows against each other
// and against manual per-asset operations. A workflow refuses to start while
// any operation holds the slot; there is no queuing, the caller must retry.
type Gate struct {
	mu      sync.Mutex
	running map[Op]bool
}

// NewGate returns an idle gate.
func NewGate() *Gate {
	return &Gate{running: make(map[Op]bool)}
}

// TryStart claims the slot for op. It returns false without blocking when any
// operation is already running.
func (g *Gate) TryStart(op Op) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, active := range g.running {
		if active {
			return false
		}
	}
	g.running[op] = true
	return true
}

// Finish releases the slot held by op.
func (g *Gate) Finish(op Op) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running[op] = false
}

// Running reports whether op currently holds the slot.
func (g *Gate) Running(op Op) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[op]
}

// Busy reports whether any operation holds the slot.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, active := range g.running {
		if active {
			return true
		}
	}
	return false
}

// ShouldWarnOnLeave reports whether the caller should warn before navigating
// away: leaving mid-batch risks stale in-progress completions overwriting
// manual edits.
func (g *Gate) ShouldWarnOnLeave() bool {
	return g.Busy()
}
