package childtable

import "os"

// State is a slot's lifecycle stage (§3 Lifecycle).
type State int

const (
	// StateFree means the slot holds no live or unreaped child.
	StateFree State = iota
	// StateExecuting means exec has started a child and it has not yet
	// been reported by the signal reaper.
	StateExecuting
	// StateExited means signalfd reported the child's termination but its
	// output pipe has not finished draining.
	StateExited
)

// Slot is one of the 127 fixed child-process records (§3 ChildSlot).
// Environment entries persist across executions of the same slot until
// overwritten; Env is never reset on reap.
type Slot struct {
	State State
	Pid   int
	OutFD *os.File
	Argv  []string
	Env   *EnvStore
}

func newSlot() *Slot {
	return &Slot{State: StateFree, Env: NewEnvStore()}
}

// Free reports whether the slot can accept a new exec.
func (s *Slot) Free() bool { return s.State == StateFree }
