// Package childtable implements the fixed 127-slot child process table:
// per-slot env stores, argv validation, and the pid-to-slot index used by
// the signal reaper (§3, §4.D, §4.G).
package childtable

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/ossexec/ltxd/internal/constants"
)

// ErrSlotRange is returned for a slot id outside [0, MaxSlots) — fatal.
var ErrSlotRange = errors.New("childtable: slot id out of range")

// ErrSlotBusy is returned when exec targets a slot that already has a live
// or unreaped child — fatal, since the controller owns slot lifecycle and
// should not reuse a slot prematurely.
var ErrSlotBusy = errors.New("childtable: slot busy")

// ErrArgvOverflow is returned when an argv list would exceed the per-slot
// scratch budget used to bound memory per §3 ("args: contiguous scratch").
var ErrArgvOverflow = errors.New("childtable: argv exceeds scratch budget")

// Table is the fixed 127-slot child process table plus its pid index
// (§3 ChildSlot, GlobalPidIndex).
type Table struct {
	slots     [constants.MaxSlots]*Slot
	pidBySlot [constants.MaxSlots]int
}

// New allocates a table with all slots free.
func New() *Table {
	t := &Table{}
	for i := range t.slots {
		t.slots[i] = newSlot()
	}
	return t
}

// Slot returns slot id's record, validating range.
func (t *Table) Slot(id uint8) (*Slot, error) {
	if int(id) >= constants.MaxSlots {
		return nil, fmt.Errorf("%w: %d", ErrSlotRange, id)
	}
	return t.slots[id], nil
}

// argvBudget sums the NUL-terminated scratch size an argv list would occupy,
// mirroring the ARG_MAX/2-bounded "args" arena of §3.
func argvBudget(argv []string) int {
	total := 0
	for _, a := range argv {
		total += len(a) + 1
	}
	return total
}

// Exec validates argv, starts the child with its stdout and stderr dup'd
// onto one pipe, and records its pid. The child's environment is the
// process-wide environment (mutated by nil-slot env messages, inherited
// automatically) overlaid with the slot's own env store (§4.D).
//
// Process creation goes through os/exec rather than a hand-rolled
// fork()+execve(): Go's goroutine-multiplexed runtime makes a bare fork
// between fork and exec unsafe, and os/exec already performs the
// pipe/dup2/execve sequence the spec describes.
func (t *Table) Exec(id uint8, argv []string) (*exec.Cmd, *os.File, error) {
	slot, err := t.Slot(id)
	if err != nil {
		return nil, nil, err
	}
	if !slot.Free() {
		return nil, nil, fmt.Errorf("%w: slot %d", ErrSlotBusy, id)
	}
	if len(argv) == 0 {
		return nil, nil, fmt.Errorf("%w: slot %d has no argv[0]", ErrProtocolArgv, id)
	}
	if argvBudget(argv) > constants.ArgsStoreCap {
		return nil, nil, fmt.Errorf("%w: slot %d", ErrArgvOverflow, id)
	}

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), slot.Env.Entries()...)
	cmd.Stdout = writeEnd
	cmd.Stderr = writeEnd

	if err := cmd.Start(); err != nil {
		readEnd.Close()
		writeEnd.Close()
		return nil, nil, err
	}
	writeEnd.Close()

	slot.State = StateExecuting
	slot.Pid = cmd.Process.Pid
	slot.OutFD = readEnd
	slot.Argv = argv
	t.pidBySlot[id] = cmd.Process.Pid

	return cmd, readEnd, nil
}

// ErrProtocolArgv marks an argv that cannot be executed (empty argv[0]).
var ErrProtocolArgv = errors.New("childtable: invalid argv")

// Kill sends SIGKILL to slot id's live child. A slot with no live pid is a
// no-op (§8 scenario 6: kill on a non-existent child does not terminate the
// agent). The caller is responsible for tolerating ESRCH from the
// underlying syscall per §7 class 2.
func (t *Table) Kill(id uint8) error {
	slot, err := t.Slot(id)
	if err != nil {
		return err
	}
	if slot.Pid == 0 {
		return nil
	}
	proc, err := os.FindProcess(slot.Pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// Reap looks up the slot owning pid via a linear scan of the pid index
// (§4.G), clears the slot's and the index's pid, and marks the slot exited,
// or free if its output pipe has already been released.
// A pid not found in the table is the caller's responsibility to treat as
// fatal (stray fork or reaping-order bug).
func (t *Table) Reap(pid int) (id uint8, slot *Slot, ok bool) {
	for i := 0; i < constants.MaxSlots; i++ {
		if t.pidBySlot[i] == pid && pid != 0 {
			t.pidBySlot[i] = 0
			t.slots[i].Pid = 0
			if t.slots[i].OutFD == nil {
				t.slots[i].State = StateFree
			} else {
				t.slots[i].State = StateExited
			}
			return uint8(i), t.slots[i], true
		}
	}
	return 0, nil, false
}

// Release returns a slot to the free state once its output pipe has
// finished draining and been closed (§3 Lifecycle).
func (t *Table) Release(id uint8) error {
	slot, err := t.Slot(id)
	if err != nil {
		return err
	}
	slot.State = StateFree
	slot.OutFD = nil
	slot.Argv = nil
	return nil
}
