// Package ltx implements the LTX test-executor agent: a Linux-only process
// that speaks a framed MessagePack-subset protocol over stdin/stdout to run
// and supervise child test processes on a controller's behalf (spec §1–9).
package ltx

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ossexec/ltxd/internal/childtable"
	"github.com/ossexec/ltxd/internal/dispatcher"
	"github.com/ossexec/ltxd/internal/interfaces"
	"github.com/ossexec/ltxd/internal/logging"
	"github.com/ossexec/ltxd/internal/protocol"
	"github.com/ossexec/ltxd/internal/wire"
)

// Options configures an Agent. In/Out/Diag default to the process's own
// stdin/stdout/stderr; overriding them is how tests drive the dispatcher
// against in-memory pipes instead of real fds (§A.3).
type Options struct {
	In, Out, Diag *os.File

	Clock    Clock
	Logger   *logging.Logger
	Observer Observer

	// Verbose gates the debug-level backtrace ltx appends to fatal
	// diagnostics (supplemented feature D.3).
	Verbose bool
}

// Agent owns the dispatcher loop and its supporting tables for one run of
// the executor. Construct with New and call Run once.
type Agent struct {
	opts    Options
	table   *childtable.Table
	metrics *Metrics
	logger  *logging.Logger
	loop    *dispatcher.Loop
}

// New builds an Agent from opts, filling in defaults: fd 0/1/2, a
// monotonic clock, a stderr logger, and a metrics-backed observer.
func New(opts Options) (*Agent, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Diag == nil {
		opts.Diag = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	if opts.Logger == nil {
		level := logging.LevelInfo
		if opts.Verbose {
			level = logging.LevelDebug
		}
		opts.Logger = logging.NewLogger(&logging.Config{Level: level, Output: opts.Diag})
	}

	metrics := NewMetrics()
	if opts.Observer == nil {
		opts.Observer = NewMetricsObserver(metrics)
	}

	a := &Agent{
		opts:    opts,
		table:   childtable.New(),
		metrics: metrics,
		logger:  opts.Logger,
	}

	loop, err := dispatcher.New(dispatcher.Options{
		In:       opts.In,
		Out:      opts.Out,
		Diag:     opts.Diag,
		Table:    a.table,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		Observer: opts.Observer,
		Verbose:  opts.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("ltx: %w", err)
	}
	a.loop = loop

	return a, nil
}

// Run drives the dispatcher loop to completion, returning the process exit
// code per §7 (0 on clean stdin EOF, 1 on any fatal error). Fatal errors are
// also reported through fatal before Run returns, matching the original's
// "log then exit" behavior.
func (a *Agent) Run() int {
	defer a.loop.Close()

	code, err := a.loop.Run()
	if err != nil {
		a.fatal(err)
		return 1
	}
	a.metrics.Stop()
	return code
}

// Metrics returns a snapshot of the agent's operational counters.
func (a *Agent) Metrics() MetricsSnapshot {
	return a.metrics.Snapshot()
}

// fatal implements §7 class 3 and supplemented features D.1/D.3: the error
// is logged to the diagnostic fd tagged with the file:line two frames up
// from fatal (the code that called Run, when fatal is reached from Run),
// and — since the agent
// never forks away from its own pid (it IS the child-spawning process, not
// a forked worker) — a framed log message is also written directly to
// opts.Out before exit, matching ltx.c's ltx_log behavior of telling the
// controller why it is about to disappear before the process is gone.
func (a *Agent) fatal(err error) {
	_, file, line, ok := runtime.Caller(2)
	loc := "unknown"
	if ok {
		loc = fmt.Sprintf("%s:%d", file, line)
	}

	a.logger.Errorf("fatal: %v (%s)", err, loc)
	if a.opts.Verbose {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		a.logger.Debugf("stack:\n%s", buf[:n])
	}

	msg := fmt.Sprintf("ltx: fatal: %v (%s)", err, loc)
	fmt.Fprintln(a.opts.Diag, msg)

	frame := wire.NewBuffer(len(msg) + 32)
	protocol.WriteLog(frame, true, 0, a.opts.Clock.NowNS(), msg)
	// Best-effort: Run is already unwinding on a fatal error, so a failed
	// write here has nowhere left to go but the diagnostic fd.
	if _, werr := a.opts.Out.Write(frame.Start()); werr != nil {
		fmt.Fprintf(a.opts.Diag, "ltx: fatal log write failed: %v\n", werr)
	}
}

// Clock and Observer satisfy internal/interfaces.Clock/Observer structurally
// (same method sets), so Options.Clock/Observer pass straight into
// dispatcher.Options without an adapter — see internal/interfaces's package
// doc for why the dispatcher depends on its own narrower interfaces
// instead of importing this package directly.
var _ interfaces.Clock = Clock(nil)
var _ interfaces.Observer = Observer(nil)
