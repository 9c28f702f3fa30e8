// Package debugger owns the interactive perl -d subprocess. It multiplexes
// logical command requests onto the child's stdin/stderr pair, framing
// replies on the debugger's ready prompt, and turns prompt transitions into
// stopped/continued/terminated events. The debugger has no request ids:
// correlation comes only from prompt boundaries, so at most one command may
// ever be in flight.
package debugger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// promptRe marks the end of a debugger reply. The trailing space matters:
// the debugger prints it after the prompt counter.
var promptRe = regexp.MustCompile(`DB<\d+>\s$`)

// ErrClosed is returned for commands issued after the child exited.
var ErrClosed = errors.New("debugger process closed")

// SpawnOptions describe the debuggee.
type SpawnOptions struct {
	Program string
	Args    []string
	Cwd     string
	Env     map[string]string
}

// Events receives driver notifications. Output and Terminated run on the
// driver's own goroutines; Stopped, Continued and Paused run on the goroutine
// that issued the command, Stopped and Continued with the command mutex held.
// Callbacks must not issue debugger commands.
type Events struct {
	Stopped    func(reason string)
	Continued  func()
	Paused     func()
	Terminated func(exitCode int)
	Output     func(text string)
}

// Driver drives one perl -d child. Every public operation is single-flight:
// the command mutex chains operations behind each other, and the FIFO of
// prompt waiters resolves replies in issue order.
type Driver struct {
	log    *slog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events Events

	cmdMu sync.Mutex

	waiterMu sync.Mutex
	waiters  []chan string

	closed    chan struct{}
	closeOnce sync.Once
	exitCode  int
}

// Spawn starts perl -d on the program, detached into its own process group
// so that pause can signal the whole tree.
func Spawn(opts SpawnOptions, events Events, log *slog.Logger) (*Driver, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.Program) == "" {
		return nil, errors.New("no program specified")
	}

	argv := append([]string{"-d", opts.Program}, opts.Args...)
	cmd := exec.Command("perl", argv...)
	cmd.Dir = opts.Cwd
	cmd.Env = os.Environ()
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn perl -d: %w", err)
	}

	d := &Driver{
		log:    log,
		cmd:    cmd,
		stdin:  stdin,
		events: events,
		closed: make(chan struct{}),
	}
	go d.readDebugger(stderr)
	go d.readProgram(stdout)
	go d.reap()
	return d, nil
}

// Pid returns the child's process id.
func (d *Driver) Pid() int {
	return d.cmd.Process.Pid
}

// readDebugger frames stderr into replies. Whenever the accumulated buffer
// ends with a ready prompt, the front waiter resolves with everything
// before the prompt. A prompt with no waiter is the child announcing
// readiness on its own (startup greeting) and is dropped.
func (d *Driver) readDebugger(r io.Reader) {
	reader := bufio.NewReader(r)
	var buf strings.Builder
	chunk := make([]byte, 4096)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if promptRe.MatchString(buf.String()) {
				reply := stripPrompt(buf.String())
				buf.Reset()
				d.resolve(reply)
			}
		}
		if err != nil {
			return
		}
	}
}

func stripPrompt(text string) string {
	loc := promptRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	reply := text[:loc[0]]
	// Drop the line remainder the prompt sat on.
	if idx := strings.LastIndex(reply, "\n"); idx >= 0 && strings.TrimSpace(reply[idx:]) == "" {
		reply = reply[:idx]
	}
	return reply
}

func (d *Driver) resolve(reply string) {
	d.waiterMu.Lock()
	if len(d.waiters) == 0 {
		d.waiterMu.Unlock()
		d.log.Debug("unsolicited debugger prompt", "reply", reply)
		return
	}
	waiter := d.waiters[0]
	d.waiters = d.waiters[1:]
	d.waiterMu.Unlock()
	waiter <- reply
}

func (d *Driver) readProgram(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if d.events.Output != nil {
			d.events.Output(scanner.Text() + "\n")
		}
	}
}

func (d *Driver) reap() {
	err := d.cmd.Wait()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	d.closeOnce.Do(func() {
		d.exitCode = code
		close(d.closed)
	})
	if d.events.Terminated != nil {
		d.events.Terminated(code)
	}
}

// send issues one command and waits for the next prompt. The command mutex
// makes concurrent callers take turns; the waiter FIFO guarantees the i-th
// prompt resolves the i-th command.
func (d *Driver) send(command string) (string, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	return d.sendLocked(command)
}

func (d *Driver) sendLocked(command string) (string, error) {
	select {
	case <-d.closed:
		return "", ErrClosed
	default:
	}

	waiter := make(chan string, 1)
	d.waiterMu.Lock()
	d.waiters = append(d.waiters, waiter)
	d.waiterMu.Unlock()

	if _, err := io.WriteString(d.stdin, command+"\n"); err != nil {
		d.waiterMu.Lock()
		for i, w := range d.waiters {
			if w == waiter {
				d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
				break
			}
		}
		d.waiterMu.Unlock()
		return "", err
	}

	select {
	case reply := <-waiter:
		return reply, nil
	case <-d.closed:
		return "", ErrClosed
	}
}

// move runs a movement command, bracketing it with continued/stopped
// events as observed from the prompt transition.
func (d *Driver) move(command, stopReason string, announceContinue bool) (string, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	if announceContinue && d.events.Continued != nil {
		d.events.Continued()
	}
	reply, err := d.sendLocked(command)
	if err != nil {
		return reply, err
	}
	if d.events.Stopped != nil {
		d.events.Stopped(stopReason)
	}
	return reply, nil
}

// AutoFlushStdOut forces unbuffered program output so stdout interleaves
// correctly with debugger state.
func (d *Driver) AutoFlushStdOut() error {
	_, err := d.send("$| = 1;")
	return err
}

// SetTTY redirects the debuggee terminal.
func (d *Driver) SetTTY(path string) error {
	_, err := d.send("o TTY=" + path)
	return err
}

// Trace captures the current stack trace, unparsed.
func (d *Driver) Trace() (string, error) {
	return d.send("T")
}

// SetBreakpoint arms a line breakpoint and returns the raw reply; callers
// test it for "not breakable".
func (d *Driver) SetBreakpoint(file string, line int, condition string) (string, error) {
	command := "b " + file + ":" + strconv.Itoa(line)
	if condition != "" {
		command += " " + condition
	}
	return d.send(command)
}

// DeleteBreakpoints clears the given lines, in order, as one serialized
// exchange per line.
func (d *Driver) DeleteBreakpoints(lines []int) error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	for _, line := range lines {
		if _, err := d.sendLocked("B " + strconv.Itoa(line)); err != nil {
			return err
		}
	}
	return nil
}

// Continue resumes until the next breakpoint.
func (d *Driver) Continue() (string, error) {
	return d.move("c", "breakpoint", true)
}

// ContinueSilently resumes without emitting continued/stopped events. The
// stop-on-entry heuristic uses it so the client never sees the implicit
// resume.
func (d *Driver) ContinueSilently() (string, error) {
	return d.send("c")
}

// Next steps over the current line.
func (d *Driver) Next() (string, error) {
	return d.move("n", "step", false)
}

// SingleStep steps into the current line.
func (d *Driver) SingleStep() (string, error) {
	return d.move("s", "step", false)
}

// StepOut runs until the current subroutine returns.
func (d *Driver) StepOut() (string, error) {
	return d.move("o", "step", false)
}

// Restart reruns the program from the beginning.
func (d *Driver) Restart() (string, error) {
	return d.move("R", "entry", true)
}

// LocalScopedVariables dumps lexicals in the current scope.
func (d *Driver) LocalScopedVariables() (string, error) {
	return d.send("y")
}

// GlobalScopedVariables dumps package globals.
func (d *Driver) GlobalScopedVariables() (string, error) {
	return d.send("V")
}

// Evaluate examines an expression. Hashes are auto-dereferenced so that the
// x dump renders their contents.
func (d *Driver) Evaluate(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "%") {
		expr = `\%` + expr[1:]
	}
	return d.send("x " + expr)
}

// Pause interrupts the debuggee with SIGINT aimed at the process group,
// falling back to the direct child when group signalling fails.
func (d *Driver) Pause() error {
	pid := d.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGINT); err != nil {
		if err := d.cmd.Process.Signal(os.Interrupt); err != nil {
			return err
		}
	}
	if d.events.Paused != nil {
		d.events.Paused()
	}
	return nil
}

// Kill tears the child down.
func (d *Driver) Kill() error {
	_ = syscall.Kill(-d.cmd.Process.Pid, syscall.SIGKILL)
	return d.cmd.Process.Kill()
}
