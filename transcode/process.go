package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
)

const stderrTailSize = 4096

// Process is a long-running decoder or player subprocess.
//
// Stop may be called any number of times, from any goroutine, and always
// leaves the subprocess reaped.
type Process struct {
	cmd         Commander
	stdout      *os.File
	stdin       *os.File
	stderrBuf   *BoundedBuffer
	stopTimeout time.Duration
	logger      logging.Logger

	mu     sync.Mutex
	paused bool

	done    chan struct{}
	waitErr error

	stopOnce    sync.Once
	stopContext func() bool
}

// ProcessOptions contains options for starting a subprocess
type ProcessOptions struct {
	Path        string
	Args        []string
	Stdout      bool            // Capture stdout for Read
	Stdin       bool            // Open stdin for Write
	Debug       bool            // Pass stderr through instead of keeping a tail of it
	StopTimeout time.Duration   // Grace period after terminate before kill
	Executor    CommandExecutor // Optional: custom command executor
	Logger      logging.Logger  // Optional: defaults to the global logger
}

// ProcessError is an exit error with the tail of the subprocess stderr
type ProcessError struct {
	Err    error
	Stderr string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.TrimSpace(e.Stderr))
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// BoundedBuffer is a thread-safe buffer that keeps the last size bytes written
type BoundedBuffer struct {
	data []byte
	size int
	mu   sync.Mutex
}

// NewBoundedBuffer creates a new bounded buffer with the specified size
func NewBoundedBuffer(size int) *BoundedBuffer {
	return &BoundedBuffer{
		data: make([]byte, 0, size),
		size: size,
	}
}

// Write implements io.Writer
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) >= b.size {
		b.data = append(b.data[:0], p[len(p)-b.size:]...)
		return len(p), nil
	}

	if len(b.data)+len(p) > b.size {
		b.data = b.data[len(b.data)+len(p)-b.size:]
	}

	b.data = append(b.data, p...)
	return len(p), nil
}

// String returns the buffer contents as a string
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Start launches a subprocess. Cancelling ctx stops it.
func Start(ctx context.Context, opts *ProcessOptions) (*Process, error) {
	if opts.Path == "" {
		return nil, errdefs.Configuration("transcode.Start", "executable path not specified", nil)
	}

	executor := opts.Executor
	if executor == nil {
		executor = DefaultExecutor
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultDecoderConfig().StopTimeout
	}

	cmd := executor.Command(opts.Path, opts.Args...)
	setupProcessGroup(cmd)

	proc := &Process{
		cmd:         cmd,
		stopTimeout: stopTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}

	if opts.Debug {
		cmd.SetStderr(os.Stderr)
	} else {
		proc.stderrBuf = NewBoundedBuffer(stderrTailSize)
		cmd.SetStderr(proc.stderrBuf)
	}

	// child ends of the pipes, closed in the parent once the child holds them
	var childEnds []*os.File
	closeAll := func() {
		for _, f := range childEnds {
			f.Close()
		}
		if proc.stdout != nil {
			proc.stdout.Close()
		}
		if proc.stdin != nil {
			proc.stdin.Close()
		}
	}

	if opts.Stdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, errdefs.Resource("transcode.Start", "failed to create stdout pipe", err)
		}
		proc.stdout = r
		childEnds = append(childEnds, w)
		cmd.SetStdout(w)
	}

	if opts.Stdin {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, errdefs.Resource("transcode.Start", "failed to create stdin pipe", err)
		}
		proc.stdin = w
		childEnds = append(childEnds, r)
		cmd.SetStdin(r)
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, errdefs.Resource("transcode.Start", "failed to launch "+opts.Path, err)
	}

	for _, f := range childEnds {
		f.Close()
	}

	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.done)
	}()

	proc.stopContext = context.AfterFunc(ctx, proc.Stop)

	logger.Debug("Subprocess started", logging.Fields{
		"path": opts.Path,
		"pid":  proc.Pid(),
	})

	return proc, nil
}

// Pid returns the subprocess id, or 0 if unknown.
func (p *Process) Pid() int {
	if proc := p.cmd.Process(); proc != nil {
		return proc.Pid
	}
	return 0
}

// Read reads raw output from the subprocess stdout. It returns io.EOF once
// the subprocess has exited and all buffered output has been consumed, or
// after Stop.
func (p *Process) Read(b []byte) (int, error) {
	if p.stdout == nil {
		return 0, io.EOF
	}
	n, err := p.stdout.Read(b)
	if errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return n, err
}

// Write writes to the subprocess stdin.
func (p *Process) Write(b []byte) (int, error) {
	if p.stdin == nil {
		return 0, errdefs.Resource("transcode.Write", "stdin not attached", nil)
	}
	return p.stdin.Write(b)
}

// Done is closed when the subprocess has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitError reports how the subprocess ended. It is nil while the process is
// running, after a clean exit, and after Stop.
func (p *Process) ExitError() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.waitErr == nil || p.stopRequested() {
		return nil
	}
	pe := &ProcessError{Err: p.waitErr}
	if p.stderrBuf != nil {
		pe.Stderr = p.stderrBuf.String()
	}
	return pe
}

func (p *Process) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopContext == nil
}

// Pause suspends the subprocess. Output stops until Resume.
func (p *Process) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused || p.exited() {
		return nil
	}
	if err := pauseProcess(p.cmd.Process()); err != nil {
		return errdefs.Resource("transcode.Pause", "failed to suspend subprocess", err)
	}
	p.paused = true
	return nil
}

// Resume continues a paused subprocess.
func (p *Process) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused || p.exited() {
		return nil
	}
	if err := resumeProcess(p.cmd.Process()); err != nil {
		return errdefs.Resource("transcode.Resume", "failed to resume subprocess", err)
	}
	p.paused = false
	return nil
}

// Paused reports whether the subprocess is suspended.
func (p *Process) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop requests termination, waits up to the stop timeout, then kills the
// process group and reaps it. Concurrent callers block until teardown is done.
func (p *Process) Stop() {
	p.stopOnce.Do(p.stop)
}

func (p *Process) stop() {
	p.mu.Lock()
	if p.stopContext != nil {
		p.stopContext()
		p.stopContext = nil
	}
	paused := p.paused
	p.paused = false
	p.mu.Unlock()

	if p.stdin != nil {
		p.stdin.Close()
	}

	if proc := p.cmd.Process(); proc != nil && !p.exited() {
		// a stopped process would never act on SIGTERM
		if paused {
			_ = resumeProcess(proc)
		}
		if err := terminateProcess(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Debug("Terminate signal failed", logging.Fields{"error": err.Error()})
		}

		select {
		case <-p.done:
		case <-time.After(p.stopTimeout):
			p.logger.Warn("Subprocess did not exit in time, killing process group", logging.Fields{
				"pid":     proc.Pid,
				"timeout": p.stopTimeout.String(),
			})
			if err := killProcessGroup(proc); err != nil {
				p.logger.Error(err, "Failed to kill process group", logging.Fields{"pid": proc.Pid})
				_ = proc.Kill()
			}
			<-p.done
		}
	}

	if p.stdout != nil {
		p.stdout.Close()
	}

	p.logger.Debug("Subprocess stopped", logging.Fields{"pid": p.Pid()})
}
