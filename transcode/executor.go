package transcode

import (
	"io"
	"os"
	"os/exec"
	"syscall"
)

// CommandExecutor abstracts the creation of commands
type CommandExecutor interface {
	// Command creates a new command instance
	Command(name string, args ...string) Commander
}

// Commander abstracts the exec.Cmd functionality. Streams are attached as
// plain readers and writers rather than pipes: when given an *os.File, exec
// hands the descriptor to the child directly and Wait never closes the
// parent's read end.
type Commander interface {
	// Start starts the command but doesn't wait for it to complete
	Start() error

	// Wait waits for the command to exit and returns any error
	Wait() error

	SetStdin(r io.Reader)
	SetStdout(w io.Writer)
	SetStderr(w io.Writer)

	// SetSysProcAttr sets the process attributes
	SetSysProcAttr(attr *syscall.SysProcAttr)

	// Process returns the underlying process info if available
	Process() *os.Process
}

// DefaultCommandExecutor uses the real exec.Command
type DefaultCommandExecutor struct{}

// Command creates a real exec.Cmd
func (e *DefaultCommandExecutor) Command(name string, args ...string) Commander {
	return &DefaultCommander{
		cmd: exec.Command(name, args...),
	}
}

// DefaultCommander wraps a real exec.Cmd
type DefaultCommander struct {
	cmd *exec.Cmd
}

func (c *DefaultCommander) Start() error {
	return c.cmd.Start()
}

func (c *DefaultCommander) Wait() error {
	return c.cmd.Wait()
}

func (c *DefaultCommander) SetStdin(r io.Reader) {
	c.cmd.Stdin = r
}

func (c *DefaultCommander) SetStdout(w io.Writer) {
	c.cmd.Stdout = w
}

// SetStderr attaches w to stderr. A nil writer sends it to the null device.
func (c *DefaultCommander) SetStderr(w io.Writer) {
	c.cmd.Stderr = w
}

func (c *DefaultCommander) SetSysProcAttr(attr *syscall.SysProcAttr) {
	c.cmd.SysProcAttr = attr
}

func (c *DefaultCommander) Process() *os.Process {
	return c.cmd.Process
}

// DefaultExecutor is the standard command executor
var DefaultExecutor CommandExecutor = &DefaultCommandExecutor{}
