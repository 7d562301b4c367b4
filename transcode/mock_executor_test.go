package transcode

import (
	"io"
	"os"
	"syscall"

	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a mock implementation of CommandExecutor
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Command(name string, args ...string) Commander {
	called := m.Called(name, args)
	return called.Get(0).(Commander)
}

// MockCommander is a mock implementation of Commander
type MockCommander struct {
	mock.Mock
}

func (m *MockCommander) Start() error {
	return m.Called().Error(0)
}

func (m *MockCommander) Wait() error {
	return m.Called().Error(0)
}

func (m *MockCommander) SetStdin(r io.Reader) {
	m.Called(r)
}

func (m *MockCommander) SetStdout(w io.Writer) {
	m.Called(w)
}

func (m *MockCommander) SetStderr(w io.Writer) {
	m.Called(w)
}

func (m *MockCommander) SetSysProcAttr(attr *syscall.SysProcAttr) {
	m.Called(attr)
}

func (m *MockCommander) Process() *os.Process {
	if p := m.Called().Get(0); p != nil {
		return p.(*os.Process)
	}
	return nil
}
