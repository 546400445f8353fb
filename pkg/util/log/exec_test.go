package log

import (
	"bytes"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	utilexec "k8s.io/utils/exec"
	testingexec "k8s.io/utils/exec/testing"
)

func TestLoggingExec(t *testing.T) {
	fake := &testingexec.FakeExec{
		CommandScript: []testingexec.FakeCommandAction{
			func(cmd string, args ...string) utilexec.Cmd {
				return testingexec.InitFakeCmd(&testingexec.FakeCmd{
					RunScript: []testingexec.FakeAction{
						func() ([]byte, []byte, error) { return nil, nil, &testingexec.FakeExitError{Status: 3} },
					},
				}, cmd, args...)
			},
		},
	}

	var buf bytes.Buffer
	exec := NewLoggingExec(fake, NewTrailingNilFilter(NewLevelFilter(LevelDebug, newLogfmt(&buf))))
	err := exec.Command("/usr/bin/podman", "rm", "foo").Run()

	assert.Equal(t, 3, ExitStatus(err))
	assert.Contains(t, buf.String(), `cmd="/usr/bin/podman rm foo"`)
	assert.Contains(t, buf.String(), "status=3")
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, ExitStatus(nil))
	assert.Equal(t, 2, ExitStatus(&testingexec.FakeExitError{Status: 2}))
	assert.Equal(t, -1, ExitStatus(assert.AnError))
}

func newLogfmt(buf *bytes.Buffer) kitlog.Logger {
	return kitlog.NewLogfmtLogger(buf)
}
