package log

import (
	"context"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	utilexec "k8s.io/utils/exec"
)

// NewLoggingExec wraps an exec.Interface so that every command run through
// it is logged at debug level with its exit status and duration.
func NewLoggingExec(exec utilexec.Interface, logger kitlog.Logger) utilexec.Interface {
	return &loggingExec{
		Interface: exec,
		logger:    kitlog.With(logger, "api", "exec"),
	}
}

type loggingExec struct {
	utilexec.Interface
	logger kitlog.Logger
}

func (e *loggingExec) Command(cmd string, args ...string) utilexec.Cmd {
	return &loggingCmd{Cmd: e.Interface.Command(cmd, args...), argv: append([]string{cmd}, args...), logger: e.logger}
}

func (e *loggingExec) CommandContext(ctx context.Context, cmd string, args ...string) utilexec.Cmd {
	return &loggingCmd{Cmd: e.Interface.CommandContext(ctx, cmd, args...), argv: append([]string{cmd}, args...), logger: e.logger}
}

type loggingCmd struct {
	utilexec.Cmd
	argv   []string
	logger kitlog.Logger
}

func (c *loggingCmd) Run() (err error) {
	defer func(begin time.Time) {
		c.logger.Log(
			"msg", "ran command",
			"cmd", strings.Join(c.argv, " "),
			"status", ExitStatus(err),
			"took", time.Since(begin),
			"v", 2,
			"err", err,
		)
	}(time.Now())
	return c.Cmd.Run()
}

// ExitStatus maps the error of a finished command to its exit code.
// Errors that do not carry an exit status (e.g. a missing binary) map to -1.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(utilexec.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}
