package container

import (
	"bytes"
	"os"
	"strings"

	"github.com/go-kit/log"
	utilexec "k8s.io/utils/exec"

	logutil "github.com/nuagenetworks/tripleo-config/pkg/util/log"
)

// Output is what a finished engine command left behind.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Client drives the engine CLI. The contract with the engine is exit codes
// and text output only.
type Client struct {
	// ShowDiff runs `diff` on a container before it is removed.
	ShowDiff bool

	engine Engine
	exec   utilexec.Interface
	logger log.Logger
}

func NewClient(engine Engine, exec utilexec.Interface, logger log.Logger) *Client {
	return &Client{
		engine: engine,
		exec:   exec,
		logger: log.With(logger, "engine", string(engine)),
	}
}

func (c *Client) Engine() Engine {
	return c.engine
}

func (c *Client) run(env []string, args ...string) Output {
	cmd := c.exec.Command(c.engine.Path(), args...)
	var stdout, stderr bytes.Buffer
	cmd.SetStdout(&stdout)
	cmd.SetStderr(&stderr)
	if env != nil {
		cmd.SetEnv(env)
	}
	err := cmd.Run()

	out := Output{
		ExitCode: logutil.ExitStatus(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if out.ExitCode < 0 && out.Stderr == "" {
		out.Stderr = err.Error()
	}
	return out
}

// ImageExists reports whether image is present in the local image store.
func (c *Client) ImageExists(image string) bool {
	return c.run(nil, "inspect", image).ExitCode == 0
}

func (c *Client) Pull(image string) Output {
	return c.run(nil, "pull", image)
}

// Run executes a `run` invocation built by an InvocationBuilder. env
// replaces the process environment of the CLI.
func (c *Client) Run(args []string, env []string) Output {
	return c.run(env, args...)
}

// Remove deletes the container called name. Failures are only logged, a
// missing container is not worth a line.
func (c *Client) Remove(name string) {
	if c.ShowDiff {
		out := c.run(nil, "diff", name)
		c.logger.Log(
			"msg", "diffing container",
			"name", name,
			"stdout", out.Stdout,
			"stderr", out.Stderr,
			"v", 2,
		)
	}

	c.logger.Log("msg", "removing container", "name", name, "v", 1)
	c.logRemoval(name, c.run(nil, "rm", name))

	if c.engine.LeaksStorage() {
		c.logRemoval(name, c.run(nil, "rm", "--storage", name))
	}
}

func (c *Client) logRemoval(name string, out Output) {
	stderr := out.Stderr
	if strings.Contains(strings.ToLower(stderr), "no such container") {
		stderr = ""
	}
	if out.Stdout == "" && stderr == "" {
		return
	}
	c.logger.Log(
		"msg", "removed container",
		"name", name,
		"status", out.ExitCode,
		"stdout", strings.TrimSpace(out.Stdout),
		"stderr", strings.TrimSpace(stderr),
		"v", 2,
	)
}

// ShortHostname mirrors `hostname -s`, which is what the deployed servers
// are known by.
func (c *Client) ShortHostname() string {
	cmd := c.exec.Command("hostname", "-s")
	if out, err := cmd.Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}
