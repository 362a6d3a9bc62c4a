package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"time"

	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/debug"
)

// CommandConfig configures run_command.
type CommandConfig struct {
	Enabled bool

	// Allowed lists the programs that may be run. Empty allows none.
	Allowed []string

	// WorkDir is the working directory of every command.
	WorkDir string

	// Timeout is the budget of run_command (default: 5m). It is usually
	// above the dispatch inline threshold, so commands run in the
	// background.
	Timeout time.Duration
}

// maxOutput caps captured stdout and stderr each.
const maxOutput = 64 << 10

var commandSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "program": {"type": "string", "description": "Program to run"},
    "args": {"type": "array", "items": {"type": "string"}, "description": "Program arguments"}
  },
  "required": ["program"]
}`)

type commandRunner struct {
	cfg CommandConfig
}

func newCommandRunner(cfg CommandConfig) *commandRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &commandRunner{cfg: cfg}
}

func (r *commandRunner) capability() capability.Capability {
	return capability.Capability{
		Name:        "run_command",
		Description: fmt.Sprintf("Run an external program and return its output. Allowed programs: %v.", r.cfg.Allowed),
		Parameters:  commandSchema,
		Timeout:     r.cfg.Timeout,
		Category:    capability.CategoryAction,
		Handler:     capability.SuspendingFunc(r.run),
	}
}

// CommandResult is the outcome of a command that ran to completion.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
}

// ExitError reports a non-zero exit. The captured output is kept so it
// reaches the caller as the failure message.
type ExitError struct {
	Program string
	Result  CommandResult
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Program, e.Result.ExitCode)
	if e.Result.Stderr != "" {
		msg += ": " + debug.Truncate(e.Result.Stderr, 500)
	}
	return msg
}

func (r *commandRunner) run(ctx context.Context, args map[string]any) (any, error) {
	program, err := stringArg(args, "program")
	if err != nil {
		return nil, err
	}
	if !slices.Contains(r.cfg.Allowed, program) {
		return nil, fmt.Errorf("program %q is not allowed", program)
	}
	var argv []string
	if raw, ok := args["args"].([]any); ok {
		for _, a := range raw {
			s, ok := a.(string)
			if !ok {
				return nil, errors.New("args must be strings")
			}
			argv = append(argv, s)
		}
	}

	cmd := exec.CommandContext(ctx, program, argv...)
	cmd.Dir = r.cfg.WorkDir
	cmd.WaitDelay = 2 * time.Second
	stdout := &cappedBuffer{limit: maxOutput}
	stderr := &cappedBuffer{limit: maxOutput}
	cmd.Stdout, cmd.Stderr = stdout, stderr

	debug.Log("dispatch", "run_command starting", "program", program, "args", argv)
	err = cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return nil, &ExitError{Program: program, Result: res}
	case err != nil:
		return nil, fmt.Errorf("run %s: %w", program, err)
	}
	return res, nil
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
