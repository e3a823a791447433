package os

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	stdos "os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/coveooss/skiff/lib/skiff/log"
)

// Result holds everything captured from a finished process. Status is -1
// when the process could not be spawned or was killed before exiting.
type Result struct {
	Command string
	Args    []string
	Status  int
	Stdout  []string
	Stderr  []string
}

func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s %s' exited with status %d", r.Command, strings.Join(r.Args, " "), r.Status)
	if len(r.Stdout) > 0 {
		b.WriteString("\nstdout:\n")
		b.WriteString(strings.Join(r.Stdout, "\n"))
	}
	if len(r.Stderr) > 0 {
		b.WriteString("\nstderr:\n")
		b.WriteString(strings.Join(r.Stderr, "\n"))
	}
	return b.String()
}

// ExecError reports a failed execution: either the process exited non-zero
// (Result carries the captured output) or it could not be run at all
// (Cause carries the spawn failure).
type ExecError struct {
	Result *Result
	Cause  error
}

func (e *ExecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Result, e.Cause)
	}
	return e.Result.String()
}

func (e *ExecError) Unwrap() error {
	return e.Cause
}

// Execution is a buffered run that has already finished. Await and Result
// only interpret the outcome.
type Execution struct {
	result *Result
	cause  error
}

// Capture runs command to completion in workdir with env applied on top of
// the current environment, collecting stdout and stderr line by line.
func Capture(workdir string, env map[string]string, command string, args ...string) *Execution {
	log.Logger.Tracef("%s %q", command, args)

	cmd := exec.Command(command, args...)
	cmd.Dir = workdir
	cmd.Env = mergeEnv(env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := &Result{Command: command, Args: args, Status: -1}
	e := &Execution{result: res}

	err := cmd.Run()
	res.Stdout = splitLines(stdout.String())
	res.Stderr = splitLines(stderr.String())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Status = 0
	case errors.As(err, &exitErr):
		res.Status = exitErr.ExitCode()
	default:
		e.cause = err
	}

	log.Logger.Tracef("\t%s\n", strings.Join(res.Stdout, "\n\t"))
	return e
}

// Await returns the result, failing with an *ExecError when the process
// exited non-zero or could not be spawned.
func (e *Execution) Await() (*Result, error) {
	if e.cause != nil {
		return nil, &ExecError{Result: e.result, Cause: e.cause}
	}
	if e.result.Status != 0 {
		return nil, &ExecError{Result: e.result}
	}
	return e.result, nil
}

// Result is the non-throwing form of Await for callers that treat a
// non-zero exit as an answer rather than a failure. It only fails when the
// process could not be spawned.
func (e *Execution) Result() (*Result, error) {
	if e.cause != nil {
		return nil, &ExecError{Result: e.result, Cause: e.cause}
	}
	return e.result, nil
}

// Stream is a live process whose stdout is consumed incrementally through
// Out. The caller must drain Out (or call Join, which drains the remainder)
// before the process can exit; stderr is captured for inclusion in failures.
type Stream struct {
	Out io.Reader

	command string
	args    []string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *bytes.Buffer

	once    sync.Once
	joinErr error
}

// Start spawns command in workdir with env applied on top of the current
// environment and returns a live handle on its stdout.
func Start(workdir string, env map[string]string, command string, args ...string) (*Stream, error) {
	log.Logger.Tracef("%s %q (streaming)", command, args)

	cmd := exec.Command(command, args...)
	cmd.Dir = workdir
	cmd.Env = mergeEnv(env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ExecError{Result: &Result{Command: command, Args: args, Status: -1}, Cause: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Result: &Result{Command: command, Args: args, Status: -1}, Cause: err}
	}

	return &Stream{
		Out:     stdout,
		command: command,
		args:    args,
		cmd:     cmd,
		stdout:  stdout,
		stderr:  &stderr,
	}, nil
}

// Join drains whatever stdout is left, reaps the process and reports a
// non-zero exit as an *ExecError. It is idempotent; repeated calls return
// the first outcome.
func (s *Stream) Join() error {
	s.once.Do(func() {
		// Drain the pipe so the child never blocks on a full OS buffer.
		_, _ = io.Copy(io.Discard, s.stdout)

		err := s.cmd.Wait()
		res := &Result{
			Command: s.command,
			Args:    s.args,
			Status:  -1,
			Stderr:  splitLines(s.stderr.String()),
		}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			res.Status = 0
		case errors.As(err, &exitErr):
			res.Status = exitErr.ExitCode()
			s.joinErr = &ExecError{Result: res}
		default:
			s.joinErr = &ExecError{Result: res, Cause: err}
		}
	})
	return s.joinErr
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// mergeEnv layers overrides on top of the inherited environment. An
// override with an empty value still sets the variable to empty, which is
// how the VCS backends force config discovery off.
func mergeEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := stdos.Environ()
	out := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
