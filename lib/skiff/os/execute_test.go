package os

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCaptureCollectsOutput(t *testing.T) {
	res, err := Capture("", nil, "sh", "-c", "printf 'one\\ntwo\\n'; printf 'warn\\n' >&2").Await()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != 0 {
		t.Errorf("status = %d, want 0", res.Status)
	}
	if len(res.Stdout) != 2 || res.Stdout[0] != "one" || res.Stdout[1] != "two" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if len(res.Stderr) != 1 || res.Stderr[0] != "warn" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestCaptureAppliesEnvOverrides(t *testing.T) {
	t.Setenv("SKIFF_TEST_VAR", "inherited")

	res, err := Capture("", map[string]string{"SKIFF_TEST_VAR": "overridden"},
		"sh", "-c", `printf '%s\n' "$SKIFF_TEST_VAR"`).Await()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stdout) != 1 || res.Stdout[0] != "overridden" {
		t.Errorf("stdout = %q, want the override", res.Stdout)
	}

	// An empty override still sets the variable to empty.
	res, err = Capture("", map[string]string{"SKIFF_TEST_VAR": ""},
		"sh", "-c", `printf '[%s]\n' "$SKIFF_TEST_VAR"`).Await()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stdout) != 1 || res.Stdout[0] != "[]" {
		t.Errorf("stdout = %q, want an empty value", res.Stdout)
	}
}

func TestAwaitFailsOnNonZeroExit(t *testing.T) {
	_, err := Capture("", nil, "sh", "-c", "printf 'boom\\n' >&2; exit 3").Await()
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %T (%v), want *ExecError", err, err)
	}
	if execErr.Result.Status != 3 {
		t.Errorf("status = %d, want 3", execErr.Result.Status)
	}
	if len(execErr.Result.Stderr) != 1 || execErr.Result.Stderr[0] != "boom" {
		t.Errorf("stderr = %q", execErr.Result.Stderr)
	}
	if !strings.Contains(execErr.Error(), "boom") {
		t.Errorf("error text %q does not carry stderr", execErr.Error())
	}
}

func TestResultTreatsNonZeroExitAsAnswer(t *testing.T) {
	res, err := Capture("", nil, "sh", "-c", "exit 1").Result()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != 1 {
		t.Errorf("status = %d, want 1", res.Status)
	}
}

func TestCaptureSpawnFailure(t *testing.T) {
	_, err := Capture("", nil, "skiff-no-such-binary").Result()
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %T (%v), want *ExecError", err, err)
	}
	if execErr.Result.Status != -1 {
		t.Errorf("status = %d, want -1", execErr.Result.Status)
	}
	if execErr.Unwrap() == nil {
		t.Error("spawn failure carries no cause")
	}
}

func TestStreamReadsIncrementally(t *testing.T) {
	s, err := Start("", nil, "sh", "-c", "printf 'alpha\\nbeta\\n'")
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(s.Out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "alpha\nbeta\n" {
		t.Errorf("stream output = %q", out)
	}
	if err := s.Join(); err != nil {
		t.Fatal(err)
	}
	// Join is idempotent.
	if err := s.Join(); err != nil {
		t.Fatal(err)
	}
}

func TestStreamJoinDrainsAndReportsFailure(t *testing.T) {
	s, err := Start("", nil, "sh", "-c", "printf 'partial\\n'; printf 'stream broke\\n' >&2; exit 2")
	if err != nil {
		t.Fatal(err)
	}
	// Join without reading Out must still drain and reap.
	err = s.Join()
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("got %T (%v), want *ExecError", err, err)
	}
	if execErr.Result.Status != 2 {
		t.Errorf("status = %d, want 2", execErr.Result.Status)
	}
	if len(execErr.Result.Stderr) != 1 || execErr.Result.Stderr[0] != "stream broke" {
		t.Errorf("stderr = %q", execErr.Result.Stderr)
	}
}

func TestSplitLines(t *testing.T) {
	if got := splitLines(""); got != nil {
		t.Errorf("splitLines(\"\") = %q, want nil", got)
	}
	if got := splitLines("a\nb\n"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitLines = %q", got)
	}
	if got := splitLines("lone"); len(got) != 1 || got[0] != "lone" {
		t.Errorf("splitLines = %q", got)
	}
}
