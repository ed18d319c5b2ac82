package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Transport spawns one process and waits for it. A non-nil error means the
// process could not be run at all (spawn failure, lost connection); a process
// that ran and exited non-zero returns its exit code with a nil error.
type Transport interface {
	Exec(ctx context.Context, argv []string, stdin string) (stdout, stderr string, exitCode int, err error)
}

// LocalTransport runs processes on this host with os/exec.
type LocalTransport struct{}

// Exec implements Transport.
func (LocalTransport) Exec(ctx context.Context, argv []string, stdin string) (string, string, int, error) {
	if len(argv) == 0 {
		return "", "", -1, errors.New("empty command")
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdout = &stdout
	c.Stderr = &stderr
	if stdin != "" {
		c.Stdin = strings.NewReader(stdin)
	}

	err := c.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
