// Package shell is the privileged command channel: it runs command lines under
// an unprivileged shell (sh -c), a root shell (su -c), or a single root session
// fed a script (batch mode). Failures are reported inside Result, never as errors.
package shell

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/starsdaisuki/stargate/pkg/util"
)

// Result is the outcome of one command or one session.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Step is one command of a privileged batch. A failed Critical step fails the
// whole batch; best-effort steps are reported but tolerated.
type Step struct {
	Name     string `json:"name"`
	Command  string `json:"command"`
	Critical bool   `json:"critical,omitempty"`
}

// StepResult records how one batch step ended. Ran is false when the session
// died before reaching the step.
type StepResult struct {
	Step
	Ran      bool `json:"ran"`
	ExitCode int  `json:"exit_code"`
}

// Failed reports whether the step did not run or exited non-zero.
func (s StepResult) Failed() bool {
	return !s.Ran || s.ExitCode != 0
}

// BatchResult is the session result plus per-step exit statuses.
type BatchResult struct {
	Result
	Steps []StepResult `json:"steps"`
}

// CriticalFailure returns the first critical step that failed, or nil.
func (b BatchResult) CriticalFailure() *StepResult {
	for i := range b.Steps {
		if b.Steps[i].Critical && b.Steps[i].Failed() {
			return &b.Steps[i]
		}
	}
	return nil
}

// FailedSteps returns every step that failed, in batch order.
func (b BatchResult) FailedSteps() []StepResult {
	var failed []StepResult
	for _, s := range b.Steps {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Channel runs commands on the device. Implementations must be safe for
// sequential use from one goroutine at a time per call; they hold no session state.
type Channel interface {
	// Run executes a command under the unprivileged shell.
	Run(ctx context.Context, command string) Result
	// RunPrivileged executes a command under the root shell.
	RunPrivileged(ctx context.Context, command string) Result
	// RunPrivilegedBatch executes steps in order in one root session,
	// continuing past failures. The batch is not cancelled by ctx once dispatched.
	RunPrivilegedBatch(ctx context.Context, steps []Step) BatchResult
	// CheckPrivilege reports whether the root shell resolves to uid 0.
	CheckPrivilege(ctx context.Context) bool
}

// Options selects the binaries used to reach each privilege level.
type Options struct {
	ShellBinary string // unprivileged shell, default "sh"
	SuBinary    string // escalation binary, default "su"
}

// Shell is the Channel implementation shared by every transport. The
// privilege level is a parameter of each call, not a separate type.
type Shell struct {
	transport Transport
	opts      Options
}

// New creates a Shell over the given transport.
func New(t Transport, opts Options) *Shell {
	if opts.ShellBinary == "" {
		opts.ShellBinary = "sh"
	}
	if opts.SuBinary == "" {
		opts.SuBinary = "su"
	}
	return &Shell{transport: t, opts: opts}
}

// NewLocal creates a Shell that spawns processes on this host.
func NewLocal(opts Options) *Shell {
	return New(LocalTransport{}, opts)
}

// Run implements Channel.
func (s *Shell) Run(ctx context.Context, command string) Result {
	return s.exec(ctx, "sh", []string{s.opts.ShellBinary, "-c", command}, "")
}

// RunPrivileged implements Channel.
func (s *Shell) RunPrivileged(ctx context.Context, command string) Result {
	return s.exec(ctx, "su", []string{s.opts.SuBinary, "-c", command}, "")
}

// RunPrivilegedBatch implements Channel.
func (s *Shell) RunPrivilegedBatch(ctx context.Context, steps []Step) BatchResult {
	for _, st := range steps {
		util.WithField("channel", "su-batch").Debugf("step %s: %s", st.Name, st.Command)
	}
	script := BatchScript(steps)
	res := s.exec(context.WithoutCancel(ctx), "su-batch", []string{s.opts.SuBinary}, script)

	stdout, codes := stripMarkers(res.Stdout)
	res.Stdout = stdout

	out := BatchResult{Result: res, Steps: make([]StepResult, len(steps))}
	for i, st := range steps {
		out.Steps[i] = StepResult{Step: st, ExitCode: -1}
		if code, ok := codes[i]; ok {
			out.Steps[i].Ran = true
			out.Steps[i].ExitCode = code
		}
	}
	return out
}

// CheckPrivilege implements Channel.
func (s *Shell) CheckPrivilege(ctx context.Context) bool {
	res := s.RunPrivileged(ctx, "id")
	ok := res.Success() && strings.Contains(res.Stdout, "uid=0")
	util.WithField("channel", "su").Debugf("privilege check: %v (%s)", ok, res.Stdout)
	return ok
}

func (s *Shell) exec(ctx context.Context, channel string, argv []string, stdin string) Result {
	log := util.WithField("channel", channel)
	if stdin == "" {
		log.Debugf("exec: %s", argv[len(argv)-1])
	}

	stdout, stderr, code, err := s.transport.Exec(ctx, argv, stdin)
	if err != nil {
		log.Debugf("exec error: %v", err)
		return Result{ExitCode: -1, Stdout: strings.TrimSpace(stdout), Stderr: err.Error()}
	}

	res := Result{
		ExitCode: code,
		Stdout:   strings.TrimSpace(stdout),
		Stderr:   strings.TrimSpace(stderr),
	}
	log.Debugf("exec result: code=%d stdout=%q stderr=%q", res.ExitCode, res.Stdout, res.Stderr)
	return res
}

const stepMarker = "@@stargate-step"

var stepMarkerRe = regexp.MustCompile(stepMarker + `:(\d+):(-?\d+)`)

// BatchScript renders steps as the newline-separated script fed to the root
// session. Each command is followed by a marker echoing its exit status.
// The script always exits 0, so a non-zero session status means the session
// itself failed; step outcomes come only from the markers.
func BatchScript(steps []Step) string {
	var b strings.Builder
	for i, st := range steps {
		b.WriteString(st.Command)
		b.WriteString("\n")
		fmt.Fprintf(&b, "echo \"%s:%d:$?\"\n", stepMarker, i)
	}
	b.WriteString("exit 0\n")
	return b.String()
}

// stripMarkers removes step markers from session output and returns the
// remaining text plus the exit status recorded for each step index.
func stripMarkers(stdout string) (string, map[int]int) {
	codes := make(map[int]int)
	var kept []string
	for _, line := range strings.Split(stdout, "\n") {
		loc := stepMarkerRe.FindStringSubmatchIndex(line)
		if loc == nil {
			kept = append(kept, line)
			continue
		}
		idx, _ := strconv.Atoi(line[loc[2]:loc[3]])
		code, _ := strconv.Atoi(line[loc[4]:loc[5]])
		codes[idx] = code
		// A command without a trailing newline leaves its output before the marker.
		if prefix := line[:loc[0]]; prefix != "" {
			kept = append(kept, prefix)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), codes
}
