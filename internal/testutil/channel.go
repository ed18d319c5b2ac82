// Package testutil provides test helpers: a scripted fake shell.Channel for
// unit tests, and Redis helpers for integration tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/starsdaisuki/stargate/pkg/shell"
)

// Call records one invocation of the fake channel.
type Call struct {
	Mode    string // "sh", "su", or "batch"
	Command string // empty for batches
	Steps   []shell.Step
}

type scripted struct {
	prefix string
	result shell.Result
}

// FakeChannel is a shell.Channel that answers commands from a script of
// prefix-matched results and records every call. Unmatched commands exit 1.
type FakeChannel struct {
	mu sync.Mutex

	// Root is what CheckPrivilege reports.
	Root bool
	// BatchExitCode and BatchStderr form the session's own result. As with
	// the real root session, failed steps do not change BatchExitCode.
	BatchExitCode int
	BatchStderr   string
	// FailSteps lists batch step names that report exit status 1.
	FailSteps map[string]bool
	// OnBatch, when set, runs inside RunPrivilegedBatch before it returns.
	OnBatch func()

	script []scripted
	calls  []Call
}

// NewFakeChannel returns a fake that reports root privilege.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{Root: true}
}

// On scripts the result for commands starting with prefix. Later entries
// with a longer prefix win over shorter ones.
func (f *FakeChannel) On(prefix string, res shell.Result) *FakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, scripted{prefix: prefix, result: res})
	return f
}

// OnOutput scripts a successful command with the given stdout.
func (f *FakeChannel) OnOutput(prefix, stdout string) *FakeChannel {
	return f.On(prefix, shell.Result{Stdout: strings.TrimSpace(stdout)})
}

// Run implements shell.Channel.
func (f *FakeChannel) Run(_ context.Context, command string) shell.Result {
	return f.answer("sh", command)
}

// RunPrivileged implements shell.Channel.
func (f *FakeChannel) RunPrivileged(_ context.Context, command string) shell.Result {
	return f.answer("su", command)
}

// RunPrivilegedBatch implements shell.Channel.
func (f *FakeChannel) RunPrivilegedBatch(_ context.Context, steps []shell.Step) shell.BatchResult {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Mode: "batch", Steps: append([]shell.Step(nil), steps...)})
	hook := f.OnBatch
	res := shell.BatchResult{
		Result: shell.Result{ExitCode: f.BatchExitCode, Stderr: f.BatchStderr},
		Steps:  make([]shell.StepResult, len(steps)),
	}
	for i, st := range steps {
		res.Steps[i] = shell.StepResult{Step: st, Ran: true}
		if f.FailSteps[st.Name] {
			res.Steps[i].ExitCode = 1
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return res
}

// CheckPrivilege implements shell.Channel.
func (f *FakeChannel) CheckPrivilege(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Mode: "su", Command: "id"})
	return f.Root
}

func (f *FakeChannel) answer(mode, command string) shell.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Mode: mode, Command: command})

	best := -1
	for i, s := range f.script {
		if strings.HasPrefix(command, s.prefix) && (best < 0 || len(s.prefix) >= len(f.script[best].prefix)) {
			best = i
		}
	}
	if best < 0 {
		return shell.Result{ExitCode: 1}
	}
	return f.script[best].result
}

// Calls returns a copy of every recorded call, in order.
func (f *FakeChannel) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the command lines of recorded non-batch calls.
func (f *FakeChannel) Commands() []string {
	var cmds []string
	for _, c := range f.Calls() {
		if c.Mode != "batch" {
			cmds = append(cmds, c.Command)
		}
	}
	return cmds
}

// Batches returns the steps of every recorded batch.
func (f *FakeChannel) Batches() [][]shell.Step {
	var batches [][]shell.Step
	for _, c := range f.Calls() {
		if c.Mode == "batch" {
			batches = append(batches, c.Steps)
		}
	}
	return batches
}

// Reset forgets recorded calls but keeps the script.
func (f *FakeChannel) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
