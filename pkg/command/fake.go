// pkg/command/fake.go - in-memory Runner for tests.

package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeCall records a single invocation seen by the FakeRunner.
type FakeCall struct {
	User string // empty unless RunAs was used
	Name string
	Args []string
}

// Line renders the call the way Responses keys are written.
func (c FakeCall) Line() string {
	parts := []string{c.Name}
	parts = append(parts, c.Args...)
	line := strings.Join(parts, " ")
	if c.User != "" {
		line = c.User + "|" + line
	}
	return line
}

// FakeRunner satisfies Runner with canned responses. Responses are keyed by
// the full command line ("name arg1 arg2"); RunAs lines get a "user|"
// prefix. Unmatched commands succeed with empty output unless DefaultErr
// is set.
type FakeRunner struct {
	mu         sync.Mutex
	Calls      []FakeCall
	Responses  map[string]FakeResponse
	DefaultErr error
}

// FakeResponse is the canned result for one command line.
type FakeResponse struct {
	Output string
	Err    error
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Responses: make(map[string]FakeResponse)}
}

// Respond registers output for an exact command line.
func (f *FakeRunner) Respond(line, output string) {
	f.Responses[line] = FakeResponse{Output: output}
}

// Fail registers an error for an exact command line.
func (f *FakeRunner) Fail(line string, err error) {
	f.Responses[line] = FakeResponse{Err: err}
}

func (f *FakeRunner) record(call FakeCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)

	if resp, ok := f.Responses[call.Line()]; ok {
		return resp.Output, resp.Err
	}
	if f.DefaultErr != nil {
		return "", f.DefaultErr
	}
	return "", nil
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	return f.record(FakeCall{Name: name, Args: args})
}

// RunAs implements Runner.
func (f *FakeRunner) RunAs(_ context.Context, username, name string, args ...string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("RunAs requires a username")
	}
	return f.record(FakeCall{User: username, Name: name, Args: args})
}

// CallLines returns every recorded call in Responses-key form.
func (f *FakeRunner) CallLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.Line())
	}
	return lines
}
