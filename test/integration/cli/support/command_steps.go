package support

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/scan2sheets/cmd/scan2sheets/cmd"
	"github.com/MeKo-Tech/scan2sheets/internal/app"
)

// RegisterCommandSteps registers steps that run the CLI in process.
func (testCtx *TestContext) RegisterCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRun)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
}

// expand resolves "@name" to a registered image and "out:file" to a path
// inside the scenario directory.
func (testCtx *TestContext) expand(arg string) string {
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		if path, ok := testCtx.Images[name]; ok {
			return path
		}
	}
	if name, ok := strings.CutPrefix(arg, "out:"); ok {
		return filepath.Join(testCtx.TempDir, name)
	}
	return arg
}

// Run executes scan2sheets with args against the scenario store.
func (testCtx *TestContext) Run(args ...string) (string, error) {
	root := cmd.NewRootCommand(app.WithStore(testCtx.Store), app.WithEngine(testCtx.Engine))
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func (testCtx *TestContext) iRun(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "scan2sheets" {
		return fmt.Errorf("expected a scan2sheets command, got %q", command)
	}
	args := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		args = append(args, testCtx.expand(f))
	}
	testCtx.LastArgs = args
	testCtx.LastOutput, testCtx.LastError = testCtx.Run(args...)
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %v failed: %w\noutput: %s", testCtx.LastArgs, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %v succeeded unexpectedly\noutput: %s", testCtx.LastArgs, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", expected, testCtx.LastOutput)
	}
	return nil
}
