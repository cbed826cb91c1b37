package testsystems

import (
	"fmt"
	"strings"

	"github.com/fitnesse/test-system-harness/config"
)

const defaultTestSystemType = "fit"

// Descriptor resolves everything needed to launch a test system from a page's variables.
// Every value is computed on demand from the variables and the remote-debug flag; a Descriptor
// is never modified after it is created.
//
// Two descriptors are the same test system if TestSystemName, TestRunner, CommandPattern and
// PathSeparator all agree, whatever variables they were resolved from. Use Equal or Key to
// compare them; do not use ==.
type Descriptor struct {
	data        config.VariableSource
	remoteDebug bool
	defaults    Defaults
}

// DescriptorKey is the identity of a Descriptor. It is comparable, so it can be used as a map
// key to share one test system between pages that resolve to the same one.
type DescriptorKey struct {
	TestSystemName string
	TestRunner     string
	CommandPattern string
	PathSeparator  string
}

// NewDescriptor creates a Descriptor. A nil data source is treated as having no variables.
func NewDescriptor(data config.VariableSource, remoteDebug bool, defaults Defaults) Descriptor {
	if data == nil {
		data = config.Variables(nil)
	}
	return Descriptor{data: data, remoteDebug: remoteDebug, defaults: defaults}
}

// RemoteDebug reports whether the descriptor resolves the remote-debug variants.
func (d Descriptor) RemoteDebug() bool { return d.remoteDebug }

// TestSystemType is the part of TEST_SYSTEM before the first colon, or "fit".
func (d Descriptor) TestSystemType() string {
	testSystem := d.data.Variable(config.TestSystem)
	if !testSystem.IsDefined() {
		return defaultTestSystemType
	}
	return TestSystemTypeOf(testSystem.Value())
}

// TestSystemName is "type:runner", always using the normal runner even in remote-debug mode,
// so that debugging a page does not make it look like a different test system.
func (d Descriptor) TestSystemName() string {
	return fmt.Sprintf("%s:%s", d.TestSystemType(), d.TestRunnerNormal())
}

// TestRunner is the runner program to launch: the remote-debug variant if the descriptor was
// created for remote debugging, otherwise the normal one.
func (d Descriptor) TestRunner() string {
	if d.remoteDebug {
		return d.testRunnerDebug()
	}
	return d.TestRunnerNormal()
}

// TestRunnerNormal is TEST_RUNNER, or the default runner for the test system type.
func (d Descriptor) TestRunnerNormal() string {
	return d.data.Variable(config.TestRunner).OrElseGet(d.defaultTestRunner)
}

func (d Descriptor) defaultTestRunner() string {
	if strings.EqualFold(d.TestSystemType(), "slim") {
		return d.defaults.SlimRunner
	}
	return d.defaults.FitRunner
}

// testRunnerDebug is REMOTE_DEBUG_RUNNER, or else the normal runner with "runner.exe" swapped
// for "runnerw.exe". When the swap happens the whole runner string comes back lower-cased;
// a runner without "runner.exe" keeps its case.
func (d Descriptor) testRunnerDebug() string {
	if program := d.data.Variable(config.RemoteDebugRunner); program.IsDefined() {
		return program.Value()
	}
	program := d.TestRunnerNormal()
	lower := strings.ToLower(program)
	if d.defaults.DebugRunnerFind != "" && strings.Contains(lower, d.defaults.DebugRunnerFind) {
		return strings.ReplaceAll(lower, d.defaults.DebugRunnerFind, d.defaults.DebugRunnerReplace)
	}
	return program
}

// CommandPattern is the launch template, with %p and %m placeholders.
func (d Descriptor) CommandPattern() string {
	if d.remoteDebug {
		return d.remoteDebugCommandPattern()
	}
	return d.normalCommandPattern()
}

func (d Descriptor) normalCommandPattern() string {
	return d.data.Variable(config.CommandPattern).OrElse(d.defaults.CommandPattern)
}

// remoteDebugCommandPattern prefers REMOTE_DEBUG_COMMAND. A COMMAND_PATTERN that mentions java
// is not reused, since it would start a JVM without the debug agent.
func (d Descriptor) remoteDebugCommandPattern() string {
	if pattern := d.data.Variable(config.RemoteDebugCommand); pattern.IsDefined() {
		return pattern.Value()
	}
	pattern := d.data.Variable(config.CommandPattern)
	if !pattern.IsDefined() || strings.Contains(strings.ToLower(pattern.Value()), "java") {
		return d.defaults.JavaDebugCommand
	}
	return pattern.Value()
}

// PathSeparator is PATH_SEPARATOR, or the host's path-list separator.
func (d Descriptor) PathSeparator() string {
	return d.data.Variable(config.PathSeparator).OrElse(d.defaults.PathSeparator)
}

// JoinClasspath builds the value substituted for %p from individual path entries.
func (d Descriptor) JoinClasspath(entries ...string) string {
	return strings.Join(entries, d.PathSeparator())
}

// Key returns the values that define the identity of the descriptor.
func (d Descriptor) Key() DescriptorKey {
	return DescriptorKey{
		TestSystemName: d.TestSystemName(),
		TestRunner:     d.TestRunner(),
		CommandPattern: d.CommandPattern(),
		PathSeparator:  d.PathSeparator(),
	}
}

// Equal reports whether two descriptors describe the same test system.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.Key() == other.Key()
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (runner=%q, pattern=%q)", d.TestSystemName(), d.TestRunner(), d.CommandPattern())
}

// TestSystemTypeOf returns the part of a test system name before the first colon.
func TestSystemTypeOf(testSystemName string) string {
	return strings.SplitN(testSystemName, ":", 2)[0]
}
