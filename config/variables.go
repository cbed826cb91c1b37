// Package config provides the named-value sources that test-system configuration is resolved
// from. A source only answers "what is the value of this variable, if any"; the testsystems
// package decides what the values mean.
package config

import (
	"sort"

	"github.com/fitnesse/test-system-harness/framework/opt"
)

// Names of the variables that the test system harness reads.
const (
	TestSystem         = "TEST_SYSTEM"
	TestRunner         = "TEST_RUNNER"
	CommandPattern     = "COMMAND_PATTERN"
	RemoteDebugRunner  = "REMOTE_DEBUG_RUNNER"
	RemoteDebugCommand = "REMOTE_DEBUG_COMMAND"
	PathSeparator      = "PATH_SEPARATOR"
	ClasspathProperty  = "CLASSPATH_PROPERTY"
)

// VariableSource is a read-only lookup of named configuration values.
type VariableSource interface {
	Variable(name string) opt.Maybe[string]
}

// Variables is the simplest VariableSource: a fixed set of values. A name that maps to an
// empty string is defined.
type Variables map[string]string

func (v Variables) Variable(name string) opt.Maybe[string] {
	value, ok := v[name]
	return opt.FromLookup(value, ok)
}

// Names returns the defined variable names in sorted order.
func (v Variables) Names() []string {
	ret := make([]string, 0, len(v))
	for name := range v {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Layered looks a name up in each source in turn and returns the first defined value, the way
// a page inherits variables from its parents: the first layer is the most specific.
type Layered []VariableSource

func (l Layered) Variable(name string) opt.Maybe[string] {
	for _, source := range l {
		if source == nil {
			continue
		}
		if value := source.Variable(name); value.IsDefined() {
			return value
		}
	}
	return opt.None[string]()
}

// Snapshot copies the current value of each of the given names out of a source. Names that are
// not defined are left out. The result no longer depends on the source.
func Snapshot(source VariableSource, names ...string) Variables {
	ret := make(Variables, len(names))
	for _, name := range names {
		if value := source.Variable(name); value.IsDefined() {
			ret[name] = value.Value()
		}
	}
	return ret
}

// KnownNames returns the names of all variables that the harness reads.
func KnownNames() []string {
	return []string{
		TestSystem, TestRunner, CommandPattern, RemoteDebugRunner,
		RemoteDebugCommand, PathSeparator, ClasspathProperty,
	}
}
