package testsystems

import "strings"

const (
	classpathMarker = "%p"
	runnerMarker    = "%m"
)

// BuildCommand fills in a descriptor's command pattern: the first %p becomes the classpath and
// then the first %m becomes the test runner.
func BuildCommand(d Descriptor, classpath string) string {
	command := ReplaceFirst(d.CommandPattern(), classpathMarker, classpath)
	return ReplaceFirst(command, runnerMarker, d.TestRunner())
}

// ReplaceFirst replaces the first occurrence of mark in value. The replacement is inserted
// literally, so Windows paths keep their backslashes.
func ReplaceFirst(value, mark, replacement string) string {
	return strings.Replace(value, mark, replacement, 1)
}
