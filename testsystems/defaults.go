package testsystems

import "os"

// Defaults holds the built-in values that apply when a page does not define its own. They
// depend on the host platform, so they are computed once at startup with DefaultSettings and
// handed to each Descriptor.
type Defaults struct {
	// PathSeparator joins classpath entries when PATH_SEPARATOR is not defined.
	PathSeparator string

	// CommandPattern is the launch template when COMMAND_PATTERN is not defined.
	CommandPattern string

	// JavaDebugCommand is the remote-debug launch template; it makes the JVM wait for a
	// debugger on port 8000.
	JavaDebugCommand string

	// DebugRunnerFind and DebugRunnerReplace turn a .NET runner into its windowed variant
	// for remote debugging.
	DebugRunnerFind    string
	DebugRunnerReplace string

	// FitRunner and SlimRunner are the runners used when TEST_RUNNER is not defined.
	FitRunner  string
	SlimRunner string
}

const (
	defaultJavaDebugCommand = "java -Xdebug -Xrunjdwp:transport=dt_socket,server=y,suspend=y,address=8000 -cp %p %m"
	defaultFitRunner        = "fit.FitServer"
	defaultSlimRunner       = "fitnesse.slim.SlimService"
)

// DefaultSettings returns the defaults for the host platform.
func DefaultSettings() Defaults {
	return DefaultsWithPathSeparator(string(os.PathListSeparator))
}

// DefaultsWithPathSeparator returns the defaults that a host with the given path-list
// separator would have. The default command pattern embeds the separator.
func DefaultsWithPathSeparator(separator string) Defaults {
	return Defaults{
		PathSeparator:      separator,
		CommandPattern:     "java -cp fitnesse.jar" + separator + "%p %m",
		JavaDebugCommand:   defaultJavaDebugCommand,
		DebugRunnerFind:    "runner.exe",
		DebugRunnerReplace: "runnerw.exe",
		FitRunner:          defaultFitRunner,
		SlimRunner:         defaultSlimRunner,
	}
}
