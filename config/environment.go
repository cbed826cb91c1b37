package config

import (
	"os"

	"github.com/fitnesse/test-system-harness/framework/opt"
)

// Environment reads variables from the process environment. With a non-empty prefix, the
// variable TEST_RUNNER is read from the environment variable prefix+"TEST_RUNNER".
type Environment struct {
	Prefix string
}

func (e Environment) Variable(name string) opt.Maybe[string] {
	value, ok := os.LookupEnv(e.Prefix + name)
	return opt.FromLookup(value, ok)
}
