package config

import (
	"testing"

	"github.com/fitnesse/test-system-harness/framework/opt"

	"github.com/stretchr/testify/assert"
)

func TestVariables(t *testing.T) {
	vars := Variables{"A": "1", "EMPTY": ""}
	assert.Equal(t, opt.Some("1"), vars.Variable("A"))
	assert.Equal(t, opt.Some(""), vars.Variable("EMPTY"))
	assert.Equal(t, opt.None[string](), vars.Variable("B"))
	assert.Equal(t, []string{"A", "EMPTY"}, vars.Names())
}

func TestNilVariablesHasNothingDefined(t *testing.T) {
	var vars Variables
	assert.False(t, vars.Variable("A").IsDefined())
}

func TestLayeredReturnsFirstDefinedValue(t *testing.T) {
	page := Variables{"TEST_RUNNER": "page runner"}
	parent := Variables{"TEST_RUNNER": "parent runner", "TEST_SYSTEM": "slim"}
	root := Variables{"TEST_SYSTEM": "fit", "PATH_SEPARATOR": ";"}
	layered := Layered{page, nil, parent, root}

	assert.Equal(t, opt.Some("page runner"), layered.Variable("TEST_RUNNER"))
	assert.Equal(t, opt.Some("slim"), layered.Variable("TEST_SYSTEM"))
	assert.Equal(t, opt.Some(";"), layered.Variable("PATH_SEPARATOR"))
	assert.False(t, layered.Variable("COMMAND_PATTERN").IsDefined())
}

func TestLayeredEmptyValueShadowsParent(t *testing.T) {
	layered := Layered{Variables{"A": ""}, Variables{"A": "parent"}}
	assert.Equal(t, opt.Some(""), layered.Variable("A"))
}

func TestSnapshotCopiesOnlyDefinedNames(t *testing.T) {
	source := Variables{"TEST_SYSTEM": "slim", "OTHER": "x"}
	snapshot := Snapshot(source, KnownNames()...)
	assert.Equal(t, Variables{"TEST_SYSTEM": "slim"}, snapshot)

	source["TEST_SYSTEM"] = "fit"
	assert.Equal(t, opt.Some("slim"), snapshot.Variable("TEST_SYSTEM"))
}

func TestEnvironment(t *testing.T) {
	t.Setenv("HARNESS_TEST_RUNNER", "env runner")
	env := Environment{Prefix: "HARNESS_"}
	assert.Equal(t, opt.Some("env runner"), env.Variable("TEST_RUNNER"))
	assert.False(t, env.Variable("TEST_SYSTEM_SURELY_UNDEFINED").IsDefined())
}
