package helpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type optionTarget struct {
	name string
	port int
}

func withName(name string) ConfigOptionFunc[optionTarget] {
	return func(t *optionTarget) error {
		t.name = name
		return nil
	}
}

func TestApplyOptionsInOrder(t *testing.T) {
	var target optionTarget
	err := ApplyOptions(&target, withName("a"), withName("b"), ConfigOptionFunc[optionTarget](func(t *optionTarget) error {
		t.port = 8000
		return nil
	}))
	assert.NoError(t, err)
	assert.Equal(t, optionTarget{name: "b", port: 8000}, target)
}

func TestApplyOptionsStopsAtFirstError(t *testing.T) {
	var target optionTarget
	failure := errors.New("bad option")
	err := ApplyOptions(&target,
		ConfigOptionFunc[optionTarget](func(*optionTarget) error { return failure }),
		withName("never"),
	)
	assert.Equal(t, failure, err)
	assert.Equal(t, "", target.name)
}
